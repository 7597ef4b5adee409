// Package vault stores credentials encrypted at rest in a fixed namespace
// of a storage.Store. Records are sealed with AES-256-GCM under a key
// derived from a local passphrase; the key lives in a memguard Enclave
// while the vault is open.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/tekriderz/sessionkit/internal/util"
	"github.com/tekriderz/sessionkit/storage"
)

// Namespace is the single storage namespace everything in the vault
// lives under. No caller reaches into it directly.
const Namespace = "secure_store"

const (
	keyAccessToken      = "secure_auth_token"
	keyRefreshToken     = "secure_refresh_token"
	keyUser             = "secure_user_data"
	keyTempRegistration = "temp_user_data"
	keyDeviceID         = "device_id"
	keyKDFProfile       = "kdf_profile"

	aadPrefix = "sessionkit:vault:"
	kdfInfo   = "sessionkit:vault:v1"
)

// Record lifetimes. The storage layer's lazy eviction enforces them: no
// vault method ever returns a value past its expiry.
const (
	AccessTokenTTL      = 15 * time.Minute
	RefreshTokenTTL     = 7 * 24 * time.Hour
	TempRegistrationTTL = 15 * time.Minute
)

// ErrLocked is returned when the passphrase does not match the profile the
// vault was created with.
var ErrLocked = errors.New("vault locked: passphrase mismatch")

// kdfProfile captures the salt and parameters used to derive the sealing
// key. It is the only plaintext record in the namespace.
type kdfProfile struct {
	Params util.Argon2idParams `json:"params"`
	Salt   []byte              `json:"salt"`
	Check  []byte              `json:"check"` // sealed probe used to detect a wrong passphrase
}

// sealedRecord is the encrypted payload carried inside a storage.Entry.
type sealedRecord struct {
	Ver    int    `json:"ver"`
	Scheme string `json:"scheme"`
	Data   []byte `json:"data"` // nonce || ciphertext
}

// Vault is the secure credential store. All methods are safe for
// concurrent use; multi-record operations are serialized so readers never
// observe interleaved partial records.
type Vault struct {
	store   storage.Store
	key     *memguard.Enclave
	profile kdfProfile
	logger  *slog.Logger

	mu sync.Mutex
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// Open derives the sealing key from the passphrase and returns a ready
// vault. On first open a fresh KDF profile is generated and persisted; on
// later opens the stored profile is reused so the same passphrase derives
// the same key. A wrong passphrase fails with ErrLocked.
func Open(ctx context.Context, store storage.Store, passphrase string, opts ...Option) (*Vault, error) {
	v := &Vault{
		store:  store,
		logger: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(v)
	}

	profile, created, err := loadOrCreateProfile(ctx, store)
	if err != nil {
		return nil, err
	}
	v.profile = profile

	seed, err := util.DeriveArgon2idKey(util.Normalize(passphrase), profile.Salt, profile.Params)
	if err != nil {
		return nil, fmt.Errorf("deriving vault seed: %w", err)
	}
	defer util.WipeBytes(seed)

	key, err := util.HKDF(seed, nil, []byte(kdfInfo))
	if err != nil {
		return nil, fmt.Errorf("expanding vault key: %w", err)
	}

	if created {
		check, err := util.SealAES([]byte(kdfInfo), key, []byte(aadPrefix+"check"))
		if err != nil {
			util.WipeBytes(key)
			return nil, fmt.Errorf("sealing passphrase check: %w", err)
		}
		v.profile.Check = check
		if err := v.putProfile(ctx); err != nil {
			v.logger.Warn("vault profile not persisted; credentials will not survive restart", "error", err)
		}
	} else if _, err := util.OpenAES(profile.Check, key, []byte(aadPrefix+"check")); err != nil {
		util.WipeBytes(key)
		return nil, ErrLocked
	}

	// NewEnclave wipes the source buffer.
	v.key = memguard.NewEnclave(key)
	return v, nil
}

func loadOrCreateProfile(ctx context.Context, store storage.Store) (kdfProfile, bool, error) {
	entry, err := store.Get(ctx, Namespace, keyKDFProfile)
	if err == nil {
		var profile kdfProfile
		if err := entry.Decode(&profile); err == nil && len(profile.Salt) > 0 {
			return profile, false, nil
		}
		// Corrupt profile: fall through and start over. Existing sealed
		// records are unreadable either way.
	} else if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrUnavailable) {
		return kdfProfile{}, false, err
	}

	salt, err := util.RandomBytes(16)
	if err != nil {
		return kdfProfile{}, false, fmt.Errorf("generating vault salt: %w", err)
	}
	return kdfProfile{Params: util.DefaultArgon2idParams(), Salt: salt}, true, nil
}

func (v *Vault) putProfile(ctx context.Context) error {
	entry, err := storage.NewEntry(keyKDFProfile, v.profile, 0)
	if err != nil {
		return err
	}
	return v.store.Put(ctx, Namespace, keyKDFProfile, entry)
}

// put seals value and writes it as a whole envelope under the given key.
func (v *Vault) put(ctx context.Context, key string, value any, ttl time.Duration) error {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	defer util.WipeBytes(plaintext)

	buf, err := v.key.Open()
	if err != nil {
		return fmt.Errorf("opening vault key: %w", err)
	}
	defer buf.Destroy()

	sealed, err := util.SealAES(plaintext, buf.Bytes(), []byte(aadPrefix+key))
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	entry, err := storage.NewEntry(key, sealedRecord{Ver: 1, Scheme: "aes256gcm", Data: sealed}, ttl)
	if err != nil {
		return err
	}
	if err := v.store.Put(ctx, Namespace, key, entry); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// get loads and unseals the record at key into out. Absent, expired,
// unreachable, and corrupt records all report storage.ErrNotFound; corrupt
// records are deleted.
func (v *Vault) get(ctx context.Context, key string, out any) error {
	entry, err := v.store.Get(ctx, Namespace, key)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			v.logger.Warn("vault storage unavailable", "key", key)
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return err
	}

	var rec sealedRecord
	if err := entry.Decode(&rec); err != nil {
		return v.discardCorrupt(ctx, key, err)
	}
	if rec.Ver != 1 || rec.Scheme != "aes256gcm" {
		return v.discardCorrupt(ctx, key, fmt.Errorf("unsupported record scheme %q", rec.Scheme))
	}

	buf, err := v.key.Open()
	if err != nil {
		return fmt.Errorf("opening vault key: %w", err)
	}
	defer buf.Destroy()

	plaintext, err := util.OpenAES(rec.Data, buf.Bytes(), []byte(aadPrefix+key))
	if err != nil {
		return v.discardCorrupt(ctx, key, err)
	}
	defer util.WipeBytes(plaintext)

	if err := json.Unmarshal(plaintext, out); err != nil {
		return v.discardCorrupt(ctx, key, err)
	}
	return nil
}

func (v *Vault) discardCorrupt(ctx context.Context, key string, cause error) error {
	v.logger.Warn("discarding unreadable vault record", "key", key, "error", cause)
	_ = v.store.Delete(ctx, Namespace, key)
	return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
}

// Clear wipes every credential in the namespace. Installation identity
// survives: the KDF profile is re-persisted so later writes remain
// readable after a restart, and the device id so logout does not mint a
// new installation.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var deviceID string
	if err := v.get(ctx, keyDeviceID, &deviceID); err != nil {
		deviceID = ""
	}

	if err := v.store.Clear(ctx, Namespace); err != nil {
		return fmt.Errorf("clearing vault: %w", err)
	}
	if err := v.putProfile(ctx); err != nil {
		v.logger.Warn("vault profile not re-persisted after clear", "error", err)
	}
	if deviceID != "" {
		if err := v.put(ctx, keyDeviceID, deviceID, 0); err != nil {
			v.logger.Warn("device id not re-persisted after clear", "error", err)
		}
	}
	return nil
}
