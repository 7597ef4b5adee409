package util

import (
	"bytes"
	"testing"
)

func TestSealOpenAES(t *testing.T) {
	key, err := RandomBytes(AESKeySize)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("hello world")
	aad := []byte("context")

	t.Run("RoundTrip", func(t *testing.T) {
		sealed, err := SealAES(plaintext, key, aad)
		if err != nil {
			t.Fatalf("SealAES failed: %v", err)
		}
		opened, err := OpenAES(sealed, key, aad)
		if err != nil {
			t.Fatalf("OpenAES failed: %v", err)
		}
		if !bytes.Equal(plaintext, opened) {
			t.Errorf("expected %s, got %s", plaintext, opened)
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		sealed, _ := SealAES(plaintext, key, aad)
		if _, err := OpenAES(sealed, key, []byte("wrong context")); err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCiphertext", func(t *testing.T) {
		sealed, _ := SealAES(plaintext, key, aad)
		sealed[len(sealed)-1] ^= 0xFF
		if _, err := OpenAES(sealed, key, aad); err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		if _, err := SealAES(plaintext, []byte("too short"), aad); err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})

	t.Run("RejectShortCiphertext", func(t *testing.T) {
		if _, err := OpenAES([]byte("abc"), key, aad); err == nil {
			t.Error("expected error with truncated ciphertext, got nil")
		}
	})
}

func TestDeriveArgon2idKey(t *testing.T) {
	salt, _ := RandomBytes(16)
	params := DefaultArgon2idParams()

	k1, err := DeriveArgon2idKey("passphrase", salt, params)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := DeriveArgon2idKey("passphrase", salt, params)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt should derive the same key")
	}

	k3, _ := DeriveArgon2idKey("other", salt, params)
	if bytes.Equal(k1, k3) {
		t.Error("different passphrases should derive different keys")
	}

	bad := params
	bad.KeyLen = 16
	if _, err := DeriveArgon2idKey("passphrase", salt, bad); err == nil {
		t.Error("expected error for non-32-byte key length")
	}
}

func TestHKDF(t *testing.T) {
	seed, _ := RandomBytes(32)
	salt, _ := RandomBytes(16)

	k1, err := HKDF(seed, salt, []byte("info-a"))
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := HKDF(seed, salt, []byte("info-a"))
	if !bytes.Equal(k1, k2) {
		t.Error("HKDF should be deterministic")
	}
	k3, _ := HKDF(seed, salt, []byte("info-b"))
	if bytes.Equal(k1, k3) {
		t.Error("different info labels should produce different keys")
	}
	if len(k1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(k1))
	}
}

func TestRandomDigits(t *testing.T) {
	s, err := RandomDigits(6)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 6 {
		t.Fatalf("expected 6 digits, got %q", s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit %q in %q", c, s)
		}
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeBytes(b)
	for _, v := range b {
		if v != 0 {
			t.Fatal("expected wiped bytes to be zero")
		}
	}
}

func TestNormalize(t *testing.T) {
	// U+FB01 (ﬁ ligature) normalizes to "fi" under NFKD.
	if got := Normalize("ﬁsh"); got != "fish" {
		t.Errorf("expected fish, got %q", got)
	}
}
