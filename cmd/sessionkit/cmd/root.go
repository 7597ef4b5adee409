package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tekriderz/sessionkit/client"
	"github.com/tekriderz/sessionkit/config"
	"github.com/tekriderz/sessionkit/session"
	bboltstorage "github.com/tekriderz/sessionkit/storage/bbolt"
	"github.com/tekriderz/sessionkit/vault"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "sessionkit",
	Version: Version,
	Short:   "Authenticated session and offline cache client",
	Long: `Manages an encrypted local session vault for the learning platform:
login, OTP signup, token refresh, and cached offline reads.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a command needs after setup.
type app struct {
	cfg     *config.Config
	store   *bboltstorage.Store
	vault   *vault.Vault
	api     *client.Client
	manager *session.Manager
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// openApp loads config, unlocks the on-disk vault, and wires the client
// and session manager together. The client reads its bearer token from
// the manager so refreshed tokens take effect immediately.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	passphrase := cfg.Passphrase
	if passphrase == "" {
		passphrase, err = prompt("Vault passphrase: ")
		if err != nil {
			return nil, err
		}
	}

	store, err := bboltstorage.NewStoreFromFile(cfg.DBPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	v, err := vault.Open(ctx, store, passphrase)
	if err != nil {
		store.Close()
		return nil, err
	}

	var m *session.Manager
	api := client.New(cfg.APIBaseURL, client.WithTokenSource(func() string {
		return m.Token()
	}))
	m = session.New(api, v)

	return &app{cfg: cfg, store: store, vault: v, api: api, manager: m}, nil
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
