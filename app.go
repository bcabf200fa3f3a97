package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unidrive/unidrive/internal/account"
	"github.com/unidrive/unidrive/internal/aggregate"
	"github.com/unidrive/unidrive/internal/config"
	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
	"github.com/unidrive/unidrive/internal/provider/dropbox"
	"github.com/unidrive/unidrive/internal/provider/googledrive"
	"github.com/unidrive/unidrive/internal/provider/objectstore"
	"github.com/unidrive/unidrive/internal/provider/onedrive"
)

// httpClientTimeout bounds outbound provider requests at the transport
// level; per-call context timeouts are applied by the engine.
const httpClientTimeout = 60 * time.Second

// app bundles the wired components every subcommand works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *credstore.SQLite
	registry account.Registry
	adapters provider.Set
	buckets  *objectstore.Multi
	auth     *account.Authenticator
	engine   *aggregate.Engine
}

// newApp wires the application from the loaded config: encrypted
// session store, account registry, one adapter per service, OAuth
// authenticator, and the aggregation engine.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	storePath, err := expandHome(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	secret := cfg.Store.Secret
	if secret == "" {
		secret, err = loadOrCreateSecret(filepath.Join(filepath.Dir(storePath), "secret"))
		if err != nil {
			return nil, err
		}
	}

	retention, err := cfg.Retention()
	if err != nil {
		return nil, err
	}

	store, err := credstore.OpenSQLite(ctx, storePath, secret, retention, logger)
	if err != nil {
		return nil, err
	}

	registry := account.NewSQLiteRegistry(store.DB())

	httpClient := &http.Client{Timeout: httpClientTimeout}

	buckets := objectstore.NewMulti(logger)
	for _, b := range cfg.Buckets {
		buckets.Add(b.Name, objectstore.Config{
			Endpoint: b.Endpoint,
			Region:   b.Region,
			Bucket:   b.Bucket,
		})
	}

	adapters := provider.NewSet(
		googledrive.New(googledrive.DefaultBaseURL, httpClient, logger),
		onedrive.New(onedrive.DefaultBaseURL, httpClient, logger),
		dropbox.New(dropbox.DefaultBaseURL, httpClient, logger),
		buckets,
	)

	apps := make(map[item.Service]account.App, len(cfg.Apps))
	for name, a := range cfg.Apps {
		apps[item.Service(name)] = account.App{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Scopes:       a.Scopes,
		}
	}

	auth := account.NewAuthenticator(apps, store, registry, adapters, logger)

	callTimeout, err := cfg.CallTimeout()
	if err != nil {
		return nil, err
	}

	engine := aggregate.New(registry, store, adapters, logger,
		aggregate.WithCallTimeout(callTimeout),
		aggregate.WithReauthURL(func(service item.Service) (string, error) {
			callback := cfg.Server.BaseURL + "/auth/" + string(service) + "/callback"
			return auth.ReauthURL(service, callback)
		}),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		adapters: adapters,
		buckets:  buckets,
		auth:     auth,
		engine:   engine,
	}, nil
}

// Close releases the session database.
func (a *app) Close() error {
	return a.store.Close()
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	return filepath.Join(home, path[2:]), nil
}

// secretBytes is the size of a generated session secret.
const secretBytes = 32

// loadOrCreateSecret reads the session encryption secret from path,
// generating and persisting one on first run so the zero-config path
// still encrypts at rest.
func loadOrCreateSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading session secret: %w", err)
	}

	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}

	secret := hex.EncodeToString(buf)

	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting session secret: %w", err)
	}

	return secret, nil
}
