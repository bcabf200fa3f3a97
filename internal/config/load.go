package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Environment variable names for overrides. Secrets are accepted from
// the environment so they can stay out of the config file; a .env file
// in the working directory is honored by the CLI.
const (
	EnvConfig      = "UNIDRIVE_CONFIG"
	EnvListenAddr  = "UNIDRIVE_LISTEN_ADDR"
	EnvStorePath   = "UNIDRIVE_STORE_PATH"
	EnvStoreSecret = "UNIDRIVE_STORE_SECRET"
	EnvLogLevel    = "UNIDRIVE_LOG_LEVEL"
)

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "unidrive.toml"
	}

	return filepath.Join(home, ".unidrive", "config.toml")
}

// Load reads and parses a TOML config file and returns the resulting
// Config. Unknown keys are fatal with "did you mean?" suggestions —
// silently ignoring a typo in a config file leads to hard-to-debug
// behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise
// returns a Config populated with default values. Supports the
// zero-config first run: connecting accounts works before any config
// file exists.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// EffectivePath resolves the config file location: the --config flag
// wins, then UNIDRIVE_CONFIG, then the default path.
func EffectivePath(flagPath string) string {
	path := DefaultConfigPath()

	if env := os.Getenv(EnvConfig); env != "" {
		path = env
	}

	if flagPath != "" {
		path = flagPath
	}

	return path
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment. configPath comes from the
// --config flag.
func Resolve(configPath string) (*Config, error) {
	cfg, err := LoadOrDefault(EffectivePath(configPath))
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}

	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}

	if v := os.Getenv(EnvStoreSecret); v != "" {
		cfg.Store.Secret = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.LogLevel = v
	}
}
