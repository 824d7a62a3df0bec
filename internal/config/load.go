package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is the effective configuration after every override layer,
// along with the file it was read from.
type Resolved struct {
	Config
	Path string `json:"config_path"` // config file consulted (may not exist)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags. Relative
// store paths are filled in from the platform data directory.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("config loaded", slog.String("path", cfgPath))

	if env.APIURL != "" {
		cfg.API.BaseURL = env.APIURL
	}

	if env.Transport != "" {
		cfg.API.Transport = env.Transport
	}

	if env.TenantID != "" {
		cfg.API.TenantID = env.TenantID
	}

	if cli.APIURL != nil {
		cfg.API.BaseURL = *cli.APIURL
	}

	if cli.Mock != nil {
		cfg.API.Transport = TransportLive
		if *cli.Mock {
			cfg.API.Transport = TransportMock
		}
	}

	fillStorePaths(&cfg.Auth)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &Resolved{Config: *cfg, Path: cfgPath}, nil
}

// fillStorePaths defaults the session file locations to the data directory.
func fillStorePaths(a *AuthConfig) {
	dataDir := DefaultDataDir()
	if dataDir == "" {
		return
	}

	if a.TokenPath == "" {
		a.TokenPath = filepath.Join(dataDir, tokenFileName)
	}

	if a.DBPath == "" {
		a.DBPath = filepath.Join(dataDir, dbFileName)
	}
}
