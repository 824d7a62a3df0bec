// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for widgetctl. It applies a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Transport selects how API requests leave the process.
const (
	TransportLive = "live"
	TransportMock = "mock"
)

// Token store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Refresh modes.
const (
	RefreshEndpoint = "endpoint"
	RefreshOAuth2   = "oauth2"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api" json:"api"`
	Auth    AuthConfig    `toml:"auth" json:"auth"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// APIConfig describes the backend and how to reach it.
type APIConfig struct {
	BaseURL   string `toml:"base_url" json:"base_url"`
	Transport string `toml:"transport" json:"transport"`
	Timeout   string `toml:"timeout" json:"timeout"`
	UserAgent string `toml:"user_agent" json:"user_agent"`
	TenantID  string `toml:"tenant_id" json:"tenant_id"`
}

// AuthConfig controls where the session is kept and how it is refreshed.
// TokenPath and DBPath default to the platform data directory when empty.
type AuthConfig struct {
	Store           string `toml:"store" json:"store"`
	TokenPath       string `toml:"token_path" json:"token_path"`
	DBPath          string `toml:"db_path" json:"db_path"`
	RefreshMode     string `toml:"refresh_mode" json:"refresh_mode"`
	RefreshEndpoint string `toml:"refresh_endpoint" json:"refresh_endpoint"`
	RefreshTimeout  string `toml:"refresh_timeout" json:"refresh_timeout"`
	OAuth2TokenURL  string `toml:"oauth2_token_url" json:"oauth2_token_url"`
	OAuth2ClientID  string `toml:"oauth2_client_id" json:"oauth2_client_id"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	APIURL     *string
	Mock       *bool
}

// RequestTimeout returns the parsed api.timeout. Validation guarantees it
// parses.
func (c *APIConfig) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RefreshTimeoutDuration returns the parsed auth.refresh_timeout.
func (c *AuthConfig) RefreshTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RefreshTimeout)
	return d
}
