package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig    = "WIDGETCTL_CONFIG"
	EnvAPIURL    = "WIDGETCTL_API_URL"
	EnvTransport = "WIDGETCTL_TRANSPORT"
	EnvTenant    = "WIDGETCTL_TENANT"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // WIDGETCTL_CONFIG: override config file path
	APIURL     string // WIDGETCTL_API_URL: backend base URL
	Transport  string // WIDGETCTL_TRANSPORT: live | mock
	TenantID   string // WIDGETCTL_TENANT: X-Tenant-ID header
}

// LoadDotEnv loads variables from the given .env files (".env" in the
// working directory when none are given) without overriding variables
// already set. Missing files are not an error.
func LoadDotEnv(logger *slog.Logger, files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		err := godotenv.Load(f)

		switch {
		case err == nil:
			logger.Debug("loaded environment file", slog.String("path", f))
		case errors.Is(err, fs.ErrNotExist):
		default:
			logger.Warn("ignoring unreadable environment file",
				slog.String("path", f),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	o := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIURL:     os.Getenv(EnvAPIURL),
		Transport:  os.Getenv(EnvTransport),
		TenantID:   os.Getenv(EnvTenant),
	}

	if o.ConfigPath != "" {
		logger.Debug("config path from environment", slog.String("path", o.ConfigPath))
	}

	return o
}
