// Package testutil provides shared test environment helpers for E2E and
// integration tests.
package testutil

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read by the E2E suite.
const (
	EnvE2EAPIURL      = "WIDGETCTL_E2E_API_URL"
	EnvE2EEmail       = "WIDGETCTL_E2E_EMAIL"
	EnvE2EPassword    = "WIDGETCTL_E2E_PASSWORD"
	EnvAllowedBackend = "WIDGETCTL_ALLOWED_TEST_HOSTS"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	_ = godotenv.Load(envPath)
}

// LiveBackend is a real admin API the E2E suite may log in to.
type LiveBackend struct {
	BaseURL  string
	Email    string
	Password string
}

// LiveBackendFromEnv returns the configured live backend, or false when the
// suite should run against the in-process mock.
func LiveBackendFromEnv() (LiveBackend, bool) {
	b := LiveBackend{
		BaseURL:  os.Getenv(EnvE2EAPIURL),
		Email:    os.Getenv(EnvE2EEmail),
		Password: os.Getenv(EnvE2EPassword),
	}

	if b.BaseURL == "" {
		return LiveBackend{}, false
	}

	return b, true
}

// ValidateAllowlist crashes the process if the backend host is not listed
// in WIDGETCTL_ALLOWED_TEST_HOSTS, so the suite never mutates a production
// tenant by accident.
func ValidateAllowlist(b LiveBackend) {
	allowlist := os.Getenv(EnvAllowedBackend)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvAllowedBackend)
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintln(os.Stderr, "Example: WIDGETCTL_ALLOWED_TEST_HOSTS=staging.example.com")
		os.Exit(1)
	}

	u, err := url.Parse(b.BaseURL)
	if err != nil || u.Host == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not a URL\n", EnvE2EAPIURL, b.BaseURL)
		os.Exit(1)
	}

	if b.Email == "" || b.Password == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s and %s must be set for a live backend\n", EnvE2EEmail, EnvE2EPassword)
		os.Exit(1)
	}

	for _, h := range strings.Split(allowlist, ",") {
		if strings.EqualFold(strings.TrimSpace(h), u.Hostname()) {
			return
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: host %q is not in %s=%q\n", u.Hostname(), EnvAllowedBackend, allowlist)
	os.Exit(1)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
