package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Validation range constants.
const (
	minTimeout        = 1 * time.Second
	maxTimeout        = 10 * time.Minute
	minRefreshTimeout = 1 * time.Second
	maxRefreshTimeout = 2 * time.Minute
)

var (
	validTransports   = []string{TransportLive, TransportMock}
	validStores       = []string{StoreFile, StoreSQLite, StoreMemory}
	validRefreshModes = []string{RefreshEndpoint, RefreshOAuth2}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validLogFormats   = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	u, err := url.Parse(a.BaseURL)

	switch {
	case a.BaseURL == "":
		errs = append(errs, errors.New("api.base_url: must not be empty"))
	case err != nil:
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("api.base_url: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("api.base_url: missing host in %q", a.BaseURL))
	}

	errs = append(errs, checkOneOf("api.transport", a.Transport, validTransports)...)
	errs = append(errs, checkDuration("api.timeout", a.Timeout, minTimeout, maxTimeout)...)

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	errs = append(errs, checkOneOf("auth.store", a.Store, validStores)...)
	errs = append(errs, checkOneOf("auth.refresh_mode", a.RefreshMode, validRefreshModes)...)
	errs = append(errs, checkDuration("auth.refresh_timeout", a.RefreshTimeout, minRefreshTimeout, maxRefreshTimeout)...)

	if a.RefreshMode == RefreshEndpoint && !strings.HasPrefix(a.RefreshEndpoint, "/") {
		errs = append(errs, fmt.Errorf("auth.refresh_endpoint: must start with /, got %q", a.RefreshEndpoint))
	}

	if a.RefreshMode == RefreshOAuth2 {
		if a.OAuth2TokenURL == "" {
			errs = append(errs, errors.New("auth.oauth2_token_url: required when refresh_mode is oauth2"))
		}

		if a.OAuth2ClientID == "" {
			errs = append(errs, errors.New("auth.oauth2_client_id: required when refresh_mode is oauth2"))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, checkOneOf("logging.log_level", l.LogLevel, validLogLevels)...)
	errs = append(errs, checkOneOf("logging.log_format", l.LogFormat, validLogFormats)...)

	return errs
}

func checkOneOf(field, value string, valid []string) []error {
	if slices.Contains(valid, value) {
		return nil
	}

	return []error{fmt.Errorf("%s: must be one of %s, got %q", field, strings.Join(valid, ", "), value)}
}

func checkDuration(field, value string, lo, hi time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q", field, value)}
	}

	if d < lo || d > hi {
		return []error{fmt.Errorf("%s: must be between %s and %s, got %s", field, lo, hi, d)}
	}

	return nil
}
