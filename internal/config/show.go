package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers "config show", giving users the effective values after
// every override layer.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.Path)

	renderAPISection(ew, &r.API)
	renderAuthSection(ew, &r.Auth)
	renderLoggingSection(ew, &r.Logging)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderAPISection(ew *errWriter, a *APIConfig) {
	ew.printf("[api]\n")
	ew.printf("  base_url   = %q\n", a.BaseURL)
	ew.printf("  transport  = %q\n", a.Transport)
	ew.printf("  timeout    = %q\n", a.Timeout)

	if a.UserAgent != "" {
		ew.printf("  user_agent = %q\n", a.UserAgent)
	}

	if a.TenantID != "" {
		ew.printf("  tenant_id  = %q\n", a.TenantID)
	}

	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("[auth]\n")
	ew.printf("  store           = %q\n", a.Store)

	switch a.Store {
	case StoreFile:
		ew.printf("  token_path      = %q\n", a.TokenPath)
	case StoreSQLite:
		ew.printf("  db_path         = %q\n", a.DBPath)
	}

	ew.printf("  refresh_mode    = %q\n", a.RefreshMode)
	ew.printf("  refresh_timeout = %q\n", a.RefreshTimeout)

	if a.RefreshMode == RefreshOAuth2 {
		ew.printf("  oauth2_token_url = %q\n", a.OAuth2TokenURL)
		ew.printf("  oauth2_client_id = %q\n", a.OAuth2ClientID)
	} else {
		ew.printf("  refresh_endpoint = %q\n", a.RefreshEndpoint)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
}
