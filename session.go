package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/widgetctl/internal/admin"
	"github.com/tonimelisma/widgetctl/internal/api"
	"github.com/tonimelisma/widgetctl/internal/config"
	"github.com/tonimelisma/widgetctl/internal/mocktransport"
	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

// session wires the token store, refresh coordinator, pipeline and domain
// façades for one command invocation.
type session struct {
	store   tokenstore.Store
	client  *api.Client
	svc     *admin.Service
	expired atomic.Bool
	closeFn func() error
}

// openSession builds the session described by cc.Cfg.
func openSession(ctx context.Context, cc *CLIContext) (*session, error) {
	httpClient, err := newHTTPClient(&cc.Cfg.API, cc.Logger)
	if err != nil {
		return nil, err
	}

	store, closeFn, err := openStore(ctx, &cc.Cfg.Auth, cc.Logger)
	if err != nil {
		return nil, err
	}

	s := &session{store: store, closeFn: closeFn}

	coord := api.NewCoordinator(store, newRefresher(&cc.Cfg.Auth, httpClient), cc.Logger,
		api.WithRefreshTimeout(cc.Cfg.Auth.RefreshTimeoutDuration()),
		api.WithSessionExpired(func() {
			// Always visible, even with --quiet.
			if s.expired.CompareAndSwap(false, true) {
				fmt.Fprintln(cc.Err, "Your session has expired. Run 'widgetctl login' to sign in again.")
			}
		}),
	)

	s.client = api.NewClient(cc.Cfg.API.BaseURL, httpClient, store, cc.Logger,
		api.WithCoordinator(coord),
		api.WithUserAgent(cc.Cfg.API.UserAgent),
		api.WithTenant(cc.Cfg.API.TenantID),
	)
	s.svc = admin.New(s.client, store, cc.Logger)

	return s, nil
}

// newHTTPClient builds the client shared by the pipeline and the refresher.
// The mock transport serves routes under the base URL's path.
func newHTTPClient(ac *config.APIConfig, logger *slog.Logger) (*http.Client, error) {
	httpClient := &http.Client{Timeout: ac.RequestTimeout()}

	if ac.Transport != config.TransportMock {
		return httpClient, nil
	}

	u, err := url.Parse(ac.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api.base_url: %w", err)
	}

	httpClient.Transport = mocktransport.New(mocktransport.WithPrefix(u.Path))
	logger.Debug("using mock transport")

	return httpClient, nil
}

// Close releases the store.
func (s *session) Close() error {
	if s.closeFn == nil {
		return nil
	}

	return s.closeFn()
}

// openStore opens the configured token store backend.
func openStore(ctx context.Context, ac *config.AuthConfig, logger *slog.Logger) (tokenstore.Store, func() error, error) {
	switch ac.Store {
	case config.StoreSQLite:
		st, err := tokenstore.OpenSQLite(ctx, ac.DBPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening session database: %w", err)
		}

		return st, st.Close, nil
	case config.StoreMemory:
		return tokenstore.NewMemoryStore(), nil, nil
	default:
		return tokenstore.NewFileStore(ac.TokenPath, logger), nil, nil
	}
}

// newRefresher selects the refresh strategy.
func newRefresher(ac *config.AuthConfig, httpClient *http.Client) api.Refresher {
	if ac.RefreshMode == config.RefreshOAuth2 {
		return api.NewOAuth2Refresher(ac.OAuth2ClientID, ac.OAuth2TokenURL, httpClient)
	}

	return api.NewEndpointRefresher(ac.RefreshEndpoint)
}

// runWithSession adapts a session-using function into a cobra RunE. The
// command context is canceled on SIGINT/SIGTERM.
func runWithSession(run func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cc := mustCLIContext(cmd.Context())

		ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
		defer stop()

		cmd.SetContext(ctx)

		s, err := openSession(ctx, cc)
		if err != nil {
			return err
		}

		defer func() {
			if err := s.Close(); err != nil {
				cc.Logger.Warn("closing session store", slog.String("error", err.Error()))
			}
		}()

		return run(cmd, args, cc, s)
	}
}
