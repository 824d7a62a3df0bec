package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/widgetctl/internal/api"
	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

const (
	loginPath  = "/auth/login"
	logoutPath = "/auth/logout"
	mePath     = "/auth/me"
)

// ErrMissingCredentials is returned by Login when email or password is empty.
var ErrMissingCredentials = errors.New("admin: email and password are required")

// Auth manages the session: it is the only façade that writes the token
// store directly. Refreshes are the coordinator's business.
type Auth struct {
	exec    api.Executor
	store   api.TokenStore
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewAuth creates the session façade.
func NewAuth(exec api.Executor, store api.TokenStore, logger *slog.Logger) *Auth {
	if logger == nil {
		logger = slog.Default()
	}

	return &Auth{exec: exec, store: store, logger: logger, nowFunc: time.Now}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session and stores it. The returned
// profile is the one cached alongside the token.
func (a *Auth) Login(ctx context.Context, email, password string) (tokenstore.Profile, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return tokenstore.Profile{}, ErrMissingCredentials
	}

	env := api.Call[api.TokenResponse](ctx, a.exec, api.Descriptor{
		Endpoint: loginPath,
		Method:   http.MethodPost,
		Body:     loginRequest{Email: email, Password: password},
		Kind:     api.CallLogin,
	})
	if !env.Success {
		return tokenstore.Profile{}, fmt.Errorf("admin: login: %w", env.Err())
	}

	if env.Data.AccessToken == "" {
		return tokenstore.Profile{}, fmt.Errorf("admin: login: %w: response carried no access token", api.ErrParse)
	}

	tok := env.Data.AuthToken(a.nowFunc())
	a.store.SetToken(tok, env.Data.User)

	profile := env.Data.User
	if profile == nil {
		// Some deployments return only the token; fetch the profile with it.
		me, err := a.Me(ctx)
		if err != nil {
			a.logger.Warn("logged in but could not load profile", slog.String("error", err.Error()))
			return tokenstore.Profile{Email: email}, nil
		}

		profile = &me
		a.store.SetToken(tok, profile)
	}

	a.logger.Info("logged in",
		slog.String("user_id", profile.ID),
		slog.Time("expires_at", tok.ExpiresAt),
	)

	return *profile, nil
}

// Logout tells the backend to end the session and clears local state even
// when the backend call fails.
func (a *Auth) Logout(ctx context.Context) error {
	defer a.store.ClearToken()

	env := a.exec.Execute(ctx, api.Descriptor{
		Endpoint:     logoutPath,
		Method:       http.MethodPost,
		RequiresAuth: true,
		Kind:         api.CallLogout,
	})
	if !env.Success {
		return fmt.Errorf("admin: logout: %w", env.Err())
	}

	a.logger.Info("logged out")

	return nil
}

// Me returns the profile of the logged-in user.
func (a *Auth) Me(ctx context.Context) (tokenstore.Profile, error) {
	env := api.Call[tokenstore.Profile](ctx, a.exec, api.Descriptor{
		Endpoint:     mePath,
		RequiresAuth: true,
	})
	if !env.Success {
		return tokenstore.Profile{}, fmt.Errorf("admin: loading profile: %w", env.Err())
	}

	return env.Data, nil
}

// NormalizeEmail trims, NFC-normalizes and case-folds an email address so
// visually identical logins compare equal.
func NormalizeEmail(email string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(email)))
}
