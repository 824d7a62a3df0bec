package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

// DefaultRefreshEndpoint is the backend's token refresh route.
const DefaultRefreshEndpoint = "/auth/refresh"

// ErrNoRefreshToken is returned by refreshers when the session carries no
// long-lived credential.
var ErrNoRefreshToken = errors.New("api: no refresh token available")

// TokenResponse is the payload returned by login and refresh endpoints.
type TokenResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token,omitempty"`
	ExpiresIn    int64               `json:"expires_in,omitempty"`
	User         *tokenstore.Profile `json:"user,omitempty"`
}

// AuthToken converts the response into a stored token obtained at now.
func (r TokenResponse) AuthToken(now time.Time) tokenstore.AuthToken {
	tok := tokenstore.AuthToken{
		Value:        r.AccessToken,
		RefreshToken: r.RefreshToken,
		ObtainedAt:   now,
	}

	if r.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	} else {
		tok.ExpiresAt = TokenExpiry(r.AccessToken)
	}

	return tok
}

// TokenExpiry reads the exp claim of a JWT access token without verifying
// its signature (the client cannot, and only uses it for display). Returns
// the zero time for opaque tokens.
func TokenExpiry(value string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}

	return exp.Time
}

// EndpointRefresher refreshes through the backend's own refresh route,
// issued through the pipeline as a non-authenticated CallRefresh.
type EndpointRefresher struct {
	Endpoint string
	nowFunc  func() time.Time
}

// NewEndpointRefresher returns a refresher for endpoint (DefaultRefreshEndpoint
// when empty).
func NewEndpointRefresher(endpoint string) *EndpointRefresher {
	if endpoint == "" {
		endpoint = DefaultRefreshEndpoint
	}

	return &EndpointRefresher{Endpoint: endpoint, nowFunc: time.Now}
}

func (r *EndpointRefresher) Refresh(ctx context.Context, exec Executor, current tokenstore.AuthToken) (tokenstore.AuthToken, error) {
	var body any
	if current.RefreshToken != "" {
		body = map[string]string{"refresh_token": current.RefreshToken}
	}

	env := Call[TokenResponse](ctx, exec, Descriptor{
		Endpoint: r.Endpoint,
		Method:   http.MethodPost,
		Body:     body,
		Kind:     CallRefresh,
	})
	if !env.Success {
		return tokenstore.AuthToken{}, env.Error
	}

	return env.Data.AuthToken(r.nowFunc()), nil
}

// OAuth2Refresher performs a standard OAuth2 refresh_token grant against
// TokenURL, for backends fronted by an OAuth2 authorization server.
type OAuth2Refresher struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	nowFunc    func() time.Time
}

// NewOAuth2Refresher creates a refresher for a public OAuth2 client.
// httpClient may be nil.
func NewOAuth2Refresher(clientID, tokenURL string, httpClient *http.Client) *OAuth2Refresher {
	return &OAuth2Refresher{
		cfg: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		nowFunc:    time.Now,
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, _ Executor, current tokenstore.AuthToken) (tokenstore.AuthToken, error) {
	if current.RefreshToken == "" {
		return tokenstore.AuthToken{}, ErrNoRefreshToken
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	// An access-token-less oauth2.Token is never Valid, so Token() refreshes.
	src := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})

	t, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			info, _ := Classify(Outcome{
				Status:      re.Response.StatusCode,
				ContentType: re.Response.Header.Get("Content-Type"),
				Body:        re.Body,
			})
			info.Err = err

			return tokenstore.AuthToken{}, &info
		}

		return tokenstore.AuthToken{}, fmt.Errorf("api: oauth2 refresh: %w", err)
	}

	tok := tokenstore.AuthToken{
		Value:        t.AccessToken,
		RefreshToken: t.RefreshToken,
		ObtainedAt:   r.nowFunc(),
		ExpiresAt:    t.Expiry,
	}

	if tok.ExpiresAt.IsZero() {
		tok.ExpiresAt = TokenExpiry(t.AccessToken)
	}

	return tok, nil
}
