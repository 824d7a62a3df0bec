// Package mocktransport serves canned admin API responses in-process, so
// the CLI can run without a backend. It has no data store: collections are
// always empty and single items are never found.
package mocktransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// collections are the REST collections the mock answers for.
var collections = map[string]bool{
	"users":         true,
	"roles":         true,
	"permissions":   true,
	"chats":         true,
	"ai-models":     true,
	"widgets":       true,
	"notifications": true,
}

// Profile is the user every mock login resolves to.
var Profile = map[string]any{
	"id":        "mock-user",
	"email":     "admin@example.com",
	"name":      "Mock Admin",
	"tenant_id": "mock-tenant",
	"roles":     []string{"owner"},
}

const tokenLifetime = 3600 // seconds

// Transport is an http.RoundTripper backed by an http.ServeMux.
type Transport struct {
	mux    *http.ServeMux
	prefix string
	issued atomic.Int64
}

// Option configures a Transport.
type Option func(*Transport)

// WithPrefix strips prefix (the API base path, for example "/v1") from
// request paths before routing.
func WithPrefix(prefix string) Option {
	return func(t *Transport) { t.prefix = "/" + strings.Trim(prefix, "/") }
}

// New returns a ready Transport.
func New(opts ...Option) *Transport {
	t := &Transport{mux: http.NewServeMux()}

	for _, opt := range opts {
		opt(t)
	}

	if t.prefix == "/" {
		t.prefix = ""
	}

	t.mux.HandleFunc("POST /auth/login", t.handleLogin)
	t.mux.HandleFunc("POST /auth/refresh", t.handleRefresh)
	t.mux.HandleFunc("POST /auth/logout", t.authed(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.mux.HandleFunc("GET /auth/me", t.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": Profile})
	}))
	t.mux.HandleFunc("GET /{collection}", t.authed(handleList))
	t.mux.HandleFunc("/", t.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "not found"})
	}))

	return t
}

// RoundTrip serves req in-process. It never returns a transport error
// except for a canceled request context.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	r := req.Clone(req.Context())
	r.RequestURI = r.URL.RequestURI()

	if r.Body == nil {
		r.Body = http.NoBody
	}

	rec := httptest.NewRecorder()
	t.ServeHTTP(rec, r)

	if req.Body != nil {
		req.Body.Close()
	}

	resp := rec.Result()
	resp.Request = req

	return resp, nil
}

// ServeHTTP lets the mock back a real listener (see cmd/mockserver).
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.URL.Path = strings.TrimPrefix(r.URL.Path, t.prefix)
	r.URL.RawPath = ""

	if r.URL.Path == "" {
		r.URL.Path = "/"
	}

	t.mux.ServeHTTP(w, r)
}

func (t *Transport) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" || creds.Password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string][]string{"email": {"required"}, "password": {"required"}},
		})

		return
	}

	t.writeToken(w, true)
}

func (t *Transport) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !strings.HasPrefix(body.RefreshToken, "mock-refresh-") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid refresh token"})
		return
	}

	t.writeToken(w, false)
}

func (t *Transport) writeToken(w http.ResponseWriter, withUser bool) {
	n := t.issued.Add(1)

	resp := map[string]any{
		"access_token":  fmt.Sprintf("mock-access-%d", n),
		"refresh_token": fmt.Sprintf("mock-refresh-%d", n),
		"expires_in":    tokenLifetime,
	}

	if withUser {
		resp["user"] = Profile
	}

	writeJSON(w, http.StatusOK, resp)
}

// authed rejects requests without a mock-issued bearer token.
func (t *Transport) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer mock-access-") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthenticated"})
			return
		}

		next(w, r)
	}
}

func handleList(w http.ResponseWriter, r *http.Request) {
	if !collections[r.PathValue("collection")] {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
