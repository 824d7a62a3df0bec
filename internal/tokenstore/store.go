// Package tokenstore holds the current access token and cached user profile.
// Stores are pure storage: they never talk to the network. The request
// pipeline is the only component that writes to them during normal operation.
package tokenstore

import (
	"slices"
	"sync"
	"time"
)

// AuthToken is an access token plus the optional long-lived credential used
// to refresh it. ExpiresAt is informational (zero when unknown).
type AuthToken struct {
	Value        string    `json:"value"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ObtainedAt   time.Time `json:"obtained_at"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the token has a known expiry that is before now.
func (t AuthToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now)
}

// Profile is the signed-in user as cached at login. Display only.
type Profile struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Store is the get/set/clear contract shared by all backends.
type Store interface {
	// Token returns the current token. Never blocks on I/O after the first call.
	Token() (AuthToken, bool)
	// Profile returns the cached user profile, for display purposes only.
	Profile() (Profile, bool)
	// SetToken overwrites the token. The profile is replaced only when non-nil.
	SetToken(tok AuthToken, profile *Profile)
	// ClearToken removes token and profile. Idempotent.
	ClearToken()
}

// session is the state every backend caches in memory.
type session struct {
	Token   *AuthToken `json:"token"`
	Profile *Profile   `json:"profile,omitempty"`
}

func (s *session) apply(tok AuthToken, profile *Profile) {
	t := tok
	s.Token = &t

	if profile != nil {
		p := *profile
		p.Roles = slices.Clone(profile.Roles)
		s.Profile = &p
	}
}

func (s *session) token() (AuthToken, bool) {
	if s.Token == nil {
		return AuthToken{}, false
	}

	return *s.Token, true
}

func (s *session) profile() (Profile, bool) {
	if s.Profile == nil {
		return Profile{}, false
	}

	p := *s.Profile
	p.Roles = slices.Clone(s.Profile.Roles)

	return p, true
}

// MemoryStore keeps the session in process memory only.
type MemoryStore struct {
	mu sync.RWMutex
	s  session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Token() (AuthToken, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.s.token()
}

func (m *MemoryStore) Profile() (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.s.profile()
}

func (m *MemoryStore) SetToken(tok AuthToken, profile *Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.apply(tok, profile)
}

func (m *MemoryStore) ClearToken() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s = session{}
}
