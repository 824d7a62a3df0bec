package tokenstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/widgetctl/internal/tokenfile"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()

	sq, err := OpenSQLite(context.Background(), filepath.Join(dir, "session.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "session.json"), nil),
		"sqlite": sq,
	}
}

func sampleToken(value string) AuthToken {
	return AuthToken{
		Value:        value,
		RefreshToken: "refresh-" + value,
		ObtainedAt:   time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2026, 10, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestStore_EmptyAtStart(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok := s.Token()
			assert.False(t, ok)

			_, ok = s.Profile()
			assert.False(t, ok)
		})
	}
}

func TestStore_SetAndGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			profile := &Profile{ID: "u1", Email: "alice@example.com", Roles: []string{"admin"}}
			s.SetToken(sampleToken("tok-1"), profile)

			tok, ok := s.Token()
			require.True(t, ok)
			assert.Equal(t, "tok-1", tok.Value)
			assert.Equal(t, "refresh-tok-1", tok.RefreshToken)
			assert.True(t, tok.ObtainedAt.Equal(sampleToken("tok-1").ObtainedAt))

			p, ok := s.Profile()
			require.True(t, ok)
			assert.Equal(t, "alice@example.com", p.Email)
			assert.Equal(t, []string{"admin"}, p.Roles)
		})
	}
}

func TestStore_SetWithoutProfileKeepsProfile(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.SetToken(sampleToken("tok-1"), &Profile{ID: "u1", Email: "alice@example.com"})
			s.SetToken(sampleToken("tok-2"), nil)

			tok, ok := s.Token()
			require.True(t, ok)
			assert.Equal(t, "tok-2", tok.Value)

			p, ok := s.Profile()
			require.True(t, ok)
			assert.Equal(t, "u1", p.ID)
		})
	}
}

func TestStore_ClearIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.SetToken(sampleToken("tok-1"), &Profile{ID: "u1"})

			s.ClearToken()
			_, okTok := s.Token()
			_, okProfile := s.Profile()

			s.ClearToken()
			_, okTok2 := s.Token()
			_, okProfile2 := s.Profile()

			assert.False(t, okTok)
			assert.False(t, okProfile)
			assert.Equal(t, okTok, okTok2)
			assert.Equal(t, okProfile, okProfile2)
		})
	}
}

func TestStore_ProfileIsCopied(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			roles := []string{"admin"}
			s.SetToken(sampleToken("tok-1"), &Profile{ID: "u1", Roles: roles})
			roles[0] = "mutated"

			p, ok := s.Profile()
			require.True(t, ok)
			p.Roles[0] = "mutated-again"

			p2, _ := s.Profile()
			assert.Equal(t, []string{"admin"}, p2.Roles)
		})
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup

			for range 20 {
				wg.Add(2)

				go func() {
					defer wg.Done()
					s.SetToken(sampleToken("tok"), nil)
				}()

				go func() {
					defer wg.Done()

					if tok, ok := s.Token(); ok {
						assert.Equal(t, "tok", tok.Value)
					}
				}()
			}

			wg.Wait()
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	first := NewFileStore(path, nil)
	first.SetToken(sampleToken("tok-1"), &Profile{ID: "u1"})

	second := NewFileStore(path, nil)
	tok, ok := second.Token()
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok.Value)

	first.ClearToken()

	third := NewFileStore(path, nil)
	_, ok = third.Token()
	assert.False(t, ok)
}

func TestFileStore_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, tokenfile.Save(path, map[string]any{"token": "not-an-object"}))

	s := NewFileStore(path, nil)
	_, ok := s.Token()
	assert.False(t, ok)
}

func TestFileStore_WatchReloadsExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path, nil)

	_, ok := s.Token()
	require.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Another process writes the file; keep rewriting until the watcher is
	// attached and picks it up.
	other := session{Token: &AuthToken{Value: "from-other-process"}}

	assert.Eventually(t, func() bool {
		if err := tokenfile.Save(path, other); err != nil {
			return false
		}

		tok, ok := s.Token()

		return ok && tok.Value == "from-other-process"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestFileStore_ReloadNeverRevertsSetToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path, nil)
	s.SetToken(sampleToken("tok-0"), nil)

	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(2)

		go func() {
			defer wg.Done()
			s.SetToken(sampleToken(fmt.Sprintf("tok-%d", i+1)), nil)
		}()

		// The watcher's reload path.
		go func() {
			defer wg.Done()
			s.load()
		}()
	}

	wg.Wait()

	var onDisk session

	found, err := tokenfile.Load(path, &onDisk)
	require.NoError(t, err)
	require.True(t, found)

	tok, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, onDisk.Token.Value, tok.Value, "cache must match the last write")
}

func TestSQLiteStore_PersistsAcrossInstances(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, dbPath, nil)
	require.NoError(t, err)
	first.SetToken(sampleToken("tok-1"), &Profile{ID: "u1", Email: "alice@example.com"})
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, dbPath, nil)
	require.NoError(t, err)
	defer second.Close()

	tok, ok := second.Token()
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok.Value)
	assert.True(t, tok.ExpiresAt.Equal(sampleToken("tok-1").ExpiresAt))

	p, ok := second.Profile()
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", p.Email)
}

func TestAuthToken_Expired(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)

	assert.False(t, AuthToken{Value: "x"}.Expired(now), "unknown expiry is never expired")
	assert.False(t, sampleToken("x").Expired(now))
	assert.True(t, sampleToken("x").Expired(now.Add(2*time.Hour)))
}
