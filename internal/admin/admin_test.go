package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/widgetctl/internal/api"
	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

// recorded captures the last request a test handler saw.
type recorded struct {
	method string
	uri    string
	auth   string
	body   map[string]any
}

func record(t *testing.T, r *http.Request) recorded {
	t.Helper()

	rec := recorded{method: r.Method, uri: r.URL.RequestURI(), auth: r.Header.Get("Authorization")}

	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &rec.body))
	}

	return rec
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// newTestService builds a Service over a pipeline pointed at handler. The
// store starts logged in when token is non-empty.
func newTestService(t *testing.T, handler http.Handler, token string) (*Service, *tokenstore.MemoryStore) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemoryStore()
	if token != "" {
		store.SetToken(tokenstore.AuthToken{Value: token, ObtainedAt: time.Now()}, nil)
	}

	client := api.NewClient(srv.URL, nil, store, nil)

	return New(client, store, nil), store
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "admin@example.com", NormalizeEmail("  Admin@Example.COM "))
	// Decomposed e + U+0301 composes to the same address as precomposed U+00E9.
	assert.Equal(t, NormalizeEmail("ren\u00e9@example.com"), NormalizeEmail("Rene\u0301@example.com"))
}

func TestAuth_Login(t *testing.T) {
	var got recorded

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		got = record(t, r)
		writeJSON(w, http.StatusOK, `{"access_token":"at-1","refresh_token":"rt-1","expires_in":900,`+
			`"user":{"id":"u1","email":"admin@example.com","name":"Ada","roles":["owner"]}}`)
	})

	svc, store := newTestService(t, mux, "")

	profile, err := svc.Auth.Login(context.Background(), " Admin@Example.com", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "u1", profile.ID)
	assert.Equal(t, []string{"owner"}, profile.Roles)
	assert.Equal(t, "admin@example.com", got.body["email"])
	assert.Equal(t, "hunter2", got.body["password"])
	assert.Empty(t, got.auth)

	tok, ok := store.Token()
	require.True(t, ok)
	assert.Equal(t, "at-1", tok.Value)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.ExpiresAt, time.Minute)

	cached, ok := store.Profile()
	require.True(t, ok)
	assert.Equal(t, "Ada", cached.Name)
}

func TestAuth_LoginFetchesProfileWhenMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"access_token":"at-1"}`)
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"data":{"id":"u9","email":"ops@example.com"}}`)
	})

	svc, store := newTestService(t, mux, "")

	profile, err := svc.Auth.Login(context.Background(), "ops@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u9", profile.ID)

	cached, ok := store.Profile()
	require.True(t, ok)
	assert.Equal(t, "u9", cached.ID)
}

func TestAuth_LoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"invalid credentials"}`)
	})

	svc, store := newTestService(t, mux, "")

	_, err := svc.Auth.Login(context.Background(), "a@example.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, ok := store.Token()
	assert.False(t, ok)
}

func TestAuth_LoginMissingCredentials(t *testing.T) {
	svc, _ := newTestService(t, http.NotFoundHandler(), "")

	_, err := svc.Auth.Login(context.Background(), "  ", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAuth_LogoutAlwaysClears(t *testing.T) {
	var hits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{"message":"oops"}`)
	})

	svc, store := newTestService(t, mux, "tok")

	err := svc.Auth.Logout(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrServerError)
	assert.Equal(t, int32(1), hits.Load())

	_, ok := store.Token()
	assert.False(t, ok)
}

func TestResource_CRUD(t *testing.T) {
	var last recorded

	mux := http.NewServeMux()
	mux.HandleFunc("/widgets", func(w http.ResponseWriter, r *http.Request) {
		last = record(t, r)

		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusCreated, `{"data":{"id":"w1","name":"support","active":true}}`)
			return
		}

		writeJSON(w, http.StatusOK, `{"data":[{"id":"w1","name":"support"},{"id":"w2","name":"sales"}]}`)
	})
	mux.HandleFunc("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		last = record(t, r)

		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPatch:
			writeJSON(w, http.StatusOK, `{"id":"`+r.PathValue("id")+`","name":"renamed"}`)
		default:
			writeJSON(w, http.StatusOK, `{"id":"`+r.PathValue("id")+`","name":"support"}`)
		}
	})

	svc, _ := newTestService(t, mux, "tok")
	ctx := context.Background()

	list, err := svc.Widgets.List(ctx, ListOptions{Page: 2, PerPage: 10, Search: "sup port"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sales", list[1].Name)
	assert.Equal(t, "/widgets?page=2&per_page=10&search=sup+port", last.uri)
	assert.Equal(t, "Bearer tok", last.auth)

	created, err := svc.Widgets.Create(ctx, map[string]string{"name": "support"})
	require.NoError(t, err)
	assert.Equal(t, "w1", created.ID)
	assert.True(t, created.Active)
	assert.Equal(t, http.MethodPost, last.method)
	assert.Equal(t, "support", last.body["name"])

	got, err := svc.Widgets.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "support", got.Name)
	assert.Equal(t, "/widgets/w1", last.uri)

	updated, err := svc.Widgets.Update(ctx, "w1", map[string]string{"name": "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, http.MethodPatch, last.method)

	require.NoError(t, svc.Widgets.Delete(ctx, "w1"))
	assert.Equal(t, http.MethodDelete, last.method)
}

func TestResource_EscapesID(t *testing.T) {
	var uri string

	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri = r.URL.EscapedPath()
		writeJSON(w, http.StatusOK, `{}`)
	}), "tok")

	_, err := svc.Users.Get(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/users/a%2Fb%20c", uri)
}

func TestResource_ErrorsCarryKind(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"no such role"}`)
	}), "tok")

	_, err := svc.Roles.Get(context.Background(), "r404")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Contains(t, err.Error(), "/roles/r404")
}

func TestResource_RequiresSession(t *testing.T) {
	var hits atomic.Int32

	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}), "")

	_, err := svc.AIModels.List(context.Background(), ListOptions{})
	assert.ErrorIs(t, err, api.ErrNotLoggedIn)
	assert.Equal(t, int32(0), hits.Load())
}

func TestChats_SendMessage(t *testing.T) {
	var got recorded

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		got = record(t, r)
		writeJSON(w, http.StatusCreated, `{"id":"m1","chat_id":"`+r.PathValue("id")+`","role":"agent","content":"hi"}`)
	})
	mux.HandleFunc("GET /chats/{id}/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `[{"id":"m0","role":"visitor","content":"hello"}]`)
	})

	svc, _ := newTestService(t, mux, "tok")

	msg, err := svc.Chats.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "c1", msg.ChatID)
	assert.Equal(t, "hi", got.body["content"])

	transcript, err := svc.Chats.Messages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, "visitor", transcript[0].Role)
}

func TestRoles_SetPermissions(t *testing.T) {
	var got recorded

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /roles/{id}/permissions", func(w http.ResponseWriter, r *http.Request) {
		got = record(t, r)
		writeJSON(w, http.StatusOK, `{"id":"r1","name":"editor","permissions":["p1","p2"]}`)
	})

	svc, _ := newTestService(t, mux, "tok")

	role, err := svc.Roles.SetPermissions(context.Background(), "r1", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, role.Permissions)
	assert.Equal(t, []any{"p1", "p2"}, got.body["permission_ids"])

	_, err = svc.Roles.SetPermissions(context.Background(), "r1", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{}, got.body["permission_ids"], "nil clears rather than sending null")
}

func TestNotifications_MarkRead(t *testing.T) {
	var method string

	mux := http.NewServeMux()
	mux.HandleFunc("/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		writeJSON(w, http.StatusOK, `{"id":"`+r.PathValue("id")+`","read":true}`)
	})

	svc, _ := newTestService(t, mux, "tok")

	n, err := svc.Notifications.MarkRead(context.Background(), "n1")
	require.NoError(t, err)
	assert.True(t, n.Read)
	assert.Equal(t, http.MethodPatch, method)
}

func TestNotifications_Watch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		for _, id := range []string{"n1", "n2"} {
			if err := wsjson.Write(r.Context(), conn, Notification{ID: id, Type: "chat.escalated"}); err != nil {
				return
			}
		}

		_ = conn.Close(websocket.StatusNormalClosure, "done")
	})

	svc, _ := newTestService(t, mux, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []string

	err := svc.Notifications.Watch(ctx, func(n Notification) error {
		ids = append(ids, n.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, ids)
}

func TestNotifications_WatchStop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		_ = wsjson.Write(r.Context(), conn, Notification{ID: "n1"})

		// Hold the stream open until the client closes it.
		_, _, _ = conn.Read(r.Context())
	})

	svc, _ := newTestService(t, mux, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := svc.Notifications.Watch(ctx, func(Notification) error { return ErrStopWatching })
	assert.NoError(t, err)
}

func TestNotifications_WatchRequiresSession(t *testing.T) {
	svc, _ := newTestService(t, http.NotFoundHandler(), "")

	err := svc.Notifications.Watch(context.Background(), func(Notification) error { return nil })
	assert.ErrorIs(t, err, api.ErrNotLoggedIn)
}
