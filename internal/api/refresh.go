package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

const (
	// refreshKey is the single singleflight key: there is one session, so
	// there is at most one refresh in flight.
	refreshKey = "refresh"

	defaultRefreshTimeout = 15 * time.Second
)

// Refresher exchanges the long-lived credential in current for a new access
// token. exec is the pipeline itself, for refreshers that call the backend
// through it.
type Refresher interface {
	Refresh(ctx context.Context, exec Executor, current tokenstore.AuthToken) (tokenstore.AuthToken, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, exec Executor, current tokenstore.AuthToken) (tokenstore.AuthToken, error)

func (f RefresherFunc) Refresh(ctx context.Context, exec Executor, current tokenstore.AuthToken) (tokenstore.AuthToken, error) {
	return f(ctx, exec, current)
}

// Coordinator guarantees at most one concurrent token refresh. Every caller
// that needs a refresh while one is in flight waits for, and observes, that
// same outcome. One Coordinator is shared by everything that uses a session.
type Coordinator struct {
	store     TokenStore
	refresher Refresher
	logger    *slog.Logger
	onExpired func()
	timeout   time.Duration
	nowFunc   func() time.Time

	group singleflight.Group

	// invalidateMu serializes Invalidate's check-then-clear.
	invalidateMu sync.Mutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSessionExpired registers the host hook invoked once per unrecoverable
// session expiry. It runs on the refreshing goroutine and must not block.
func WithSessionExpired(fn func()) CoordinatorOption {
	return func(c *Coordinator) { c.onExpired = fn }
}

// WithRefreshTimeout bounds a single refresh call.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator creates a coordinator writing refreshed tokens to store.
func NewCoordinator(store TokenStore, refresher Refresher, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		store:     store,
		refresher: refresher,
		logger:    logger,
		timeout:   defaultRefreshTimeout,
		nowFunc:   time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Refresh returns a token newer than stale, starting a refresh cycle or
// joining the one in flight. The refresh itself is detached from ctx: a
// caller that gives up returns ctx.Err() without failing the others.
func (c *Coordinator) Refresh(ctx context.Context, exec Executor, stale string) (tokenstore.AuthToken, error) {
	res, err := c.join(ctx, exec, stale)
	if err != nil {
		return tokenstore.AuthToken{}, err
	}

	// A cycle started by a caller holding an even older token resolves to
	// the token we already failed with without calling the refresher. Start
	// our own cycle in that case. A real refresh is final even when the
	// backend handed back the same value.
	if !res.refreshed && res.token.Value == stale {
		res, err = c.join(ctx, exec, stale)
		if err != nil {
			return tokenstore.AuthToken{}, err
		}
	}

	return res.token, nil
}

// cycleResult is the shared outcome of one refresh cycle.
type cycleResult struct {
	token tokenstore.AuthToken
	// refreshed reports whether the cycle called the refresher, as opposed
	// to short-circuiting on a token an earlier cycle already stored.
	refreshed bool
}

func (c *Coordinator) join(ctx context.Context, exec Executor, stale string) (cycleResult, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		return c.refresh(rctx, exec, stale)
	})

	select {
	case <-ctx.Done():
		return cycleResult{}, fmt.Errorf("api: waiting for token refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return cycleResult{}, res.Err
		}

		out, _ := res.Val.(cycleResult)

		return out, nil
	}
}

// refresh is the owner's side of one cycle. It runs at most once at a time.
func (c *Coordinator) refresh(ctx context.Context, exec Executor, stale string) (cycleResult, error) {
	current, ok := c.store.Token()
	if !ok {
		// Cleared by logout or by an earlier failed cycle, whose hook
		// already fired.
		return cycleResult{}, &ErrorInfo{
			Code:    KindUnauth,
			Message: "session expired",
			Err:     ErrSessionExpired,
		}
	}

	if current.Value != stale {
		c.logger.Debug("token already refreshed by an earlier cycle")
		return cycleResult{token: current}, nil
	}

	c.logger.Info("refreshing access token")

	fresh, err := c.refresher.Refresh(ctx, exec, current)
	if err == nil && fresh.Value == "" {
		err = errors.New("refresh returned an empty access token")
	}

	if err != nil {
		c.store.ClearToken()

		c.logger.Error("token refresh failed, session expired",
			slog.String("error", err.Error()),
		)

		if c.onExpired != nil {
			c.onExpired()
		}

		return cycleResult{}, &ErrorInfo{
			Code:    KindUnauth,
			Message: "session expired",
			Err:     fmt.Errorf("%w: %w", ErrSessionExpired, err),
		}
	}

	if fresh.ObtainedAt.IsZero() {
		fresh.ObtainedAt = c.nowFunc()
	}

	// Backends that do not rotate the refresh credential omit it.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}

	c.store.SetToken(fresh, nil)

	c.logger.Info("access token refreshed",
		slog.Time("expires_at", fresh.ExpiresAt),
	)

	return cycleResult{token: fresh, refreshed: true}, nil
}

// Invalidate ends the session after a retried request was rejected with
// the token value it was retried with. Only the first caller holding that
// exact token clears the store and fires the hook.
func (c *Coordinator) Invalidate(value string) {
	c.invalidateMu.Lock()
	defer c.invalidateMu.Unlock()

	current, ok := c.store.Token()
	if !ok || current.Value != value {
		return
	}

	c.store.ClearToken()

	c.logger.Error("refreshed token rejected, session expired")

	if c.onExpired != nil {
		c.onExpired()
	}
}
