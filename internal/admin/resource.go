package admin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tonimelisma/widgetctl/internal/api"
)

// Resource is a REST collection of T rooted at path. Every call requires
// an authenticated session and goes through the pipeline's refresh handling.
type Resource[T any] struct {
	exec api.Executor
	path string
}

// NewResource returns CRUD operations for the collection at path.
func NewResource[T any](exec api.Executor, path string) *Resource[T] {
	return &Resource[T]{exec: exec, path: "/" + strings.Trim(path, "/")}
}

// Path returns the collection path, for example "/users".
func (r *Resource[T]) Path() string {
	return r.path
}

// List returns the collection, narrowed by opts.
func (r *Resource[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	endpoint := r.path
	if q := opts.query(); q != "" {
		endpoint += "?" + q
	}

	env := api.Call[[]T](ctx, r.exec, api.Descriptor{
		Endpoint:     endpoint,
		RequiresAuth: true,
	})
	if !env.Success {
		return nil, fmt.Errorf("admin: listing %s: %w", r.path, env.Err())
	}

	return env.Data, nil
}

// Get returns the item with the given ID.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	return r.do(ctx, "getting", http.MethodGet, r.item(id), nil)
}

// Create posts in and returns the created item.
func (r *Resource[T]) Create(ctx context.Context, in any) (T, error) {
	return r.do(ctx, "creating", http.MethodPost, r.path, in)
}

// Update applies a partial update and returns the updated item.
func (r *Resource[T]) Update(ctx context.Context, id string, patch any) (T, error) {
	return r.do(ctx, "updating", http.MethodPatch, r.item(id), patch)
}

func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	env := r.exec.Execute(ctx, api.Descriptor{
		Endpoint:     r.item(id),
		Method:       http.MethodDelete,
		RequiresAuth: true,
	})
	if !env.Success {
		return fmt.Errorf("admin: deleting %s: %w", r.item(id), env.Err())
	}

	return nil
}

func (r *Resource[T]) do(ctx context.Context, verb, method, endpoint string, body any) (T, error) {
	env := api.Call[T](ctx, r.exec, api.Descriptor{
		Endpoint:     endpoint,
		Method:       method,
		Body:         body,
		RequiresAuth: true,
	})
	if !env.Success {
		var zero T
		return zero, fmt.Errorf("admin: %s %s: %w", verb, endpoint, env.Err())
	}

	return env.Data, nil
}

// item returns the path of a single member, escaping id.
func (r *Resource[T]) item(id string, sub ...string) string {
	p := r.path + "/" + url.PathEscape(id)
	for _, s := range sub {
		p += "/" + s
	}

	return p
}

func (o ListOptions) query() string {
	v := url.Values{}

	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}

	if o.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(o.PerPage))
	}

	if o.Search != "" {
		v.Set("search", o.Search)
	}

	return v.Encode()
}
