package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

const (
	// maxResponseSize limits response body reads to prevent memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024

	defaultUserAgent = "widgetctl/0.1"

	headerRequestID = "X-Request-ID"
	headerTenant    = "X-Tenant-ID"
	contentTypeJSON = "application/json"
)

// TokenStore is the subset of tokenstore.Store the pipeline needs. Defined
// at the consumer so tests can substitute their own.
type TokenStore interface {
	Token() (tokenstore.AuthToken, bool)
	SetToken(tok tokenstore.AuthToken, profile *tokenstore.Profile)
	ClearToken()
}

// Client is the request pipeline. It builds requests from descriptors,
// normalizes responses into envelopes, and hands Unauthorized answers to
// the refresh coordinator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	coord      *Coordinator
	logger     *slog.Logger
	userAgent  string
	tenantID   string

	// newRequestID generates the X-Request-ID for each Execute. Tests
	// override it for deterministic headers.
	newRequestID func() string
}

// Option configures a Client.
type Option func(*Client)

// WithCoordinator enables refresh-and-retry on Unauthorized answers.
func WithCoordinator(coord *Coordinator) Option {
	return func(c *Client) { c.coord = coord }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTenant sends X-Tenant-ID on every request.
func WithTenant(tenantID string) Option {
	return func(c *Client) { c.tenantID = tenantID }
}

// NewClient creates a pipeline against baseURL (for example
// "https://api.example.com/v1"). A nil httpClient means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, store TokenStore, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		store:        store,
		logger:       logger,
		userAgent:    defaultUserAgent,
		newRequestID: func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// prepared is a fully built request minus the Authorization header. The
// refresh retry re-sends the same prepared value, so method, URL, body and
// all other headers are identical across both attempts.
type prepared struct {
	d         Descriptor
	url       string
	body      []byte
	header    http.Header
	requestID string
}

// Execute runs d through the pipeline. It never returns a raw error: every
// failure is reported through Envelope.Error.
func (c *Client) Execute(ctx context.Context, d Descriptor) Envelope[json.RawMessage] {
	p, err := c.prepare(d)
	if err != nil {
		return failure[json.RawMessage](ErrorInfo{
			Code:    KindParse,
			Message: err.Error(),
			Err:     err,
		})
	}

	var token string

	if d.RequiresAuth {
		tok, ok := c.store.Token()

		switch {
		case ok:
			token = tok.Value
		case d.Kind != CallLogin:
			c.logger.Debug("no access token, not sending request",
				slog.String("method", d.Method),
				slog.String("endpoint", d.Endpoint),
			)

			return failure[json.RawMessage](ErrorInfo{
				Code:      KindUnauth,
				Message:   "not logged in",
				RequestID: p.requestID,
				Err:       ErrNotLoggedIn,
			})
		}
	}

	env := c.send(ctx, p, token)
	if env.Success || env.Error.Code != KindUnauth || !d.refreshEligible() || c.coord == nil || token == "" {
		return env
	}

	return c.refreshAndRetry(ctx, p, token)
}

// refreshAndRetry waits for the shared refresh cycle and re-sends p exactly
// once. The retry is never refresh-eligible: a second Unauthorized ends the
// session and is returned to the caller unchanged.
func (c *Client) refreshAndRetry(ctx context.Context, p *prepared, stale string) Envelope[json.RawMessage] {
	c.logger.Warn("access token rejected, refreshing",
		slog.String("method", p.d.Method),
		slog.String("endpoint", p.d.Endpoint),
		slog.String("request_id", p.requestID),
	)

	fresh, err := c.coord.Refresh(ctx, c, stale)
	if err != nil {
		info := errorInfoFrom(err)
		info.RequestID = p.requestID

		return failure[json.RawMessage](info)
	}

	retry := c.send(ctx, p, fresh.Value)
	if !retry.Success && retry.Error.Code == KindUnauth {
		c.logger.Error("request rejected again after token refresh",
			slog.String("method", p.d.Method),
			slog.String("endpoint", p.d.Endpoint),
			slog.String("request_id", p.requestID),
		)
		c.coord.Invalidate(fresh.Value)
	}

	return retry
}

// prepare resolves the URL, encodes the body once, and merges headers.
func (c *Client) prepare(d Descriptor) (*prepared, error) {
	p := &prepared{
		d:         d,
		url:       c.baseURL + "/" + strings.TrimLeft(d.Endpoint, "/"),
		header:    make(http.Header),
		requestID: c.newRequestID(),
	}

	if p.d.Method == "" {
		p.d.Method = http.MethodGet
	}

	p.d.Headers = maps.Clone(d.Headers)

	if d.Body != nil {
		data, err := json.Marshal(d.Body)
		if err != nil {
			return nil, fmt.Errorf("api: encoding request body for %s %s: %w", p.d.Method, d.Endpoint, err)
		}

		p.body = data
	}

	p.header.Set("Accept", contentTypeJSON)
	p.header.Set("Content-Type", contentTypeJSON)
	p.header.Set("User-Agent", c.userAgent)
	p.header.Set(headerRequestID, p.requestID)

	if c.tenantID != "" {
		p.header.Set(headerTenant, c.tenantID)
	}

	for k, v := range p.d.Headers {
		p.header.Set(k, v)
	}

	return p, nil
}

// send issues one HTTP attempt. token, when non-empty, overrides any
// caller-supplied Authorization header.
func (c *Client) send(ctx context.Context, p *prepared, token string) Envelope[json.RawMessage] {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}

	req, err := http.NewRequestWithContext(ctx, p.d.Method, p.url, body)
	if err != nil {
		return failure[json.RawMessage](ErrorInfo{
			Code:      KindNetwork,
			Message:   fmt.Sprintf("creating request: %v", err),
			RequestID: p.requestID,
			Err:       err,
		})
	}

	req.Header = p.header.Clone()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("request canceled: %w", ctx.Err())
		}

		info, _ := Classify(Outcome{Err: err})
		info.RequestID = p.requestID

		c.logger.Debug("request failed",
			slog.String("method", p.d.Method),
			slog.String("endpoint", p.d.Endpoint),
			slog.String("error", err.Error()),
		)

		return failure[json.RawMessage](info)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		info, _ := Classify(Outcome{Err: fmt.Errorf("reading response body: %w", err)})
		info.Status = resp.StatusCode
		info.RequestID = p.requestID

		return failure[json.RawMessage](info)
	}

	if len(data) > maxResponseSize {
		return failure[json.RawMessage](ErrorInfo{
			Code:      KindParse,
			Message:   fmt.Sprintf("response body exceeds %d bytes", maxResponseSize),
			Status:    resp.StatusCode,
			RequestID: p.requestID,
		})
	}

	env := normalize(resp.StatusCode, resp.Header.Get("Content-Type"), data)

	if env.Error != nil {
		env.Error.RequestID = responseRequestID(resp, p.requestID)

		c.logger.Debug("request returned error",
			slog.String("method", p.d.Method),
			slog.String("endpoint", p.d.Endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("kind", string(env.Error.Code)),
		)

		return env
	}

	c.logger.Debug("request succeeded",
		slog.String("method", p.d.Method),
		slog.String("endpoint", p.d.Endpoint),
		slog.Int("status", resp.StatusCode),
	)

	return env
}

// normalize builds the envelope for a completed HTTP exchange.
func normalize(status int, contentType string, body []byte) Envelope[json.RawMessage] {
	env := Envelope[json.RawMessage]{Status: status}

	payload, message := extractPayload(contentType, body)
	env.Message = message

	if info, failed := Classify(Outcome{Status: status, ContentType: contentType, Body: body}); failed {
		env.Error = &info
		if env.Message == "" {
			env.Message = info.Message
		}

		return env
	}

	env.Success = true
	env.Data = payload

	return env
}

// extractPayload decodes body into the envelope payload and message. JSON
// content is parsed directly; other content gets a best-effort JSON parse
// and otherwise becomes a JSON string. A top-level {"data": ...} wrapper is
// unwrapped so callers never probe nested shapes.
func extractPayload(contentType string, body []byte) (json.RawMessage, string) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ""
	}

	if !json.Valid(trimmed) {
		if isJSONContentType(contentType) {
			return nil, ""
		}

		text, _ := json.Marshal(string(body))

		return text, ""
	}

	var wrapper map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &wrapper) != nil {
		return json.RawMessage(trimmed), ""
	}

	message := rawString(wrapper["message"])

	if inner, ok := wrapper["data"]; ok {
		return inner, message
	}

	return json.RawMessage(trimmed), message
}

// responseRequestID prefers the server's request ID when it echoes one.
func responseRequestID(resp *http.Response, fallback string) string {
	for _, h := range []string{headerRequestID, "request-id"} {
		if v := resp.Header.Get(h); v != "" {
			return v
		}
	}

	return fallback
}

// errorInfoFrom converts an arbitrary error into an ErrorInfo, preserving
// an embedded ErrorInfo when present.
func errorInfoFrom(err error) ErrorInfo {
	var info *ErrorInfo
	if errors.As(err, &info) {
		return *info
	}

	out, _ := Classify(Outcome{Err: err})

	return out
}
