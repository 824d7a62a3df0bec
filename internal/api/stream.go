package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Stream opens an authenticated websocket to endpoint. It follows the same
// protocol as Execute: a handshake rejected with 401 joins the shared
// refresh cycle and is redialed exactly once.
func (c *Client) Stream(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	tok, ok := c.store.Token()
	if !ok {
		return nil, &ErrorInfo{Code: KindUnauth, Message: "not logged in", Err: ErrNotLoggedIn}
	}

	conn, status, info := c.dial(ctx, endpoint, tok.Value)
	if info == nil {
		return conn, nil
	}

	if status != http.StatusUnauthorized || c.coord == nil {
		return nil, info
	}

	c.logger.Warn("stream handshake rejected, refreshing", slog.String("endpoint", endpoint))

	fresh, err := c.coord.Refresh(ctx, c, tok.Value)
	if err != nil {
		out := errorInfoFrom(err)
		return nil, &out
	}

	conn, status, info = c.dial(ctx, endpoint, fresh.Value)
	if info == nil {
		return conn, nil
	}

	if status == http.StatusUnauthorized {
		c.coord.Invalidate(fresh.Value)
	}

	return nil, info
}

// dial performs one handshake. On failure it returns the handshake status
// (0 when no response was obtained) and the classified error.
func (c *Client) dial(ctx context.Context, endpoint, token string) (*websocket.Conn, int, *ErrorInfo) {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	header.Set("User-Agent", c.userAgent)
	header.Set(headerRequestID, c.newRequestID())

	if c.tenantID != "" {
		header.Set(headerTenant, c.tenantID)
	}

	// coder/websocket rejects clients with a Timeout; ctx bounds the dial.
	hc := *c.httpClient
	hc.Timeout = 0

	conn, resp, err := websocket.Dial(ctx, wsURL(c.baseURL, endpoint), &websocket.DialOptions{
		HTTPClient: &hc,
		HTTPHeader: header,
	})
	if err == nil {
		return conn, 0, nil
	}

	if resp == nil || resp.StatusCode == http.StatusSwitchingProtocols {
		info, _ := Classify(Outcome{Err: fmt.Errorf("websocket dial: %w", err)})
		return nil, 0, &info
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
	}

	info, failed := Classify(Outcome{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	})
	if !failed {
		// A 2xx that is not 101 is still a failed upgrade.
		info = ErrorInfo{Code: KindServer, Message: err.Error(), Status: resp.StatusCode}
	}

	info.Err = err

	return nil, resp.StatusCode, &info
}

// wsURL maps the http(s) base URL onto ws(s).
func wsURL(baseURL, endpoint string) string {
	u := baseURL + "/" + strings.TrimLeft(endpoint, "/")

	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}
