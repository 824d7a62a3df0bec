package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/widgetctl/internal/api"
)

const notificationStreamPath = "/notifications/stream"

// ErrStopWatching can be returned by a Watch callback to end the stream
// without an error.
var ErrStopWatching = errors.New("admin: stop watching")

// Chats is the chat collection plus conversation operations.
type Chats struct {
	*Resource[Chat]
}

// Messages returns the transcript of a chat.
func (c *Chats) Messages(ctx context.Context, chatID string) ([]Message, error) {
	endpoint := c.item(chatID, "messages")

	env := api.Call[[]Message](ctx, c.exec, api.Descriptor{Endpoint: endpoint, RequiresAuth: true})
	if !env.Success {
		return nil, fmt.Errorf("admin: listing %s: %w", endpoint, env.Err())
	}

	return env.Data, nil
}

// SendMessage posts an agent message into a chat.
func (c *Chats) SendMessage(ctx context.Context, chatID, text string) (Message, error) {
	endpoint := c.item(chatID, "messages")

	env := api.Call[Message](ctx, c.exec, api.Descriptor{
		Endpoint:     endpoint,
		Method:       http.MethodPost,
		Body:         map[string]string{"content": text},
		RequiresAuth: true,
	})
	if !env.Success {
		return Message{}, fmt.Errorf("admin: sending message to chat %s: %w", chatID, env.Err())
	}

	return env.Data, nil
}

type Roles struct {
	*Resource[Role]
}

// SetPermissions replaces the permission set of a role.
func (r *Roles) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) (Role, error) {
	if permissionIDs == nil {
		permissionIDs = []string{}
	}

	return r.do(ctx, "setting permissions on", http.MethodPut, r.item(roleID, "permissions"),
		map[string][]string{"permission_ids": permissionIDs})
}

// Streamer opens authenticated websocket streams. *api.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, endpoint string) (*websocket.Conn, error)
}

type Notifications struct {
	*Resource[Notification]
	streamer Streamer
}

// MarkRead flags a notification as read.
func (n *Notifications) MarkRead(ctx context.Context, id string) (Notification, error) {
	return n.do(ctx, "marking read", http.MethodPatch, n.item(id, "read"), nil)
}

// Watch delivers notifications pushed by the backend to fn until ctx is
// canceled, the server closes the stream, or fn returns an error.
func (n *Notifications) Watch(ctx context.Context, fn func(Notification) error) error {
	conn, err := n.streamer.Stream(ctx, notificationStreamPath)
	if err != nil {
		return fmt.Errorf("admin: opening notification stream: %w", err)
	}
	defer conn.CloseNow()

	for {
		var ev Notification
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			return fmt.Errorf("admin: reading notification stream: %w", err)
		}

		if err := fn(ev); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")

			if errors.Is(err, ErrStopWatching) {
				return nil
			}

			return err
		}
	}
}
