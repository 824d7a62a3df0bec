// Package admin provides typed access to the chat-widget admin API. Every
// call goes through an api.Client, so all of them share the client's
// session and its single refresh cycle.
package admin

import (
	"log/slog"

	"github.com/tonimelisma/widgetctl/internal/api"
)

// Client is what the façades need from the pipeline.
type Client interface {
	api.Executor
	Streamer
}

// Service bundles the domain façades over one client.
type Service struct {
	Auth          *Auth
	Users         *Resource[User]
	Roles         *Roles
	Permissions   *Resource[Permission]
	Chats         *Chats
	AIModels      *Resource[AIModel]
	Widgets       *Resource[Widget]
	Notifications *Notifications
}

// New wires every façade to client. store receives the session on login
// and is cleared on logout.
func New(client Client, store api.TokenStore, logger *slog.Logger) *Service {
	return &Service{
		Auth:          NewAuth(client, store, logger),
		Users:         NewResource[User](client, "/users"),
		Roles:         &Roles{NewResource[Role](client, "/roles")},
		Permissions:   NewResource[Permission](client, "/permissions"),
		Chats:         &Chats{NewResource[Chat](client, "/chats")},
		AIModels:      NewResource[AIModel](client, "/ai-models"),
		Widgets:       NewResource[Widget](client, "/widgets"),
		Notifications: &Notifications{Resource: NewResource[Notification](client, "/notifications"), streamer: client},
	}
}
