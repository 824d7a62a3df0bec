package admin

import "time"

// User is an admin-console account within a tenant.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Role groups permissions under a name.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Chat is one visitor conversation held through a widget.
type Chat struct {
	ID        string    `json:"id"`
	WidgetID  string    `json:"widget_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"` // open | closed | escalated
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Message is a single turn of a chat.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"` // visitor | assistant | agent
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// AIModel is a model configuration widgets can answer with.
type AIModel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Active   bool   `json:"active"`
}

// Widget is an embeddable chat widget.
type Widget struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ModelID   string    `json:"model_id,omitempty"`
	Color     string    `json:"color,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ListOptions narrows a collection listing. Zero values are omitted.
type ListOptions struct {
	Page    int
	PerPage int
	Search  string
}
