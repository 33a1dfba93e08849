package domain

import "context"

type Notification struct {
	Kind  string            `json:"kind"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Text renders the notification as a single chat message.
func (n Notification) Text() string {
	if n.Title == "" {
		return n.Body
	}
	if n.Body == "" {
		return n.Title
	}
	return n.Title + "\n" + n.Body
}

// Sender delivers notifications to one channel (chat, push, stream, dashboard).
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Responder is how a caller of an operation receives its textual result.
type Responder interface {
	Reply(ctx context.Context, text string) error
}
