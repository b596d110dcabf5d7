// Package notify delivers one-time codes and account notices to users,
// decoupled from the request path through an async dispatcher.
package notify

import "context"

// Message is a single outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message over some transport (SMTP in production,
// a fake in tests).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
