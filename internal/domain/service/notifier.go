package service

import "context"

// Notifier delivers a formatted message over one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, title, body string) error
}
