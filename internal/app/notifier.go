package app

import (
	"context"
	"log/slog"
)

// Notifier tells a new user their account exists.
type Notifier interface {
	Notify(ctx context.Context, user User) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, user User) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, user User) error {
	return f(ctx, user)
}

// LogNotifier writes the welcome notice to a logger instead of sending it.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the notice.
func (n LogNotifier) Notify(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "welcome notice sent",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email))
	return nil
}
