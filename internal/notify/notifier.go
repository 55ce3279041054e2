package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/commute-rides/internal/models"
	"github.com/example/commute-rides/internal/observability"
)

// Notifier is one delivery backend for fire-and-forget notices.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Hook fans a notification out to every configured backend. Failures are
// logged and counted, never returned: a broken dispatcher must not block
// or fail the ride mutation that triggered it.
type Hook struct {
	Backends []Notifier
	Logger   *slog.Logger
	Timeout  time.Duration
}

func NewHook(logger *slog.Logger, backends ...Notifier) *Hook {
	return &Hook{Backends: backends, Logger: logger, Timeout: 3 * time.Second}
}

// Go dispatches asynchronously; the caller returns immediately.
func (h *Hook) Go(recipientID, message string) {
	go h.Dispatch(models.Notification{RecipientID: recipientID, Message: message})
}

// Dispatch delivers synchronously to all backends, swallowing errors.
func (h *Hook) Dispatch(n models.Notification) {
	if h == nil {
		return
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, b := range h.Backends {
		if err := b.Notify(ctx, n); err != nil {
			observability.NotificationFailures.Inc()
			if h.Logger != nil {
				h.Logger.Warn("notification dispatch failed",
					"recipient", n.RecipientID, "error", err)
			}
		}
	}
}
