package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a channel and forwards them to a sink.
// Sink failures are logged and the event is dropped; auditing never blocks
// the registry.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
				w.logger.WarnContext(ctx, "failed to forward audit event",
					"event_id", event.ID,
					"action", string(event.Action),
					"error", err,
				)
			}
		}
	}
}
