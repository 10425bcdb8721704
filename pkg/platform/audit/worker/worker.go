package worker

import (
	"context"
	"log/slog"

	audit "veridoc/pkg/platform/audit"
)

// Worker drains audit events from a channel into a store so emitters never
// block on persistence. Append failures are logged and dropped rather than
// propagated: audit delivery is at-least-once and the channel publisher has
// already returned to its caller.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"subject", event.Subject,
					"error", err,
				)
			}
		}
	}
}

// ChannelPublisher implements audit.Publisher over the worker inbox. Emit
// never blocks; if the inbox is full the event is dropped and counted by the
// caller's logger.
type ChannelPublisher struct {
	inbox  chan<- audit.Event
	logger *slog.Logger
}

func NewChannelPublisher(inbox chan<- audit.Event, logger *slog.Logger) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox, logger: logger}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event audit.Event) error {
	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", event.Action,
			"subject", event.Subject,
		)
		return nil
	}
}
