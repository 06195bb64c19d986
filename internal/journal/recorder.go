package journal

import (
	"context"
	"log/slog"

	"fieldattend/internal/queue"
)

// Recorder drains lifecycle events from a queue into a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Run consumes q until ctx is cancelled or the queue closes.
func (r *Recorder) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("journal recorder started")
	for msg := range messages {
		r.Handle(ctx, msg)
	}
	r.logger.Info("journal recorder stopped")
	return ctx.Err()
}

// Handle stores one message. Malformed messages are logged and dropped.
func (r *Recorder) Handle(ctx context.Context, msg queue.Message) {
	evt, err := DecodeEvent(msg)
	if err != nil {
		r.logger.Warn("dropping journal message", "type", msg.Type, "error", err)
		return
	}
	inserted, err := r.store.Insert(ctx, evt)
	if err != nil {
		r.logger.Error("journal insert failed", "event_id", evt.ID, "type", evt.Type, "error", err)
		return
	}
	if !inserted {
		r.logger.Debug("journal event already recorded", "event_id", evt.ID)
		return
	}
	r.logger.Info("journal event recorded",
		"event_id", evt.ID,
		"type", evt.Type,
		"session_id", evt.SessionID,
		"employee_id", evt.EmployeeID,
	)
}
