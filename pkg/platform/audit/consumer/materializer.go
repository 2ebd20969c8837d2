// Package consumer materializes the audit topic into a queryable store.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"certwallet/internal/platform/kafka/consumer"
	audit "certwallet/pkg/platform/audit"
)

// Materializer appends every consumed audit event to a store. The store's
// Append must be idempotent on the event id, since records are redelivered
// after a crash between append and commit.
type Materializer struct {
	store  audit.Store
	logger *slog.Logger
}

func NewMaterializer(store audit.Store, logger *slog.Logger) *Materializer {
	return &Materializer{store: store, logger: logger}
}

// Handle decodes and stores one event. Undecodable payloads are logged and
// skipped so they do not block the partition.
func (m *Materializer) Handle(ctx context.Context, msg *consumer.Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		m.logger.WarnContext(ctx, "skipping malformed audit event",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if event.ID == "" {
		event.ID = string(msg.Key)
	}
	return m.store.Append(ctx, event)
}
