// Package kafka streams audit events to a topic. Reads are served by the view
// store the topic is materialized into.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "certwallet/pkg/platform/audit"
)

type Store struct {
	client *kgo.Client
	topic  string
	view   audit.Store
}

// New returns a store that produces to topic and answers reads from view.
func New(client *kgo.Client, topic string, view audit.Store) *Store {
	return &Store{client: client, topic: topic, view: view}
}

// Append produces the event synchronously, keyed by the event id.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.view.ListBySubject(ctx, subject)
}
