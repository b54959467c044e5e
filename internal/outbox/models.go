// Package outbox implements the transactional outbox for intake events.
//
// Events are appended in the same database transaction as the business write
// they describe, then relayed to Kafka by a background Relay. Delivery is
// at-least-once; consumers deduplicate on the event ID.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one outbox row.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	Type          string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// NewEvent marshals payload into a new event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       raw,
		CreatedAt:     now.UTC(),
	}, nil
}

// Store persists outbox events.
//
// Append writes through the transaction carried by ctx, if any. Process hands
// up to limit unpublished events, oldest first, to fn and marks them published
// when fn succeeds; it returns how many were published.
type Store interface {
	Append(ctx context.Context, event Event) error
	Process(ctx context.Context, limit int, fn func(ctx context.Context, events []Event) error) (int, error)
}

// Publisher delivers a batch of events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}
