// Package journal keeps an append-only trail of registry events.
// It is an audit log: the registry never rebuilds its state from it.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrDuplicateEvent = errors.New("duplicate event id")
	ErrInvalidBatch   = errors.New("batch size must be positive")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one journaled fact about an aggregate.
type Event struct {
	ID            int64           `json:"id" db:"id"`
	EventID       uuid.UUID       `json:"event_id" db:"event_id"`
	AggregateID   string          `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	EventType     string          `json:"event_type" db:"event_type"`
	EventData     json.RawMessage `json:"event_data" db:"event_data"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Journal appends events and streams them back in append order.
type Journal interface {
	Append(ctx context.Context, events ...Event) error
	Stream(ctx context.Context, fromID int64, batchSize int) ([]Event, error)
}

// NewEvent encodes payload and stamps a fresh event id.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		EventID:       uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     data,
	}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := codec.Unmarshal(e.EventData, v); err != nil {
		return fmt.Errorf("decode %s event %d: %w", e.EventType, e.ID, err)
	}
	return nil
}

// ReadAll drains j from the beginning in batches.
func ReadAll(ctx context.Context, j Journal, batchSize int) ([]Event, error) {
	var (
		all    []Event
		cursor int64
	)
	for {
		batch, err := j.Stream(ctx, cursor, batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
		cursor = batch[len(batch)-1].ID
	}
}
