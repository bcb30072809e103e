package journal

import (
	"context"
	"sync"
	"time"
)

// Memory is the default, process-local journal.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	seen   map[string]struct{}
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		events: make([]Event, 0),
		seen:   make(map[string]struct{}),
		now:    time.Now,
	}
}

// Append stores all events or none of them.
func (m *Memory) Append(ctx context.Context, events ...Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range events {
		if _, dup := m.seen[e.EventID.String()]; dup {
			return ErrDuplicateEvent
		}
	}

	next := int64(len(m.events)) + 1
	for i, e := range events {
		e.ID = next + int64(i)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = m.now().UTC()
		}
		m.events = append(m.events, e)
		m.seen[e.EventID.String()] = struct{}{}
	}
	return nil
}

// Stream returns up to batchSize events with an id greater than fromID.
func (m *Memory) Stream(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		return nil, ErrInvalidBatch
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// ids are dense and start at 1
	start := int(fromID)
	if start < 0 {
		start = 0
	}
	if start >= len(m.events) {
		return []Event{}, nil
	}
	end := min(start+batchSize, len(m.events))

	out := make([]Event, end-start)
	copy(out, m.events[start:end])
	return out, nil
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

var _ Journal = (*Memory)(nil)
