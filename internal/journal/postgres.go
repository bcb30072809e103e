package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tableName = "journal_events"

const schema = `
CREATE TABLE IF NOT EXISTS journal_events (
	id BIGSERIAL PRIMARY KEY,
	event_id UUID NOT NULL UNIQUE,
	aggregate_id TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_journal_events_aggregate ON journal_events (aggregate_type, aggregate_id);
`

// Postgres journals events into a single table. Every call goes through a
// circuit breaker so an unreachable database is refused fast.
type Postgres struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker
}

// PostgresOption customizes a Postgres journal.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	tracerProvider   trace.TracerProvider
	breakerTimeout   time.Duration
	breakerThreshold uint32
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) PostgresOption {
	return func(c *postgresConfig) { c.tracerProvider = tp }
}

// WithBreaker sets how many consecutive failures open the breaker and how long it stays open.
func WithBreaker(consecutiveFailures uint32, openFor time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		c.breakerThreshold = consecutiveFailures
		c.breakerTimeout = openFor
	}
}

// NewPostgres wraps an open lib/pq connection pool.
func NewPostgres(db *sqlx.DB, opts ...PostgresOption) *Postgres {
	cfg := postgresConfig{
		tracerProvider:   otel.GetTracerProvider(),
		breakerTimeout:   30 * time.Second,
		breakerThreshold: 5,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	threshold := cfg.breakerThreshold
	return &Postgres{
		db:      db,
		dialect: goqu.Dialect("postgres"),
		tracer:  cfg.tracerProvider.Tracer("libraledger/journal"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "journal-postgres",
			Timeout: cfg.breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

// EnsureSchema creates the journal table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Append inserts all events in one transaction.
func (p *Postgres) Append(ctx context.Context, events ...Event) error {
	ctx, span := p.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(attribute.Int("event.count", len(events))),
	)
	defer span.End()

	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.append(ctx, span, events)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

func (p *Postgres) append(ctx context.Context, span trace.Span, events []Event) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, e := range events {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		query, args, err := p.dialect.Insert(tableName).
			Rows(goqu.Record{
				"event_id":       e.EventID.String(),
				"aggregate_id":   e.AggregateID,
				"aggregate_type": e.AggregateType,
				"event_type":     e.EventType,
				"event_data":     string(e.EventData),
				"created_at":     createdAt,
			}).
			Returning("id").
			Prepared(true).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build insert for event %d: %w", i, err)
		}

		var id int64
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrDuplicateEvent
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", id),
			attribute.String("event.type", e.EventType),
			attribute.String("aggregate.id", e.AggregateID),
		))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Stream returns up to batchSize events with an id greater than fromID.
func (p *Postgres) Stream(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatch
	}

	ctx, span := p.tracer.Start(ctx, "journal.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	query, args, err := p.dialect.From(tableName).
		Select("id", "event_id", "aggregate_id", "aggregate_type", "event_type", "event_data", "created_at").
		Where(goqu.C("id").Gt(fromID)).
		Order(goqu.C("id").Asc()).
		Limit(uint(batchSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build stream query: %w", err)
	}

	res, err := p.breaker.Execute(func() (interface{}, error) {
		events := make([]Event, 0, batchSize)
		if err := p.db.SelectContext(ctx, &events, query, args...); err != nil {
			return nil, fmt.Errorf("query event stream: %w", err)
		}
		return events, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	events := res.([]Event)
	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}

// BreakerState exposes the circuit state for health reporting.
func (p *Postgres) BreakerState() string {
	return p.breaker.State().String()
}

var _ Journal = (*Postgres)(nil)
