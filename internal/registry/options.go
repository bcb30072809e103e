package registry

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libraledger/internal/circulation"
	"libraledger/internal/journal"
)

const (
	DefaultLowStockThreshold = 3
	DefaultTopLimit          = 5
)

type options struct {
	clock             func() time.Time
	policy            circulation.Policy
	lowStockThreshold int
	topLimit          int
	journal           journal.Journal
	logger            zerolog.Logger
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
}

func defaultOptions() options {
	return options{
		clock:             time.Now,
		policy:            circulation.DefaultPolicy,
		lowStockThreshold: DefaultLowStockThreshold,
		topLimit:          DefaultTopLimit,
		journal:           journal.NewMemory(),
		logger:            zerolog.Nop(),
		tracerProvider:    otel.GetTracerProvider(),
		meterProvider:     otel.GetMeterProvider(),
	}
}

// Option configures the registry service.
type Option func(*options)

// WithClock replaces the host time source. Tests use it to pin loan dates.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

func WithPolicy(p circulation.Policy) Option {
	return func(o *options) { o.policy = p }
}

func WithLowStockThreshold(n int) Option {
	return func(o *options) { o.lowStockThreshold = n }
}

// WithTopLimit sets the default TopPublications size. Values below 1 are ignored.
func WithTopLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.topLimit = n
		}
	}
}

func WithJournal(j journal.Journal) Option {
	return func(o *options) { o.journal = j }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}
