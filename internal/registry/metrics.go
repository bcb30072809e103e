package registry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"libraledger/internal/domainerr"
)

type instruments struct {
	loansCreated  metric.Int64Counter
	loansReturned metric.Int64Counter
	salesCreated  metric.Int64Counter
	salesUnits    metric.Int64Counter
	feesCharged   metric.Float64Counter
	refused       metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider, logger zerolog.Logger) *instruments {
	meter := mp.Meter("libraledger/registry")
	fallback := noop.NewMeterProvider().Meter("libraledger/registry")

	int64Counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn().Err(err).Str("instrument", name).Msg("falling back to noop counter")
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	fees, err := meter.Float64Counter("registry.fees.charged", metric.WithDescription("Late fees charged on returned loans"))
	if err != nil {
		logger.Warn().Err(err).Str("instrument", "registry.fees.charged").Msg("falling back to noop counter")
		fees, _ = fallback.Float64Counter("registry.fees.charged")
	}

	return &instruments{
		loansCreated:  int64Counter("registry.loans.created", "Loans opened"),
		loansReturned: int64Counter("registry.loans.returned", "Loans closed"),
		salesCreated:  int64Counter("registry.sales.created", "Sales completed"),
		salesUnits:    int64Counter("registry.sales.units", "Units sold"),
		feesCharged:   fees,
		refused:       int64Counter("registry.operations.refused", "Operations refused, by reason"),
	}
}

func (m *instruments) refusal(ctx context.Context, op string, err error) {
	reason := string(domainerr.KindOf(err))
	if reason == "" {
		reason = "INTERNAL"
	}
	m.refused.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("reason", reason),
	))
}
