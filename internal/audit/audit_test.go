package audit

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"libraledger/internal/catalog"
	"libraledger/internal/circulation"
	"libraledger/internal/journal"
)

func TestThresholdHolds(t *testing.T) {
	assert.True(t, Threshold{Operator: "==", Value: 0}.Holds(0))
	assert.False(t, Threshold{Operator: "==", Value: 0}.Holds(1))
	assert.True(t, Threshold{Operator: ">", Value: 1}.Holds(2))
	assert.True(t, Threshold{Operator: "<=", Value: 1}.Holds(1))
	assert.True(t, Threshold{Operator: ">=", Value: 1}.Holds(1))
	assert.True(t, Threshold{Operator: "<", Value: 1}.Holds(0))
	assert.False(t, Threshold{Operator: "~", Value: 1}.Holds(1))
}

func TestEngineRun(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	e := NewEngine(WithTracerProvider(tp))

	e.Register(
		Check{Name: "ok", Measure: func(context.Context) (float64, error) { return 0, nil }, Threshold: Threshold{Operator: "==", Value: 0}},
		Check{Name: "bad", Measure: func(context.Context) (float64, error) { return 3, nil }, Threshold: Threshold{Operator: "==", Value: 0}},
		Check{Name: "broken", Measure: func(context.Context) (float64, error) { return 0, errors.New("no data") }, Threshold: Threshold{Operator: "==", Value: 0}},
	)

	_, ok := e.Last()
	assert.False(t, ok)

	report := e.Run(context.Background())
	assert.False(t, report.Passed)
	require.Len(t, report.Results, 3)
	require.Len(t, report.Violations, 2)
	assert.Equal(t, "bad", report.Violations[0].Name)
	assert.Equal(t, 3.0, report.Violations[0].Actual)
	assert.Equal(t, "no data", report.Violations[1].Error)

	last, ok := e.Last()
	require.True(t, ok)
	assert.Equal(t, report.StartedAt, last.StartedAt)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "audit.run", spans[0].Name())
}

type fakeSource struct {
	pubs  []catalog.Publication
	loans []circulation.LoanRecord
	sales []circulation.SaleRecord
}

func (f fakeSource) ListPublications(context.Context) iter.Seq[catalog.Publication] {
	return slices.Values(f.pubs)
}
func (f fakeSource) ListLoans(context.Context) iter.Seq[circulation.LoanRecord] {
	return slices.Values(f.loans)
}
func (f fakeSource) ListSales(context.Context) iter.Seq[circulation.SaleRecord] {
	return slices.Values(f.sales)
}

func appendEvent(t *testing.T, j journal.Journal, aggType, id, evType string, payload any) {
	t.Helper()
	e, err := journal.NewEvent(aggType, id, evType, payload)
	require.NoError(t, err)
	require.NoError(t, j.Append(context.Background(), e))
}

func TestDefaultChecks_DetectDrift(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pub, err := catalog.NewPublication("B-1", "Dune", "Herbert", "SciFi", 5, 10, catalog.KindBook, now)
	require.NoError(t, err)
	require.NoError(t, pub.Withdraw(2))
	pub.RecordSale(2)

	j := journal.NewMemory()
	appendEvent(t, j, catalog.AggregateType, "B-1", catalog.EventPublicationRegistered, catalog.PublicationRegisteredEvent{Code: "B-1", Stock: 5})
	appendEvent(t, j, circulation.SaleAggregateType, "1", circulation.EventSaleCreated, circulation.SaleCreatedEvent{PublicationCode: "B-1", Quantity: 2})

	src := fakeSource{
		pubs:  []catalog.Publication{*pub},
		sales: []circulation.SaleRecord{{ID: 1, PublicationCode: "B-1", Quantity: 2}},
	}

	e := NewEngine()
	e.Register(DefaultChecks(src, j)...)
	report := e.Run(ctx)
	assert.True(t, report.Passed, "%+v", report.Violations)

	// stock edited outside the journal
	require.NoError(t, pub.SetStock(9))
	returned := now
	src.pubs = []catalog.Publication{*pub}
	src.loans = []circulation.LoanRecord{{ID: 1, PublicationCode: "B-1", Status: circulation.StatusActive, ReturnedAt: &returned}}

	report = engineFor(src, j).Run(ctx)
	assert.False(t, report.Passed)

	failed := make([]string, 0)
	for _, v := range report.Violations {
		failed = append(failed, v.Name)
	}
	assert.ElementsMatch(t, []string{"stock_reconciliation", "usage_consistency", "loan_state"}, failed)
}

func engineFor(src Source, j journal.Journal) *Engine {
	e := NewEngine()
	e.Register(DefaultChecks(src, j)...)
	return e
}

func TestReplayStock(t *testing.T) {
	j := journal.NewMemory()
	appendEvent(t, j, catalog.AggregateType, "A", catalog.EventPublicationRegistered, catalog.PublicationRegisteredEvent{Code: "A", Stock: 3})
	appendEvent(t, j, circulation.LoanAggregateType, "1", circulation.EventLoanCreated, circulation.LoanCreatedEvent{LoanID: 1, PublicationCode: "A"})
	appendEvent(t, j, catalog.AggregateType, "A", catalog.EventStockChanged, catalog.PublicationStockChangedEvent{Code: "A", NewStock: 10})
	appendEvent(t, j, circulation.LoanAggregateType, "1", circulation.EventLoanReturned, circulation.LoanReturnedEvent{LoanID: 1, PublicationCode: "A"})
	appendEvent(t, j, circulation.SaleAggregateType, "1", circulation.EventSaleCreated, circulation.SaleCreatedEvent{PublicationCode: "A", Quantity: 4})

	stock, err := ReplayStock(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 7}, stock)
}
