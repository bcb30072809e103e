// internal/audit/checks.go
package audit

import (
	"context"
	"fmt"
	"iter"

	"libraledger/internal/catalog"
	"libraledger/internal/circulation"
	"libraledger/internal/journal"
)

// Source is the read side of the registry the checks inspect.
type Source interface {
	ListPublications(ctx context.Context) iter.Seq[catalog.Publication]
	ListLoans(ctx context.Context) iter.Seq[circulation.LoanRecord]
	ListSales(ctx context.Context) iter.Seq[circulation.SaleRecord]
}

const replayBatchSize = 500

// DefaultChecks returns the registry consistency suite. Results are only
// meaningful while no mutation runs concurrently with the audit.
func DefaultChecks(src Source, j journal.Journal) []Check {
	return []Check{
		{
			Name:       "negative_stock",
			Hypothesis: "No publication ever holds negative stock",
			Measure: func(ctx context.Context) (float64, error) {
				var bad int
				for p := range src.ListPublications(ctx) {
					if p.Stock() < 0 {
						bad++
					}
				}
				return float64(bad), nil
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
		{
			Name:       "stock_reconciliation",
			Hypothesis: "Replaying the journal reproduces every publication's current stock",
			Measure: func(ctx context.Context) (float64, error) {
				expected, err := ReplayStock(ctx, j)
				if err != nil {
					return 0, err
				}
				var bad int
				for p := range src.ListPublications(ctx) {
					if want, ok := expected[p.Code()]; !ok || want != p.Stock() {
						bad++
					}
				}
				return float64(bad), nil
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
		{
			Name:       "usage_consistency",
			Hypothesis: "Usage counters match the loans and sales recorded against each publication",
			Measure: func(ctx context.Context) (float64, error) {
				loaned := make(map[string]int)
				for l := range src.ListLoans(ctx) {
					loaned[l.PublicationCode]++
				}
				sold := make(map[string]int)
				for s := range src.ListSales(ctx) {
					sold[s.PublicationCode] += s.Quantity
				}
				var bad int
				for p := range src.ListPublications(ctx) {
					if p.LoanedCount() != loaned[p.Code()] || p.SoldCount() != sold[p.Code()] {
						bad++
					}
				}
				return float64(bad), nil
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
		{
			Name:       "loan_state",
			Hypothesis: "Returned loans carry a return time and a non-negative fee; active loans carry neither",
			Measure: func(ctx context.Context) (float64, error) {
				var bad int
				for l := range src.ListLoans(ctx) {
					switch l.Status {
					case circulation.StatusReturned:
						if l.ReturnedAt == nil || l.Fee < 0 {
							bad++
						}
					case circulation.StatusActive:
						if l.ReturnedAt != nil || l.Fee != 0 {
							bad++
						}
					default:
						bad++
					}
				}
				return float64(bad), nil
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
	}
}

// ReplayStock folds the journal into the stock every publication should hold.
func ReplayStock(ctx context.Context, j journal.Journal) (map[string]int, error) {
	events, err := journal.ReadAll(ctx, j, replayBatchSize)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	stock := make(map[string]int)
	for _, e := range events {
		switch e.EventType {
		case catalog.EventPublicationRegistered:
			var ev catalog.PublicationRegisteredEvent
			if err := e.Decode(&ev); err != nil {
				return nil, err
			}
			stock[ev.Code] = ev.Stock
		case catalog.EventStockChanged:
			var ev catalog.PublicationStockChangedEvent
			if err := e.Decode(&ev); err != nil {
				return nil, err
			}
			stock[ev.Code] = ev.NewStock
		case circulation.EventLoanCreated:
			var ev circulation.LoanCreatedEvent
			if err := e.Decode(&ev); err != nil {
				return nil, err
			}
			stock[ev.PublicationCode]--
		case circulation.EventLoanReturned:
			var ev circulation.LoanReturnedEvent
			if err := e.Decode(&ev); err != nil {
				return nil, err
			}
			stock[ev.PublicationCode]++
		case circulation.EventSaleCreated:
			var ev circulation.SaleCreatedEvent
			if err := e.Decode(&ev); err != nil {
				return nil, err
			}
			stock[ev.PublicationCode] -= ev.Quantity
		}
	}
	return stock, nil
}
