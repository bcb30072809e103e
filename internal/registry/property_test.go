package registry

import (
	"context"
	"slices"
	"testing"
	"time"

	"pgregory.net/rapid"

	"libraledger/internal/audit"
	"libraledger/internal/circulation"
	"libraledger/internal/journal"
)

var propCodes = []string{"P-0", "P-1", "P-2"}

// Stock always equals initial stock minus units sold minus loans still out,
// never drops below zero, and the audit suite agrees.
func TestStockInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := newTestClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		j := journal.NewMemory()
		svc := NewService(WithClock(clock.Now), WithJournal(j))

		initial := make(map[string]int)
		for _, code := range propCodes {
			stock := rapid.IntRange(0, 5).Draw(t, "stock_"+code)
			initial[code] = stock
			if _, err := svc.RegisterPublication(ctx, NewPublicationRequest{Code: code, Stock: stock, Price: 2.5}); err != nil {
				t.Fatalf("register %s: %v", code, err)
			}
		}
		if _, err := svc.RegisterMember(ctx, NewMemberRequest{ID: "12345678", Name: "Ana", Email: "ana@uni.edu"}); err != nil {
			t.Fatalf("register member: %v", err)
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for range steps {
			code := rapid.SampledFrom(propCodes).Draw(t, "code")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				svc.CreateLoan(ctx, "12345678", code)
			case 1:
				svc.CreateSale(ctx, "12345678", code, rapid.IntRange(-1, 4).Draw(t, "qty"))
			case 2:
				loans := slices.Collect(svc.ListLoans(ctx))
				if len(loans) > 0 {
					pick := rapid.IntRange(0, len(loans)-1).Draw(t, "loan")
					svc.ReturnLoan(ctx, loans[pick].ID)
				}
			}
			clock.Set(clock.Now().Add(time.Duration(rapid.IntRange(0, 72).Draw(t, "hours")) * time.Hour))
		}

		sold := make(map[string]int)
		for s := range svc.ListSales(ctx) {
			sold[s.PublicationCode] += s.Quantity
		}
		out := make(map[string]int)
		for l := range svc.ListLoans(ctx) {
			if l.Status == circulation.StatusActive {
				out[l.PublicationCode]++
			}
			if l.Fee < 0 {
				t.Fatalf("loan %d has negative fee %v", l.ID, l.Fee)
			}
		}

		for p := range svc.ListPublications(ctx) {
			want := initial[p.Code()] - sold[p.Code()] - out[p.Code()]
			if p.Stock() != want {
				t.Fatalf("%s: stock %d, want %d", p.Code(), p.Stock(), want)
			}
			if p.Stock() < 0 {
				t.Fatalf("%s: negative stock %d", p.Code(), p.Stock())
			}
		}

		engine := audit.NewEngine()
		engine.Register(audit.DefaultChecks(svc, j)...)
		if report := engine.Run(ctx); !report.Passed {
			t.Fatalf("audit failed: %+v", report.Violations)
		}
	})
}

// Ties in total usage keep registration order, and the limit is honored.
func TestTopPublicationsOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc := NewService()
		if _, err := svc.RegisterMember(ctx, NewMemberRequest{ID: "12345678", Name: "Ana", Email: "ana@uni.edu"}); err != nil {
			t.Fatalf("register member: %v", err)
		}

		n := rapid.IntRange(1, 8).Draw(t, "n")
		order := make(map[string]int, n)
		for i := range n {
			code := string(rune('a' + i))
			order[code] = i
			if _, err := svc.RegisterPublication(ctx, NewPublicationRequest{Code: code, Stock: 10, Price: 1}); err != nil {
				t.Fatalf("register: %v", err)
			}
			if qty := rapid.IntRange(0, 3).Draw(t, "qty_"+code); qty > 0 {
				if _, err := svc.CreateSale(ctx, "12345678", code, qty); err != nil {
					t.Fatalf("sale: %v", err)
				}
			}
		}

		limit := rapid.IntRange(1, 10).Draw(t, "limit")
		top := svc.TopPublications(ctx, limit)
		if len(top) > limit {
			t.Fatalf("got %d results, limit %d", len(top), limit)
		}
		for i := 1; i < len(top); i++ {
			prev, cur := top[i-1], top[i]
			if prev.TotalUsage() < cur.TotalUsage() {
				t.Fatalf("not descending at %d", i)
			}
			if prev.TotalUsage() == cur.TotalUsage() && order[prev.Code()] > order[cur.Code()] {
				t.Fatalf("tie between %s and %s not stable", prev.Code(), cur.Code())
			}
		}
	})
}
