// internal/circulation/policy.go
package circulation

import "time"

// Policy fixes the lending window and the late fee charged per calendar day.
type Policy struct {
	LoanPeriod time.Duration
	DailyFee   float64
}

// DefaultPolicy lends for seven days and charges 1.0 per day late.
var DefaultPolicy = Policy{
	LoanPeriod: 7 * 24 * time.Hour,
	DailyFee:   1.0,
}

// daysBetween counts calendar days from a's date to b's date, ignoring time of day.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// LateFee is max(0, days from due date to return date) times the daily fee.
func (p Policy) LateFee(due, returned time.Time) float64 {
	days := daysBetween(due, returned)
	if days <= 0 {
		return 0
	}
	return float64(days) * p.DailyFee
}
