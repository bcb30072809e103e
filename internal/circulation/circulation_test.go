package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/catalog"
	"libraledger/internal/domainerr"
	"libraledger/internal/membership"
)

func fixtures(t *testing.T, stock int) (*catalog.Publication, *membership.Member) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pub, err := catalog.NewPublication("B-1", "Dune", "Herbert", "SciFi", stock, 20.0, catalog.KindBook, now)
	require.NoError(t, err)
	m, err := membership.NewMember("12345678", "Ana", "ana@uni.edu", membership.KindStudent, now)
	require.NoError(t, err)
	return pub, m
}

func day(d int, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

func TestLateFee(t *testing.T) {
	due := day(10, 15)

	assert.Equal(t, 2.0, DefaultPolicy.LateFee(due, day(12, 9)))
	assert.Equal(t, 0.0, DefaultPolicy.LateFee(due, day(9, 9)))
	assert.Equal(t, 0.0, DefaultPolicy.LateFee(due, day(10, 23)), "same calendar day is not late")
	assert.Equal(t, 1.0, DefaultPolicy.LateFee(due, day(11, 0)))

	steep := Policy{LoanPeriod: 24 * time.Hour, DailyFee: 2.5}
	assert.Equal(t, 7.5, steep.LateFee(due, day(13, 12)))
}

func TestLateFee_UsesDueDateLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	due := time.Date(2024, 1, 10, 20, 0, 0, 0, loc)
	// 2024-01-11 01:00 UTC is still 2024-01-10 in the due date's zone.
	returned := time.Date(2024, 1, 11, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.0, DefaultPolicy.LateFee(due, returned))
}

func TestNewLoan(t *testing.T) {
	pub, m := fixtures(t, 1)

	loan, err := NewLoan(1, pub, m, day(3, 10), DefaultPolicy)
	require.NoError(t, err)
	assert.Equal(t, 0, pub.Stock())
	assert.Equal(t, 1, pub.LoanedCount())
	assert.Equal(t, day(10, 10), loan.DueAt())
	assert.Equal(t, StatusActive, loan.Status())
	assert.Zero(t, loan.Fee())

	_, err = NewLoan(2, pub, m, day(3, 10), DefaultPolicy)
	assert.ErrorIs(t, err, domainerr.ErrOutOfStock)
	assert.Equal(t, 1, pub.LoanedCount())
}

func TestMarkReturned(t *testing.T) {
	pub, m := fixtures(t, 1)
	loan, err := NewLoan(1, pub, m, day(3, 10), DefaultPolicy)
	require.NoError(t, err)

	require.NoError(t, loan.MarkReturned(day(12, 8)))
	assert.Equal(t, StatusReturned, loan.Status())
	assert.Equal(t, 2.0, loan.Fee())
	assert.Equal(t, 1, pub.Stock())

	err = loan.MarkReturned(day(13, 8))
	assert.ErrorIs(t, err, domainerr.ErrAlreadyReturned)
	assert.Equal(t, 1, pub.Stock())
	assert.Equal(t, 2.0, loan.Fee())

	rec := loan.Record()
	require.NotNil(t, rec.ReturnedAt)
	assert.Equal(t, day(12, 8), *rec.ReturnedAt)
	assert.Equal(t, "B-1", rec.PublicationCode)
	assert.Equal(t, "12345678", rec.MemberID)
}

func TestIsOverdue(t *testing.T) {
	pub, m := fixtures(t, 2)
	loan, err := NewLoan(1, pub, m, day(1, 10), DefaultPolicy)
	require.NoError(t, err)

	assert.False(t, loan.IsOverdue(day(8, 23)))
	assert.True(t, loan.IsOverdue(day(9, 0)))

	require.NoError(t, loan.MarkReturned(day(20, 0)))
	assert.False(t, loan.IsOverdue(day(21, 0)))
}

func TestNewSale(t *testing.T) {
	pub, m := fixtures(t, 5)

	_, err := NewSale(1, m, pub, 0, day(2, 0))
	assert.ErrorIs(t, err, domainerr.ErrValidation)

	_, err = NewSale(1, m, pub, 6, day(2, 0))
	assert.ErrorIs(t, err, domainerr.ErrInsufficientStock)
	assert.Equal(t, 5, pub.Stock())
	assert.Zero(t, pub.SoldCount())

	sale, err := NewSale(1, m, pub, 3, day(2, 0))
	require.NoError(t, err)
	assert.Equal(t, 60.0, sale.Total())
	assert.Equal(t, 2, pub.Stock())
	assert.Equal(t, 3, pub.SoldCount())

	require.NoError(t, pub.SetPrice(99))
	assert.Equal(t, 60.0, sale.Total(), "total is fixed at sale time")
	assert.Equal(t, 20.0, sale.Record().UnitPrice)
}
