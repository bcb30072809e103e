package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/domainerr"
)

var registeredAt = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newBook(t *testing.T, stock int) *Publication {
	t.Helper()
	p, err := NewPublication("B-1", "Dune", "Herbert", "SciFi", stock, 20.0, KindBook, registeredAt)
	require.NoError(t, err)
	return p
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"libro":    KindBook,
		"Book":     KindBook,
		" LIBRO ":  KindBook,
		"revista":  KindMagazine,
		"magazine": KindMagazine,
		"":         KindMagazine,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseKind(in), "input %q", in)
	}
}

func TestNewPublication_Validation(t *testing.T) {
	_, err := NewPublication("", "t", "a", "c", 1, 1, KindBook, registeredAt)
	assert.ErrorIs(t, err, domainerr.ErrValidation)

	_, err = NewPublication("X", "t", "a", "c", -1, 1, KindBook, registeredAt)
	assert.ErrorIs(t, err, domainerr.ErrValidation)

	_, err = NewPublication("X", "t", "a", "c", 1, 0, KindBook, registeredAt)
	assert.ErrorIs(t, err, domainerr.ErrValidation)

	p, err := NewPublication("X", "t", "a", "c", 0, 1, Kind("Pamphlet"), registeredAt)
	require.NoError(t, err)
	assert.Equal(t, KindMagazine, p.Kind())
	assert.Zero(t, p.TotalUsage())
}

func TestSettersKeepPreviousValueOnError(t *testing.T) {
	p := newBook(t, 5)

	assert.ErrorIs(t, p.SetStock(-3), domainerr.ErrValidation)
	assert.Equal(t, 5, p.Stock())

	assert.ErrorIs(t, p.SetPrice(-1), domainerr.ErrValidation)
	assert.Equal(t, 20.0, p.Price())

	require.NoError(t, p.SetStock(0))
	require.NoError(t, p.SetPrice(12.5))
	assert.Equal(t, 0, p.Stock())
	assert.Equal(t, 12.5, p.Price())
}

func TestWithdraw(t *testing.T) {
	p := newBook(t, 2)

	err := p.Withdraw(3)
	assert.ErrorIs(t, err, domainerr.ErrInsufficientStock)
	assert.Equal(t, 2, p.Stock())

	require.NoError(t, p.Withdraw(2))
	assert.Equal(t, 0, p.Stock())

	err = p.Withdraw(1)
	assert.ErrorIs(t, err, domainerr.ErrOutOfStock)

	p.Restock(1)
	assert.Equal(t, 1, p.Stock())
}

func TestUsageCounters(t *testing.T) {
	p := newBook(t, 10)
	p.RecordSale(3)
	p.RecordLoan()
	p.RecordLoan()

	assert.Equal(t, 3, p.SoldCount())
	assert.Equal(t, 2, p.LoanedCount())
	assert.Equal(t, 5, p.TotalUsage())
}

func TestPublicationJSON(t *testing.T) {
	p := newBook(t, 4)
	p.RecordLoan()

	data, err := json.Marshal(*p)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "B-1", fields["code"])
	assert.Equal(t, "Book", fields["kind"])
	assert.EqualValues(t, 1, fields["total_usage"])

	var back Publication
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.Code(), back.Code())
	assert.Equal(t, p.LoanedCount(), back.LoanedCount())
	assert.True(t, p.RegisteredAt().Equal(back.RegisteredAt()))
}
