package domainerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		err    error
		target error
		kind   Kind
		status int
	}{
		{Validation("member", "id", "bad id"), ErrValidation, KindValidation, http.StatusBadRequest},
		{DuplicateKey("publication", "B-1"), ErrDuplicateKey, KindDuplicateKey, http.StatusConflict},
		{NotFound("loan", "3"), ErrNotFound, KindNotFound, http.StatusNotFound},
		{OutOfStock("B-1"), ErrOutOfStock, KindOutOfStock, http.StatusConflict},
		{InsufficientStock("B-1", 4, 2), ErrInsufficientStock, KindInsufficientStock, http.StatusConflict},
		{AlreadyReturned(1), ErrAlreadyReturned, KindAlreadyReturned, http.StatusConflict},
		{Unavailable("journal down", errors.New("eof")), ErrUnavailable, KindUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.target)
			assert.Equal(t, tc.kind, KindOf(wrapped))
			assert.Equal(t, tc.status, HTTPStatus(wrapped))
		})
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("journal append failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "journal append failed: connection refused")
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Kind(""), KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestInsufficientStockMessage(t *testing.T) {
	assert.EqualError(t, InsufficientStock("B-1", 4, 2), `publication "B-1" has 2 in stock, 4 requested`)
}
