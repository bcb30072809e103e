// internal/domainerr/errors.go
package domainerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an expected, recoverable refusal.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindDuplicateKey      Kind = "DUPLICATE_KEY"
	KindNotFound          Kind = "NOT_FOUND"
	KindOutOfStock        Kind = "OUT_OF_STOCK"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindAlreadyReturned   Kind = "ALREADY_RETURNED"
	KindUnavailable       Kind = "UNAVAILABLE"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyReturned   = errors.New("loan already returned")
	ErrUnavailable       = errors.New("backend unavailable")
)

var sentinels = map[Kind]error{
	KindValidation:        ErrValidation,
	KindDuplicateKey:      ErrDuplicateKey,
	KindNotFound:          ErrNotFound,
	KindOutOfStock:        ErrOutOfStock,
	KindInsufficientStock: ErrInsufficientStock,
	KindAlreadyReturned:   ErrAlreadyReturned,
	KindUnavailable:       ErrUnavailable,
}

// Error is a refused operation. State is never partially applied when one is returned.
type Error struct {
	Kind    Kind   `json:"code"`
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind's sentinel and the wrapped cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := sentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func Validation(entity, field, message string) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Field: field, Message: message}
}

func DuplicateKey(entity, key string) *Error {
	return &Error{Kind: KindDuplicateKey, Entity: entity, Field: key, Message: fmt.Sprintf("%s %q already exists", entity, key)}
}

func NotFound(entity, key string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Field: key, Message: fmt.Sprintf("%s %q not found", entity, key)}
}

func OutOfStock(code string) *Error {
	return &Error{Kind: KindOutOfStock, Entity: "publication", Field: code, Message: fmt.Sprintf("publication %q is out of stock", code)}
}

func InsufficientStock(code string, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Entity:  "publication",
		Field:   code,
		Message: fmt.Sprintf("publication %q has %d in stock, %d requested", code, available, requested),
	}
}

func AlreadyReturned(loanID int) *Error {
	return &Error{Kind: KindAlreadyReturned, Entity: "loan", Message: fmt.Sprintf("loan %d was already returned", loanID)}
}

func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status the HTTP layer answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateKey, KindOutOfStock, KindInsufficientStock, KindAlreadyReturned:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
