// internal/registry/service.go
package registry

import (
	"context"
	"iter"

	"libraledger/internal/catalog"
	"libraledger/internal/circulation"
	"libraledger/internal/membership"
)

// Service is the sole owner and mutator of catalog, member and transaction state.
type Service interface {
	RegisterPublication(ctx context.Context, req NewPublicationRequest) (catalog.Publication, error)
	GetPublication(ctx context.Context, code string) (catalog.Publication, error)
	UpdatePublication(ctx context.Context, code string, upd PublicationUpdate) (catalog.Publication, error)
	UpdateStock(ctx context.Context, code string, stock int) error
	UpdatePrice(ctx context.Context, code string, price float64) error
	ListPublications(ctx context.Context) iter.Seq[catalog.Publication]
	LowStock(ctx context.Context) []catalog.Publication
	TopPublications(ctx context.Context, limit int) []catalog.Publication

	RegisterMember(ctx context.Context, req NewMemberRequest) (membership.Member, error)
	GetMember(ctx context.Context, id string) (membership.Member, error)
	UpdateMemberEmail(ctx context.Context, id, email string) error
	ListMembers(ctx context.Context) iter.Seq[membership.Member]

	CreateLoan(ctx context.Context, memberID, code string) (circulation.LoanRecord, error)
	ReturnLoan(ctx context.Context, loanID int) (circulation.LoanRecord, error)
	GetLoan(ctx context.Context, loanID int) (circulation.LoanRecord, error)
	ListLoans(ctx context.Context) iter.Seq[circulation.LoanRecord]
	OverdueLoans(ctx context.Context) []circulation.LoanRecord

	CreateSale(ctx context.Context, memberID, code string, quantity int) (circulation.SaleRecord, error)
	ListSales(ctx context.Context) iter.Seq[circulation.SaleRecord]
}

// NewPublicationRequest carries already-typed registration input.
type NewPublicationRequest struct {
	Code     string  `json:"code"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Category string  `json:"category"`
	Stock    int     `json:"stock"`
	Price    float64 `json:"price"`
	Kind     string  `json:"kind"`
}

// NewMemberRequest carries already-typed registration input.
type NewMemberRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Kind  string `json:"kind"`
}

// PublicationUpdate changes only the fields that are set. All of them are
// validated before any is applied.
type PublicationUpdate struct {
	Stock    *int     `json:"stock,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Author   *string  `json:"author,omitempty"`
	Category *string  `json:"category,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u PublicationUpdate) IsEmpty() bool {
	return u.Stock == nil && u.Price == nil && u.Title == nil && u.Author == nil && u.Category == nil
}
