// internal/circulation/sale.go
package circulation

import (
	"time"

	"libraledger/internal/catalog"
	"libraledger/internal/domainerr"
	"libraledger/internal/membership"
)

// Sale is an irreversible purchase. Its total is fixed at creation.
type Sale struct {
	id          int
	member      *membership.Member
	publication *catalog.Publication
	quantity    int
	unitPrice   float64
	total       float64
	createdAt   time.Time
}

// NewSale withdraws qty units from pub and snapshots the total at the current price.
func NewSale(id int, member *membership.Member, pub *catalog.Publication, qty int, now time.Time) (*Sale, error) {
	if qty <= 0 {
		return nil, domainerr.Validation("sale", "quantity", "quantity must be positive")
	}
	if qty > pub.Stock() {
		return nil, domainerr.InsufficientStock(pub.Code(), qty, pub.Stock())
	}
	if err := pub.Withdraw(qty); err != nil {
		return nil, err
	}
	pub.RecordSale(qty)

	return &Sale{
		id:          id,
		member:      member,
		publication: pub,
		quantity:    qty,
		unitPrice:   pub.Price(),
		total:       pub.Price() * float64(qty),
		createdAt:   now,
	}, nil
}

func (s *Sale) ID() int { return s.id }
func (s *Sale) Member() *membership.Member { return s.member }
func (s *Sale) Publication() *catalog.Publication { return s.publication }
func (s *Sale) Quantity() int { return s.quantity }
func (s *Sale) Total() float64 { return s.total }
func (s *Sale) CreatedAt() time.Time { return s.createdAt }

// SaleRecord is an immutable view of a sale handed to callers.
type SaleRecord struct {
	ID              int       `json:"id"`
	MemberID        string    `json:"member_id"`
	PublicationCode string    `json:"publication_code"`
	Quantity        int       `json:"quantity"`
	UnitPrice       float64   `json:"unit_price"`
	Total           float64   `json:"total"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Sale) Record() SaleRecord {
	return SaleRecord{
		ID:              s.id,
		MemberID:        s.member.ID(),
		PublicationCode: s.publication.Code(),
		Quantity:        s.quantity,
		UnitPrice:       s.unitPrice,
		Total:           s.total,
		CreatedAt:       s.createdAt,
	}
}

// SaleCreatedEvent is journaled when a sale completes.
type SaleCreatedEvent struct {
	SaleID          int     `json:"sale_id"`
	MemberID        string  `json:"member_id"`
	PublicationCode string  `json:"publication_code"`
	Quantity        int     `json:"quantity"`
	Total           float64 `json:"total"`
}

const (
	SaleAggregateType = "sale"
	EventSaleCreated  = "SaleCreated"
)
