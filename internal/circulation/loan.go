// internal/circulation/loan.go
package circulation

import (
	"time"

	"libraledger/internal/catalog"
	"libraledger/internal/domainerr"
	"libraledger/internal/membership"
)

// Status is the loan lifecycle state. Active moves to Returned exactly once.
type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
)

// Loan binds one publication to one member for a bounded period.
// It holds non-owning references; the registry owns both entities.
type Loan struct {
	id          int
	publication *catalog.Publication
	member      *membership.Member
	policy      Policy
	createdAt   time.Time
	dueAt       time.Time
	returnedAt  *time.Time
	fee         float64
}

// NewLoan withdraws one unit from pub and starts the lending window at now.
func NewLoan(id int, pub *catalog.Publication, member *membership.Member, now time.Time, policy Policy) (*Loan, error) {
	if pub.Stock() <= 0 {
		return nil, domainerr.OutOfStock(pub.Code())
	}
	if err := pub.Withdraw(1); err != nil {
		return nil, err
	}
	pub.RecordLoan()

	return &Loan{
		id:          id,
		publication: pub,
		member:      member,
		policy:      policy,
		createdAt:   now,
		dueAt:       now.Add(policy.LoanPeriod),
	}, nil
}

func (l *Loan) ID() int { return l.id }
func (l *Loan) Publication() *catalog.Publication { return l.publication }
func (l *Loan) Member() *membership.Member { return l.member }
func (l *Loan) CreatedAt() time.Time { return l.createdAt }
func (l *Loan) DueAt() time.Time { return l.dueAt }
func (l *Loan) Policy() Policy { return l.policy }

// Status derives the lifecycle state from the return timestamp.
func (l *Loan) Status() Status {
	if l.returnedAt == nil {
		return StatusActive
	}
	return StatusReturned
}

// MarkReturned closes the loan and puts the unit back in stock.
// A second call is refused and leaves stock and fee untouched.
func (l *Loan) MarkReturned(now time.Time) error {
	if l.returnedAt != nil {
		return domainerr.AlreadyReturned(l.id)
	}
	returned := now
	l.returnedAt = &returned
	l.publication.Restock(1)
	l.fee = l.policy.LateFee(l.dueAt, returned)
	return nil
}

// Fee is zero while the loan is active.
func (l *Loan) Fee() float64 {
	if l.returnedAt == nil {
		return 0
	}
	return l.fee
}

// IsOverdue reports whether an active loan's due date is behind now's date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.returnedAt == nil && daysBetween(l.dueAt, now) > 0
}

// LoanRecord is an immutable view of a loan handed to callers.
type LoanRecord struct {
	ID              int        `json:"id"`
	PublicationCode string     `json:"publication_code"`
	MemberID        string     `json:"member_id"`
	CreatedAt       time.Time  `json:"created_at"`
	DueAt           time.Time  `json:"due_at"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty"`
	Status          Status     `json:"status"`
	Fee             float64    `json:"fee"`
}

func (l *Loan) Record() LoanRecord {
	rec := LoanRecord{
		ID:              l.id,
		PublicationCode: l.publication.Code(),
		MemberID:        l.member.ID(),
		CreatedAt:       l.createdAt,
		DueAt:           l.dueAt,
		Status:          l.Status(),
		Fee:             l.Fee(),
	}
	if l.returnedAt != nil {
		returned := *l.returnedAt
		rec.ReturnedAt = &returned
	}
	return rec
}

// LoanCreatedEvent is journaled when a loan starts.
type LoanCreatedEvent struct {
	LoanID          int       `json:"loan_id"`
	PublicationCode string    `json:"publication_code"`
	MemberID        string    `json:"member_id"`
	DueAt           time.Time `json:"due_at"`
}

// LoanReturnedEvent is journaled when a loan is closed.
type LoanReturnedEvent struct {
	LoanID          int       `json:"loan_id"`
	PublicationCode string    `json:"publication_code"`
	MemberID        string    `json:"member_id"`
	ReturnedAt      time.Time `json:"returned_at"`
	Fee             float64   `json:"fee"`
}

const (
	LoanAggregateType = "loan"
	EventLoanCreated  = "LoanCreated"
	EventLoanReturned = "LoanReturned"
)
