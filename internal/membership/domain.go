// internal/membership/domain.go
package membership

import (
	"encoding/json"
	"strings"
	"time"

	"libraledger/internal/domainerr"
)

// IdentifierLength is the exact number of digits in a member identifier.
const IdentifierLength = 8

// Kind discriminates the closed set of member variants.
type Kind string

const (
	KindStudent Kind = "Student"
	KindTeacher Kind = "Teacher"
)

// ParseKind maps free text to a variant. Anything that is not a student is a teacher.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "estudiante", "student":
		return KindStudent
	default:
		return KindTeacher
	}
}

// ValidateIdentifier reports whether id is exactly eight ASCII digits.
func ValidateIdentifier(id string) bool {
	if len(id) != IdentifierLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateEmail only requires an "@" and a "." somewhere in addr.
func ValidateEmail(addr string) bool {
	return strings.Contains(addr, "@") && strings.Contains(addr, ".")
}

// Member is a person who may borrow or purchase publications.
type Member struct {
	id           string
	name         string
	email        string
	kind         Kind
	registeredAt time.Time
}

// NewMember validates the identifier and contact address.
func NewMember(id, name, email string, kind Kind, now time.Time) (*Member, error) {
	if !ValidateIdentifier(id) {
		return nil, domainerr.Validation("member", "id", "identifier must be exactly 8 digits")
	}
	if !ValidateEmail(email) {
		return nil, domainerr.Validation("member", "email", "email must contain '@' and '.'")
	}
	if kind != KindStudent {
		kind = KindTeacher
	}
	return &Member{
		id:           id,
		name:         name,
		email:        email,
		kind:         kind,
		registeredAt: now,
	}, nil
}

func (m *Member) ID() string { return m.id }
func (m *Member) Name() string { return m.name }
func (m *Member) Email() string { return m.email }
func (m *Member) Kind() Kind { return m.kind }
func (m *Member) RegisteredAt() time.Time { return m.registeredAt }

// SetEmail keeps the previous address when addr is malformed.
func (m *Member) SetEmail(addr string) error {
	if !ValidateEmail(addr) {
		return domainerr.Validation("member", "email", "email must contain '@' and '.'")
	}
	m.email = addr
	return nil
}

type memberJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Kind         Kind      `json:"kind"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (m Member) MarshalJSON() ([]byte, error) {
	return json.Marshal(memberJSON{
		ID:           m.id,
		Name:         m.name,
		Email:        m.email,
		Kind:         m.kind,
		RegisteredAt: m.registeredAt,
	})
}

func (m *Member) UnmarshalJSON(data []byte) error {
	var v memberJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Member{id: v.ID, name: v.Name, email: v.Email, kind: v.Kind, registeredAt: v.RegisteredAt}
	return nil
}

// MemberRegisteredEvent is journaled when a new member registers.
type MemberRegisteredEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Kind  Kind   `json:"kind"`
}

// MemberEmailChangedEvent is journaled when a member's contact address changes.
type MemberEmailChangedEvent struct {
	ID       string `json:"id"`
	NewEmail string `json:"new_email"`
}

const (
	AggregateType         = "member"
	EventMemberRegistered = "MemberRegistered"
	EventEmailChanged     = "MemberEmailChanged"
)
