// internal/catalog/domain.go
package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"libraledger/internal/domainerr"
)

// Kind discriminates the closed set of publication variants.
type Kind string

const (
	KindBook     Kind = "Book"
	KindMagazine Kind = "Magazine"
)

// ParseKind maps free text to a variant. Anything that is not a book is a magazine.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "libro", "book":
		return KindBook
	default:
		return KindMagazine
	}
}

// Publication is a catalog item with stock, price and usage counters.
// The zero value is not usable; build one with NewPublication.
type Publication struct {
	code         string
	title        string
	author       string
	category     string
	kind         Kind
	stock        int
	price        float64
	soldCount    int
	loanedCount  int
	registeredAt time.Time
}

// NewPublication validates the initial state and returns a publication.
func NewPublication(code, title, author, category string, stock int, price float64, kind Kind, now time.Time) (*Publication, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domainerr.Validation("publication", "code", "code must not be empty")
	}
	if stock < 0 {
		return nil, domainerr.Validation("publication", "stock", "stock cannot be negative")
	}
	if price <= 0 {
		return nil, domainerr.Validation("publication", "price", "price must be positive")
	}
	if kind != KindBook {
		kind = KindMagazine
	}
	return &Publication{
		code:         code,
		title:        title,
		author:       author,
		category:     category,
		kind:         kind,
		stock:        stock,
		price:        price,
		registeredAt: now,
	}, nil
}

func (p *Publication) Code() string { return p.code }
func (p *Publication) Title() string { return p.title }
func (p *Publication) Author() string { return p.author }
func (p *Publication) Category() string { return p.category }
func (p *Publication) Kind() Kind { return p.kind }
func (p *Publication) Stock() int { return p.stock }
func (p *Publication) Price() float64 { return p.price }
func (p *Publication) SoldCount() int { return p.soldCount }
func (p *Publication) LoanedCount() int { return p.loanedCount }
func (p *Publication) RegisteredAt() time.Time { return p.registeredAt }

// TotalUsage is sold-count plus loaned-count.
func (p *Publication) TotalUsage() int {
	return p.soldCount + p.loanedCount
}

func (p *Publication) SetTitle(title string) { p.title = title }
func (p *Publication) SetAuthor(author string) { p.author = author }
func (p *Publication) SetCategory(category string) { p.category = category }

// SetStock rejects negative values and keeps the previous stock.
func (p *Publication) SetStock(n int) error {
	if n < 0 {
		return domainerr.Validation("publication", "stock", "stock cannot be negative")
	}
	p.stock = n
	return nil
}

// SetPrice rejects non-positive values and keeps the previous price.
func (p *Publication) SetPrice(price float64) error {
	if price <= 0 {
		return domainerr.Validation("publication", "price", "price must be positive")
	}
	p.price = price
	return nil
}

// RecordSale adds qty to the sold counter. The caller validates qty.
func (p *Publication) RecordSale(qty int) {
	p.soldCount += qty
}

// RecordLoan adds one to the loaned counter.
func (p *Publication) RecordLoan() {
	p.loanedCount++
}

// Withdraw takes n units out of stock, refusing to go below zero.
func (p *Publication) Withdraw(n int) error {
	if n > p.stock {
		if p.stock == 0 {
			return domainerr.OutOfStock(p.code)
		}
		return domainerr.InsufficientStock(p.code, n, p.stock)
	}
	p.stock -= n
	return nil
}

// Restock puts n units back.
func (p *Publication) Restock(n int) {
	p.stock += n
}

type publicationJSON struct {
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Category     string    `json:"category"`
	Kind         Kind      `json:"kind"`
	Stock        int       `json:"stock"`
	Price        float64   `json:"price"`
	SoldCount    int       `json:"sold_count"`
	LoanedCount  int       `json:"loaned_count"`
	TotalUsage   int       `json:"total_usage"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (p Publication) MarshalJSON() ([]byte, error) {
	return json.Marshal(publicationJSON{
		Code:         p.code,
		Title:        p.title,
		Author:       p.author,
		Category:     p.category,
		Kind:         p.kind,
		Stock:        p.stock,
		Price:        p.price,
		SoldCount:    p.soldCount,
		LoanedCount:  p.loanedCount,
		TotalUsage:   p.soldCount + p.loanedCount,
		RegisteredAt: p.registeredAt,
	})
}

func (p *Publication) UnmarshalJSON(data []byte) error {
	var v publicationJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Publication{
		code:         v.Code,
		title:        v.Title,
		author:       v.Author,
		category:     v.Category,
		kind:         v.Kind,
		stock:        v.Stock,
		price:        v.Price,
		soldCount:    v.SoldCount,
		loanedCount:  v.LoanedCount,
		registeredAt: v.RegisteredAt,
	}
	return nil
}

// PublicationRegisteredEvent is journaled when a publication enters the catalog.
type PublicationRegisteredEvent struct {
	Code     string  `json:"code"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Category string  `json:"category"`
	Kind     Kind    `json:"kind"`
	Stock    int     `json:"stock"`
	Price    float64 `json:"price"`
}

// PublicationStockChangedEvent is journaled when stock is overwritten directly.
type PublicationStockChangedEvent struct {
	Code     string `json:"code"`
	NewStock int    `json:"new_stock"`
}

// PublicationPriceChangedEvent is journaled when the price changes.
type PublicationPriceChangedEvent struct {
	Code     string  `json:"code"`
	NewPrice float64 `json:"new_price"`
}

// PublicationDetailsChangedEvent is journaled when descriptive fields change.
type PublicationDetailsChangedEvent struct {
	Code     string `json:"code"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
}

const (
	AggregateType              = "publication"
	EventPublicationRegistered = "PublicationRegistered"
	EventStockChanged          = "PublicationStockChanged"
	EventPriceChanged          = "PublicationPriceChanged"
	EventDetailsChanged        = "PublicationDetailsChanged"
)
