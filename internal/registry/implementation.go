// internal/registry/implementation.go
package registry

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libraledger/internal/catalog"
	"libraledger/internal/circulation"
	"libraledger/internal/domainerr"
	"libraledger/internal/journal"
	"libraledger/internal/membership"
)

// service implements the Service interface. One mutex serializes every
// operation; validation always runs before the journal append and the
// journal append always runs before any mutation.
type service struct {
	mu sync.RWMutex

	publications []*catalog.Publication
	pubIndex     map[string]*catalog.Publication
	members      []*membership.Member
	memberIndex  map[string]*membership.Member
	loans        []*circulation.Loan // loan n lives at index n-1
	sales        []*circulation.Sale
	nextLoanID   int
	nextSaleID   int

	opts    options
	journal journal.Journal
	tracer  trace.Tracer
	metrics *instruments
	logger  zerolog.Logger
}

// NewService creates an empty registry.
func NewService(opts ...Option) Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("component", "registry").Logger()

	return &service{
		pubIndex:    make(map[string]*catalog.Publication),
		memberIndex: make(map[string]*membership.Member),
		nextLoanID:  1,
		nextSaleID:  1,
		opts:        o,
		journal:     o.journal,
		tracer:      o.tracerProvider.Tracer("libraledger/registry"),
		metrics:     newInstruments(o.meterProvider, logger),
		logger:      logger,
	}
}

func (s *service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
}

func (s *service) refuse(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.refusal(ctx, op, err)
	s.logger.Debug().Err(err).Str("operation", op).Str("reason", string(domainerr.KindOf(err))).Msg("operation refused")
	return err
}

func (s *service) newEvent(now time.Time, aggregateType, aggregateID, eventType string, payload any) (journal.Event, error) {
	ev, err := journal.NewEvent(aggregateType, aggregateID, eventType, payload)
	if err != nil {
		return journal.Event{}, domainerr.Unavailable("encode journal event", err)
	}
	ev.CreatedAt = now.UTC()
	return ev, nil
}

func (s *service) record(ctx context.Context, events ...journal.Event) error {
	if err := s.journal.Append(ctx, events...); err != nil {
		s.logger.Error().Err(err).Int("events", len(events)).Msg("journal append failed")
		return domainerr.Unavailable("journal append failed", err)
	}
	return nil
}

// RegisterPublication adds a publication unless its code is already taken.
func (s *service) RegisterPublication(ctx context.Context, req NewPublicationRequest) (catalog.Publication, error) {
	const op = "register_publication"
	ctx, span := s.start(ctx, op, attribute.String("publication.code", req.Code))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pubIndex[req.Code]; exists {
		return catalog.Publication{}, s.refuse(ctx, span, op, domainerr.DuplicateKey("publication", req.Code))
	}

	now := s.opts.clock()
	pub, err := catalog.NewPublication(req.Code, req.Title, req.Author, req.Category, req.Stock, req.Price, catalog.ParseKind(req.Kind), now)
	if err != nil {
		return catalog.Publication{}, s.refuse(ctx, span, op, err)
	}

	ev, err := s.newEvent(now, catalog.AggregateType, pub.Code(), catalog.EventPublicationRegistered, catalog.PublicationRegisteredEvent{
		Code:     pub.Code(),
		Title:    pub.Title(),
		Author:   pub.Author(),
		Category: pub.Category(),
		Kind:     pub.Kind(),
		Stock:    pub.Stock(),
		Price:    pub.Price(),
	})
	if err != nil {
		return catalog.Publication{}, s.refuse(ctx, span, op, err)
	}
	if err := s.record(ctx, ev); err != nil {
		return catalog.Publication{}, s.refuse(ctx, span, op, err)
	}

	s.publications = append(s.publications, pub)
	s.pubIndex[pub.Code()] = pub

	s.logger.Info().
		Str("code", pub.Code()).
		Str("kind", string(pub.Kind())).
		Int("stock", pub.Stock()).
		Float64("price", pub.Price()).
		Msg("publication registered")
	return *pub, nil
}

// GetPublication returns a copy of the publication with the given code.
func (s *service) GetPublication(ctx context.Context, code string) (catalog.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub, ok := s.pubIndex[code]
	if !ok {
		return catalog.Publication{}, domainerr.NotFound("publication", code)
	}
	return *pub, nil
}

type pendingEvent struct {
	eventType string
	payload   any
}

// UpdatePublication validates every requested change on a copy, journals
// them together and only then swaps the copy in.
func (s *service) UpdatePublication(ctx context.Context, code string, upd PublicationUpdate) (catalog.Publication, error) {
	const op = "update_publication"
	ctx, span := s.start(ctx, op, attribute.String("publication.code", code))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.pubIndex[code]
	if !ok {
		return catalog.Publication{}, s.refuse(ctx, span, op, domainerr.NotFound("publication", code))
	}
	if upd.IsEmpty() {
		return catalog.Publication{}, s.refuse(ctx, span, op, domainerr.Validation("publication", "", "update changes nothing"))
	}

	now := s.opts.clock()
	probe := *pub
	var pending []pendingEvent

	if upd.Stock != nil {
		if err := probe.SetStock(*upd.Stock); err != nil {
			return catalog.Publication{}, s.refuse(ctx, span, op, err)
		}
		pending = append(pending, pendingEvent{catalog.EventStockChanged, catalog.PublicationStockChangedEvent{Code: code, NewStock: probe.Stock()}})
	}
	if upd.Price != nil {
		if err := probe.SetPrice(*upd.Price); err != nil {
			return catalog.Publication{}, s.refuse(ctx, span, op, err)
		}
		pending = append(pending, pendingEvent{catalog.EventPriceChanged, catalog.PublicationPriceChangedEvent{Code: code, NewPrice: probe.Price()}})
	}
	if upd.Title != nil || upd.Author != nil || upd.Category != nil {
		if upd.Title != nil {
			probe.SetTitle(*upd.Title)
		}
		if upd.Author != nil {
			probe.SetAuthor(*upd.Author)
		}
		if upd.Category != nil {
			probe.SetCategory(*upd.Category)
		}
		pending = append(pending, pendingEvent{catalog.EventDetailsChanged, catalog.PublicationDetailsChangedEvent{
			Code:     code,
			Title:    probe.Title(),
			Author:   probe.Author(),
			Category: probe.Category(),
		}})
	}

	events := make([]journal.Event, 0, len(pending))
	for _, p := range pending {
		ev, err := s.newEvent(now, catalog.AggregateType, code, p.eventType, p.payload)
		if err != nil {
			return catalog.Publication{}, s.refuse(ctx, span, op, err)
		}
		events = append(events, ev)
	}
	if err := s.record(ctx, events...); err != nil {
		return catalog.Publication{}, s.refuse(ctx, span, op, err)
	}

	*pub = probe

	s.logger.Info().
		Str("code", code).
		Int("stock", pub.Stock()).
		Float64("price", pub.Price()).
		Int("changes", len(events)).
		Msg("publication updated")
	return *pub, nil
}

// UpdateStock overwrites stock; negative values are refused.
func (s *service) UpdateStock(ctx context.Context, code string, stock int) error {
	_, err := s.UpdatePublication(ctx, code, PublicationUpdate{Stock: &stock})
	return err
}

// UpdatePrice changes the unit price; non-positive values are refused.
// Totals of existing sales are not affected.
func (s *service) UpdatePrice(ctx context.Context, code string, price float64) error {
	_, err := s.UpdatePublication(ctx, code, PublicationUpdate{Price: &price})
	return err
}

func (s *service) snapshotPublications() []catalog.Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Publication, len(s.publications))
	for i, p := range s.publications {
		out[i] = *p
	}
	return out
}

// ListPublications yields publications in insertion order. Each range over
// the returned sequence reads the collection afresh.
func (s *service) ListPublications(ctx context.Context) iter.Seq[catalog.Publication] {
	return func(yield func(catalog.Publication) bool) {
		for _, p := range s.snapshotPublications() {
			if ctx.Err() != nil {
				return
			}
			if !yield(p) {
				return
			}
		}
	}
}

// LowStock returns publications below the low-stock threshold, in insertion order.
func (s *service) LowStock(ctx context.Context) []catalog.Publication {
	out := make([]catalog.Publication, 0)
	for p := range s.ListPublications(ctx) {
		if p.Stock() < s.opts.lowStockThreshold {
			out = append(out, p)
		}
	}
	return out
}

// TopPublications ranks by total usage, keeping insertion order among ties.
func (s *service) TopPublications(ctx context.Context, limit int) []catalog.Publication {
	if limit <= 0 {
		limit = s.opts.topLimit
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	ranked := s.snapshotPublications()
	slices.SortStableFunc(ranked, func(a, b catalog.Publication) int {
		return cmp.Compare(b.TotalUsage(), a.TotalUsage())
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// RegisterMember adds a member after checking the identifier format and uniqueness.
func (s *service) RegisterMember(ctx context.Context, req NewMemberRequest) (membership.Member, error) {
	const op = "register_member"
	ctx, span := s.start(ctx, op, attribute.String("member.id", req.ID))
	defer span.End()

	if !membership.ValidateIdentifier(req.ID) {
		return membership.Member{}, s.refuse(ctx, span, op, domainerr.Validation("member", "id", "identifier must be exactly 8 digits"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.memberIndex[req.ID]; exists {
		return membership.Member{}, s.refuse(ctx, span, op, domainerr.DuplicateKey("member", req.ID))
	}

	now := s.opts.clock()
	m, err := membership.NewMember(req.ID, req.Name, req.Email, membership.ParseKind(req.Kind), now)
	if err != nil {
		return membership.Member{}, s.refuse(ctx, span, op, err)
	}

	ev, err := s.newEvent(now, membership.AggregateType, m.ID(), membership.EventMemberRegistered, membership.MemberRegisteredEvent{
		ID:    m.ID(),
		Name:  m.Name(),
		Email: m.Email(),
		Kind:  m.Kind(),
	})
	if err != nil {
		return membership.Member{}, s.refuse(ctx, span, op, err)
	}
	if err := s.record(ctx, ev); err != nil {
		return membership.Member{}, s.refuse(ctx, span, op, err)
	}

	s.members = append(s.members, m)
	s.memberIndex[m.ID()] = m

	s.logger.Info().Str("member_id", m.ID()).Str("kind", string(m.Kind())).Msg("member registered")
	return *m, nil
}

// GetMember returns a copy of the member with the given identifier.
func (s *service) GetMember(ctx context.Context, id string) (membership.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberIndex[id]
	if !ok {
		return membership.Member{}, domainerr.NotFound("member", id)
	}
	return *m, nil
}

// UpdateMemberEmail replaces the contact address; malformed addresses are refused.
func (s *service) UpdateMemberEmail(ctx context.Context, id, email string) error {
	const op = "update_member_email"
	ctx, span := s.start(ctx, op, attribute.String("member.id", id))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberIndex[id]
	if !ok {
		return s.refuse(ctx, span, op, domainerr.NotFound("member", id))
	}

	probe := *m
	if err := probe.SetEmail(email); err != nil {
		return s.refuse(ctx, span, op, err)
	}

	ev, err := s.newEvent(s.opts.clock(), membership.AggregateType, id, membership.EventEmailChanged, membership.MemberEmailChangedEvent{
		ID:       id,
		NewEmail: email,
	})
	if err != nil {
		return s.refuse(ctx, span, op, err)
	}
	if err := s.record(ctx, ev); err != nil {
		return s.refuse(ctx, span, op, err)
	}

	*m = probe
	s.logger.Info().Str("member_id", id).Msg("member email updated")
	return nil
}

// ListMembers yields members in insertion order.
func (s *service) ListMembers(ctx context.Context) iter.Seq[membership.Member] {
	return func(yield func(membership.Member) bool) {
		s.mu.RLock()
		snapshot := make([]membership.Member, len(s.members))
		for i, m := range s.members {
			snapshot[i] = *m
		}
		s.mu.RUnlock()

		for _, m := range snapshot {
			if ctx.Err() != nil {
				return
			}
			if !yield(m) {
				return
			}
		}
	}
}

// CreateLoan lends one unit of a publication to a member.
func (s *service) CreateLoan(ctx context.Context, memberID, code string) (circulation.LoanRecord, error) {
	const op = "create_loan"
	ctx, span := s.start(ctx, op,
		attribute.String("member.id", memberID),
		attribute.String("publication.code", code),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.memberIndex[memberID]
	if !ok {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, domainerr.NotFound("member", memberID))
	}
	pub, ok := s.pubIndex[code]
	if !ok {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, domainerr.NotFound("publication", code))
	}

	now := s.opts.clock()
	id := s.nextLoanID

	probe := *pub
	trial, err := circulation.NewLoan(id, &probe, member, now, s.opts.policy)
	if err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}

	ev, err := s.newEvent(now, circulation.LoanAggregateType, strconv.Itoa(id), circulation.EventLoanCreated, circulation.LoanCreatedEvent{
		LoanID:          id,
		PublicationCode: code,
		MemberID:        memberID,
		DueAt:           trial.DueAt(),
	})
	if err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}
	if err := s.record(ctx, ev); err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}

	loan, err := circulation.NewLoan(id, pub, member, now, s.opts.policy)
	if err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}
	s.loans = append(s.loans, loan)
	s.nextLoanID++

	s.metrics.loansCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("publication.kind", string(pub.Kind()))))
	span.SetAttributes(attribute.Int("loan.id", id))
	s.logger.Info().
		Int("loan_id", id).
		Str("member_id", memberID).
		Str("code", code).
		Time("due_at", loan.DueAt()).
		Int("stock_left", pub.Stock()).
		Msg("loan created")
	return loan.Record(), nil
}

// ReturnLoan closes an active loan and reports the late fee.
// Returning a loan twice is refused so stock is never credited twice.
func (s *service) ReturnLoan(ctx context.Context, loanID int) (circulation.LoanRecord, error) {
	const op = "return_loan"
	ctx, span := s.start(ctx, op, attribute.Int("loan.id", loanID))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	loan, err := s.loanByID(loanID)
	if err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}
	if loan.Status() == circulation.StatusReturned {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, domainerr.AlreadyReturned(loanID))
	}

	now := s.opts.clock()
	fee := loan.Policy().LateFee(loan.DueAt(), now)

	ev, err := s.newEvent(now, circulation.LoanAggregateType, strconv.Itoa(loanID), circulation.EventLoanReturned, circulation.LoanReturnedEvent{
		LoanID:          loanID,
		PublicationCode: loan.Publication().Code(),
		MemberID:        loan.Member().ID(),
		ReturnedAt:      now,
		Fee:             fee,
	})
	if err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}
	if err := s.record(ctx, ev); err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}

	if err := loan.MarkReturned(now); err != nil {
		return circulation.LoanRecord{}, s.refuse(ctx, span, op, err)
	}

	s.metrics.loansReturned.Add(ctx, 1)
	if loan.Fee() > 0 {
		s.metrics.feesCharged.Add(ctx, loan.Fee())
	}
	span.SetAttributes(attribute.Float64("loan.fee", loan.Fee()))
	s.logger.Info().
		Int("loan_id", loanID).
		Float64("fee", loan.Fee()).
		Msg("loan returned")
	return loan.Record(), nil
}

func (s *service) loanByID(loanID int) (*circulation.Loan, error) {
	if loanID < 1 || loanID > len(s.loans) {
		return nil, domainerr.NotFound("loan", strconv.Itoa(loanID))
	}
	return s.loans[loanID-1], nil
}

// GetLoan returns the current view of a loan.
func (s *service) GetLoan(ctx context.Context, loanID int) (circulation.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, err := s.loanByID(loanID)
	if err != nil {
		return circulation.LoanRecord{}, err
	}
	return loan.Record(), nil
}

// ListLoans yields loans in creation order.
func (s *service) ListLoans(ctx context.Context) iter.Seq[circulation.LoanRecord] {
	return func(yield func(circulation.LoanRecord) bool) {
		s.mu.RLock()
		snapshot := make([]circulation.LoanRecord, len(s.loans))
		for i, l := range s.loans {
			snapshot[i] = l.Record()
		}
		s.mu.RUnlock()

		for _, rec := range snapshot {
			if ctx.Err() != nil {
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// OverdueLoans lists active loans whose due date has passed.
func (s *service) OverdueLoans(ctx context.Context) []circulation.LoanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.opts.clock()
	out := make([]circulation.LoanRecord, 0)
	for _, l := range s.loans {
		if l.IsOverdue(now) {
			out = append(out, l.Record())
		}
	}
	return out
}

// CreateSale sells quantity units of a publication to a member.
func (s *service) CreateSale(ctx context.Context, memberID, code string, quantity int) (circulation.SaleRecord, error) {
	const op = "create_sale"
	ctx, span := s.start(ctx, op,
		attribute.String("member.id", memberID),
		attribute.String("publication.code", code),
		attribute.Int("sale.quantity", quantity),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.memberIndex[memberID]
	if !ok {
		return circulation.SaleRecord{}, s.refuse(ctx, span, op, domainerr.NotFound("member", memberID))
	}
	pub, ok := s.pubIndex[code]
	if !ok {
		return circulation.SaleRecord{}, s.refuse(ctx, span, op, domainerr.NotFound("publication", code))
	}

	now := s.opts.clock()
	id := s.nextSaleID

	probe := *pub
	trial, err := circulation.NewSale(id, member, &probe, quantity, now)
	if err != nil {
		return circulation.SaleRecord{}, s.refuse(ctx, span, op, err)
	}

	ev, err := s.newEvent(now, circulation.SaleAggregateType, strconv.Itoa(id), circulation.EventSaleCreated, circulation.SaleCreatedEvent{
		SaleID:          id,
		MemberID:        memberID,
		PublicationCode: code,
		Quantity:        quantity,
		Total:           trial.Total(),
	})
	if err != nil {
		return circulation.SaleRecord{}, s.refuse(ctx, span, op, err)
	}
	if err := s.record(ctx, ev); err != nil {
		return circulation.SaleRecord{}, s.refuse(ctx, span, op, err)
	}

	sale, err := circulation.NewSale(id, member, pub, quantity, now)
	if err != nil {
		return circulation.SaleRecord{}, s.refuse(ctx, span, op, err)
	}
	s.sales = append(s.sales, sale)
	s.nextSaleID++

	s.metrics.salesCreated.Add(ctx, 1)
	s.metrics.salesUnits.Add(ctx, int64(quantity))
	span.SetAttributes(attribute.Int("sale.id", id), attribute.Float64("sale.total", sale.Total()))
	s.logger.Info().
		Int("sale_id", id).
		Str("member_id", memberID).
		Str("code", code).
		Int("quantity", quantity).
		Float64("total", sale.Total()).
		Msg("sale created")
	return sale.Record(), nil
}

// ListSales yields sales in creation order.
func (s *service) ListSales(ctx context.Context) iter.Seq[circulation.SaleRecord] {
	return func(yield func(circulation.SaleRecord) bool) {
		s.mu.RLock()
		snapshot := make([]circulation.SaleRecord, len(s.sales))
		for i, sale := range s.sales {
			snapshot[i] = sale.Record()
		}
		s.mu.RUnlock()

		for _, rec := range snapshot {
			if ctx.Err() != nil {
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}
