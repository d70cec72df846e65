/*
registry.go - Product catalog, ownership bookkeeping and booking routing

PURPOSE:
  The Registry is the single authority over products and complements and
  the entry point for bookings. It owns:
    - the product table (arena of ledgers indexed by product id)
    - the global complement table
    - owner -> ordered product ids (balance is its length)

CRITICAL INVARIANTS:
  1. DENSE IDS: product ids and complement ids are 0..N-1, never reused
  2. BALANCE: BalanceOf(owner) == number of products whose Owner is owner
  3. NO PARTIAL EFFECT: every precondition and the journal append happen
     before any counter or table is touched

LOCKING:
  Registry-level commands take mu for writing. Bookings only take mu for
  reading to find the ledger, then the ledger serializes itself. So two
  products never wait on each other's bookings.

COMMIT ORDER (every command):
  1. validate arguments
  2. lock
  3. check state-dependent preconditions
  4. append journal record (failure -> ErrJournal, nothing changed)
  5. mutate
  6. publish events to the sink (failure is only logged), then unlock

  Publishing before unlock means a sink sees the events of one product in
  commit order. Bookings publish from the ledger's applied hook.

EXAMPLE:
  reg := registry.New(registry.Config{Admin: "0xadmin"})
  rc, _ := reg.RegisterProduct(ctx, "0xshop", "Kayak", 2)       // rc.ID == 0
  rc, _ = reg.Book(ctx, "0xcustomer", 0, 1000, 1000+3*86400)    // rc.ID == 0
  _, err := reg.Cancel(ctx, "0xother", 0, 1000)                  // ErrNotOwner

SEE ALSO:
  - journal.go: Records and Restore
  - ../booking/ledger.go: Per-product calendar
  - ../event: Emitted payloads
*/
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/event"
	"go.uber.org/zap"
)

const (
	DefaultName    = "Kibiwoo"
	DefaultSymbol  = "KIBI"
	DefaultBaseURI = "/api/products"
)

// Config is fixed at construction.
type Config struct {
	Admin   booking.Address
	Name    string
	Symbol  string
	BaseURI string

	// Journal makes commands durable. A nil Journal keeps state in memory only.
	Journal Journal
	// Sink receives events after commit. Nil discards them.
	Sink   event.Sink
	Logger *zap.Logger

	// Now stamps journal records. Defaults to time.Now.
	Now func() time.Time
}

type productEntry struct {
	Product
	ledger      *booking.IntervalLedger
	complements uint64
}

type Registry struct {
	mu sync.RWMutex

	name    string
	symbol  string
	baseURI string
	access  AccessController
	journal Journal
	sink    event.Sink
	log     *zap.Logger
	now     func() time.Time

	replaying atomic.Bool

	products    []*productEntry
	complements []Complement
	owned       map[booking.Address][]uint64
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	r := &Registry{
		name:    cfg.Name,
		symbol:  cfg.Symbol,
		baseURI: strings.TrimRight(cfg.BaseURI, "/"),
		access:  NewAccessController(cfg.Admin),
		journal: cfg.Journal,
		sink:    cfg.Sink,
		log:     cfg.Logger,
		now:     cfg.Now,
		owned:   make(map[booking.Address][]uint64),
	}
	if r.name == "" {
		r.name = DefaultName
	}
	if r.symbol == "" {
		r.symbol = DefaultSymbol
	}
	if r.baseURI == "" {
		r.baseURI = DefaultBaseURI
	}
	if r.sink == nil {
		r.sink = event.Discard{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Registry) Name() string                   { return r.name }
func (r *Registry) Symbol() string                 { return r.symbol }
func (r *Registry) Admin() booking.Address         { return r.access.Admin() }
func (r *Registry) IsAdmin(a booking.Address) bool { return r.access.IsAdmin(a) }

// =============================================================================
// COMMANDS
// =============================================================================

// RegisterProduct mints a new product to owner and gives it an empty
// calendar. Emits Transfer{from: zero, to: owner} then ProductCreated.
func (r *Registry) RegisterProduct(ctx context.Context, owner booking.Address, name string, category Category) (Receipt, error) {
	owner = owner.Normalize()
	if !category.Valid() {
		return Receipt{}, fmt.Errorf("category %d: %w", category, ErrInvalidCategory)
	}
	if err := validateName(name); err != nil {
		return Receipt{}, err
	}
	if owner.IsZero() {
		return Receipt{}, fmt.Errorf("owner: %w", ErrInvalidAddress)
	}

	r.mu.Lock()
	id := uint64(len(r.products))
	if err := r.record(ctx, Record{
		Kind:      KindProductRegistered,
		ProductID: id,
		SubjectID: id,
		Actor:     owner,
		Name:      name,
		Category:  category,
	}); err != nil {
		r.mu.Unlock()
		return Receipt{}, err
	}
	e := r.applyProductLocked(owner, name, category)

	events := []event.Event{
		event.Transfer{From: booking.ZeroAddress, To: owner, ID: e.ID},
		event.ProductCreated{ID: e.ID, Category: uint8(category), Name: name, Ledger: e.Ledger},
	}
	r.publish(ctx, events)
	r.mu.Unlock()

	r.log.Debug("product registered",
		zap.Uint64("product_id", e.ID),
		zap.Stringer("owner", owner),
		zap.Uint8("category", uint8(category)),
	)
	return Receipt{ID: e.ID, Events: events}, nil
}

// AddComplement attaches a complement to a product. Only the product owner
// may do so. Complement ids come from one counter shared by all products.
func (r *Registry) AddComplement(ctx context.Context, caller booking.Address, productID uint64, subcategory Category, name string) (Receipt, error) {
	caller = caller.Normalize()
	r.mu.Lock()
	e, err := r.entryLocked(productID)
	if err != nil {
		r.mu.Unlock()
		return Receipt{}, err
	}
	if e.Owner != caller {
		r.mu.Unlock()
		return Receipt{}, fmt.Errorf("product %d owned by %s, caller %s: %w", productID, e.Owner, caller, ErrNotOwner)
	}
	if !subcategory.Valid() {
		r.mu.Unlock()
		return Receipt{}, fmt.Errorf("subcategory %d: %w", subcategory, ErrInvalidSubcategory)
	}
	if err := validateName(name); err != nil {
		r.mu.Unlock()
		return Receipt{}, err
	}

	id := uint64(len(r.complements))
	if err := r.record(ctx, Record{
		Kind:      KindComplementAdded,
		ProductID: productID,
		SubjectID: id,
		Actor:     caller,
		Name:      name,
		Category:  subcategory,
	}); err != nil {
		r.mu.Unlock()
		return Receipt{}, err
	}
	c := r.applyComplementLocked(productID, subcategory, name)

	events := []event.Event{event.ComplementCreated{
		ProductID:    productID,
		ComplementID: c.ID,
		Subcategory:  uint8(subcategory),
		Name:         name,
	}}
	r.publish(ctx, events)
	r.mu.Unlock()

	r.log.Debug("complement added", zap.Uint64("product_id", productID), zap.Uint64("complement_id", c.ID))
	return Receipt{ID: c.ID, Events: events}, nil
}

// Book reserves [start, stop) on the product's calendar for caller.
// Returns the reservation id in Receipt.ID.
func (r *Registry) Book(ctx context.Context, caller booking.Address, productID, start, stop uint64) (Receipt, error) {
	l, err := r.Ledger(productID)
	if err != nil {
		return Receipt{}, err
	}
	res, err := l.Book(ctx, caller, start, stop)
	if err != nil {
		return Receipt{}, err
	}

	r.log.Debug("reservation booked",
		zap.Uint64("product_id", productID),
		zap.Uint64("reservation_id", uint64(res.ID)),
		zap.Stringer("interval", res.Interval),
	)
	return Receipt{ID: uint64(res.ID), Events: changeEvents(booking.Change{Kind: booking.ChangeBooked, Reservation: res})}, nil
}

// Cancel releases the live reservation of productID that starts at start.
func (r *Registry) Cancel(ctx context.Context, caller booking.Address, productID, start uint64) (Receipt, error) {
	l, err := r.Ledger(productID)
	if err != nil {
		return Receipt{}, err
	}
	res, err := l.CancelAt(ctx, caller, start)
	if err != nil {
		return Receipt{}, err
	}
	return r.cancelled(res), nil
}

// CancelByID releases reservation id of productID.
func (r *Registry) CancelByID(ctx context.Context, caller booking.Address, productID uint64, id booking.ReservationID) (Receipt, error) {
	l, err := r.Ledger(productID)
	if err != nil {
		return Receipt{}, err
	}
	res, err := l.Cancel(ctx, caller, id)
	if err != nil {
		return Receipt{}, err
	}
	return r.cancelled(res), nil
}

func (r *Registry) cancelled(res booking.Reservation) Receipt {
	r.log.Debug("reservation cancelled",
		zap.Uint64("product_id", res.ProductID),
		zap.Uint64("reservation_id", uint64(res.ID)),
	)
	return Receipt{ID: uint64(res.ID), Events: changeEvents(booking.Change{Kind: booking.ChangeCancelled, Reservation: res})}
}

// =============================================================================
// QUERIES
// =============================================================================

func (r *Registry) OwnerOf(productID uint64) (booking.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.entryLocked(productID)
	if err != nil {
		return booking.ZeroAddress, err
	}
	return e.Owner, nil
}

func (r *Registry) BalanceOf(owner booking.Address) (uint64, error) {
	owner = owner.Normalize()
	if owner.IsZero() {
		return 0, fmt.Errorf("balance query: %w", ErrInvalidAddress)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.owned[owner])), nil
}

// ProductsByShop returns the ids owned by owner in registration order.
func (r *Registry) ProductsByShop(owner booking.Address) ([]uint64, error) {
	owner = owner.Normalize()
	if owner.IsZero() {
		return nil, fmt.Errorf("products query: %w", ErrInvalidAddress)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.owned[owner]
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s: %w", owner, ErrNoProducts)
	}
	return append([]uint64(nil), ids...), nil
}

func (r *Registry) ComplementsCount(productID uint64) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.entryLocked(productID)
	if err != nil {
		return 0, err
	}
	return e.complements, nil
}

func (r *Registry) ProductOfComplement(complementID uint64) (uint64, error) {
	c, err := r.Complement(complementID)
	if err != nil {
		return 0, err
	}
	return c.ProductID, nil
}

func (r *Registry) CheckAvailability(productID, start, stop uint64) (bool, error) {
	l, err := r.Ledger(productID)
	if err != nil {
		return false, err
	}
	return l.CheckAvailability(start, stop)
}

func (r *Registry) TokenURI(productID uint64) (string, error) {
	if _, err := r.Product(productID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d", r.baseURI, productID), nil
}

func (r *Registry) ProductsCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.products))
}

func (r *Registry) Product(productID uint64) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.entryLocked(productID)
	if err != nil {
		return Product{}, err
	}
	return e.Product, nil
}

func (r *Registry) Complement(complementID uint64) (Complement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if complementID >= uint64(len(r.complements)) {
		return Complement{}, fmt.Errorf("complement %d: %w", complementID, ErrNotFound)
	}
	return r.complements[complementID], nil
}

// Ledger returns the calendar of productID.
func (r *Registry) Ledger(productID uint64) (*booking.IntervalLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.entryLocked(productID)
	if err != nil {
		return nil, err
	}
	return e.ledger, nil
}

// IsBooked reports whether the product has at least one live reservation.
func (r *Registry) IsBooked(productID uint64) (bool, error) {
	l, err := r.Ledger(productID)
	if err != nil {
		return false, err
	}
	return l.IsBooked(), nil
}

// Reservations returns the product's live reservations ordered by start.
func (r *Registry) Reservations(productID uint64) ([]booking.Reservation, error) {
	l, err := r.Ledger(productID)
	if err != nil {
		return nil, err
	}
	return l.Live(), nil
}

// Reservation looks up any reservation ever booked on the product,
// including cancelled ones.
func (r *Registry) Reservation(productID uint64, id booking.ReservationID) (booking.Reservation, error) {
	l, err := r.Ledger(productID)
	if err != nil {
		return booking.Reservation{}, err
	}
	res, ok := l.Lookup(id)
	if !ok {
		return booking.Reservation{}, fmt.Errorf("reservation %d of product %d: %w", id, productID, ErrNotFound)
	}
	return res, nil
}

// Records dumps the journal. Administrator only.
func (r *Registry) Records(ctx context.Context, caller booking.Address) ([]Record, error) {
	if !r.access.IsAdmin(caller) {
		return nil, fmt.Errorf("records: caller %s is not admin: %w", caller, ErrNotOwner)
	}
	if r.journal == nil {
		return []Record{}, nil
	}
	recs, err := r.journal.Load(ctx)
	if err != nil {
		return nil, journalError(err)
	}
	return recs, nil
}

// ProductRecords returns the journal records of one product. Administrator
// only.
func (r *Registry) ProductRecords(ctx context.Context, caller booking.Address, productID uint64) ([]Record, error) {
	if !r.access.IsAdmin(caller) {
		return nil, fmt.Errorf("records: caller %s is not admin: %w", caller, ErrNotOwner)
	}
	r.mu.RLock()
	_, err := r.entryLocked(productID)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if r.journal == nil {
		return []Record{}, nil
	}

	if pj, ok := r.journal.(ProductJournal); ok {
		recs, err := pj.LoadProduct(ctx, productID)
		if err != nil {
			return nil, journalError(err)
		}
		return recs, nil
	}

	all, err := r.journal.Load(ctx)
	if err != nil {
		return nil, journalError(err)
	}
	recs := []Record{}
	for _, rec := range all {
		if rec.ProductID == productID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (r *Registry) entryLocked(productID uint64) (*productEntry, error) {
	if productID >= uint64(len(r.products)) {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	return r.products[productID], nil
}

func (r *Registry) applyProductLocked(owner booking.Address, name string, category Category) *productEntry {
	owner = owner.Normalize()
	id := uint64(len(r.products))
	e := &productEntry{
		Product: Product{
			ID:          id,
			Owner:       owner,
			Category:    category,
			Name:        name,
			MinRentTime: MinRentTime,
			Ledger:      LedgerRef(id),
		},
		ledger: booking.NewIntervalLedger(id,
			booking.WithBlockTime(MinRentTime),
			booking.WithCommitHook(r.ledgerHook(id)),
			booking.WithAppliedHook(r.ledgerApplied),
		),
	}
	r.products = append(r.products, e)
	r.owned[owner] = append(r.owned[owner], id)
	return e
}

func (r *Registry) applyComplementLocked(productID uint64, subcategory Category, name string) Complement {
	c := Complement{
		ID:          uint64(len(r.complements)),
		ProductID:   productID,
		Subcategory: subcategory,
		Name:        name,
	}
	r.complements = append(r.complements, c)
	r.products[productID].complements++
	return c
}

// ledgerHook journals a reservation change while the ledger is locked.
func (r *Registry) ledgerHook(productID uint64) booking.CommitHook {
	return func(ctx context.Context, c booking.Change) error {
		if r.replaying.Load() {
			return nil
		}
		kind := KindReservationBooked
		if c.Kind == booking.ChangeCancelled {
			kind = KindReservationCancelled
		}
		return r.record(ctx, Record{
			Kind:      kind,
			ProductID: productID,
			SubjectID: uint64(c.Reservation.ID),
			Actor:     c.Actor,
			Start:     c.Reservation.Start,
			Stop:      c.Reservation.Stop,
		})
	}
}

// ledgerApplied publishes a reservation change while the ledger is locked,
// so the sink sees one product's bookings in commit order.
func (r *Registry) ledgerApplied(ctx context.Context, c booking.Change) {
	if r.replaying.Load() {
		return
	}
	r.publish(ctx, changeEvents(c))
}

func changeEvents(c booking.Change) []event.Event {
	res := c.Reservation
	if c.Kind == booking.ChangeCancelled {
		return []event.Event{event.BookingCancelled{ProductID: res.ProductID, ReservationID: res.ID}}
	}
	return []event.Event{event.BookingCreated{
		ProductID:     res.ProductID,
		Booker:        res.Booker,
		ReservationID: res.ID,
		Start:         res.Start,
		Stop:          res.Stop,
	}}
}

func (r *Registry) record(ctx context.Context, rec Record) error {
	if r.journal == nil || r.replaying.Load() {
		return nil
	}
	rec.RecordedAt = r.now().UTC()
	if _, err := r.journal.Append(ctx, rec); err != nil {
		r.log.Error("journal append failed",
			zap.String("kind", string(rec.Kind)),
			zap.Uint64("product_id", rec.ProductID),
			zap.Error(err),
		)
		return journalError(err)
	}
	return nil
}

func (r *Registry) publish(ctx context.Context, events []event.Event) {
	if err := r.sink.Publish(ctx, events...); err != nil {
		r.log.Warn("event publish failed", zap.Int("events", len(events)), zap.Error(err))
	}
}
