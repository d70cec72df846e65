/*
ledger.go - Per-product reservation calendar

PURPOSE:
  The IntervalLedger owns one product's calendar. It is the only place
  reservations are created or released, and it is the single sequential
  authority for its product: Book and Cancel run one at a time, and each
  re-evaluates availability and mutates state as one indivisible step.

CRITICAL INVARIANTS:
  1. NO OVERLAP: Live reservations are pairwise disjoint ([start, stop)).
  2. BOUNDED: stop - start never exceeds the reservation limit.
  3. SINGLE HOLDER: Every live reservation has exactly one booker.
  4. DENSE IDS: Reservation ids are 0, 1, 2, ... and never reused.

LIVE INDEX:
  Live reservations are kept in a slice ordered by Start. Because live
  intervals are disjoint, the same order also sorts them by Stop, so the
  first live reservation with Stop > start is the only candidate for an
  overlap. Queries are O(log n); insert/remove are O(n) copies.

COMMIT HOOKS:
  A hook runs inside the critical section after every precondition
  passed and before anything is mutated. If it fails, the operation
  fails and the ledger is unchanged. The registry uses this to write the
  journal record ahead of the in-memory change.

EXAMPLE FLOW:
  1. Book [1000, 5000) by alice     -> reservation 0
  2. Book [4000, 6000) by bob       -> ErrSlotUnavailable (overlaps 0)
  3. Cancel 0 by bob                -> ErrNotOwner
  4. Cancel 0 by alice              -> ok, [1000, 5000) is free again
  5. Book [1000, 5000) by bob       -> reservation 1

SEE ALSO:
  - interval.go: Overlap test and validation
  - registry/registry.go: Routes product-level calls here
*/
package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CommitHook is invoked with a fully validated change before it is applied.
type CommitHook func(ctx context.Context, change Change) error

// AppliedHook is invoked after a change is applied, still under the ledger
// lock, so calls for one ledger arrive in commit order.
type AppliedHook func(ctx context.Context, change Change)

// Option configures an IntervalLedger.
type Option func(*IntervalLedger)

// WithBlockTime sets the product's minimum rent time.
func WithBlockTime(blockTime uint64) Option {
	return func(l *IntervalLedger) { l.blockTime = blockTime }
}

// WithLimit overrides ReservationLimit.
func WithLimit(limit uint64) Option {
	return func(l *IntervalLedger) { l.limit = limit }
}

// WithCommitHook installs a hook that can veto a change before it is applied.
func WithCommitHook(hook CommitHook) Option {
	return func(l *IntervalLedger) { l.hook = hook }
}

// WithAppliedHook installs a hook that observes every applied change.
func WithAppliedHook(hook AppliedHook) Option {
	return func(l *IntervalLedger) { l.applied = hook }
}

// =============================================================================
// INTERVAL LEDGER
// =============================================================================

type IntervalLedger struct {
	mu        sync.RWMutex
	productID uint64
	blockTime uint64
	limit     uint64
	hook      CommitHook
	applied   AppliedHook

	reservations []Reservation // indexed by ReservationID, never shrinks
	live         []ReservationID
	held         map[Address]uint64
}

// NewIntervalLedger creates an empty calendar for productID.
func NewIntervalLedger(productID uint64, opts ...Option) *IntervalLedger {
	l := &IntervalLedger{
		productID: productID,
		blockTime: DefaultBlockTime,
		limit:     ReservationLimit,
		held:      make(map[Address]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *IntervalLedger) ProductID() uint64        { return l.productID }
func (l *IntervalLedger) BlockTime() uint64        { return l.blockTime }
func (l *IntervalLedger) ReservationLimit() uint64 { return l.limit }

// =============================================================================
// QUERIES
// =============================================================================

// CheckAvailability reports whether [start, stop) is free.
func (l *IntervalLedger) CheckAvailability(start, stop uint64) (bool, error) {
	iv := Interval{Start: start, Stop: stop}
	if err := iv.Validate(l.limit); err != nil {
		return false, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	_, taken := l.conflictLocked(iv)
	return !taken, nil
}

// OwnerOf returns the booker of a live reservation, or ZeroAddress for ids
// that were never booked or have been cancelled.
func (l *IntervalLedger) OwnerOf(id ReservationID) Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.getLocked(id); ok && r.IsLive() {
		return r.Booker
	}
	return ZeroAddress
}

// Start returns the start timestamp of a reservation, 0 if never booked.
// Cancelled reservations keep their historical values.
func (l *IntervalLedger) Start(id ReservationID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, _ := l.getLocked(id)
	return r.Start
}

// Stop returns the stop timestamp of a reservation, 0 if never booked.
func (l *IntervalLedger) Stop(id ReservationID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, _ := l.getLocked(id)
	return r.Stop
}

// State distinguishes never-booked, live and cancelled ids.
func (l *IntervalLedger) State(id ReservationID) ReservationState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, _ := l.getLocked(id)
	return r.State
}

// Lookup returns the full reservation record, live or cancelled.
func (l *IntervalLedger) Lookup(id ReservationID) (Reservation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getLocked(id)
}

// LiveAt returns the live reservation starting exactly at start.
func (l *IntervalLedger) LiveAt(start uint64) (Reservation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.liveIndexAt(start)
	if !ok {
		return Reservation{}, false
	}
	return l.reservations[l.live[i]], true
}

// Live returns live reservations ordered by start.
func (l *IntervalLedger) Live() []Reservation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Reservation, len(l.live))
	for i, id := range l.live {
		out[i] = l.reservations[id]
	}
	return out
}

// BalanceOf returns how many live reservations addr holds.
func (l *IntervalLedger) BalanceOf(addr Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.held[addr.Normalize()]
}

// IsBooked reports whether any live reservation exists.
func (l *IntervalLedger) IsBooked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.live) > 0
}

// Count returns how many reservation ids have been allocated.
func (l *IntervalLedger) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.reservations))
}

// =============================================================================
// COMMANDS
// =============================================================================

// Book reserves [start, stop) for booker.
func (l *IntervalLedger) Book(ctx context.Context, booker Address, start, stop uint64) (Reservation, error) {
	booker = booker.Normalize()
	iv := Interval{Start: start, Stop: stop}
	if err := iv.Validate(l.limit); err != nil {
		return Reservation{}, err
	}
	if booker.IsZero() {
		return Reservation{}, fmt.Errorf("booker: %w", ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id, taken := l.conflictLocked(iv); taken {
		return Reservation{}, &ConflictError{
			Requested: iv,
			Existing:  id,
			Occupied:  l.reservations[id].Interval,
		}
	}

	res := Reservation{
		ID:        ReservationID(len(l.reservations)),
		ProductID: l.productID,
		Booker:    booker,
		Interval:  iv,
		State:     StateLive,
	}
	change := Change{Kind: ChangeBooked, Actor: booker, Reservation: res}
	if err := l.runHook(ctx, change); err != nil {
		return Reservation{}, err
	}

	l.reservations = append(l.reservations, res)
	l.insertLiveLocked(res)
	l.held[booker]++
	l.runApplied(ctx, change)
	return res, nil
}

// Cancel releases reservation id. Only its booker may cancel it.
func (l *IntervalLedger) Cancel(ctx context.Context, caller Address, id ReservationID) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.getLocked(id)
	if !ok || !r.IsLive() {
		return Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return l.cancelLocked(ctx, caller, r)
}

// CancelAt resolves the live reservation starting at start and cancels it,
// as one indivisible step.
func (l *IntervalLedger) CancelAt(ctx context.Context, caller Address, start uint64) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.liveIndexAt(start)
	if !ok {
		return Reservation{}, fmt.Errorf("reservation starting at %d: %w", start, ErrNotFound)
	}
	return l.cancelLocked(ctx, caller, l.reservations[l.live[i]])
}

func (l *IntervalLedger) cancelLocked(ctx context.Context, caller Address, r Reservation) (Reservation, error) {
	caller = caller.Normalize()
	if r.Booker != caller {
		return Reservation{}, &OwnershipError{ReservationID: r.ID, Caller: caller, Holder: r.Booker}
	}
	if err := l.runHook(ctx, Change{Kind: ChangeCancelled, Actor: caller, Reservation: r}); err != nil {
		return Reservation{}, err
	}

	r.State = StateCancelled
	l.reservations[r.ID] = r
	l.removeLiveLocked(r)
	if l.held[r.Booker] <= 1 {
		delete(l.held, r.Booker)
	} else {
		l.held[r.Booker]--
	}
	l.runApplied(ctx, Change{Kind: ChangeCancelled, Actor: caller, Reservation: r})
	return r, nil
}

func (l *IntervalLedger) runHook(ctx context.Context, c Change) error {
	if l.hook == nil {
		return nil
	}
	return l.hook(ctx, c)
}

func (l *IntervalLedger) runApplied(ctx context.Context, c Change) {
	if l.applied != nil {
		l.applied(ctx, c)
	}
}

// =============================================================================
// LIVE INDEX
// =============================================================================

func (l *IntervalLedger) getLocked(id ReservationID) (Reservation, bool) {
	if uint64(id) >= uint64(len(l.reservations)) {
		return Reservation{}, false
	}
	return l.reservations[id], true
}

// conflictLocked returns the live reservation overlapping iv, if any.
func (l *IntervalLedger) conflictLocked(iv Interval) (ReservationID, bool) {
	i := sort.Search(len(l.live), func(i int) bool {
		return l.reservations[l.live[i]].Stop > iv.Start
	})
	if i < len(l.live) && l.reservations[l.live[i]].Overlaps(iv) {
		return l.live[i], true
	}
	return 0, false
}

func (l *IntervalLedger) liveIndexAt(start uint64) (int, bool) {
	i := sort.Search(len(l.live), func(i int) bool {
		return l.reservations[l.live[i]].Start >= start
	})
	if i < len(l.live) && l.reservations[l.live[i]].Start == start {
		return i, true
	}
	return 0, false
}

func (l *IntervalLedger) insertLiveLocked(r Reservation) {
	i := sort.Search(len(l.live), func(i int) bool {
		return l.reservations[l.live[i]].Start > r.Start
	})
	l.live = append(l.live, 0)
	copy(l.live[i+1:], l.live[i:])
	l.live[i] = r.ID
}

func (l *IntervalLedger) removeLiveLocked(r Reservation) {
	i, ok := l.liveIndexAt(r.Start)
	if !ok || l.live[i] != r.ID {
		return
	}
	l.live = append(l.live[:i], l.live[i+1:]...)
}
