/*
Package booking provides the per-product reservation calendar.

PURPOSE:
  Every registered product owns exactly one IntervalLedger. The ledger
  answers "is this interval free?" and reserves or releases intervals
  under a maximum-duration rule. Reservations are tokenized: each one has
  exactly one holder (the booker), and only the booker may cancel it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Address: Opaque identity of a shop, customer or administrator
  - Interval: Half-open time window [Start, Stop) in seconds
  - Reservation: A booked interval with an id and a holder
  - Change: A mutation handed to commit hooks before it is applied

DESIGN PRINCIPLES:
  1. Half-open intervals: [a, b) and [b, c) never overlap
  2. Ids are never reused: a cancelled reservation keeps its id forever
  3. All-or-nothing: a failed precondition leaves the ledger untouched

USAGE:
  l := booking.NewIntervalLedger(0)
  res, err := l.Book(ctx, "0xcustomer", 1000, 1000+3*86400)

SEE ALSO:
  - ledger.go: IntervalLedger operations
  - interval.go: Interval arithmetic and overlap test
  - errors.go: Error taxonomy
*/
package booking

import "strings"

// =============================================================================
// TIME CONSTANTS
// =============================================================================

const (
	// Day is one day expressed in ledger time units (seconds).
	Day uint64 = 24 * 60 * 60

	// ReservationLimit is the longest interval a single reservation may span.
	ReservationLimit uint64 = 60 * Day

	// DefaultBlockTime is the minimum rent time attached to every product.
	DefaultBlockTime uint64 = 3600
)

// =============================================================================
// ADDRESS
// =============================================================================

// Address identifies a participant. Comparison is case-insensitive for
// hex-encoded addresses, so values are normalized by NewAddress.
type Address string

// ZeroAddress is the null identity. It never owns products or reservations.
const ZeroAddress Address = ""

// NewAddress trims and lower-cases a textual address.
func NewAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// IsZero reports whether a is the null identity, including the all-zero
// hex form ("0x000...0").
func (a Address) IsZero() bool {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return true
	}
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return strings.Trim(s, "0") == ""
}

func (a Address) String() string { return string(a) }

// Normalize returns a in the canonical form produced by NewAddress.
func (a Address) Normalize() Address { return NewAddress(string(a)) }

// =============================================================================
// RESERVATION
// =============================================================================

type ReservationID uint64

type ReservationState int

const (
	StateNonExistent ReservationState = iota
	StateLive
	StateCancelled
)

func (s ReservationState) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateCancelled:
		return "cancelled"
	default:
		return "non_existent"
	}
}

// Reservation is a tokenized claim on an interval of one product's calendar.
type Reservation struct {
	ID        ReservationID
	ProductID uint64
	Booker    Address
	Interval
	State ReservationState
}

// IsLive reports whether the reservation currently occupies its interval.
func (r Reservation) IsLive() bool { return r.State == StateLive }

// =============================================================================
// CHANGE - Mutation handed to commit hooks
// =============================================================================

type ChangeKind string

const (
	ChangeBooked    ChangeKind = "booked"
	ChangeCancelled ChangeKind = "cancelled"
)

// Change describes a ledger mutation that passed every precondition and is
// about to be applied. Hooks receive it while the ledger is still locked.
type Change struct {
	Kind        ChangeKind
	Actor       Address
	Reservation Reservation
}
