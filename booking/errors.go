/*
errors.go - Error taxonomy for the booking ledger

PURPOSE:
  All ledger errors in one place. The registry reuses the same sentinels
  (NotFound, NotOwner, InvalidAddress) so callers can test with errors.Is
  regardless of which layer rejected the call.

ERROR CATEGORIES:
  1. Interval errors - malformed or too long windows
  2. Conflict errors - window overlaps a live reservation
  3. Access errors   - unknown reservation, wrong holder, null identity

USAGE:
  if errors.Is(err, booking.ErrSlotUnavailable) {
      // retry with a different window
  }

SEE ALSO:
  - ledger.go: Returns these errors
  - registry/errors.go: Registry-level additions
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInterval is returned when stop <= start.
	ErrInvalidInterval = errors.New("invalid interval: stop must be after start")

	// ErrDurationExceeded is returned when stop - start exceeds the reservation limit.
	ErrDurationExceeded = errors.New("reservation duration exceeds limit")

	// ErrSlotUnavailable is returned when the interval overlaps a live reservation.
	ErrSlotUnavailable = errors.New("time slot unavailable")

	// ErrNotFound is returned for ids that do not reference a live record.
	ErrNotFound = errors.New("not found")

	// ErrNotOwner is returned when the caller does not hold the record.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrInvalidAddress is returned when a null identity is supplied.
	ErrInvalidAddress = errors.New("invalid address")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// IntervalError describes a rejected interval shape.
type IntervalError struct {
	Interval Interval
	Limit    uint64
	err      error
}

func (e *IntervalError) Error() string {
	if errors.Is(e.err, ErrDurationExceeded) {
		return fmt.Sprintf("%v: %s lasts %d, limit %d", e.err, e.Interval, e.Interval.Duration(), e.Limit)
	}
	return fmt.Sprintf("%v: %s", e.err, e.Interval)
}

func (e *IntervalError) Unwrap() error { return e.err }

// ConflictError names the live reservation that blocks a booking.
type ConflictError struct {
	Requested Interval
	Existing  ReservationID
	Occupied  Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time slot unavailable: %s overlaps reservation %d %s",
		e.Requested, e.Existing, e.Occupied)
}

func (e *ConflictError) Unwrap() error { return ErrSlotUnavailable }

// OwnershipError reports a holder mismatch on a reservation.
type OwnershipError struct {
	ReservationID ReservationID
	Caller        Address
	Holder        Address
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("caller %s does not hold reservation %d", e.Caller, e.ReservationID)
}

func (e *OwnershipError) Unwrap() error { return ErrNotOwner }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrDurationExceeded) ||
		errors.Is(err, ErrInvalidAddress)
}

// IsConflict returns true if a retry with a different interval might succeed.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotUnavailable)
}
