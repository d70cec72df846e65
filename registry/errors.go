package registry

import (
	"errors"
	"fmt"

	"github.com/warp/rental-engine/booking"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidSubcategory = errors.New("invalid subcategory")
	ErrInvalidName        = errors.New("invalid name")

	// ErrNoProducts is returned when enumerating an owner with no products.
	ErrNoProducts = errors.New("owner has no products")

	// ErrJournal is returned when a command could not be made durable.
	// The command had no effect.
	ErrJournal = errors.New("journal write failed")

	// ErrCorruptJournal is returned by Restore when records do not replay
	// into a consistent state.
	ErrCorruptJournal = errors.New("corrupt journal")

	// Shared with the booking package so callers only need one import.
	ErrNotFound       = booking.ErrNotFound
	ErrNotOwner       = booking.ErrNotOwner
	ErrInvalidAddress = booking.ErrInvalidAddress
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ReplayError points at the journal record that could not be applied.
type ReplayError struct {
	Seq    uint64
	Kind   RecordKind
	Reason error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("corrupt journal at seq %d (%s): %v", e.Seq, e.Kind, e.Reason)
}

func (e *ReplayError) Unwrap() []error { return []error{ErrCorruptJournal, e.Reason} }

func journalError(err error) error {
	return fmt.Errorf("%w: %w", ErrJournal, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return booking.IsClientError(err) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidSubcategory) ||
		errors.Is(err, ErrInvalidName)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoProducts)
}
