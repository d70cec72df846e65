/*
Package registry is the product catalog of the rental engine.

PURPOSE:
  Shops register products, attach complements to them and let customers
  book time on each product's calendar. The registry owns every counter
  and mapping (product ids, complement ids, owner balances, owner product
  lists) and routes bookings to the product's IntervalLedger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: Closed enumeration 0..4 for products and complements
  - Product: A registered item with an owning shop and a calendar
  - Complement: A named sub-item of a product (helmet, paddle, ...)
  - Receipt: What a successful command returns to its caller

LIFECYCLE:
  Product:     Unregistered -> Registered   (terminal, no burn)
  Complement:  created by the product owner, never destroyed
  Reservation: NonExistent -> Live -> Cancelled (see booking package)

SEE ALSO:
  - registry.go: Commands and queries
  - journal.go: Write-ahead records and replay
  - access.go: Administrator identity
  - ../booking: Per-product calendar
*/
package registry

import (
	"fmt"
	"unicode/utf8"

	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/event"
)

// =============================================================================
// CATEGORY
// =============================================================================

type Category uint8

// MaxCategory is the largest valid category and subcategory.
const MaxCategory Category = 4

func (c Category) Valid() bool { return c <= MaxCategory }

// MinRentTime is attached to every product at creation.
const MinRentTime = booking.DefaultBlockTime

// =============================================================================
// PRODUCT & COMPLEMENT
// =============================================================================

type Product struct {
	ID          uint64
	Owner       booking.Address
	Category    Category
	Name        string
	MinRentTime uint64
	// Ledger references the product's calendar, see Registry.Ledger.
	Ledger string
}

type Complement struct {
	ID          uint64
	ProductID   uint64
	Subcategory Category
	Name        string
}

// LedgerRef is the stable reference stored in Product.Ledger and carried
// by ProductCreated events.
func LedgerRef(productID uint64) string {
	return fmt.Sprintf("ledger:%d", productID)
}

// Receipt reports the id a command allocated or touched and the events it
// emitted, in emission order.
type Receipt struct {
	ID     uint64
	Events []event.Event
}

func validateName(name string) error {
	if name == "" || !utf8.ValidString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}
