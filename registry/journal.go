/*
journal.go - Write-ahead records of every committed command

PURPOSE:
  The registry is in-memory. To survive a restart every successful
  command is appended to a Journal before its effect becomes visible, and
  Restore rebuilds the registry by replaying the journal in Seq order.

APPEND-ONLY CONTRACT:
  - Append(): the only write, assigns Seq
  - Load(): every record, ascending Seq
  - NO Update() or Delete() methods exist

ORDERING:
  Registry-level records (products, complements) are appended under the
  registry lock. Reservation records are appended under the product's
  ledger lock. So records of one product are in commit order, which is
  all replay needs: ledgers of different products are independent.

REPLAY CHECKS:
  Ids are re-derived while replaying and compared with the recorded ones.
  Any gap, duplicate or failed re-application is a ReplayError wrapping
  ErrCorruptJournal.

IMPLEMENTATIONS:
  - registry/store/memory.go: In-memory for tests and dev
  - store/sqlite: SQLite
  - store/postgres: PostgreSQL (pgxpool)
*/
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/rental-engine/booking"
	"go.uber.org/zap"
)

type RecordKind string

const (
	KindProductRegistered    RecordKind = "product_registered"
	KindComplementAdded      RecordKind = "complement_added"
	KindReservationBooked    RecordKind = "reservation_booked"
	KindReservationCancelled RecordKind = "reservation_cancelled"
)

func (k RecordKind) Valid() bool {
	switch k {
	case KindProductRegistered, KindComplementAdded, KindReservationBooked, KindReservationCancelled:
		return true
	}
	return false
}

// Record is one committed command.
//
//	Kind                   ProductID  SubjectID       Actor   Name/Category        Start/Stop
//	product_registered     new id     new id          owner   name, category       -
//	complement_added       product    complement id   owner   name, subcategory    -
//	reservation_booked     product    reservation id  booker  -                    interval
//	reservation_cancelled  product    reservation id  booker  -                    interval
type Record struct {
	Seq        uint64
	Kind       RecordKind
	ProductID  uint64
	SubjectID  uint64
	Actor      booking.Address
	Name       string
	Category   Category
	Start      uint64
	Stop       uint64
	RecordedAt time.Time
}

// Journal persists records. Implementations must be safe for concurrent use.
type Journal interface {
	Append(ctx context.Context, rec Record) (Record, error)
	Load(ctx context.Context) ([]Record, error)
}

// ProductJournal is implemented by journals that can select one product's
// records without loading the whole journal.
type ProductJournal interface {
	LoadProduct(ctx context.Context, productID uint64) ([]Record, error)
}

// =============================================================================
// REPLAY
// =============================================================================

// Restore builds a registry from cfg and replays cfg.Journal into it.
// Nothing is appended to the journal while replaying.
func Restore(ctx context.Context, cfg Config) (*Registry, error) {
	r := New(cfg)
	if r.journal == nil {
		return r, nil
	}

	records, err := r.journal.Load(ctx)
	if err != nil {
		return nil, journalError(err)
	}

	r.replaying.Store(true)
	defer r.replaying.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if err := r.replayLocked(ctx, rec); err != nil {
			return nil, &ReplayError{Seq: rec.Seq, Kind: rec.Kind, Reason: err}
		}
	}

	r.log.Info("registry restored",
		zap.Int("records", len(records)),
		zap.Int("products", len(r.products)),
		zap.Int("complements", len(r.complements)),
	)
	return r, nil
}

func (r *Registry) replayLocked(ctx context.Context, rec Record) error {
	switch rec.Kind {
	case KindProductRegistered:
		if rec.ProductID != uint64(len(r.products)) {
			return fmt.Errorf("product id %d, expected %d", rec.ProductID, len(r.products))
		}
		if rec.Actor.IsZero() || !rec.Category.Valid() {
			return fmt.Errorf("invalid product %d", rec.ProductID)
		}
		r.applyProductLocked(rec.Actor, rec.Name, rec.Category)

	case KindComplementAdded:
		if rec.SubjectID != uint64(len(r.complements)) {
			return fmt.Errorf("complement id %d, expected %d", rec.SubjectID, len(r.complements))
		}
		if _, err := r.entryLocked(rec.ProductID); err != nil {
			return err
		}
		r.applyComplementLocked(rec.ProductID, rec.Category, rec.Name)

	case KindReservationBooked:
		e, err := r.entryLocked(rec.ProductID)
		if err != nil {
			return err
		}
		res, err := e.ledger.Book(ctx, rec.Actor, rec.Start, rec.Stop)
		if err != nil {
			return err
		}
		if uint64(res.ID) != rec.SubjectID {
			return fmt.Errorf("reservation id %d, expected %d", rec.SubjectID, res.ID)
		}

	case KindReservationCancelled:
		e, err := r.entryLocked(rec.ProductID)
		if err != nil {
			return err
		}
		if _, err := e.ledger.Cancel(ctx, rec.Actor, booking.ReservationID(rec.SubjectID)); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	return nil
}
