/*
Package event defines what the registry tells the outside world.

PURPOSE:
  Every successful command produces one or more events. They are returned
  to the caller in a receipt and published to a Sink for external
  observers and indexers (Kafka topic, Redis stream, in-memory recorder).

EVENTS:
  ProductCreated     {id, category, name, ledger}
  Transfer           {from, to, id}          ownership mint of a product
  ComplementCreated  {productId, complementId, subcategory, name}
  BookingCreated     {booker, reservationId, start, stop}
  BookingCancelled   {reservationId}

WIRE FORMAT:
  Sinks that leave the process wrap events in an Envelope carrying a
  unique event id, the event type, the product it concerns and the raw
  JSON payload. The product id is also the partition key, so all events
  of one product stay ordered on a partitioned transport.

SEE ALSO:
  - sink.go: Sink interface and in-process sinks
  - kafka.go, redis.go: Out-of-process sinks
*/
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/rental-engine/booking"
)

type Type string

const (
	TypeProductCreated    Type = "ProductCreated"
	TypeTransfer          Type = "Transfer"
	TypeComplementCreated Type = "ComplementCreated"
	TypeBookingCreated    Type = "BookingCreated"
	TypeBookingCancelled  Type = "BookingCancelled"
)

// Event is implemented by every payload type.
type Event interface {
	EventType() Type
	// ProductKey is the product the event concerns, used for partitioning.
	ProductKey() uint64
}

// =============================================================================
// PAYLOADS
// =============================================================================

type ProductCreated struct {
	ID       uint64 `json:"id"`
	Category uint8  `json:"category"`
	Name     string `json:"name"`
	Ledger   string `json:"ledger"`
}

func (e ProductCreated) EventType() Type    { return TypeProductCreated }
func (e ProductCreated) ProductKey() uint64 { return e.ID }

// Transfer records product ownership changes. From is zero on mint.
type Transfer struct {
	From booking.Address `json:"from"`
	To   booking.Address `json:"to"`
	ID   uint64          `json:"id"`
}

func (e Transfer) EventType() Type    { return TypeTransfer }
func (e Transfer) ProductKey() uint64 { return e.ID }

type ComplementCreated struct {
	ProductID    uint64 `json:"product_id"`
	ComplementID uint64 `json:"complement_id"`
	Subcategory  uint8  `json:"subcategory"`
	Name         string `json:"name"`
}

func (e ComplementCreated) EventType() Type    { return TypeComplementCreated }
func (e ComplementCreated) ProductKey() uint64 { return e.ProductID }

type BookingCreated struct {
	ProductID     uint64                `json:"product_id"`
	Booker        booking.Address       `json:"booker"`
	ReservationID booking.ReservationID `json:"reservation_id"`
	Start         uint64                `json:"start"`
	Stop          uint64                `json:"stop"`
}

func (e BookingCreated) EventType() Type    { return TypeBookingCreated }
func (e BookingCreated) ProductKey() uint64 { return e.ProductID }

type BookingCancelled struct {
	ProductID     uint64                `json:"product_id"`
	ReservationID booking.ReservationID `json:"reservation_id"`
}

func (e BookingCancelled) EventType() Type    { return TypeBookingCancelled }
func (e BookingCancelled) ProductKey() uint64 { return e.ProductID }

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the transport form of an event.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  Type            `json:"event_type"`
	ProductID  uint64          `json:"product_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap encodes e into an envelope with a fresh event id.
func Wrap(producer string, e Event, at time.Time) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", e.EventType(), err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  e.EventType(),
		ProductID:  e.ProductKey(),
		OccurredAt: at.UTC(),
		Producer:   producer,
		Payload:    payload,
	}, nil
}

// Decode turns an envelope payload back into its typed event.
func (env Envelope) Decode() (Event, error) {
	var (
		e   Event
		err error
	)
	switch env.EventType {
	case TypeProductCreated:
		e, err = decodeAs[ProductCreated](env.Payload)
	case TypeTransfer:
		e, err = decodeAs[Transfer](env.Payload)
	case TypeComplementCreated:
		e, err = decodeAs[ComplementCreated](env.Payload)
	case TypeBookingCreated:
		e, err = decodeAs[BookingCreated](env.Payload)
	case TypeBookingCancelled:
		e, err = decodeAs[BookingCancelled](env.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.EventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return e, nil
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
