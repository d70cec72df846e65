/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the registry's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

UNSIGNED VALUES:
  Ids and timestamps are uint64 in the domain. JSON numbers lose
  precision above 2^53 in many clients, so timestamps are also accepted
  as strings ("1000") on input via flexUint.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/event"
	"github.com/warp/rental-engine/registry"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type RegisterProductRequest struct {
	Name     string `json:"name"`
	Category uint8  `json:"category"`
}

type AddComplementRequest struct {
	Name        string `json:"name"`
	Subcategory uint8  `json:"subcategory"`
}

type BookRequest struct {
	Start flexUint `json:"start"`
	Stop  flexUint `json:"stop"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// flexUint accepts 42 and "42".
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not an unsigned integer: %s", b)
	}
	*f = flexUint(v)
	return nil
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type InfoDTO struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Admin            string `json:"admin"`
	ProductsCount    uint64 `json:"products_count"`
	ReservationLimit uint64 `json:"reservation_limit"`
	MinRentTime      uint64 `json:"min_rent_time"`
}

type ProductDTO struct {
	ID               uint64 `json:"id"`
	Owner            string `json:"owner"`
	Category         uint8  `json:"category"`
	Name             string `json:"name"`
	MinRentTime      uint64 `json:"min_rent_time"`
	Ledger           string `json:"ledger"`
	TokenURI         string `json:"token_uri"`
	ComplementsCount uint64 `json:"complements_count"`
	IsBooked         bool   `json:"is_booked"`
}

type ComplementDTO struct {
	ID          uint64 `json:"id"`
	ProductID   uint64 `json:"product_id"`
	Subcategory uint8  `json:"subcategory"`
	Name        string `json:"name"`
}

type ReservationDTO struct {
	ID        uint64 `json:"id"`
	ProductID uint64 `json:"product_id"`
	Booker    string `json:"booker"`
	Start     uint64 `json:"start"`
	Stop      uint64 `json:"stop"`
	State     string `json:"state"`
	Days      string `json:"days"`
	Blocks    string `json:"blocks"`
}

type AvailabilityDTO struct {
	ProductID uint64 `json:"product_id"`
	Start     uint64 `json:"start"`
	Stop      uint64 `json:"stop"`
	Available bool   `json:"available"`
}

type BalanceDTO struct {
	Owner   string `json:"owner"`
	Balance uint64 `json:"balance"`
}

type ShopProductsDTO struct {
	Owner    string   `json:"owner"`
	Products []uint64 `json:"products"`
}

type EventDTO struct {
	Type    event.Type      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReceiptResponse is returned by every command.
type ReceiptResponse struct {
	ID     uint64     `json:"id"`
	Events []EventDTO `json:"events"`
}

type RecordDTO struct {
	Seq        uint64 `json:"seq"`
	Kind       string `json:"kind"`
	ProductID  uint64 `json:"product_id"`
	SubjectID  uint64 `json:"subject_id"`
	Actor      string `json:"actor"`
	Name       string `json:"name,omitempty"`
	Category   uint8  `json:"category"`
	Start      uint64 `json:"start,omitempty"`
	Stop       uint64 `json:"stop,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toComplementDTO(c registry.Complement) ComplementDTO {
	return ComplementDTO{
		ID:          c.ID,
		ProductID:   c.ProductID,
		Subcategory: uint8(c.Subcategory),
		Name:        c.Name,
	}
}

func toReservationDTO(r booking.Reservation, blockTime uint64) ReservationDTO {
	return ReservationDTO{
		ID:        uint64(r.ID),
		ProductID: r.ProductID,
		Booker:    r.Booker.String(),
		Start:     r.Start,
		Stop:      r.Stop,
		State:     r.State.String(),
		Days:      r.Days().String(),
		Blocks:    r.Blocks(blockTime).String(),
	}
}

func toReceiptResponse(rc registry.Receipt) (ReceiptResponse, error) {
	resp := ReceiptResponse{ID: rc.ID, Events: make([]EventDTO, 0, len(rc.Events))}
	for _, e := range rc.Events {
		payload, err := json.Marshal(e)
		if err != nil {
			return ReceiptResponse{}, err
		}
		resp.Events = append(resp.Events, EventDTO{Type: e.EventType(), Payload: payload})
	}
	return resp, nil
}

func toRecordDTO(r registry.Record) RecordDTO {
	return RecordDTO{
		Seq:        r.Seq,
		Kind:       string(r.Kind),
		ProductID:  r.ProductID,
		SubjectID:  r.SubjectID,
		Actor:      r.Actor.String(),
		Name:       r.Name,
		Category:   uint8(r.Category),
		Start:      r.Start,
		Stop:       r.Stop,
		RecordedAt: r.RecordedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
