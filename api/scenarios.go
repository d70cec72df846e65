/*
scenarios.go - Demo catalog loaders

PURPOSE:
  Populates an empty registry with data for demos and manual testing.
  Scenarios only use registry commands, so everything they create is
  journaled and published like any other command.

AVAILABLE SCENARIOS:
  demo-catalog:   16 products "Producto0".."Producto15", category 0,
                  created only when the registry has no products
  beach-rentals:  One shop with kayaks, boards and bikes, complements and
                  a few bookings starting tomorrow

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "demo-catalog"}

  The X-Caller-Address header, when present, becomes the shop owner.

SEE ALSO:
  - handlers.go: Shared helpers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/registry"
)

const (
	DemoShop      = booking.Address("0xdemoshop")
	DemoCustomerA = booking.Address("0xdemocustomer1")
	DemoCustomerB = booking.Address("0xdemocustomer2")

	demoCatalogSize = 16
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo-catalog",
		Name:        "Demo Catalog",
		Description: "Sixteen category-0 products, created only on an empty registry",
	},
	{
		ID:          "beach-rentals",
		Name:        "Beach Rentals",
		Description: "Kayaks, boards and bikes with complements and upcoming bookings",
	},
}

// ScenarioResult reports what a scenario created.
type ScenarioResult struct {
	ScenarioID   string   `json:"scenario_id"`
	Products     []uint64 `json:"products"`
	Complements  []uint64 `json:"complements"`
	Reservations int      `json:"reservations"`
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	owner := caller(r)
	if owner.IsZero() {
		owner = DemoShop
	}

	var (
		res ScenarioResult
		err error
	)
	switch req.ScenarioID {
	case "demo-catalog":
		res, err = LoadDemoCatalog(r.Context(), h.Registry, owner)
	case "beach-rentals":
		res, err = LoadBeachRentals(r.Context(), h.Registry, owner, time.Now())
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%q", req.ScenarioID))
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// LOADERS
// =============================================================================

// seedMu serializes demo catalog loads within the process. Registrations
// made by other callers can still interleave with a seed.
var seedMu sync.Mutex

// LoadDemoCatalog registers Producto0..Producto15 to owner if the registry
// is empty, and does nothing otherwise.
func LoadDemoCatalog(ctx context.Context, reg *registry.Registry, owner booking.Address) (ScenarioResult, error) {
	seedMu.Lock()
	defer seedMu.Unlock()

	res := ScenarioResult{ScenarioID: "demo-catalog", Products: []uint64{}, Complements: []uint64{}}
	if reg.ProductsCount() != 0 {
		return res, nil
	}
	for i := 0; i < demoCatalogSize; i++ {
		rc, err := reg.RegisterProduct(ctx, owner, fmt.Sprintf("Producto%d", i), 0)
		if err != nil {
			return res, err
		}
		res.Products = append(res.Products, rc.ID)
	}
	return res, nil
}

// LoadBeachRentals adds a small rental shop. Bookings start at the first
// midnight UTC after now.
func LoadBeachRentals(ctx context.Context, reg *registry.Registry, owner booking.Address, now time.Time) (ScenarioResult, error) {
	res := ScenarioResult{ScenarioID: "beach-rentals", Products: []uint64{}, Complements: []uint64{}}

	products := []struct {
		name        string
		category    registry.Category
		complements []string
	}{
		{"Kayak doble", 2, []string{"Remo", "Chaleco"}},
		{"Tabla de paddle surf", 2, []string{"Remo"}},
		{"Bicicleta de paseo", 0, []string{"Casco", "Candado"}},
	}
	for _, p := range products {
		rc, err := reg.RegisterProduct(ctx, owner, p.name, p.category)
		if err != nil {
			return res, err
		}
		res.Products = append(res.Products, rc.ID)

		for sub, name := range p.complements {
			crc, err := reg.AddComplement(ctx, owner, rc.ID, registry.Category(sub), name)
			if err != nil {
				return res, err
			}
			res.Complements = append(res.Complements, crc.ID)
		}
	}

	tomorrow := uint64(now.UTC().Truncate(24*time.Hour).Add(24 * time.Hour).Unix())
	bookings := []struct {
		product     uint64
		booker      booking.Address
		from, until uint64
	}{
		{res.Products[0], DemoCustomerA, 0, 2},
		{res.Products[0], DemoCustomerB, 3, 5},
		{res.Products[2], DemoCustomerA, 1, 8},
	}
	for _, b := range bookings {
		if _, err := reg.Book(ctx, b.booker, b.product, tomorrow+b.from*booking.Day, tomorrow+b.until*booking.Day); err != nil {
			return res, err
		}
		res.Reservations++
	}
	return res, nil
}
