package api

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rental-engine/registry"
)

func TestScenario_DemoCatalog(t *testing.T) {
	// GIVEN: An empty registry
	s := newTestServer(t)

	// WHEN: The demo catalog is loaded twice
	rec := s.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "demo-catalog"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[ScenarioResult](t, rec)

	rec = s.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "demo-catalog"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[ScenarioResult](t, rec)

	// THEN: Sixteen products exist, owned by the demo shop, and the second load was a no-op
	assert.Len(t, first.Products, 16)
	assert.Empty(t, second.Products)

	rec = s.do(http.MethodGet, "/api/products/15", "", nil)
	p := decode[ProductDTO](t, rec)
	assert.Equal(t, "Producto15", p.Name)
	assert.Equal(t, DemoShop.String(), p.Owner)
}

func TestScenario_BeachRentals(t *testing.T) {
	reg := registry.New(registry.Config{})
	now := time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)

	res, err := LoadBeachRentals(context.Background(), reg, "0xbeach", now)
	require.NoError(t, err)

	assert.Len(t, res.Products, 3)
	assert.Len(t, res.Complements, 5)
	assert.Equal(t, 3, res.Reservations)

	booked, err := reg.IsBooked(res.Products[1])
	require.NoError(t, err)
	assert.False(t, booked)

	live, err := reg.Reservations(res.Products[0])
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, uint64(time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC).Unix()), live[0].Start)
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/scenarios", "", nil)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), 2)
}

func TestScenario_DemoCatalogConcurrentLoads(t *testing.T) {
	reg := registry.New(registry.Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := LoadDemoCatalog(ctx, reg, DemoShop)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(16), reg.ProductsCount())
}
