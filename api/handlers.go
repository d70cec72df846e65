/*
handlers.go - HTTP API handlers for the rental registry

PURPOSE:
  Exposes the product registry and booking calendars via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  the registry. No domain rule lives here.

ENDPOINTS:
  Registry:
    GET    /api/info                              Name, symbol, admin, limits

  Products:
    GET    /api/products                          List all products
    POST   /api/products                          Register product (caller = owner)
    GET    /api/products/count                    Number of products
    GET    /api/products/{id}                     Product details
    GET    /api/products/{id}/availability        ?start=&stop=
    GET    /api/products/{id}/bookings            Live reservations
    POST   /api/products/{id}/bookings            Book an interval
    DELETE /api/products/{id}/bookings?start=     Cancel by start time
    GET    /api/products/{id}/bookings/{rid}      Reservation (any state)
    DELETE /api/products/{id}/bookings/{rid}      Cancel by reservation id
    POST   /api/products/{id}/complements         Add complement (owner only)

  Complements:
    GET    /api/complements/{id}                  Complement and its product

  Shops:
    GET    /api/shops/{address}/balance           Number of products owned
    GET    /api/shops/{address}/products          Owned product ids

  Observability:
    GET    /api/events?limit=                     Recent events
    GET    /api/admin/records                     Journal dump (admin only)
    GET    /api/admin/products/{id}/records       One product's records (admin only)

CALLER IDENTITY:
  Commands act on behalf of the address in the X-Caller-Address header.
  Authentication of that header is the deployment's concern.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: InvalidInterval, DurationExceeded, Invalid*, malformed input
  - 403: NotOwner
  - 404: NotFound, NoProducts
  - 409: SlotUnavailable
  - 500: Journal failures and anything unexpected

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo catalog loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/event"
	"github.com/warp/rental-engine/registry"
	"go.uber.org/zap"
)

// CallerHeader carries the address a command acts for.
const CallerHeader = "X-Caller-Address"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry *registry.Registry
	// Events backs /api/events. Nil disables the endpoint.
	Events *event.Recorder
	Log    *zap.Logger
}

func NewHandler(reg *registry.Registry, events *event.Recorder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Registry: reg, Events: events, Log: log}
}

// =============================================================================
// REGISTRY
// =============================================================================

func (h *Handler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoDTO{
		Name:             h.Registry.Name(),
		Symbol:           h.Registry.Symbol(),
		Admin:            h.Registry.Admin().String(),
		ProductsCount:    h.Registry.ProductsCount(),
		ReservationLimit: booking.ReservationLimit,
		MinRentTime:      registry.MinRentTime,
	})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	count := h.Registry.ProductsCount()
	dtos := make([]ProductDTO, 0, count)
	for id := uint64(0); id < count; id++ {
		dto, err := h.productDTO(id)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CountProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"count": h.Registry.ProductsCount()})
}

func (h *Handler) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req RegisterProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	rc, err := h.Registry.RegisterProduct(r.Context(), caller(r), req.Name, registry.Category(req.Category))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeReceipt(w, http.StatusCreated, rc)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	dto, err := h.productDTO(id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) productDTO(id uint64) (ProductDTO, error) {
	p, err := h.Registry.Product(id)
	if err != nil {
		return ProductDTO{}, err
	}
	uri, err := h.Registry.TokenURI(id)
	if err != nil {
		return ProductDTO{}, err
	}
	complements, err := h.Registry.ComplementsCount(id)
	if err != nil {
		return ProductDTO{}, err
	}
	booked, err := h.Registry.IsBooked(id)
	if err != nil {
		return ProductDTO{}, err
	}
	return ProductDTO{
		ID:               p.ID,
		Owner:            p.Owner.String(),
		Category:         uint8(p.Category),
		Name:             p.Name,
		MinRentTime:      p.MinRentTime,
		Ledger:           p.Ledger,
		TokenURI:         uri,
		ComplementsCount: complements,
		IsBooked:         booked,
	}, nil
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	start, ok := uintQuery(w, r, "start")
	if !ok {
		return
	}
	stop, ok := uintQuery(w, r, "stop")
	if !ok {
		return
	}

	free, err := h.Registry.CheckAvailability(id, start, stop)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{ProductID: id, Start: start, Stop: stop, Available: free})
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	l, err := h.Registry.Ledger(id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	live := l.Live()
	dtos := make([]ReservationDTO, len(live))
	for i, res := range live {
		dtos[i] = toReservationDTO(res, l.BlockTime())
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	rc, err := h.Registry.Book(r.Context(), caller(r), id, uint64(req.Start), uint64(req.Stop))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeReceipt(w, http.StatusCreated, rc)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	rid, ok := uintParam(w, r, "rid")
	if !ok {
		return
	}

	res, err := h.Registry.Reservation(id, booking.ReservationID(rid))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res, registry.MinRentTime))
}

// CancelBookingAtStart cancels the live reservation starting at ?start=.
func (h *Handler) CancelBookingAtStart(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	start, ok := uintQuery(w, r, "start")
	if !ok {
		return
	}

	rc, err := h.Registry.Cancel(r.Context(), caller(r), id, start)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeReceipt(w, http.StatusOK, rc)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	rid, ok := uintParam(w, r, "rid")
	if !ok {
		return
	}

	rc, err := h.Registry.CancelByID(r.Context(), caller(r), id, booking.ReservationID(rid))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeReceipt(w, http.StatusOK, rc)
}

// =============================================================================
// COMPLEMENT HANDLERS
// =============================================================================

func (h *Handler) AddComplement(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var req AddComplementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	rc, err := h.Registry.AddComplement(r.Context(), caller(r), id, registry.Category(req.Subcategory), req.Name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeReceipt(w, http.StatusCreated, rc)
}

func (h *Handler) GetComplement(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	c, err := h.Registry.Complement(id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toComplementDTO(c))
}

// =============================================================================
// SHOP HANDLERS
// =============================================================================

func (h *Handler) GetShopBalance(w http.ResponseWriter, r *http.Request) {
	owner := booking.NewAddress(chi.URLParam(r, "address"))
	bal, err := h.Registry.BalanceOf(owner)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Owner: owner.String(), Balance: bal})
}

func (h *Handler) GetShopProducts(w http.ResponseWriter, r *http.Request) {
	owner := booking.NewAddress(chi.URLParam(r, "address"))
	ids, err := h.Registry.ProductsByShop(owner)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ShopProductsDTO{Owner: owner.String(), Products: ids})
}

// =============================================================================
// EVENTS & ADMIN
// =============================================================================

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeJSON(w, http.StatusOK, []event.Envelope{})
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.Events.Recent(limit))
}

func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Registry.Records(r.Context(), caller(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]RecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListProductRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	recs, err := h.Registry.ProductRecords(r.Context(), caller(r), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]RecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func caller(r *http.Request) booking.Address {
	return booking.NewAddress(r.Header.Get(CallerHeader))
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return 0, false
	}
	return v, true
}

func uintQuery(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter "+name, nil)
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return 0, false
	}
	return v, true
}

func (h *Handler) writeReceipt(w http.ResponseWriter, status int, rc registry.Receipt) {
	resp, err := toReceiptResponse(rc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode events", err)
		return
	}
	writeJSON(w, status, resp)
}

// statusFor maps a registry error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNotOwner):
		return http.StatusForbidden
	case registry.IsNotFound(err):
		return http.StatusNotFound
	case registry.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "Internal error", err)
		return
	}
	writeError(w, status, http.StatusText(status), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
