/*
handlers.go - HTTP API handlers for the policy registry

PURPOSE:
  Exposes the policy registry and the reservation workflow via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  insurance package.

ENDPOINTS:
  Policies:
    GET    /api/policies                          List (filters: holder, claimed, start+end)
    POST   /api/policies                          Create policy
    GET    /api/policies/{id}                     Get policy
    PUT    /api/policies/{id}                     Update policy
    DELETE /api/policies/{id}                     Delete policy (creator only)
    POST   /api/policies/{id}/claim               File claim

  Reservations:
    POST   /api/policies/{id}/reservations        Create order
    POST   /api/policies/{id}/reservations/complete  Complete with ledger payment
    POST   /api/policies/{id}/reservations/end    End and refund fee
    GET    /api/reservation-fee                   Configured fee
    GET    /api/address                           Ledger account to pay into
    GET    /api/bookings                          Completed bookings
    GET    /api/bookings/pending                  Orders awaiting payment
    GET    /api/bookings/mine                     Caller's completed booking

  Scenarios:
    GET    /api/scenarios                         List demo scenarios
    POST   /api/scenarios/load                    Load a demo scenario

REQUEST FLOW:
  1. Resolve caller (auth.go middleware)
  2. Parse HTTP request
  3. Call the registry or the reservation workflow
  4. Serialize response
  5. Map errors by kind

ERROR HANDLING:
  Domain errors are returned as JSON with the kind as code:
  - 400: InvalidPayload, malformed input
  - 402: PaymentFailed
  - 403: NotOwner
  - 404: NotFound
  - 409: Booked, NotBooked, AlreadyClaimed
  - 500: Internal errors (details logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/insurance-engine/insurance"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all stored data; used by demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry     *insurance.Registry
	Reservations *insurance.Reservations
	Store        Resetter
	Logger       *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the registry and the workflow.
func NewHandler(registry *insurance.Registry, reservations *insurance.Reservations, store Resetter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Registry:     registry,
		Reservations: reservations,
		Store:        store,
		Logger:       logger,
	}
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all policies, or those matching one filter.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		policies []insurance.Policy
		err      error
	)
	switch {
	case q.Has("holder"):
		policies, err = h.Registry.FilterByHolderName(ctx, q.Get("holder"))
	case q.Has("claimed"):
		claimed, perr := strconv.ParseBool(q.Get("claimed"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid claimed filter", perr)
			return
		}
		policies, err = h.Registry.FilterByClaimed(ctx, claimed)
	case q.Has("start") || q.Has("end"):
		start, serr := strconv.ParseUint(q.Get("start"), 10, 64)
		end, eerr := strconv.ParseUint(q.Get("end"), 10, 64)
		if serr != nil || eerr != nil {
			writeError(w, http.StatusBadRequest, "start and end must both be unsigned integers", nil)
			return
		}
		policies, err = h.Registry.FilterByDateRange(ctx, start, end)
	default:
		policies, err = h.Registry.List(ctx)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPolicyDTOs(policies))
}

// CreatePolicy creates a policy owned by the caller.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Registry.Create(r.Context(), CallerFrom(r.Context()), req.payload())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPolicyDTO(p))
}

// GetPolicy returns a single policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

// UpdatePolicy replaces the descriptive fields of a policy.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Registry.Update(r.Context(), chi.URLParam(r, "id"), req.payload())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

// DeletePolicy removes a policy; only its creator may do so.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := h.Registry.Delete(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{ID: id})
}

// FileClaim marks a policy as claimed.
func (h *Handler) FileClaim(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registry.FileClaim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservationOrder places a pending booking for the caller.
func (h *Handler) CreateReservationOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Reservations.CreateOrder(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"), req.NoOfPolicy)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

// CompleteReservation verifies the caller's payment and reserves the policy.
func (h *Handler) CompleteReservation(w http.ResponseWriter, r *http.Request) {
	var req CompleteReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Reservations.Complete(r.Context(), CallerFrom(r.Context()),
		chi.URLParam(r, "id"), req.NoOfPolicy, req.BlockIndex, req.Memo)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// EndReservation releases the caller's reservation and refunds the fee.
func (h *Handler) EndReservation(w http.ResponseWriter, r *http.Request) {
	pc, err := h.Reservations.End(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentCompletedDTO(pc))
}

// GetReservationFee returns the fee, or 404 if reservations are disabled.
func (h *Handler) GetReservationFee(w http.ResponseWriter, r *http.Request) {
	fee, ok := h.Reservations.ReservationFee()
	if !ok {
		writeError(w, http.StatusNotFound, "Reservation fee not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, ReservationFeeDTO{Fee: fee, FeeTokens: tokens(fee)})
}

// GetAddress returns the ledger account orders are paid into.
func (h *Handler) GetAddress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AddressDTO{AccountID: h.Reservations.ServiceAddress().String()})
}

// ListBookings returns every payer's completed booking.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Reservations.ListBookings(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

// ListPendingBookings returns orders awaiting payment.
func (h *Handler) ListPendingBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Reservations.ListPending(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

// MyBooking returns the caller's latest completed booking.
func (h *Handler) MyBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Reservations.BookingFor(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// =============================================================================
// HELPERS
// =============================================================================

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

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "NotFound":
		return http.StatusNotFound
	case "NotOwner":
		return http.StatusForbidden
	case "InvalidPayload":
		return http.StatusBadRequest
	case "Booked", "NotBooked", "AlreadyClaimed":
		return http.StatusConflict
	case "PaymentFailed":
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := insurance.Kind(err)
	if !insurance.IsClientError(err) {
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "Internal"})
		return
	}
	writeJSON(w, statusFor(kind), ErrorResponse{Error: kind, Code: kind, Details: err.Error()})
}
