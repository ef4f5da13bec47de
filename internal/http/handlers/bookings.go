package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
	"github.com/fixitnow/bookings/internal/http/middleware"
	"github.com/fixitnow/bookings/internal/http/response"
	"github.com/fixitnow/bookings/internal/lifecycle"
	"github.com/fixitnow/bookings/internal/store"
	"github.com/go-chi/chi/v5"
)

type createBookingRequest struct {
	ServiceID      string    `json:"service_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Address        string    `json:"address"`
	EstimatedPrice *float64  `json:"estimated_price,omitempty"`
}

type transitionRequest struct {
	ExpectedVersion int64    `json:"expected_version"`
	FinalPrice      *float64 `json:"final_price,omitempty"`
}

// CreateBooking registers a new service request for the authenticated
// requester.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor.Role != domain.RoleRequester {
		response.WriteError(w, http.StatusForbidden, "only requesters may create bookings", response.CodeForbidden)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	booking, err := h.engine.Create(r.Context(), lifecycle.CreateRequest{
		RequesterID:    actor.ID,
		ServiceID:      req.ServiceID,
		Title:          req.Title,
		Description:    req.Description,
		ScheduledAt:    req.ScheduledAt,
		Address:        req.Address,
		EstimatedPrice: req.EstimatedPrice,
	})
	if err != nil {
		// The only not-found on this path is the catalog lookup; the
		// generic mapper would report a missing booking.
		if errors.Is(err, domain.ErrNotFound) {
			response.WriteError(w, http.StatusNotFound, "service not found", response.CodeNotFound)
			return
		}
		response.DomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, booking)
}

// GetBooking returns one booking; only its participants may read it.
func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)

	booking, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if !booking.IsParticipant(actor.ID) {
		response.WriteError(w, http.StatusForbidden, "not a participant of this booking", response.CodeForbidden)
		return
	}

	response.WriteJSON(w, http.StatusOK, booking)
}

// ListBookings returns the actor's bookings, newest first, optionally
// narrowed by status.
func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)

	f := store.Filter{Limit: 50}
	if actor.Role == domain.RoleProvider {
		f.ProviderID = actor.ID
	} else {
		f.RequesterID = actor.ID
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			response.BadRequest(w, "invalid status parameter")
			return
		}
		f.Status = &st
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	bookings, err := h.engine.List(r.Context(), f)
	if err != nil {
		response.InternalError(w, "failed to list bookings")
		return
	}
	response.WriteJSON(w, http.StatusOK, bookings)
}

// ApplyTransition moves a booking along the lifecycle graph. The caller
// supplies the version it read; a stale version yields 409 and the
// caller must reread and retry.
func (h *Handlers) ApplyTransition(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)

	transition, ok := domain.ParseTransition(chi.URLParam(r, "transition"))
	if !ok {
		response.BadRequest(w, "unknown transition")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	booking, err := h.engine.Apply(r.Context(), lifecycle.ApplyRequest{
		BookingID:       chi.URLParam(r, "id"),
		Transition:      transition,
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		ExpectedVersion: req.ExpectedVersion,
		FinalPrice:      req.FinalPrice,
	})
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, booking)
}
