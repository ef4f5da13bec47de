package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
	"github.com/fixitnow/bookings/internal/http/middleware"
	"github.com/fixitnow/bookings/internal/http/response"
	"github.com/fixitnow/bookings/internal/session"
	"github.com/fixitnow/bookings/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type inboundChat struct {
	Message string `json:"message"`
}

// Chat is the real-time transport surface: one WebSocket channel per
// open session, addressed by booking id. Connection attempts for
// ineligible bookings are rejected before the upgrade.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	actor, err := h.verifier.VerifyActor(token)
	if err != nil {
		response.Unauthorized(w, "invalid token")
		return
	}

	// Participation is checked against the booking itself before any
	// session state exists, so a rejected caller leaves nothing behind
	// in the registry.
	bookingID := chi.URLParam(r, "id")
	booking, err := h.engine.Get(r.Context(), bookingID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if !booking.IsParticipant(actor.ID) {
		response.WriteError(w, http.StatusForbidden, "not a participant of this booking", response.CodeForbidden)
		return
	}

	s, err := h.registry.OpenOrJoin(r.Context(), bookingID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorContext(r.Context(), "websocket upgrade failed", "error", err, "booking_id", bookingID)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	greeting := session.Message{
		Kind:      session.KindConnected,
		BookingID: bookingID,
		Body:      "connected to booking chat",
		SentAt:    time.Now(),
	}
	if err := conn.WriteJSON(greeting); err != nil {
		return
	}

	// Single writer from here on: relayed messages and the closing
	// signal all flow through the participant's mailbox.
	go h.writePump(ctx, cancel, conn, s, actor.ID)

	for {
		var in inboundChat
		if err := conn.ReadJSON(&in); err != nil {
			logger.DebugContext(ctx, "websocket read ended", "booking_id", bookingID, "error", err)
			return
		}
		if in.Message == "" {
			continue
		}

		if _, err := h.relay.Send(ctx, s, actor.ID, in.Message); err != nil {
			if errors.Is(err, domain.ErrSessionClosed) {
				return
			}
			logger.WarnContext(ctx, "relay send failed", "booking_id", bookingID, "error", err)
		}
	}
}

func (h *Handlers) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, s *session.Session, participantID string) {
	defer cancel()

	for {
		m, err := s.Next(ctx, participantID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionClosed) {
				deadline := time.Now().Add(time.Second)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), deadline)
			}
			conn.Close()
			return
		}
		if err := conn.WriteJSON(m); err != nil {
			return
		}
	}
}

// ChatHistory replays the archived messages for a booking, oldest
// first. Participants only.
func (h *Handlers) ChatHistory(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	bookingID := chi.URLParam(r, "id")

	booking, err := h.engine.Get(r.Context(), bookingID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if !booking.IsParticipant(actor.ID) {
		response.WriteError(w, http.StatusForbidden, "not a participant of this booking", response.CodeForbidden)
		return
	}

	messages := []session.Message{}
	if h.history != nil {
		messages, err = h.history.List(r.Context(), bookingID)
		if err != nil {
			response.InternalError(w, "failed to load chat history")
			return
		}
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"booking_id": bookingID,
		"messages":   messages,
		"count":      len(messages),
	})
}
