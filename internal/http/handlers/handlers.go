package handlers

import (
	"net/http"

	"github.com/fixitnow/bookings/internal/http/middleware"
	"github.com/fixitnow/bookings/internal/identity"
	"github.com/fixitnow/bookings/internal/lifecycle"
	"github.com/fixitnow/bookings/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type Handlers struct {
	engine   *lifecycle.Engine
	registry *session.Registry
	relay    *session.Relay
	history  session.History
	verifier identity.Verifier
	upgrader websocket.Upgrader
}

func New(engine *lifecycle.Engine, registry *session.Registry, relay *session.Relay, history session.History, verifier identity.Verifier) *Handlers {
	return &Handlers{
		engine:   engine,
		registry: registry,
		relay:    relay,
		history:  history,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced at the gateway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handlers) Routes(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Use(middleware.RequireActor(h.verifier))
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListBookings)
		r.Get("/{id}", h.GetBooking)
		r.Post("/{id}/{transition}", h.ApplyTransition)
		r.Get("/{id}/chat/history", h.ChatHistory)
	})

	// WebSocket clients cannot set headers, so the chat endpoint takes
	// the token as a query parameter and verifies it itself.
	r.Get("/ws/bookings/{id}/chat", h.Chat)
}
