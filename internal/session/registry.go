package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
	"github.com/fixitnow/bookings/internal/store"
	"github.com/fixitnow/bookings/pkg/events"
	"github.com/fixitnow/bookings/pkg/logger"
)

// Registry tracks open sessions keyed by booking id and enforces the
// one-session-per-booking invariant. Eligibility is always checked
// against a fresh read of the booking, never a cached status.
type Registry struct {
	store  store.BookingStore
	buffer int
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(st store.BookingStore, buffer int) *Registry {
	if buffer <= 0 {
		buffer = 10
	}
	return &Registry{
		store:    st,
		buffer:   buffer,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open creates the session for a booking in Accepted or InProgress.
// Participants are taken from the booking snapshot. Fails with
// ErrNotFound, ErrIneligible, or ErrAlreadyOpen.
func (r *Registry) Open(ctx context.Context, bookingID string) (*Session, error) {
	b, err := r.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.Active() {
		return nil, domain.ErrIneligible
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[bookingID]; ok {
		return nil, domain.ErrAlreadyOpen
	}

	s := newSession(bookingID, b.RequesterID, b.ProviderID, r.buffer, r.now())
	r.sessions[bookingID] = s

	logger.InfoContext(ctx, "session opened", "booking_id", bookingID)
	return s, nil
}

// OpenOrJoin returns the existing open session or opens a new one. Used
// by the transport edge, where the second participant connects to an
// already-open channel.
func (r *Registry) OpenOrJoin(ctx context.Context, bookingID string) (*Session, error) {
	s, err := r.Open(ctx, bookingID)
	if errors.Is(err, domain.ErrAlreadyOpen) {
		if existing, ok := r.Get(bookingID); ok {
			return existing, nil
		}
		return r.Open(ctx, bookingID)
	}
	return s, err
}

func (r *Registry) Get(bookingID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[bookingID]
	return s, ok
}

// Close tears down the session for a booking. Idempotent; closing an
// unknown booking id is a no-op.
func (r *Registry) Close(bookingID, reason string) {
	r.mu.Lock()
	s, ok := r.sessions[bookingID]
	delete(r.sessions, bookingID)
	r.mu.Unlock()

	if ok {
		s.Close(reason)
		logger.Info("session closed", "booking_id", bookingID, "reason", reason)
	}
}

// BindBus subscribes the registry to terminal lifecycle events so any
// open session is force-closed when its booking completes or is
// cancelled.
func (r *Registry) BindBus(transport events.Transport) error {
	for _, subject := range []string{events.TopicBookingCompleted, events.TopicBookingCancelled} {
		if err := transport.Subscribe(subject, r.HandleLifecycleEvent); err != nil {
			return err
		}
	}
	return nil
}

// HandleLifecycleEvent reacts to a terminal booking event by
// force-closing the bound session.
func (r *Registry) HandleLifecycleEvent(msg *events.Message) {
	var evt events.Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		logger.Error("failed to decode lifecycle event", "subject", msg.Subject, "error", err)
		return
	}

	reason := "booking " + strings.TrimPrefix(evt.Type, "booking.")
	r.Close(evt.BookingID, reason)
}
