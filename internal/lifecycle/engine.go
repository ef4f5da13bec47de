// Package lifecycle validates and applies booking state transitions.
// Every successful transition is a single conditional write followed by
// exactly one event enqueued to the bus; the write is never rolled back
// because of delivery problems downstream.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fixitnow/bookings/internal/catalog"
	"github.com/fixitnow/bookings/internal/domain"
	"github.com/fixitnow/bookings/internal/store"
	"github.com/fixitnow/bookings/pkg/events"
	"github.com/fixitnow/bookings/pkg/logger"
	"github.com/google/uuid"
)

// EventSink accepts committed events for asynchronous delivery. Enqueue
// must not block and must not fail the caller.
type EventSink interface {
	Enqueue(evt events.Event)
}

type Engine struct {
	store   store.BookingStore
	catalog catalog.Client
	sink    EventSink
	now     func() time.Time
}

func NewEngine(st store.BookingStore, cat catalog.Client, sink EventSink) *Engine {
	return &Engine{
		store:   st,
		catalog: cat,
		sink:    sink,
		now:     time.Now,
	}
}

type CreateRequest struct {
	RequesterID    string
	ServiceID      string
	Title          string
	Description    string
	ScheduledAt    time.Time
	Address        string
	EstimatedPrice *float64
}

// Create registers a new booking in Pending at version 0 and emits
// booking.pending. Provider id and base price come from the catalog
// collaborator and are immutable afterwards.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*domain.Booking, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	snap, err := e.catalog.GetServiceSnapshot(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("service lookup failed: %w", err)
	}

	price := snap.BasePrice
	if req.EstimatedPrice != nil {
		price = *req.EstimatedPrice
	}

	now := e.now()
	b := &domain.Booking{
		ID:             uuid.NewString(),
		RequesterID:    req.RequesterID,
		ProviderID:     snap.ProviderID,
		ServiceID:      req.ServiceID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         domain.StatusPending,
		ScheduledAt:    req.ScheduledAt,
		Address:        req.Address,
		EstimatedPrice: price,
		Version:        0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := e.store.CreateIfAbsent(ctx, b)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.TransitionCreate, req.RequesterID, created)

	logger.InfoContext(ctx, "booking created",
		"booking_id", created.ID, "requester_id", created.RequesterID, "provider_id", created.ProviderID)
	return created, nil
}

type ApplyRequest struct {
	BookingID       string
	Transition      domain.Transition
	ActorID         string
	ActorRole       domain.Role
	ExpectedVersion int64

	// FinalPrice may accompany a complete transition to finalize the
	// price agreed during the engagement.
	FinalPrice *float64
}

// Apply validates and commits one state transition. Failure modes, in
// order: ErrNotFound, ErrForbidden (role table, then actor identity),
// ErrVersionConflict, InvalidTransitionError. On success the returned
// snapshot carries the incremented version and exactly one matching
// event has been enqueued.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*domain.Booking, error) {
	current, err := e.store.Get(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	if !domain.RoleAllowed(req.Transition, req.ActorRole) {
		return nil, domain.ErrForbidden
	}
	if current.ActorFor(req.ActorRole) != req.ActorID {
		return nil, domain.ErrForbidden
	}

	updated, err := e.store.ConditionalUpdate(ctx, req.BookingID, req.ExpectedVersion, func(b *domain.Booking) error {
		next, ok := domain.NextStatus(b.Status, req.Transition)
		if !ok {
			return &domain.InvalidTransitionError{
				From:       b.Status,
				Transition: req.Transition,
				Allowed:    domain.AllowedTransitions(b.Status),
			}
		}

		b.Status = next
		switch next {
		case domain.StatusAccepted:
			t := e.now()
			b.AcceptedAt = &t
		case domain.StatusCompleted:
			t := e.now()
			b.CompletedAt = &t
			if req.FinalPrice != nil {
				b.FinalPrice = req.FinalPrice
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The write is committed; delivery is the publisher's problem from
	// here on.
	e.emit(ctx, req.Transition, req.ActorID, updated)

	logger.InfoContext(ctx, "booking transition applied",
		"booking_id", updated.ID, "transition", req.Transition,
		"status", updated.Status, "version", updated.Version)
	return updated, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*domain.Booking, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context, f store.Filter) ([]domain.Booking, error) {
	return e.store.List(ctx, f)
}

func (e *Engine) emit(ctx context.Context, t domain.Transition, actorID string, b *domain.Booking) {
	topic := events.TopicForStatus(b.Status)
	if topic == "" {
		logger.ErrorContext(ctx, "no topic for booking status", "status", b.Status, "booking_id", b.ID)
		return
	}

	e.sink.Enqueue(events.Event{
		ID:        uuid.NewString(),
		Type:      topic,
		BookingID: b.ID,
		Payload: events.Payload{
			Transition: string(t),
			ActorID:    actorID,
			Booking:    *b.Clone(),
		},
		EmittedAt: e.now(),
	})
}

func validateCreate(req CreateRequest) error {
	switch {
	case req.RequesterID == "":
		return fmt.Errorf("requester id is required")
	case req.ServiceID == "":
		return fmt.Errorf("service id is required")
	case len(strings.TrimSpace(req.Title)) < 5:
		return fmt.Errorf("title must be at least 5 characters")
	case len(strings.TrimSpace(req.Address)) < 5:
		return fmt.Errorf("address must be at least 5 characters")
	case req.ScheduledAt.IsZero():
		return fmt.Errorf("scheduled time is required")
	default:
		return nil
	}
}
