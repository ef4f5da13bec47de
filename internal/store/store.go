package store

import (
	"context"

	"github.com/fixitnow/bookings/internal/domain"
)

// Mutator applies an in-place change to a booking inside a conditional
// update. Returning an error aborts the update without writing.
type Mutator func(b *domain.Booking) error

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	RequesterID string
	ProviderID  string
	Status      *domain.Status
	Limit       int
	Offset      int
}

// BookingStore is the durable keyed storage for booking records. The
// lifecycle engine is its only writer.
//
// ConditionalUpdate is the single serialization point of the system: it
// must be atomic with respect to concurrent callers on the same id, and
// no two concurrent calls may both succeed against the same expected
// version. On success the store bumps Version by exactly one and
// refreshes UpdatedAt.
type BookingStore interface {
	Get(ctx context.Context, id string) (*domain.Booking, error)
	CreateIfAbsent(ctx context.Context, b *domain.Booking) (*domain.Booking, error)
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, mutate Mutator) (*domain.Booking, error)
	List(ctx context.Context, f Filter) ([]domain.Booking, error)
}
