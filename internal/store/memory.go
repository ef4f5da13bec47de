package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
)

// MemoryStore is a process-local BookingStore used by tests and
// single-node development. All methods hand out deep copies.
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*domain.Booking),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, b *domain.Booking) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[b.ID]; ok {
		return nil, domain.ErrConflict
	}
	s.bookings[b.ID] = b.Clone()
	return b.Clone(), nil
}

func (s *MemoryStore) ConditionalUpdate(_ context.Context, id string, expectedVersion int64, mutate Mutator) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now()

	s.bookings[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if f.RequesterID != "" && b.RequesterID != f.RequesterID {
			continue
		}
		if f.ProviderID != "" && b.ProviderID != f.ProviderID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		out = append(out, *b.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []domain.Booking{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}
