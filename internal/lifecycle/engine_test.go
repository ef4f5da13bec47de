package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fixitnow/bookings/internal/catalog"
	"github.com/fixitnow/bookings/internal/domain"
	"github.com/fixitnow/bookings/internal/lifecycle"
	"github.com/fixitnow/bookings/internal/store"
	"github.com/fixitnow/bookings/pkg/events"
)

// ---------- Mocks ----------

type stubCatalog struct {
	snap *catalog.ServiceSnapshot
	err  error
}

func (s *stubCatalog) GetServiceSnapshot(context.Context, string) (*catalog.ServiceSnapshot, error) {
	return s.snap, s.err
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureSink) Enqueue(evt events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureSink) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.events))
	copy(out, c.events)
	return out
}

func newTestEngine() (*lifecycle.Engine, *captureSink) {
	sink := &captureSink{}
	cat := &stubCatalog{snap: &catalog.ServiceSnapshot{
		ServiceID:  "svc-1",
		ProviderID: "prov-1",
		BasePrice:  80,
	}}
	return lifecycle.NewEngine(store.NewMemoryStore(), cat, sink), sink
}

func createBooking(t *testing.T, e *lifecycle.Engine) *domain.Booking {
	t.Helper()
	b, err := e.Create(context.Background(), lifecycle.CreateRequest{
		RequesterID: "user-1",
		ServiceID:   "svc-1",
		Title:       "Fix kitchen sink",
		Description: "Leaking under the counter",
		ScheduledAt: time.Now().Add(48 * time.Hour),
		Address:     "123 Main St",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return b
}

// ---------- Tests ----------

func TestCreatePopulatesFromCatalog(t *testing.T) {
	e, sink := newTestEngine()
	b := createBooking(t, e)

	if b.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if b.Version != 0 {
		t.Errorf("version = %d, want 0", b.Version)
	}
	if b.ProviderID != "prov-1" {
		t.Errorf("provider = %s, want prov-1 from catalog", b.ProviderID)
	}
	if b.EstimatedPrice != 80 {
		t.Errorf("estimated price = %v, want catalog base price 80", b.EstimatedPrice)
	}
	if b.AcceptedAt != nil || b.CompletedAt != nil {
		t.Error("accepted/completed timestamps must be unset at creation")
	}

	evts := sink.all()
	if len(evts) != 1 || evts[0].Type != events.TopicBookingPending {
		t.Fatalf("expected one booking.pending event, got %+v", evts)
	}
	if evts[0].Payload.Transition != "create" || evts[0].Payload.ActorID != "user-1" {
		t.Errorf("unexpected payload: %+v", evts[0].Payload)
	}
}

func TestCreateFailsWhenServiceUnknown(t *testing.T) {
	sink := &captureSink{}
	e := lifecycle.NewEngine(store.NewMemoryStore(), &stubCatalog{err: domain.ErrNotFound}, sink)

	_, err := e.Create(context.Background(), lifecycle.CreateRequest{
		RequesterID: "user-1",
		ServiceID:   "missing",
		Title:       "Fix kitchen sink",
		ScheduledAt: time.Now().Add(time.Hour),
		Address:     "123 Main St",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(sink.all()) != 0 {
		t.Error("no event should be emitted for a failed create")
	}
}

// The scenario from the lifecycle contract: accept, stale cancel,
// reread, cancel.
func TestAcceptThenStaleCancelThenCancel(t *testing.T) {
	e, sink := newTestEngine()
	ctx := context.Background()
	b := createBooking(t, e)

	accepted, err := e.Apply(ctx, lifecycle.ApplyRequest{
		BookingID:       b.ID,
		Transition:      domain.TransitionAccept,
		ActorID:         "prov-1",
		ActorRole:       domain.RoleProvider,
		ExpectedVersion: 0,
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.StatusAccepted || accepted.Version != 1 {
		t.Fatalf("after accept: status=%s version=%d", accepted.Status, accepted.Version)
	}
	if accepted.AcceptedAt == nil {
		t.Error("accepted timestamp must be set")
	}

	// Requester cancels with the stale version it read before accept.
	_, err = e.Apply(ctx, lifecycle.ApplyRequest{
		BookingID:       b.ID,
		Transition:      domain.TransitionCancel,
		ActorID:         "user-1",
		ActorRole:       domain.RoleRequester,
		ExpectedVersion: 0,
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale cancel = %v, want ErrVersionConflict", err)
	}

	// Reread and retry with the current version: cancel is valid from
	// Accepted.
	cancelled, err := e.Apply(ctx, lifecycle.ApplyRequest{
		BookingID:       b.ID,
		Transition:      domain.TransitionCancel,
		ActorID:         "user-1",
		ActorRole:       domain.RoleRequester,
		ExpectedVersion: 1,
	})
	if err != nil {
		t.Fatalf("cancel after reread: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.Version != 2 {
		t.Fatalf("after cancel: status=%s version=%d", cancelled.Status, cancelled.Version)
	}

	types := []string{}
	for _, evt := range sink.all() {
		types = append(types, evt.Type)
	}
	want := []string{events.TopicBookingPending, events.TopicBookingAccepted, events.TopicBookingCancelled}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestCompleteSetsTimestampAndFinalPrice(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	b := createBooking(t, e)

	apply := func(tr domain.Transition, version int64, price *float64) *domain.Booking {
		t.Helper()
		got, err := e.Apply(ctx, lifecycle.ApplyRequest{
			BookingID:       b.ID,
			Transition:      tr,
			ActorID:         "prov-1",
			ActorRole:       domain.RoleProvider,
			ExpectedVersion: version,
			FinalPrice:      price,
		})
		if err != nil {
			t.Fatalf("%s: %v", tr, err)
		}
		return got
	}

	apply(domain.TransitionAccept, 0, nil)
	apply(domain.TransitionStart, 1, nil)

	final := 125.0
	done := apply(domain.TransitionComplete, 2, &final)

	if done.Status != domain.StatusCompleted || done.Version != 3 {
		t.Fatalf("after complete: status=%s version=%d", done.Status, done.Version)
	}
	if done.CompletedAt == nil {
		t.Error("completed timestamp must be set")
	}
	if done.FinalPrice == nil || *done.FinalPrice != 125.0 {
		t.Errorf("final price = %v, want 125", done.FinalPrice)
	}
}

func TestTransitionFromTerminalState(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	b := createBooking(t, e)

	if _, err := e.Apply(ctx, lifecycle.ApplyRequest{
		BookingID:       b.ID,
		Transition:      domain.TransitionCancel,
		ActorID:         "user-1",
		ActorRole:       domain.RoleRequester,
		ExpectedVersion: 0,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := e.Apply(ctx, lifecycle.ApplyRequest{
		BookingID:       b.ID,
		Transition:      domain.TransitionAccept,
		ActorID:         "prov-1",
		ActorRole:       domain.RoleProvider,
		ExpectedVersion: 1,
	})

	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != domain.StatusCancelled || len(invalid.Allowed) != 0 {
		t.Errorf("unexpected detail: %+v", invalid)
	}
}

func TestForbiddenActors(t *testing.T) {
	e, sink := newTestEngine()
	ctx := context.Background()
	b := createBooking(t, e)
	before := len(sink.all())

	// Requester may not accept: the role table rejects it.
	_, err := e.Apply(ctx, lifecycle.ApplyRequest{
		BookingID:       b.ID,
		Transition:      domain.TransitionAccept,
		ActorID:         "user-1",
		ActorRole:       domain.RoleRequester,
		ExpectedVersion: 0,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("requester accept = %v, want ErrForbidden", err)
	}

	// A different provider may not accept this booking.
	_, err = e.Apply(ctx, lifecycle.ApplyRequest{
		BookingID:       b.ID,
		Transition:      domain.TransitionAccept,
		ActorID:         "prov-9",
		ActorRole:       domain.RoleProvider,
		ExpectedVersion: 0,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("foreign provider accept = %v, want ErrForbidden", err)
	}

	if len(sink.all()) != before {
		t.Error("failed transitions must not emit events")
	}
}

func TestApplyUnknownBooking(t *testing.T) {
	e, _ := newTestEngine()
	_, err := e.Apply(context.Background(), lifecycle.ApplyRequest{
		BookingID:       "missing",
		Transition:      domain.TransitionAccept,
		ActorID:         "prov-1",
		ActorRole:       domain.RoleProvider,
		ExpectedVersion: 0,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	e, sink := newTestEngine()
	ctx := context.Background()
	b := createBooking(t, e)
	before := len(sink.all())

	const racers = 6
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.Apply(ctx, lifecycle.ApplyRequest{
				BookingID:       b.ID,
				Transition:      domain.TransitionAccept,
				ActorID:         "prov-1",
				ActorRole:       domain.RoleProvider,
				ExpectedVersion: 0,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != racers-1 {
		t.Errorf("successes=%d conflicts=%d, want 1 and %d", successes, conflicts, racers-1)
	}
	if got := len(sink.all()) - before; got != 1 {
		t.Errorf("emitted %d events for the race, want exactly 1", got)
	}
}
