package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
)

type fakeHistory struct {
	mu       sync.Mutex
	appended []Message
	err      error
}

func (h *fakeHistory) Append(_ context.Context, m Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.appended = append(h.appended, m)
	return nil
}

func (h *fakeHistory) List(_ context.Context, bookingID string) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []Message{}
	for _, m := range h.appended {
		if m.BookingID == bookingID {
			out = append(out, m)
		}
	}
	return out, nil
}

func testSession(buffer int) *Session {
	return newSession("b-1", "user-1", "prov-1", buffer, time.Now())
}

func TestRelayDeliversToCounterpart(t *testing.T) {
	ctx := context.Background()
	s := testSession(10)
	history := &fakeHistory{}
	relay := NewRelay(history)

	if _, err := relay.Send(ctx, s, "user-1", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	m, err := s.Next(ctx, "prov-1")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.Kind != KindChat || m.SenderID != "user-1" || m.Body != "hello" {
		t.Errorf("unexpected message: %+v", m)
	}

	if len(history.appended) != 1 {
		t.Errorf("history got %d messages, want 1", len(history.appended))
	}
}

func TestRelayForbiddenSender(t *testing.T) {
	s := testSession(10)
	relay := NewRelay(nil)

	if _, err := relay.Send(context.Background(), s, "stranger", "hi"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Send by stranger = %v, want ErrForbidden", err)
	}
}

func TestRelayPerSenderOrder(t *testing.T) {
	ctx := context.Background()
	s := testSession(100)
	relay := NewRelay(nil)

	const n = 20
	for i := 0; i < n; i++ {
		if _, err := relay.Send(ctx, s, "user-1", fmt.Sprintf("msg-%02d", i)); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < n; i++ {
		m, err := s.Next(ctx, "prov-1")
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("msg-%02d", i); m.Body != want {
			t.Fatalf("message %d = %q, want %q", i, m.Body, want)
		}
	}
}

// Counterpart offline, 15 sends against a bound of 10: only the newest
// 10 survive, the oldest 5 are dropped.
func TestRelayBufferDropsOldest(t *testing.T) {
	ctx := context.Background()
	s := testSession(10)
	relay := NewRelay(nil)

	for i := 0; i < 15; i++ {
		if _, err := relay.Send(ctx, s, "user-1", fmt.Sprintf("msg-%02d", i)); err != nil {
			t.Fatal(err)
		}
	}

	for i := 5; i < 15; i++ {
		m, err := s.Next(ctx, "prov-1")
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("msg-%02d", i); m.Body != want {
			t.Fatalf("got %q, want %q", m.Body, want)
		}
	}

	// Nothing else buffered.
	timed, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(timed, "prov-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected empty mailbox, got %v", err)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	s := testSession(10)
	relay := NewRelay(nil)

	s.Close("booking completed")

	if _, err := relay.Send(context.Background(), s, "user-1", "late"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Send after close = %v, want ErrSessionClosed", err)
	}
}

func TestCloseSignalsBothParticipants(t *testing.T) {
	ctx := context.Background()
	s := testSession(10)

	s.Close("booking cancelled")
	s.Close("again") // idempotent

	for _, participant := range []string{"user-1", "prov-1"} {
		m, err := s.Next(ctx, participant)
		if err != nil {
			t.Fatalf("Next(%s): %v", participant, err)
		}
		if m.Kind != KindClosed || m.Body != "booking cancelled" {
			t.Errorf("%s got %+v, want session_closed signal", participant, m)
		}

		// After the signal is drained the session reports closed.
		if _, err := s.Next(ctx, participant); !errors.Is(err, domain.ErrSessionClosed) {
			t.Errorf("Next(%s) after drain = %v, want ErrSessionClosed", participant, err)
		}
	}
}

func TestNextWakesBlockedReceiverOnClose(t *testing.T) {
	s := testSession(10)

	got := make(chan Message, 1)
	go func() {
		m, err := s.Next(context.Background(), "prov-1")
		if err == nil {
			got <- m
		}
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close("booking completed")

	select {
	case m := <-got:
		if m.Kind != KindClosed {
			t.Errorf("blocked receiver got %+v, want close signal", m)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked receiver was not woken by close")
	}
}

func TestHistoryFailureDoesNotFailSend(t *testing.T) {
	ctx := context.Background()
	s := testSession(10)
	relay := NewRelay(&fakeHistory{err: errors.New("redis down")})

	if _, err := relay.Send(ctx, s, "user-1", "hello"); err != nil {
		t.Errorf("Send with failing history = %v, want nil", err)
	}
	if _, err := s.Next(ctx, "prov-1"); err != nil {
		t.Errorf("message should still be delivered: %v", err)
	}
}
