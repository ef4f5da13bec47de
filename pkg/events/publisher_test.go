package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu        sync.Mutex
	published []Event
	failLeft  map[string]int // event id -> remaining transient failures
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failLeft: make(map[string]int)}
}

func (f *fakeTransport) Publish(_ context.Context, subject string, data []byte) error {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLeft[evt.ID] > 0 {
		f.failLeft[evt.ID]--
		return errors.New("transient failure")
	}
	f.published = append(f.published, evt)
	return nil
}

func (f *fakeTransport) Subscribe(string, func(*Message)) error { return nil }

func (f *fakeTransport) QueueSubscribe(string, string, func(*Message)) error { return nil }

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.published))
	copy(out, f.published)
	return out
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
	causes []error
}

func (c *captureSink) DeadLetter(_ context.Context, evt Event, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	c.causes = append(c.causes, cause)
}

func newTestPublisher(t Transport, sink DeadLetterSink, maxAttempts int) *Publisher {
	p := NewPublisher(t, sink, PublisherOptions{
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
	})
	p.sleep = func(time.Duration) {}
	return p
}

func testEvent(id, bookingID string) Event {
	return Event{
		ID:        id,
		Type:      TopicBookingAccepted,
		BookingID: bookingID,
		EmittedAt: time.Now(),
	}
}

func TestPublisherRetriesThenSucceeds(t *testing.T) {
	transport := newFakeTransport()
	transport.failLeft["e-1"] = 2
	sink := &captureSink{}
	p := newTestPublisher(transport, sink, 5)

	p.Enqueue(testEvent("e-1", "b-1"))
	p.Flush()

	got := transport.events()
	if len(got) != 1 {
		t.Fatalf("published %d events, want 1", len(got))
	}
	if got[0].Attempts != 3 {
		t.Errorf("delivered on attempt %d, want 3", got[0].Attempts)
	}
	if len(sink.events) != 0 {
		t.Errorf("dead-lettered %d events, want 0", len(sink.events))
	}
}

func TestPublisherDeadLettersAfterExhaustion(t *testing.T) {
	transport := newFakeTransport()
	transport.failLeft["e-1"] = 100
	sink := &captureSink{}
	p := newTestPublisher(transport, sink, 3)

	p.Enqueue(testEvent("e-1", "b-1"))
	p.Flush()

	if len(transport.events()) != 0 {
		t.Error("event should not have been published")
	}
	if len(sink.events) != 1 {
		t.Fatalf("dead-lettered %d events, want 1", len(sink.events))
	}
	if sink.events[0].Attempts != 3 {
		t.Errorf("dead-lettered after %d attempts, want 3", sink.events[0].Attempts)
	}
	if sink.causes[0] == nil {
		t.Error("dead letter should carry the last delivery error")
	}
}

func TestPublisherPerBookingFIFO(t *testing.T) {
	transport := newFakeTransport()
	p := newTestPublisher(transport, &captureSink{}, 3)

	const n = 25
	for i := 0; i < n; i++ {
		evt := testEvent(idFor(i), "b-1")
		// every third delivery hits a transient failure first
		if i%3 == 0 {
			transport.mu.Lock()
			transport.failLeft[evt.ID] = 1
			transport.mu.Unlock()
		}
		p.Enqueue(evt)
	}
	p.Flush()

	got := transport.events()
	if len(got) != n {
		t.Fatalf("published %d events, want %d", len(got), n)
	}
	for i, evt := range got {
		if evt.ID != idFor(i) {
			t.Fatalf("event %d out of order: got %s", i, evt.ID)
		}
	}
}

func TestPublisherIndependentKeys(t *testing.T) {
	transport := newFakeTransport()
	p := newTestPublisher(transport, &captureSink{}, 3)

	for i := 0; i < 10; i++ {
		p.Enqueue(testEvent(idFor(i), "b-1"))
		p.Enqueue(testEvent("x-"+idFor(i), "b-2"))
	}
	p.Flush()

	var b1, b2 int
	for _, evt := range transport.events() {
		switch evt.BookingID {
		case "b-1":
			b1++
		case "b-2":
			b2++
		}
	}
	if b1 != 10 || b2 != 10 {
		t.Errorf("published b-1=%d b-2=%d, want 10 each", b1, b2)
	}
}

func idFor(i int) string {
	return string(rune('a'+i/26)) + string(rune('a'+i%26))
}
