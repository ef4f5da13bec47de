// Package session owns the real-time layer: ephemeral two-party
// channels bound to an active booking. Sessions live only in process
// memory; multi-replica deployments need session affinity at the
// transport edge (see DESIGN.md).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
)

const (
	KindChat      = "chat_message"
	KindConnected = "connected"
	KindClosed    = "session_closed"
)

type Message struct {
	Kind      string    `json:"type"`
	BookingID string    `json:"booking_id"`
	SenderID  string    `json:"sender_id,omitempty"`
	Body      string    `json:"body,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Session is one open channel between the requester and provider of an
// active booking. Each participant has a bounded mailbox of undelivered
// messages; beyond the bound the oldest message is dropped so an
// abandoned counterpart cannot grow memory without limit.
type Session struct {
	BookingID   string
	RequesterID string
	ProviderID  string
	CreatedAt   time.Time

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	boxes  map[string]*mailbox
}

type mailbox struct {
	limit  int
	buf    []Message
	notify chan struct{}
}

func newMailbox(limit int) *mailbox {
	return &mailbox{limit: limit, notify: make(chan struct{}, 1)}
}

// push appends under the session lock, dropping the oldest entry when
// the bound is reached.
func (b *mailbox) push(m Message) {
	if len(b.buf) >= b.limit {
		b.buf = b.buf[1:]
	}
	b.buf = append(b.buf, m)
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func newSession(bookingID, requesterID, providerID string, buffer int, now time.Time) *Session {
	return &Session{
		BookingID:   bookingID,
		RequesterID: requesterID,
		ProviderID:  providerID,
		CreatedAt:   now,
		done:        make(chan struct{}),
		boxes: map[string]*mailbox{
			requesterID: newMailbox(buffer),
			providerID:  newMailbox(buffer),
		},
	}
}

// Counterpart returns the other participant of the pair.
func (s *Session) Counterpart(participantID string) (string, bool) {
	switch participantID {
	case s.RequesterID:
		return s.ProviderID, true
	case s.ProviderID:
		return s.RequesterID, true
	default:
		return "", false
	}
}

// Deliver places m in the counterpart's mailbox. Per-sender ordering is
// preserved because each delivery appends under the session lock.
func (s *Session) Deliver(senderID string, m Message) error {
	other, ok := s.Counterpart(senderID)
	if !ok {
		return domain.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	s.boxes[other].push(m)
	return nil
}

// Next blocks until a message is buffered for the participant. Once the
// session closes, remaining buffered messages (including the closing
// signal) are still drained; after that Next returns ErrSessionClosed.
func (s *Session) Next(ctx context.Context, participantID string) (Message, error) {
	s.mu.Lock()
	box, ok := s.boxes[participantID]
	s.mu.Unlock()
	if !ok {
		return Message{}, domain.ErrForbidden
	}

	for {
		s.mu.Lock()
		if len(box.buf) > 0 {
			m := box.buf[0]
			box.buf = box.buf[1:]
			s.mu.Unlock()
			return m, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Message{}, domain.ErrSessionClosed
		}
		s.mu.Unlock()

		select {
		case <-box.notify:
		case <-s.done:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close is terminal and idempotent. Both participants get a
// session_closed signal queued ahead of the teardown so in-flight
// receivers observe it before the channel dies.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	sig := Message{
		Kind:      KindClosed,
		BookingID: s.BookingID,
		Body:      reason,
		SentAt:    time.Now(),
	}
	for _, box := range s.boxes {
		box.push(sig)
	}
	close(s.done)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
