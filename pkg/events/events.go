package events

import (
	"context"
	"fmt"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
	"github.com/nats-io/nats.go"
)

// Topics, one per lifecycle transition. Payload is always the full
// booking snapshot plus the transition name and acting participant.
const (
	TopicBookingPending    = "booking.pending"
	TopicBookingAccepted   = "booking.accepted"
	TopicBookingInProgress = "booking.in_progress"
	TopicBookingCompleted  = "booking.completed"
	TopicBookingCancelled  = "booking.cancelled"

	// TopicBookingAll matches every booking topic; used by consumers.
	TopicBookingAll = "booking.*"
)

// TopicForStatus maps a post-transition status to its topic.
func TopicForStatus(s domain.Status) string {
	switch s {
	case domain.StatusPending:
		return TopicBookingPending
	case domain.StatusAccepted:
		return TopicBookingAccepted
	case domain.StatusInProgress:
		return TopicBookingInProgress
	case domain.StatusCompleted:
		return TopicBookingCompleted
	case domain.StatusCancelled:
		return TopicBookingCancelled
	default:
		return ""
	}
}

// Payload is the body of every booking event: the full snapshot after
// the transition, plus what happened and who did it.
type Payload struct {
	Transition string         `json:"transition"`
	ActorID    string         `json:"actor_id"`
	Booking    domain.Booking `json:"booking"`
}

// Event is the immutable record handed to the bus after a committed
// transition. Attempts counts delivery tries; the publisher owns it.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	BookingID string    `json:"booking_id"`
	Payload   Payload   `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
	Attempts  int       `json:"attempts"`
}

// Message is a raw delivery from the broker.
type Message struct {
	Subject string
	Data    []byte
}

// Transport is the broker-facing contract. The NATS implementation is
// the production one; tests substitute fakes.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type NATSTransport struct {
	conn *nats.Conn
}

func NewNATSTransport(url string) (*NATSTransport, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSTransport{conn: conn}, nil
}

func (n *NATSTransport) Publish(_ context.Context, subject string, data []byte) error {
	return n.conn.Publish(subject, data)
}

func (n *NATSTransport) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{Subject: msg.Subject, Data: msg.Data})
	})
	return err
}

func (n *NATSTransport) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{Subject: msg.Subject, Data: msg.Data})
	})
	return err
}

func (n *NATSTransport) Close() error {
	n.conn.Close()
	return nil
}
