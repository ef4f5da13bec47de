package session

import (
	"context"
	"time"

	"github.com/fixitnow/bookings/pkg/logger"
)

// Relay carries chat messages between the two participants of an open
// session and archives each delivered message to the history store.
type Relay struct {
	history History
	now     func() time.Time
}

func NewRelay(history History) *Relay {
	return &Relay{history: history, now: time.Now}
}

// Send delivers body from senderID to the counterpart. Returns
// ErrForbidden when the sender is not bound to the session and
// ErrSessionClosed when the session has been torn down. Archival is
// best-effort: a history failure never fails a delivered message.
func (r *Relay) Send(ctx context.Context, s *Session, senderID, body string) (Message, error) {
	m := Message{
		Kind:      KindChat,
		BookingID: s.BookingID,
		SenderID:  senderID,
		Body:      body,
		SentAt:    r.now(),
	}

	if err := s.Deliver(senderID, m); err != nil {
		return Message{}, err
	}

	if r.history != nil {
		if err := r.history.Append(ctx, m); err != nil {
			logger.WarnContext(ctx, "failed to archive chat message",
				"booking_id", s.BookingID, "error", err)
		}
	}
	return m, nil
}
