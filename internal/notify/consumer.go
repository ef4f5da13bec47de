// Package notify is the notification dispatcher: it consumes booking
// lifecycle events from the bus and fans them out as per-user inbox
// entries. Fire-and-forget; nothing here ever reaches back into the
// lifecycle engine.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fixitnow/bookings/pkg/events"
	"github.com/fixitnow/bookings/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const inboxLimit = 100

type Notification struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	BookingID string    `json:"booking_id"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

type Consumer struct {
	transport events.Transport
	client    *redis.Client
}

func NewConsumer(transport events.Transport, client *redis.Client) *Consumer {
	return &Consumer{transport: transport, client: client}
}

// Start binds the consumer to every booking topic on a shared queue
// group, so replicas split the work.
func (c *Consumer) Start() error {
	return c.transport.QueueSubscribe(events.TopicBookingAll, "notify", c.Handle)
}

func (c *Consumer) Handle(msg *events.Message) {
	var evt events.Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		logger.Error("failed to decode booking event", "subject", msg.Subject, "error", err)
		return
	}

	title, body := describe(evt)
	b := evt.Payload.Booking

	// Notify every participant except the one who acted.
	for _, userID := range []string{b.RequesterID, b.ProviderID} {
		if userID == "" || userID == evt.Payload.ActorID {
			continue
		}
		c.push(context.Background(), Notification{
			UserID:    userID,
			Title:     title,
			Body:      body,
			BookingID: evt.BookingID,
			CreatedAt: time.Now(),
		})
	}
}

func (c *Consumer) push(ctx context.Context, n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}

	key := "notifications:user:" + n.UserID
	pipe := c.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, inboxLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("failed to store notification", "user_id", n.UserID, "error", err)
		return
	}

	logger.Info("notification dispatched", "user_id", n.UserID, "booking_id", n.BookingID, "title", n.Title)
}

func describe(evt events.Event) (title, body string) {
	b := evt.Payload.Booking
	switch evt.Type {
	case events.TopicBookingPending:
		return "New service request", fmt.Sprintf("%q was requested for %s", b.Title, b.ScheduledAt.Format(time.RFC1123))
	case events.TopicBookingAccepted:
		return "Request accepted", fmt.Sprintf("Your request %q was accepted", b.Title)
	case events.TopicBookingInProgress:
		return "Work started", fmt.Sprintf("Work on %q is underway", b.Title)
	case events.TopicBookingCompleted:
		return "Request completed", fmt.Sprintf("%q was completed", b.Title)
	case events.TopicBookingCancelled:
		return "Request cancelled", fmt.Sprintf("%q was cancelled", b.Title)
	default:
		return "Booking update", fmt.Sprintf("%q changed status to %s", b.Title, b.Status)
	}
}
