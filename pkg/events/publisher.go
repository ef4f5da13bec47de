package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fixitnow/bookings/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DeadLetterSink receives events that exhausted every delivery attempt.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, evt Event, cause error)
}

// LogSink records dead-lettered events in the log for operator
// follow-up.
type LogSink struct{}

func (LogSink) DeadLetter(ctx context.Context, evt Event, cause error) {
	logger.ErrorContext(ctx, "event dead-lettered",
		"event_id", evt.ID,
		"type", evt.Type,
		"booking_id", evt.BookingID,
		"attempts", evt.Attempts,
		"error", cause,
	)
}

// RedisSink keeps dead-lettered events in a Redis list so operators can
// inspect and replay them.
type RedisSink struct {
	Client *redis.Client
	Key    string
}

func (s *RedisSink) DeadLetter(ctx context.Context, evt Event, cause error) {
	LogSink{}.DeadLetter(ctx, evt, cause)

	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := s.Client.LPush(ctx, s.Key, data).Err(); err != nil {
		logger.ErrorContext(ctx, "failed to store dead-lettered event", "error", err, "event_id", evt.ID)
	}
}

type PublisherOptions struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Publisher delivers events to the transport with bounded retries and
// exponential backoff, then dead-letters. Delivery for the same booking
// id is serialized (FIFO per key); different bookings proceed
// independently. Enqueue never blocks the caller and never reports
// failure back: a committed transition is never rolled back because of
// downstream delivery problems.
type Publisher struct {
	transport   Transport
	sink        DeadLetterSink
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	// sleep is swapped out in tests
	sleep func(time.Duration)

	mu     sync.Mutex
	queues map[string][]Event
	wg     sync.WaitGroup
}

func NewPublisher(transport Transport, sink DeadLetterSink, opts PublisherOptions) *Publisher {
	if sink == nil {
		sink = LogSink{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 100 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 5 * time.Second
	}
	return &Publisher{
		transport:   transport,
		sink:        sink,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
		sleep:       time.Sleep,
		queues:      make(map[string][]Event),
	}
}

// Enqueue hands an event to the publisher. Events sharing a booking id
// are delivered in enqueue order; a drain goroutine per key works the
// queue down and exits when it is empty.
func (p *Publisher) Enqueue(evt Event) {
	key := evt.BookingID

	p.mu.Lock()
	pending, draining := p.queues[key]
	p.queues[key] = append(pending, evt)
	p.mu.Unlock()

	if !draining {
		p.wg.Add(1)
		go p.drain(key)
	}
}

func (p *Publisher) drain(key string) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		pending := p.queues[key]
		if len(pending) == 0 {
			delete(p.queues, key)
			p.mu.Unlock()
			return
		}
		evt := pending[0]
		p.queues[key] = pending[1:]
		p.mu.Unlock()

		p.deliver(evt)
	}
}

func (p *Publisher) deliver(evt Event) {
	ctx := context.Background()

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		evt.Attempts = attempt

		data, err := json.Marshal(evt)
		if err != nil {
			p.sink.DeadLetter(ctx, evt, err)
			return
		}

		lastErr = p.transport.Publish(ctx, evt.Type, data)
		if lastErr == nil {
			logger.Debug("event published",
				"event_id", evt.ID, "type", evt.Type, "booking_id", evt.BookingID, "attempts", attempt)
			return
		}

		if attempt < p.maxAttempts {
			p.sleep(p.backoff(attempt))
		}
	}

	p.sink.DeadLetter(ctx, evt, lastErr)
}

func (p *Publisher) backoff(attempt int) time.Duration {
	d := p.backoffBase << (attempt - 1)
	if d > p.backoffCap {
		d = p.backoffCap
	}
	return d
}

// Flush blocks until every queued event has been delivered or
// dead-lettered.
func (p *Publisher) Flush() {
	p.wg.Wait()
}
