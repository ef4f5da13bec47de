package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// History archives relayed chat messages so participants can replay
// them after a reconnect. Bounded per booking; not a durable record.
type History interface {
	Append(ctx context.Context, m Message) error
	List(ctx context.Context, bookingID string) ([]Message, error)
}

// RedisHistory keeps the most recent messages per booking in a Redis
// list, trimmed to a fixed length and expired after the TTL.
type RedisHistory struct {
	client *redis.Client
	limit  int64
	ttl    time.Duration
}

func NewRedisHistory(client *redis.Client, limit int, ttl time.Duration) *RedisHistory {
	if limit <= 0 {
		limit = 100
	}
	return &RedisHistory{client: client, limit: int64(limit), ttl: ttl}
}

func historyKey(bookingID string) string {
	return "chat:booking:" + bookingID
}

func (h *RedisHistory) Append(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	key := historyKey(m.BookingID)
	pipe := h.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, h.limit-1)
	pipe.Expire(ctx, key, h.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns the archived messages oldest-first.
func (h *RedisHistory) List(ctx context.Context, bookingID string) ([]Message, error) {
	raw, err := h.client.LRange(ctx, historyKey(bookingID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m Message
		if err := json.Unmarshal([]byte(raw[i]), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
