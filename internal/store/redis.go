package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mindlist-protocol/mindlist/internal/models"
)

const (
	feedKey     = "feed:events"  // sorted set of recent events, scored by timestamp
	feedChannel = "feed:live"    // pub/sub channel for realtime consumers
	feedTTL     = 24 * time.Hour // recent events older than this are dropped
	feedMaxSize = 1000
)

// RedisStore handles Redis operations: the realtime event feed and the
// backing state for rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// PublishEvent puts an event onto the realtime feed: pub/sub for live
// consumers plus a capped sorted set so late subscribers can catch up.
// Delivery is best-effort; callers treat errors as non-fatal.
func (s *RedisStore) PublishEvent(ctx context.Context, eventType string, payload interface{}) (*models.Event, error) {
	event := &models.Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	pipe.Publish(ctx, feedChannel, data)
	pipe.ZAdd(ctx, feedKey, redis.Z{
		Score:  float64(event.Timestamp),
		Member: string(data),
	})
	pipe.ZRemRangeByRank(ctx, feedKey, 0, -int64(feedMaxSize)-1)
	pipe.Expire(ctx, feedKey, feedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return event, nil
}

// RecentEvents returns up to limit feed events newer than after (Unix ms),
// oldest first.
func (s *RedisStore) RecentEvents(ctx context.Context, after int64, limit int) ([]models.Event, error) {
	entries, err := s.client.ZRangeByScore(ctx, feedKey, &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(after, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(entries))
	for _, entry := range entries {
		var event models.Event
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			continue // skip malformed entries rather than fail the read
		}
		events = append(events, event)
	}
	return events, nil
}
