package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache wraps the shared redis client for read-side caching and the rate
// limiter's pipeline access.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// AvailabilitySnapshot caches per-function availability for the storefront
// polling endpoint. May be stale up to the TTL; the poll is advisory and
// acquire is authoritative.
type AvailabilitySnapshot struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilitySnapshot(client *redis.Client, ttl time.Duration) *AvailabilitySnapshot {
	return &AvailabilitySnapshot{client: client, ttl: ttl}
}

func (s *AvailabilitySnapshot) Get(ctx context.Context, functionID uuid.UUID) (map[uuid.UUID]int, bool, error) {
	val, err := s.client.Get(ctx, availabilityKey(functionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var avail map[uuid.UUID]int
	if err := json.Unmarshal(val, &avail); err != nil {
		return nil, false, err
	}
	return avail, true, nil
}

func (s *AvailabilitySnapshot) Set(ctx context.Context, functionID uuid.UUID, avail map[uuid.UUID]int) error {
	data, err := json.Marshal(avail)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, availabilityKey(functionID), data, s.ttl).Err()
}

func availabilityKey(functionID uuid.UUID) string {
	return "avail:" + functionID.String()
}
