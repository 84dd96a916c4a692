package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/activity-bookings/internal/booking"
)

// availabilityTTL keeps cached counts short-lived; the store remains
// the source of truth for the actual capacity decision.
const availabilityTTL = 10 * time.Second

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func availabilityKey(sessionID uuid.UUID) string {
	return "availability:" + sessionID.String()
}

func (c *Cache) GetAvailability(ctx context.Context, sessionID uuid.UUID) (*booking.Availability, error) {
	val, err := c.client.Get(ctx, availabilityKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a booking.Availability
	if err := json.Unmarshal(val, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Cache) SetAvailability(ctx context.Context, sessionID uuid.UUID, a booking.Availability) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, availabilityKey(sessionID), data, availabilityTTL).Err()
}

func (c *Cache) InvalidateAvailability(ctx context.Context, sessionID uuid.UUID) error {
	return c.client.Del(ctx, availabilityKey(sessionID)).Err()
}
