// Package cache is an optional Redis layer over availability reads.
// Every operation fails open: a missing or broken Redis never blocks
// a request, it only costs a recompute.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client with JSON encoding and a fixed TTL.
// A nil Cache or a zero TTL disables it entirely.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache. Pass nil client to run without caching.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether the cache will serve reads and writes.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get reads and decodes a cached value. Returns false on miss or any
// Redis or decode error.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	if !c.Enabled() {
		return false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// Set encodes and stores a value with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, val any) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, data, c.ttl).Err()
}

// InvalidateDay drops all cached availability for a schedule and date,
// across every agent lane. Called after a booking commits or changes
// status so stale slot lists never outlive the TTL by surprise.
func (c *Cache) InvalidateDay(ctx context.Context, scheduleID int64, date string) {
	if !c.Enabled() {
		return
	}
	pattern := fmt.Sprintf("availability:%d:*:%s", scheduleID, date)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}

// AvailabilityKey builds the cache key for one schedule/agent/date query.
func AvailabilityKey(scheduleID int64, agentID *int64, serviceID *int64, date string) string {
	agent := "0"
	if agentID != nil {
		agent = fmt.Sprintf("%d", *agentID)
	}
	service := "0"
	if serviceID != nil {
		service = fmt.Sprintf("%d", *serviceID)
	}
	return fmt.Sprintf("availability:%d:%s.%s:%s", scheduleID, agent, service, date)
}
