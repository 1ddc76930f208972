// Package cache memoizes session summaries in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when NewSummaryCache receives a zero TTL.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "chemviz:summary:"

// SummaryCache implements core.SummaryMemo over a go-redis client.
type SummaryCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ core.SummaryMemo = (*SummaryCache)(nil)

// NewSummaryCache wraps an existing client.
func NewSummaryCache(rdb redis.UniversalClient, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SummaryCache{rdb: rdb, ttl: ttl}
}

// Connect parses a redis:// URL, pings the server and returns a cache.
func Connect(ctx context.Context, url string, ttl time.Duration) (*SummaryCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewSummaryCache(client, ttl), nil
}

func key(sessionID int64) string {
	return keyPrefix + strconv.FormatInt(sessionID, 10)
}

// Get returns ok=false on a miss.
func (c *SummaryCache) Get(ctx context.Context, sessionID int64) (core.Summary, bool, error) {
	raw, err := c.rdb.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Summary{}, false, nil
	}
	if err != nil {
		return core.Summary{}, false, fmt.Errorf("redis get: %w", err)
	}

	var s core.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return core.Summary{}, false, fmt.Errorf("decode cached summary: %w", err)
	}
	if s.TypeDistribution == nil {
		s.TypeDistribution = map[string]int{}
	}
	return s, true, nil
}

func (c *SummaryCache) Set(ctx context.Context, sessionID int64, s core.Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.rdb.Set(ctx, key(sessionID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Evict removes the given sessions' entries.
func (c *SummaryCache) Evict(ctx context.Context, sessionIDs ...int64) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = key(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *SummaryCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *SummaryCache) Close() error {
	return c.rdb.Close()
}
