package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adhand/internal/metrics"
	"adhand/internal/timetable"
	logx "adhand/pkg/logx"
)

// Cache stores fetched slots keyed by date and location.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Cached serves repeated fetches for the same date from a Cache. Cache
// failures are logged and fall through to the wrapped provider.
type Cached struct {
	next    Provider
	cache   Cache
	ttl     time.Duration
	log     logx.Logger
	metrics metrics.Sink
}

var _ Provider = (*Cached)(nil)

func NewCached(next Provider, cache Cache, ttl time.Duration, log logx.Logger, m metrics.Sink) *Cached {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cached{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		log:     log.With(logx.String("comp", "provider.cache")),
		metrics: metrics.Or(m),
	}
}

type cachedSlot struct {
	Clock string `json:"clock"`
	Name  string `json:"name"`
}

func cacheKey(date time.Time, loc Location) string {
	return fmt.Sprintf("adhand:timetable:%s:%s", date.Format(timetable.DateLayout), loc.Key())
}

func (c *Cached) Fetch(ctx context.Context, date time.Time, loc Location) ([]timetable.Slot, error) {
	key := cacheKey(date, loc)

	raw, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.log.Warn("cache get failed", logx.String("key", key), logx.Err(err))
	case ok:
		var cs []cachedSlot
		if err := json.Unmarshal(raw, &cs); err != nil {
			c.log.Warn("cache entry corrupt", logx.String("key", key), logx.Err(err))
			break
		}
		c.metrics.ProviderCache(true)
		out := make([]timetable.Slot, len(cs))
		for i, s := range cs {
			out[i] = timetable.Slot{Clock: s.Clock, Name: s.Name}
		}
		return out, nil
	}
	c.metrics.ProviderCache(false)

	slots, err := c.next.Fetch(ctx, date, loc)
	if err != nil {
		return nil, err
	}
	cs := make([]cachedSlot, len(slots))
	for i, s := range slots {
		cs[i] = cachedSlot{Clock: s.Clock, Name: s.Name}
	}
	if b, err := json.Marshal(cs); err == nil {
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.log.Warn("cache set failed", logx.String("key", key), logx.Err(err))
		}
	}
	return slots, nil
}

// RedisCache implements Cache on a go-redis client.
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return b, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.client.Close() }
