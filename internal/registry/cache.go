package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"pkt.systems/pslog"

	"registrar/internal/epp"
	"registrar/internal/platform/logger"
	"registrar/internal/registry/metrics"
)

const checkKeyPrefix = "registry:check:"

// checkStore is the subset of the redis client the cache needs; memory
// fakes implement it in tests.
type checkStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CheckCache memoizes domain availability answers. Availability is advisory
// either way (the registry decides again at create time), so serving a
// slightly stale answer is acceptable and spares a wire round-trip.
type CheckCache struct {
	store checkStore
	ttl   time.Duration
	log   pslog.Logger
}

// NewCheckCache builds a cache over the given store. A nil store yields a
// nil cache, which the facade treats as pass-through.
func NewCheckCache(store checkStore, ttl time.Duration, log pslog.Logger) *CheckCache {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CheckCache{
		store: store,
		ttl:   ttl,
		log:   logger.WithSubsystem(log, "registry.cache"),
	}
}

// Get returns a cached availability answer, or nil on miss. Cache errors
// are logged and treated as misses; the wire is the fallback.
func (c *CheckCache) Get(ctx context.Context, name string) *epp.CheckData {
	if c == nil {
		return nil
	}
	raw, err := c.store.Get(ctx, checkKeyPrefix+name)
	if err != nil || raw == "" {
		return nil
	}
	var data epp.CheckData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		c.log.Warn("registrar.cache.decode_failed", "name", name, "error", err)
		return nil
	}
	metrics.CheckCacheHits.Inc()
	return &data
}

// Put stores an availability answer for the configured TTL.
func (c *CheckCache) Put(ctx context.Context, name string, data *epp.CheckData) {
	if c == nil || data == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, checkKeyPrefix+name, string(raw), c.ttl); err != nil {
		c.log.Warn("registrar.cache.write_failed", "name", name, "error", err)
	}
}

// RedisCheckStore adapts a go-redis client to the cache's store contract.
// A redis miss is reported as an empty value, not an error.
type RedisCheckStore struct {
	Client *goredis.Client
}

func (s *RedisCheckStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.Client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *RedisCheckStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}
