package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kmorand/air-quality-service/internal/models"
)

const keyPrefix = "airquality:"

// MemcachedCache implements Store using memcached. Values are stored as a
// JSON Record envelope so the persisted layout ({locationKey, data, ttl})
// matches the other backends; memcached's own relative expiration mirrors
// the record TTL and handles removal.
type MemcachedCache struct {
	client     *memcache.Client
	ttlSeconds int
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated
// server list and is required; there is no default, a missing store
// identifier is a startup error rather than a silent fallback. timeout and
// maxIdleConns use package defaults if zero.
func NewMemcachedCache(addrs string, ttlSeconds int, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: server address list is required")
	}
	const maxRelativeExp = 30 * 24 * 60 * 60 // memcached treats larger values as absolute timestamps
	if ttlSeconds <= 0 || ttlSeconds > maxRelativeExp {
		return nil, fmt.Errorf("memcached: ttl seconds must be in (0, %d], got %d", maxRelativeExp, ttlSeconds)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, ttlSeconds: ttlSeconds}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Store.Get. Returns false, nil on a miss or on a record
// without data; false, err on lookup or decode failure.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.AirQualityReading, bool, error) {
	if ctx.Err() != nil {
		return models.AirQualityReading{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.AirQualityReading{}, false, nil
		}
		return models.AirQualityReading{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return models.AirQualityReading{}, false, err
	}
	if rec.Data == nil {
		return models.AirQualityReading{}, false, nil
	}
	return *rec.Data, true, nil
}

// Set implements Store.Set. The record TTL is now + the configured seconds.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.AirQualityReading) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	rec := Record{
		LocationKey: key,
		Data:        &value,
		TTL:         time.Now().Add(time.Duration(c.ttlSeconds) * time.Second).Unix(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: int32(c.ttlSeconds),
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
