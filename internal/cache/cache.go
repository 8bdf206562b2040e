package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kmorand/air-quality-service/internal/models"
)

// Store defines the key-value medium backing the read-through cache.
// Get returns (reading, true, nil) on a hit and (zero, false, nil) on a miss.
// Both operations return errors so faults stay observable to instrumentation;
// the fail-soft policy (treat a fault as a miss, discard a write fault) is the
// caller's responsibility, not the store's.
type Store interface {
	Get(ctx context.Context, key string) (models.AirQualityReading, bool, error)
	Set(ctx context.Context, key string, value models.AirQualityReading) error
}

// Record is the persisted layout of one cache entry. TTL is the absolute
// expiration instant in epoch seconds (write time + configured TTL). A record
// whose Data is nil is treated identically to "not found".
type Record struct {
	LocationKey string                    `json:"locationKey"`
	Data        *models.AirQualityReading `json:"data,omitempty"`
	TTL         int64                     `json:"ttl"`
}

// InMemoryCache implements Store with a mutex-protected map of records.
// Expired entries are removed on access. The TTL is fixed at construction.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]Record
	ttl  time.Duration
}

// NewInMemoryCache creates an in-memory store whose entries expire
// ttlSeconds after each write.
func NewInMemoryCache(ttlSeconds int) *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]Record),
		ttl:  time.Duration(ttlSeconds) * time.Second,
	}
}

// Get implements Store.Get. Records past their TTL, and records without
// data, are misses; expired records are deleted on the way out.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.AirQualityReading, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.data[key]
	if !ok {
		return models.AirQualityReading{}, false, nil
	}
	if time.Now().Unix() >= rec.TTL {
		delete(c.data, key)
		return models.AirQualityReading{}, false, nil
	}
	if rec.Data == nil {
		return models.AirQualityReading{}, false, nil
	}
	return *rec.Data, true, nil
}

// Set implements Store.Set. A later write for the same key fully overwrites
// the earlier record.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.AirQualityReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = Record{
		LocationKey: key,
		Data:        &value,
		TTL:         time.Now().Add(c.ttl).Unix(),
	}
	return nil
}
