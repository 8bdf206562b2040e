package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kmorand/air-quality-service/internal/cache"
	"github.com/kmorand/air-quality-service/internal/cachekey"
	"github.com/kmorand/air-quality-service/internal/client"
	"github.com/kmorand/air-quality-service/internal/models"
	"github.com/kmorand/air-quality-service/internal/observability"
)

// AirQualityService orchestrates air quality retrieval using the cache-aside
// pattern: quantized key, cache lookup, origin fallback, best-effort write-back.
// Cache faults are absorbed here (logged and counted, treated as a miss or
// discarded); origin faults are fatal and surface wrapped to the caller.
type AirQualityService struct {
	client          client.AirQualityClient
	store           cache.Store
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil unless coalescing is enabled
}

// NewAirQualityService creates a service with the provided dependencies.
// coalesceTimeout > 0 together with coalesceEnabled turns on request
// coalescing; the default (off) keeps concurrent misses for one key as
// independent origin fetches.
func NewAirQualityService(client client.AirQualityClient, store cache.Store, coalesceEnabled bool, coalesceTimeout time.Duration) *AirQualityService {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &AirQualityService{
		client:          client,
		store:           store,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetAirQuality returns current air quality for the coordinate pair.
// The cache key is the quantized coordinate; the origin request, when one is
// needed, carries the exact input coordinates. A cache hit returns
// immediately with no origin contact and no write. On a miss the origin is
// called exactly once per invocation; its failure is fatal and wrapped, with
// no stale or partial fallback. A successful fetch is returned to the caller
// and written back best-effort.
func (s *AirQualityService) GetAirQuality(ctx context.Context, latitude, longitude float64) (models.AirQualityReading, error) {
	key := cachekey.MakeKey(latitude, longitude)
	start := time.Now()
	logger := loggerFromContext(ctx)
	observability.RecordAirQualityQuery(key)

	getStart := time.Now()
	cached, ok, err := s.store.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		if logger != nil {
			logger.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("air_quality").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("key", key))
			logger.Debug("air quality served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordHit(key)
	keyLabel := observability.MetricKeyLabel(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(keyLabel).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(keyLabel).Observe(float64(concurrentMisses))
	}

	if logger != nil {
		logger.Debug("cache miss, fetching origin", zap.String("key", key))
	}

	var data models.AirQualityReading
	var fetchErr error
	if s.coalescer != nil {
		waitStart := time.Now()
		var shared bool
		data, shared, fetchErr = s.coalescer.GetOrDo(ctx, key, func() (models.AirQualityReading, error) {
			return s.client.FetchCurrent(ctx, latitude, longitude)
		})
		if fetchErr == nil {
			if shared {
				observability.RequestCoalescingHitsTotal.WithLabelValues(keyLabel).Inc()
			}
			observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
		}
	} else {
		data, fetchErr = s.client.FetchCurrent(ctx, latitude, longitude)
	}
	if fetchErr != nil {
		return models.AirQualityReading{}, fmt.Errorf("Failed to fetch air quality data: %w", fetchErr)
	}

	setStart := time.Now()
	if setErr := s.store.Set(ctx, key, data); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	if logger != nil {
		logger.Debug("air quality served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return data, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
