package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kmorand/air-quality-service/internal/models"
	"github.com/kmorand/air-quality-service/internal/observability"
)

// AirQualityFetcher is implemented by the service layer to fetch air quality
// for a coordinate pair. Used by Warmer to avoid a circular dependency on the
// service package.
type AirQualityFetcher interface {
	GetAirQuality(ctx context.Context, latitude, longitude float64) (models.AirQualityReading, error)
}

// Coordinate is one warm-up target.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Warmer prefetches air quality for a list of coordinates through the service
// layer, so warmed entries go through the same key quantization and record
// layout as live traffic.
type Warmer struct {
	fetcher AirQualityFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher AirQualityFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches air quality for each coordinate concurrently, populating the
// cache via the fetcher. Returns an aggregated error if any coordinate failed.
func (w *Warmer) Warm(ctx context.Context, coords []Coordinate) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("coordinates", len(coords)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(coords))
	for _, c := range coords {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.GetAirQuality(ctx, c.Latitude, c.Longitude); err != nil {
				errCh <- fmt.Errorf("warm %v,%v: %w", c.Latitude, c.Longitude, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("coordinates", len(coords)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, coords []Coordinate, interval time.Duration) error {
	if err := w.Warm(ctx, coords); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, coords); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
