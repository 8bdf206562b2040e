package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests currently inside the handler chain. The
// shutdown path polls it so the server only exits once every accepted
// request has been answered.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment marks one request as entered.
func (t *InFlightTracker) Increment() {
	t.count.Add(1)
}

// Decrement marks one request as finished.
func (t *InFlightTracker) Decrement() {
	t.count.Add(-1)
}

// Count reports how many requests are currently in flight.
func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero polls the count at checkInterval until it reaches zero,
// returning ctx.Err() if the context expires first.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for t.Count() != 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// globalInFlightTracker is shared between MetricsMiddleware and the shutdown
// sequence in main.
var globalInFlightTracker = &InFlightTracker{}

// InFlightCount reports the number of requests currently being served.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until all in-flight requests have finished or ctx
// expires, polling at checkInterval.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, checkInterval)
}
