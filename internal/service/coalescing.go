package service

import (
	"context"
	"sync"
	"time"

	"github.com/kmorand/air-quality-service/internal/models"
)

// inFlightCall is one origin fetch that concurrent callers may share.
type inFlightCall struct {
	done   chan struct{}
	result models.AirQualityReading
	err    error
}

// requestCoalescer shares a single in-flight origin call among concurrent
// misses for the same key. Only constructed when coalescing is enabled.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall
	timeout  time.Duration
}

// newRequestCoalescer creates a requestCoalescer with the specified wait timeout.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightCall),
		timeout:  timeout,
	}
}

// GetOrDo executes fn for key, or waits for an already in-flight execution.
// shared is true when the result came from another caller's fetch. Waiting is
// bounded by the coalescer timeout and the caller's context.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.AirQualityReading, error)) (result models.AirQualityReading, shared bool, err error) {
	rc.mu.Lock()
	if call, ok := rc.inFlight[key]; ok {
		rc.mu.Unlock()
		waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		defer cancel()
		select {
		case <-call.done:
			return call.result, true, call.err
		case <-waitCtx.Done():
			return models.AirQualityReading{}, false, waitCtx.Err()
		}
	}

	call := &inFlightCall{done: make(chan struct{})}
	rc.inFlight[key] = call
	rc.mu.Unlock()

	call.result, call.err = fn()

	// Deregister before signalling so a caller arriving after completion
	// starts a fresh fetch instead of reading a settled one.
	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(call.done)

	return call.result, false, call.err
}
