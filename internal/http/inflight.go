package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests currently inside the router. The server
// loop waits on it after Shutdown stops the listener.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment marks one request as started.
func (t *InFlightTracker) Increment() {
	t.count.Add(1)
}

// Decrement marks one request as finished.
func (t *InFlightTracker) Decrement() {
	t.count.Add(-1)
}

// Count reports requests still being served.
func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero polls every checkInterval until nothing is in flight. It returns
// ctx.Err() if ctx ends first.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	if t.Count() == 0 {
		return nil
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.Count() == 0 {
				return nil
			}
		}
	}
}

// requests is maintained by MetricsMiddleware.
var requests = &InFlightTracker{}

// InFlightCount reports requests currently inside the router.
func InFlightCount() int64 {
	return requests.Count()
}

// WaitForInFlight blocks until InFlightCount is zero or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return requests.WaitForZero(ctx, checkInterval)
}
