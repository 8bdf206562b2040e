package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. The health endpoint reports
// shutting-down from then on.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether graceful shutdown has started.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
