// Package lifecycle holds process-wide run state shared by the server loop and
// the health endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State tracks start time and the shutdown flag.
type State struct {
	started      time.Time
	shuttingDown atomic.Bool
}

// New returns a State started now.
func New() *State {
	return &State{started: time.Now()}
}

// BeginShutdown flags the process as draining. Health then reports
// shutting-down with 503 so load balancers stop routing here.
func (s *State) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// ShuttingDown reports whether BeginShutdown has been called.
func (s *State) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns time since New.
func (s *State) Uptime() time.Duration {
	return time.Since(s.started)
}
