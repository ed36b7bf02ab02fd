// Package traffic keeps short sliding windows of lookup outcomes. The health
// endpoint reads them to report degraded and overloaded states.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how far back outcomes are kept.
const DefaultRetention = 5 * time.Minute

// Counts is a snapshot of outcomes inside one window.
type Counts struct {
	Success int
	Errors  int
	Denied  int
}

// Total returns all outcomes, denials included.
func (c Counts) Total() int {
	return c.Success + c.Errors + c.Denied
}

// ErrorPct returns errors as a percentage of served requests (denials excluded).
func (c Counts) ErrorPct() float64 {
	served := c.Success + c.Errors
	if served == 0 {
		return 0
	}
	return float64(c.Errors) * 100 / float64(served)
}

// Tracker records outcome timestamps. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time

	success []time.Time
	errors  []time.Time
	denied  []time.Time
}

// New returns a Tracker that forgets outcomes older than retention.
// A non-positive retention uses DefaultRetention.
func New(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// RecordSuccess records a served lookup. Not-found answers count as success.
func (t *Tracker) RecordSuccess() { t.record(&t.success) }

// RecordError records a lookup that failed server-side.
func (t *Tracker) RecordError() { t.record(&t.errors) }

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() { t.record(&t.denied) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// Counts returns the outcomes recorded within window of now.
func (t *Tracker) Counts(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return Counts{
		Success: countSince(t.success, cutoff),
		Errors:  countSince(t.errors, cutoff),
		Denied:  countSince(t.denied, cutoff),
	}
}

// Reset drops everything recorded so far.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.success, t.errors, t.denied = nil, nil, nil
}

// Timestamps are appended in order, so counting walks back from the end.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(times) - 1; i >= 0 && !times[i].Before(cutoff); i-- {
		n++
	}
	return n
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.success)
	prune(&t.errors)
	prune(&t.denied)
}
