package traffic

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(retention time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := New(retention)
	tr.now = clock.now
	return tr, clock
}

func TestCounts_Empty(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	c := tr.Counts(time.Minute)
	if c.Total() != 0 || c.ErrorPct() != 0 {
		t.Errorf("Counts() = %+v, want zero", c)
	}
}

func TestCounts_ByOutcome(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()

	c := tr.Counts(time.Minute)
	if c.Success != 3 || c.Errors != 1 || c.Denied != 1 {
		t.Errorf("Counts() = %+v", c)
	}
	if c.Total() != 5 {
		t.Errorf("Total() = %d, want 5", c.Total())
	}
	if c.ErrorPct() != 25 {
		t.Errorf("ErrorPct() = %v, want 25", c.ErrorPct())
	}
}

func TestCounts_WindowExcludesOld(t *testing.T) {
	tr, clock := newTestTracker(time.Hour)
	tr.RecordError()
	clock.advance(2 * time.Minute)
	tr.RecordSuccess()

	c := tr.Counts(time.Minute)
	if c.Errors != 0 || c.Success != 1 {
		t.Errorf("Counts(1m) = %+v, want 1 success only", c)
	}
	c = tr.Counts(5 * time.Minute)
	if c.Errors != 1 || c.Success != 1 {
		t.Errorf("Counts(5m) = %+v, want both", c)
	}
}

func TestRetention_Prunes(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	tr.RecordDenied()
	clock.advance(2 * time.Minute)
	tr.RecordDenied()

	tr.mu.Lock()
	n := len(tr.denied)
	tr.mu.Unlock()
	if n != 1 {
		t.Errorf("retained %d denials, want 1", n)
	}
}

func TestReset(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	tr.RecordSuccess()
	tr.Reset()
	if got := tr.Counts(time.Minute).Total(); got != 0 {
		t.Errorf("Total() after Reset = %d, want 0", got)
	}
}

func TestNew_DefaultRetention(t *testing.T) {
	if tr := New(0); tr.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", tr.retention, DefaultRetention)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordSuccess()
			_ = tr.Counts(time.Minute)
		}()
	}
	wg.Wait()
	if got := tr.Counts(time.Minute).Success; got != 50 {
		t.Errorf("Success = %d, want 50", got)
	}
}
