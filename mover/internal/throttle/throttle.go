// Package throttle collapses bursts of triggers into at most one run per
// interval: the first trigger in a quiet window runs at once, later ones in
// the same window fold into a single trailing run.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Throttle runs fn asynchronously in response to Trigger.
type Throttle struct {
	clock   clock.WithDelayedExecution
	limiter *rate.Limiter
	fn      func()

	mu      sync.Mutex
	pending bool
	timer   clock.Timer
	stopped bool
	runs    uint64
}

// New creates a Throttle. A nil clock means the real clock.
func New(interval time.Duration, clk clock.WithDelayedExecution, fn func()) *Throttle {
	if clk == nil {
		clk = clock.RealClock{}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		clock:   clk,
		limiter: rate.NewLimiter(limit, 1),
		fn:      fn,
	}
}

// Trigger requests a run. It never blocks and never calls fn on the
// caller's goroutine.
func (t *Throttle) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.pending {
		return
	}
	now := t.clock.Now()
	d := t.limiter.ReserveN(now, 1).DelayFrom(now)
	if d <= 0 {
		go t.run(false)
		return
	}
	t.pending = true
	// The fake clock calls AfterFunc callbacks under its own lock.
	t.timer = t.clock.AfterFunc(d, func() { go t.run(true) })
}

func (t *Throttle) run(trailing bool) {
	t.mu.Lock()
	if trailing {
		t.pending = false
		t.timer = nil
	}
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.runs++
	t.mu.Unlock()
	t.fn()
}

// Pending reports whether a trailing run is scheduled.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Runs counts started runs.
func (t *Throttle) Runs() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

// Stop cancels any scheduled run; later triggers are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
