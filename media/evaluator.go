package media

import (
	"sync"
)

// Evaluator answers media queries and notifies on changes. Subscribers are
// called with the new value whenever the evaluator observes a change; they
// may be called spuriously, edge filtering is the Tracker's job.
type Evaluator interface {
	Evaluate(query string) (bool, error)
	Subscribe(query string, fn func(matches bool)) (unsubscribe func(), err error)
}

// Subscriptions is ordered edge bookkeeping for evaluators that re-evaluate
// a set of queries in bulk (Emulator, browser.Media).
type Subscriptions struct {
	mu      sync.Mutex
	next    uint64
	entries []*subscription
}

type subscription struct {
	id    uint64
	query string
	last  bool
	fn    func(bool)
}

// Add registers fn for query with the value it currently has.
func (s *Subscriptions) Add(query string, current bool, fn func(bool)) (cancel func()) {
	s.mu.Lock()
	s.next++
	sub := &subscription{id: s.next, query: query, last: current, fn: fn}
	s.entries = append(s.entries, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(sub.id) })
	}
}

func (s *Subscriptions) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

// Len reports the number of live subscriptions.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Queries returns the distinct subscribed queries in subscription order.
func (s *Subscriptions) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(s.entries))
	var out []string
	for _, e := range s.entries {
		if !seen[e.query] {
			seen[e.query] = true
			out = append(out, e.query)
		}
	}
	return out
}

// Refresh re-evaluates every subscription and calls those whose value
// flipped, in subscription order, after the internal lock is released.
// Queries that fail to evaluate keep their last value.
func (s *Subscriptions) Refresh(eval func(query string) (bool, error)) int {
	type call struct {
		fn func(bool)
		v  bool
	}
	cache := make(map[string]bool)
	var calls []call

	s.mu.Lock()
	for _, e := range s.entries {
		v, ok := cache[e.query]
		if !ok {
			var err error
			v, err = eval(e.query)
			if err != nil {
				continue
			}
			cache[e.query] = v
		}
		if v != e.last {
			e.last = v
			calls = append(calls, call{e.fn, v})
		}
	}
	s.mu.Unlock()

	for _, c := range calls {
		c.fn(c.v)
	}
	return len(calls)
}

// maxParsed bounds an Emulator's parsed query cache.
const maxParsed = 256

// Emulator evaluates queries against a settable viewport. It backs the
// HTML document tree, which has no layout of its own.
type Emulator struct {
	mu     sync.RWMutex
	vp     Viewport
	parsed map[string]Query
	subs   Subscriptions
}

// NewEmulator returns an Emulator starting at vp.
func NewEmulator(vp Viewport) *Emulator {
	return &Emulator{vp: vp}
}

// Viewport implements ViewportReporter.
func (e *Emulator) Viewport() Viewport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vp
}

// Evaluate implements Evaluator.
func (e *Emulator) Evaluate(query string) (bool, error) {
	q, err := e.parse(query)
	if err != nil {
		return false, err
	}
	return q.Match(e.Viewport()), nil
}

// parse caches compiled queries; the cache starts over once it holds
// maxParsed entries.
func (e *Emulator) parse(src string) (Query, error) {
	e.mu.RLock()
	q, ok := e.parsed[src]
	e.mu.RUnlock()
	if ok {
		return q, nil
	}
	q, err := Parse(src)
	if err != nil {
		return Query{}, err
	}
	e.mu.Lock()
	if e.parsed == nil || len(e.parsed) >= maxParsed {
		e.parsed = make(map[string]Query)
	}
	e.parsed[src] = q
	e.mu.Unlock()
	return q, nil
}

// Subscribe implements Evaluator.
func (e *Emulator) Subscribe(query string, fn func(bool)) (func(), error) {
	v, err := e.Evaluate(query)
	if err != nil {
		return nil, err
	}
	return e.subs.Add(query, v, fn), nil
}

// SetViewport changes the viewport and notifies every subscription whose
// query flipped. It returns the number of notifications delivered.
// Callbacks must not call SetViewport re-entrantly.
func (e *Emulator) SetViewport(vp Viewport) int {
	e.mu.Lock()
	e.vp = vp
	e.mu.Unlock()
	return e.subs.Refresh(e.Evaluate)
}

// Resize is SetViewport keeping the media type.
func (e *Emulator) Resize(width, height float64) int {
	vp := e.Viewport()
	vp.Width, vp.Height = width, height
	return e.SetViewport(vp)
}
