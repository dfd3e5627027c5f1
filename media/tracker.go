package media

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by a Tracker after Close.
var ErrClosed = errors.New("media: tracker closed")

// Tracker caches the truth value of every registered predicate and turns
// evaluator notifications into edge-triggered callbacks: a listener only
// hears about a predicate when its value differs from the cached one.
//
// A predicate is either a media query or a breakpoint name ("md", "@md").
type Tracker struct {
	eval   Evaluator
	bp     Breakpoints
	logger *slog.Logger

	regMu sync.Mutex // serialises registration against the evaluator
	// edgeMu orders deliveries so a Sync cannot publish a value read
	// before a newer evaluator notification.
	edgeMu sync.Mutex

	mu     sync.Mutex
	nextID uint64
	preds  map[string]*predicate
	any    []anyListener
	closed bool
}

type predicate struct {
	query     string
	matches   bool
	unsub     func()
	listeners []listener
}

type listener struct {
	id uint64
	fn func(bool)
}

type anyListener struct {
	id uint64
	fn func(pred string, matches bool)
}

// NewTracker creates a Tracker over eval. bp may be nil.
func NewTracker(eval Evaluator, bp Breakpoints, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if bp == nil {
		bp = Breakpoints{}
	}
	return &Tracker{
		eval:   eval,
		bp:     bp,
		logger: logger,
		preds:  make(map[string]*predicate),
	}
}

// Query returns the media query pred resolves to.
func (t *Tracker) Query(pred string) string { return t.bp.Resolve(pred) }

// Validate checks that pred resolves to a parseable query.
func (t *Tracker) Validate(pred string) error {
	_, err := Parse(t.bp.Resolve(pred))
	return err
}

// Register starts tracking pred and returns its current value. Registering
// an already tracked predicate is cheap and returns the cached value.
func (t *Tracker) Register(pred string) (bool, error) {
	t.regMu.Lock()
	defer t.regMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false, ErrClosed
	}
	if p, ok := t.preds[pred]; ok {
		v := p.matches
		t.mu.Unlock()
		return v, nil
	}
	t.mu.Unlock()

	query := t.bp.Resolve(pred)
	v, err := t.eval.Evaluate(query)
	if err != nil {
		return false, err
	}
	p := &predicate{query: query, matches: v}

	t.mu.Lock()
	t.preds[pred] = p
	t.mu.Unlock()

	unsub, err := t.eval.Subscribe(query, func(m bool) {
		t.edgeMu.Lock()
		defer t.edgeMu.Unlock()
		t.deliver(pred, m)
	})
	if err != nil {
		t.mu.Lock()
		delete(t.preds, pred)
		t.mu.Unlock()
		return false, err
	}

	t.mu.Lock()
	p.unsub = unsub
	t.mu.Unlock()
	return v, nil
}

// OnChange registers pred if needed and calls fn on every edge. The
// returned func stops the listener; the predicate is released once its last
// listener is gone.
func (t *Tracker) OnChange(pred string, fn func(matches bool)) (func(), error) {
	if _, err := t.Register(pred); err != nil {
		return nil, err
	}
	t.mu.Lock()
	p, ok := t.preds[pred]
	if !ok {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.nextID++
	id := t.nextID
	p.listeners = append(p.listeners, listener{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { t.release(pred, id) }) }, nil
}

// OnAny calls fn on every edge of every tracked predicate, before the
// per-predicate listeners.
func (t *Tracker) OnAny(fn func(pred string, matches bool)) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.any = append(t.any, anyListener{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.any {
			if l.id == id {
				t.any = append(t.any[:i:i], t.any[i+1:]...)
				return
			}
		}
	}
}

func (t *Tracker) release(pred string, id uint64) {
	var unsub func()
	t.mu.Lock()
	if p, ok := t.preds[pred]; ok {
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
				break
			}
		}
		if len(p.listeners) == 0 {
			unsub = p.unsub
			delete(t.preds, pred)
		}
	}
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Matches returns the cached value of a tracked predicate, or evaluates an
// untracked one directly.
func (t *Tracker) Matches(pred string) (bool, error) {
	t.mu.Lock()
	if p, ok := t.preds[pred]; ok {
		v := p.matches
		t.mu.Unlock()
		return v, nil
	}
	t.mu.Unlock()
	return t.eval.Evaluate(t.bp.Resolve(pred))
}

// Sync re-evaluates pred now. If the value differs from the cache an edge
// is delivered as if the evaluator had reported it.
func (t *Tracker) Sync(pred string) (bool, error) {
	t.edgeMu.Lock()
	defer t.edgeMu.Unlock()
	v, err := t.eval.Evaluate(t.bp.Resolve(pred))
	if err != nil {
		return false, err
	}
	t.deliver(pred, v)
	return v, nil
}

// Predicates lists the tracked predicates.
func (t *Tracker) Predicates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.preds))
	for k := range t.preds {
		out = append(out, k)
	}
	return out
}

func (t *Tracker) deliver(pred string, m bool) {
	t.mu.Lock()
	p, ok := t.preds[pred]
	if !ok || p.matches == m {
		t.mu.Unlock()
		return
	}
	p.matches = m
	anys := append([]anyListener(nil), t.any...)
	ls := append([]listener(nil), p.listeners...)
	t.mu.Unlock()

	t.logger.Debug("media: predicate changed", "predicate", pred, "query", p.query, "matches", m)
	for _, l := range anys {
		l.fn(pred, m)
	}
	for _, l := range ls {
		l.fn(m)
	}
}

// Close unsubscribes from the evaluator and drops all listeners.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	preds := t.preds
	t.preds = make(map[string]*predicate)
	t.any = nil
	t.mu.Unlock()

	for _, p := range preds {
		if p.unsub != nil {
			p.unsub()
		}
	}
}
