package dom

import "sync"

// ManualVisibility is a VisibilitySource driven by explicit Reveal calls.
// Server-side renders use it with RevealAll to flush deferred placements.
type ManualVisibility struct {
	mu      sync.Mutex
	next    uint64
	pending map[Node]map[uint64]func()
}

// NewManualVisibility returns an empty ManualVisibility.
func NewManualVisibility() *ManualVisibility {
	return &ManualVisibility{pending: make(map[Node]map[uint64]func())}
}

// OnVisible registers a one-shot callback for n.
func (v *ManualVisibility) OnVisible(n Node, fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.next++
	id := v.next
	if v.pending[n] == nil {
		v.pending[n] = make(map[uint64]func())
	}
	v.pending[n][id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.pending[n], id)
		if len(v.pending[n]) == 0 {
			delete(v.pending, n)
		}
	}
}

// Reveal fires and drops every callback registered for n.
func (v *ManualVisibility) Reveal(n Node) int {
	v.mu.Lock()
	fns := v.pending[n]
	delete(v.pending, n)
	v.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// RevealAll fires every pending callback.
func (v *ManualVisibility) RevealAll() int {
	v.mu.Lock()
	all := v.pending
	v.pending = make(map[Node]map[uint64]func())
	v.mu.Unlock()
	n := 0
	for _, fns := range all {
		for _, fn := range fns {
			fn()
			n++
		}
	}
	return n
}

// Pending reports the number of registered callbacks.
func (v *ManualVisibility) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, fns := range v.pending {
		n += len(fns)
	}
	return n
}
