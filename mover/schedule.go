package mover

import (
	"context"

	"github.com/hazyhaar/domshift/dom"
)

// observe feeds tree mutations into the rescan throttle.
func (e *Engine) observe() {
	if e.opts.DisableMutations || e.stopObserve != nil {
		return
	}
	src := e.opts.Mutations
	if src == nil {
		ms, ok := e.tree.(dom.MutationSource)
		if !ok {
			return
		}
		src = ms
	}
	e.stopObserve = src.Observe(e.tree.Root(), e.sched.Trigger)
}

func (e *Engine) unobserve() {
	if e.stopObserve != nil {
		e.stopObserve()
		e.stopObserve = nil
	}
}

// rescan re-reads every predicate and reconciles each rule with it: true
// activates or re-applies, false deactivates an active rule. Predicates are
// synced without the lock held because a changed value is delivered as a
// regular edge.
func (e *Engine) rescan(ctx context.Context) {
	e.mu.Lock()
	if !e.initialized || e.paused || e.destroyed {
		e.unlock()
		return
	}
	seen := make(map[string]bool)
	var preds []string
	for _, rs := range e.rules.Values() {
		if p := rs.rule.Predicate; !seen[p] {
			seen[p] = true
			preds = append(preds, p)
		}
	}
	e.unlock()

	for _, p := range preds {
		if _, err := e.tracker.Sync(p); err != nil {
			e.logger.Warn("mover: predicate sync failed", "predicate", p, "error", err)
		}
	}

	e.mu.Lock()
	defer e.unlock()
	if !e.initialized || e.paused || e.destroyed {
		return
	}
	for _, rs := range e.rules.Values() {
		if cur, ok := e.rules.Get(rs.id); !ok || cur != rs {
			continue
		}
		m, err := e.tracker.Matches(rs.rule.Predicate)
		if err != nil {
			e.report("predicate evaluation failed", err, map[string]any{"rule": rs.id})
			continue
		}
		e.evaluate(ctx, rs, m)
	}
	e.debug("rescan done", "rules", e.rules.Len(), "placed", e.ledger.Placements.Len())
}
