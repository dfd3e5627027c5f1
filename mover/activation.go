package mover

import (
	"context"
	"fmt"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/mover/internal/ledger"
)

// ruleState is the activation state machine of one rule. A rule is either
// active or inactive; gen increases on every transition so continuations
// scheduled under an older activation can tell they are stale.
type ruleState struct {
	id     string
	rule   *Rule
	active bool
	gen    uint64
	off    func()

	nextWait uint64
	waits    map[uint64]wait
}

// wait is a delayed or visibility-deferred item continuation.
type wait struct {
	item int
	stop func()
}

func (rs *ruleState) current(gen uint64) bool { return rs.active && rs.gen == gen }

func (rs *ruleState) info(matches bool) RuleInfo {
	return RuleInfo{ID: rs.id, Predicate: rs.rule.Predicate, Matches: matches}
}

func (rs *ruleState) waiting(item int) bool {
	for _, w := range rs.waits {
		if w.item == item {
			return true
		}
	}
	return false
}

func (rs *ruleState) reserveWait(item int) uint64 {
	if rs.waits == nil {
		rs.waits = make(map[uint64]wait)
	}
	rs.nextWait++
	rs.waits[rs.nextWait] = wait{item: item}
	return rs.nextWait
}

func (rs *ruleState) setWait(id uint64, stop func()) {
	if w, ok := rs.waits[id]; ok {
		w.stop = stop
		rs.waits[id] = w
	}
}

func (rs *ruleState) doneWait(id uint64) { delete(rs.waits, id) }

func (rs *ruleState) cancelPending() {
	for _, w := range rs.waits {
		if w.stop != nil {
			w.stop()
		}
	}
	rs.waits = nil
}

type nopItemHooks struct{}

func (nopItemHooks) Moved(context.Context, MoveInfo) error { return nil }

// register validates r and stores a private copy.
func (e *Engine) register(r Rule) (*ruleState, error) {
	rule := r
	rule.Items = append([]Item(nil), r.Items...)
	rule.Target = append([]string(nil), r.Target...)
	if r.Group != nil {
		g := *r.Group
		rule.Group = &g
	}
	if rule.ID == "" {
		for {
			e.nextRule++
			id := fmt.Sprintf("rule-%d", e.nextRule)
			if !e.rules.Has(id) {
				rule.ID = id
				break
			}
		}
	} else if e.rules.Has(rule.ID) {
		return nil, &ConfigurationError{Rule: rule.ID, Field: "id", Reason: "duplicate"}
	}
	if err := rule.validate(e.tracker); err != nil {
		return nil, err
	}
	if rule.Hooks == nil {
		rule.Hooks = NopLifecycle{}
	}
	for i := range rule.Items {
		if rule.Items[i].Hooks == nil {
			rule.Items[i].Hooks = nopItemHooks{}
		}
	}
	rs := &ruleState{id: rule.ID, rule: &rule}
	e.rules.Put(rule.ID, rs)
	return rs, nil
}

func (e *Engine) subscribe(rs *ruleState) error {
	id := rs.id
	off, err := e.tracker.OnChange(rs.rule.Predicate, func(m bool) { e.onRuleEdge(id, m) })
	if err != nil {
		return err
	}
	rs.off = off
	return nil
}

func (e *Engine) onRuleEdge(id string, matches bool) {
	e.mu.Lock()
	defer e.unlock()
	if !e.initialized || e.paused || e.destroyed {
		return
	}
	rs, ok := e.rules.Get(id)
	if !ok {
		return
	}
	e.evaluate(e.ctx, rs, matches)
}

func (e *Engine) onPredicateEdge(pred string, matches bool) {
	e.mu.Lock()
	defer e.unlock()
	if !e.initialized || e.destroyed {
		return
	}
	e.emit(Event{
		Type:      EventBreakpointChange,
		Predicate: pred,
		Matches:   matches,
		Detail:    map[string]any{"query": e.tracker.Query(pred)},
	})
}

// evaluate drives the state machine to the state matches (and the rule's
// condition) call for. An active rule that should stay active is re-applied.
func (e *Engine) evaluate(ctx context.Context, rs *ruleState, matches bool) {
	want := matches
	if want && rs.rule.Condition != nil {
		env := ConditionEnv{
			RuleID:    rs.id,
			Predicate: rs.rule.Predicate,
			Query:     e.tracker.Query(rs.rule.Predicate),
			Matches:   matches,
			Viewport:  e.viewport(),
		}
		ok, err := protectBool("condition", func() (bool, error) { return rs.rule.Condition(ctx, env) })
		if err != nil {
			e.report("condition failed", err, map[string]any{"rule": rs.id})
		}
		want = ok
	}
	switch {
	case want && rs.active:
		e.apply(ctx, rs, false)
	case want:
		e.activate(ctx, rs)
	case rs.active:
		e.deactivate(ctx, rs)
	}
}

func (e *Engine) activate(ctx context.Context, rs *ruleState) {
	rs.active = true
	rs.gen++
	e.debug("rule enter", "rule", rs.id, "predicate", rs.rule.Predicate)
	if err := protect("enter", func() error { return rs.rule.Hooks.Enter(ctx, rs.info(true)) }); err != nil {
		e.report("enter hook failed", err, map[string]any{"rule": rs.id})
	}
	e.emit(Event{Type: EventEnter, Rule: rs.id, Predicate: rs.rule.Predicate, Matches: true})
	e.apply(ctx, rs, true)
}

// apply runs every item of an active rule. Items already placed by the rule
// are no-ops, so apply is also the re-application path. edge is true on the
// activation edge only; re-application never takes an element from a rule
// of equal priority, so rescans settle.
func (e *Engine) apply(ctx context.Context, rs *ruleState, edge bool) {
	gen := rs.gen
	if rs.rule.Group != nil {
		e.placeGroup(ctx, rs, gen, edge)
		return
	}
	for i := range rs.rule.Items {
		if !rs.current(gen) || e.destroyed {
			return
		}
		el := e.resolveItem(rs, i)
		if el == nil {
			continue
		}
		e.later(ctx, rs, i, el, gen, rs.rule.Items[i].Lazy, edge)
	}
}

// later runs item i now, after its delay, or once its element is visible.
func (e *Engine) later(ctx context.Context, rs *ruleState, i int, el dom.Node, gen uint64, lazy, edge bool) {
	item := &rs.rule.Items[i]
	lazy = lazy && e.opts.Visibility != nil
	if !lazy && item.Delay <= 0 {
		e.runItem(ctx, rs, i, el, gen, edge)
		return
	}
	if rs.waiting(i) {
		return
	}
	id := rs.reserveWait(i)
	resume := func(next func(ctx context.Context)) func() {
		return func() {
			go func() {
				e.mu.Lock()
				defer e.unlock()
				rs.doneWait(id)
				if e.destroyed || !rs.current(gen) {
					e.debug("stale continuation dropped", "rule", rs.id, "item", i)
					return
				}
				next(e.ctx)
			}()
		}
	}
	if lazy {
		stop := e.opts.Visibility.OnVisible(el, resume(func(ctx context.Context) {
			e.later(ctx, rs, i, el, gen, false, edge)
		}))
		rs.setWait(id, stop)
		return
	}
	t := e.clock.AfterFunc(item.Delay, resume(func(ctx context.Context) {
		e.runItem(ctx, rs, i, el, gen, edge)
	}))
	rs.setWait(id, func() { t.Stop() })
}

func (e *Engine) runItem(ctx context.Context, rs *ruleState, i int, el dom.Node, gen uint64, edge bool) {
	item := &rs.rule.Items[i]
	switch {
	case item.SwapWith != "":
		e.swap(ctx, rs, i, el, gen)
	case item.Clone:
		e.clone(ctx, rs, i, el, gen)
	default:
		e.placeItem(ctx, rs, i, el, gen, edge)
	}
}

// deactivate restores everything the rule owns.
func (e *Engine) deactivate(ctx context.Context, rs *ruleState) {
	rs.active = false
	rs.gen++
	gen := rs.gen
	rs.cancelPending()
	e.debug("rule leave", "rule", rs.id, "predicate", rs.rule.Predicate)

	for _, key := range e.ledger.Groups.Keys() {
		if g, ok := e.ledger.Groups.Get(key); ok && g.RuleID == rs.id {
			e.restoreGroup(ctx, key)
		}
	}
	owned := e.ledger.OwnedBy(rs.id)
	for i := len(owned) - 1; i >= 0 && rs.gen == gen; i-- {
		e.restorePlacement(ctx, owned[i])
	}
	e.ledger.Swaps.Each(func(key string, s *ledger.Swap) bool {
		if s.RuleID == rs.id && rs.gen == gen {
			e.unswap(ctx, key)
		}
		return true
	})
	e.ledger.Clones.Each(func(sid string, c *ledger.Clone) bool {
		if c.RuleID == rs.id && rs.gen == gen {
			e.removeClone(ctx, sid)
		}
		return true
	})

	if err := protect("leave", func() error { return rs.rule.Hooks.Leave(ctx, rs.info(false)) }); err != nil {
		e.report("leave hook failed", err, map[string]any{"rule": rs.id})
	}
	e.emit(Event{Type: EventLeave, Rule: rs.id, Predicate: rs.rule.Predicate})
}

// restoreAll deactivates every rule, then sweeps records no rule owns.
func (e *Engine) restoreAll(ctx context.Context) {
	for _, rs := range e.rules.Values() {
		if rs.active {
			e.deactivate(ctx, rs)
		} else {
			rs.cancelPending()
		}
	}
	for _, key := range e.ledger.Groups.Keys() {
		e.restoreGroup(ctx, key)
	}
	vals := e.ledger.Placements.Values()
	for i := len(vals) - 1; i >= 0; i-- {
		e.restorePlacement(ctx, vals[i])
	}
	for _, key := range e.ledger.Swaps.Keys() {
		e.unswap(ctx, key)
	}
	for _, sid := range e.ledger.Clones.Keys() {
		e.removeClone(ctx, sid)
	}
}

// restoreElement undoes every relocation el takes part in.
func (e *Engine) restoreElement(ctx context.Context, el dom.Node) bool {
	id, ok := e.tree.Attr(el, dom.IDAttr)
	if !ok {
		return false
	}
	done := false
	if p, ok := e.ledger.Placements.Get(id); ok && e.restorePlacement(ctx, p) {
		done = true
	}
	for _, key := range e.ledger.Swaps.Keys() {
		if s, ok := e.ledger.Swaps.Get(key); ok && (s.IDA == id || s.IDB == id) && e.unswap(ctx, key) {
			done = true
		}
	}
	for _, sid := range e.ledger.Clones.Keys() {
		if c, ok := e.ledger.Clones.Get(sid); ok && (sid == id || c.CloneID == id) && e.removeClone(ctx, sid) {
			done = true
		}
	}
	return done
}
