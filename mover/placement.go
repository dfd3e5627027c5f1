package mover

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/mover/internal/conflict"
	"github.com/hazyhaar/domshift/mover/internal/ledger"
)

var errDetached = errors.New("mover: element is not attached to a parent")

// origin is what a placement needs to find its way back.
type origin struct {
	parent dom.Node
	anchor dom.Node
	marker dom.Node
}

func (e *Engine) elementID(el dom.Node) (string, error) {
	return dom.ElementID(e.tree, el, e.opts.IDs)
}

func (e *Engine) resolveItem(rs *ruleState, i int) dom.Node {
	it := &rs.rule.Items[i]
	if it.Element != nil {
		return it.Element
	}
	el, err := e.tree.Query(nil, it.Selector)
	if err != nil {
		e.report("item selector failed", &TargetResolutionError{Selector: it.Selector, Role: "element", Err: err},
			map[string]any{"rule": rs.id, "item": i})
		return nil
	}
	if el == nil {
		e.debug("element not found", "rule", rs.id, "item", i, "selector", it.Selector)
	}
	return el
}

// resolveTarget returns the first container of the fallback list that
// exists, with the selector that found it.
func (e *Engine) resolveTarget(rs *ruleState) (dom.Node, string, error) {
	sels := rs.rule.targets()
	for _, s := range sels {
		n, err := e.tree.Query(nil, s)
		if err != nil {
			return nil, "", &TargetResolutionError{Selector: s, Role: "target", Err: err}
		}
		if n != nil {
			return n, s, nil
		}
	}
	return nil, "", &TargetResolutionError{Selector: strings.Join(sels, ", "), Role: "target"}
}

// placeItem runs the conflict resolver for one element and places it.
func (e *Engine) placeItem(ctx context.Context, rs *ruleState, i int, el dom.Node, gen uint64, edge bool) {
	item := &rs.rule.Items[i]
	fields := map[string]any{"rule": rs.id, "item": i}
	id, err := e.elementID(el)
	if err != nil {
		e.report("cannot identify element", err, fields)
		return
	}
	if e.ledger.Swapped(id) {
		e.debug("element is swapped, skipping", "rule", rs.id, "element", id)
		return
	}

	existing, _ := e.ledger.Placements.Get(id)
	var holder *ledger.Placement
	switch d := conflict.Resolve(existing, rs.id, rs.rule.priority(item), rs.rule.exclusive(item)); d {
	case conflict.Same:
		return
	case conflict.RejectExclusive, conflict.RejectLowerPriority:
		e.debug("placement rejected", "rule", rs.id, "element", id, "holder", existing.RuleID, "reason", d.String())
		return
	case conflict.Reclaim:
		if !reclaimable(existing, rs.rule.priority(item), edge) {
			e.debug("element held by another rule", "rule", rs.id, "element", id, "holder", existing.RuleID)
			return
		}
		holder = existing
	}

	target, sel, err := e.resolveTarget(rs)
	if err != nil {
		fields["element"] = id
		e.report("target not found", err, fields)
		return
	}
	e.place(ctx, rs, i, el, id, target, sel, gen, holder)
}

// reclaimable reports whether a candidate may take an element from its
// holder. On an activation edge equal priority is enough; re-application
// needs strictly higher priority.
func reclaimable(holder *ledger.Placement, priority int, edge bool) bool {
	return edge || priority > holder.Priority
}

// place moves el into target. holder, when set, is the placement of another
// rule that gives el up; it is restored only once the guard allowed the
// move. The ledger is written only once the element sits in its new
// position.
func (e *Engine) place(ctx context.Context, rs *ruleState, i int, el dom.Node, id string, target dom.Node, sel string, gen uint64, holder *ledger.Placement) bool {
	item := &rs.rule.Items[i]
	fields := map[string]any{"rule": rs.id, "item": i, "element": id, "target": sel}
	info := MoveInfo{RuleID: rs.id, ItemIndex: i, ElementID: id, Element: el, Target: target}

	if !e.beforeMove(ctx, info, fields) {
		return false
	}
	if e.destroyed || !rs.current(gen) || e.ledger.Swapped(id) {
		e.debug("placement superseded while guarded", "rule", rs.id, "element", id)
		return false
	}
	if cur, ok := e.ledger.Placements.Get(id); ok {
		if holder == nil || cur.Seq != holder.Seq {
			e.debug("placement superseded while guarded", "rule", rs.id, "element", id)
			return false
		}
		e.debug("reclaiming element", "rule", rs.id, "element", id, "holder", cur.RuleID)
		if !e.restorePlacement(ctx, cur) || e.destroyed || !rs.current(gen) || e.ledger.Placements.Has(id) {
			return false
		}
	}

	o, err := e.capture(el, id)
	if err != nil {
		e.report("cannot capture origin", err, fields)
		return false
	}
	ref := e.positionRef(target, item.Position, el)
	if err := e.animate(ctx, el, func() error { return e.tree.InsertBefore(target, el, ref) }); err != nil {
		e.rollback(el, o)
		e.report("move failed", err, fields)
		return false
	}

	p := &ledger.Placement{
		ElementID:    id,
		Element:      el,
		OriginParent: o.parent,
		OriginAnchor: o.anchor,
		Marker:       o.marker,
		Target:       target,
		RuleID:       rs.id,
		Predicate:    rs.rule.Predicate,
		ItemIndex:    i,
		Priority:     rs.rule.priority(item),
		Exclusive:    rs.rule.exclusive(item),
		PlacedAt:     e.clock.Now(),
	}
	e.ledger.Place(p)
	e.afterMove(ctx, rs, item, info, fields)
	e.emit(Event{Type: EventMove, Rule: rs.id, Predicate: rs.rule.Predicate, ElementID: id, Item: i, Target: sel})
	e.persist(ctx)
	return true
}

// capture records el's origin and leaves a marker right before it.
func (e *Engine) capture(el dom.Node, id string) (origin, error) {
	parent := e.tree.Parent(el)
	if parent == nil {
		return origin{}, errDetached
	}
	o := origin{parent: parent, anchor: e.tree.NextSibling(el)}
	m, err := e.tree.CreateMarker("rdm:" + id)
	if err != nil {
		return origin{}, err
	}
	if err := e.tree.InsertBefore(parent, m, el); err != nil {
		return origin{}, err
	}
	o.marker = m
	return o, nil
}

// rollback returns el to its marker after a failed move.
func (e *Engine) rollback(el dom.Node, o origin) {
	if o.marker == nil {
		return
	}
	if mp := e.tree.Parent(o.marker); mp != nil {
		if err := e.tree.InsertBefore(mp, el, o.marker); err != nil {
			e.logger.Warn("mover: rollback failed", "error", err)
		}
	}
	_ = e.tree.Remove(o.marker)
}

// reinsertRef picks where a restored element goes back to: its marker if the
// marker is still under the origin parent, else the origin anchor if that is
// still a child of the origin parent, else nil (append).
func (e *Engine) reinsertRef(parent, marker, anchor dom.Node) dom.Node {
	switch {
	case marker != nil && e.tree.Parent(marker) == parent:
		return marker
	case anchor != nil && e.tree.Parent(anchor) == parent:
		return anchor
	}
	return nil
}

// restorePlacement puts a placed element back at its origin. It returns
// false when a guard vetoed or the record changed in the meantime.
func (e *Engine) restorePlacement(ctx context.Context, p *ledger.Placement) bool {
	fields := map[string]any{"rule": p.RuleID, "item": p.ItemIndex, "element": p.ElementID}
	info := MoveInfo{RuleID: p.RuleID, ItemIndex: p.ItemIndex, ElementID: p.ElementID, Element: p.Element, Target: p.OriginParent, Group: p.Group}

	if cur, ok := e.ledger.Placements.Get(p.ElementID); !ok || cur.Seq != p.Seq {
		return false
	}
	if !e.beforeRestore(ctx, info, fields) {
		return false
	}
	if cur, ok := e.ledger.Placements.Get(p.ElementID); !ok || cur.Seq != p.Seq {
		e.debug("restore superseded while guarded", "element", p.ElementID)
		return false
	}

	if !e.tree.Attached(p.OriginParent) {
		e.logger.Warn("mover: origin parent is detached, restoring into it", "element", p.ElementID, "rule", p.RuleID)
	}
	ref := e.reinsertRef(p.OriginParent, p.Marker, p.OriginAnchor)
	if err := e.animate(ctx, p.Element, func() error { return e.tree.InsertBefore(p.OriginParent, p.Element, ref) }); err != nil {
		e.report("restore failed", err, fields)
		return false
	}
	if p.Marker != nil {
		if err := e.tree.Remove(p.Marker); err != nil {
			e.debug("marker removal failed", "element", p.ElementID, "error", err)
		}
	}
	e.ledger.Placements.Delete(p.ElementID)

	if err := protect("guard.AfterRestore", func() error { return e.opts.Guard.AfterRestore(ctx, info) }); err != nil {
		e.report("after-restore guard failed", err, fields)
	}
	e.emit(Event{Type: EventRestore, Rule: p.RuleID, Predicate: p.Predicate, ElementID: p.ElementID, Item: p.ItemIndex, Group: p.Group})
	e.persist(ctx)
	return true
}

// positionRef returns the child of target to insert before, nil to append.
// self is left out of the child list so moving within a container counts
// positions without the moving element.
func (e *Engine) positionRef(target dom.Node, pos Position, self dom.Node) dom.Node {
	var kids []dom.Node
	for _, c := range e.tree.Children(target) {
		if c != self {
			kids = append(kids, c)
		}
	}
	switch pos.kind {
	case posFirst:
		if len(kids) > 0 {
			return kids[0]
		}
	case posIndex:
		if pos.index >= 0 && pos.index < len(kids) {
			return kids[pos.index]
		}
	case posBefore:
		n, err := e.tree.Query(target, pos.selector)
		if err == nil && n != nil && n != self && e.tree.Parent(n) == target {
			return n
		}
	}
	return nil
}

func (e *Engine) animate(ctx context.Context, el dom.Node, apply func() error) error {
	if e.opts.DisableAnimations {
		return apply()
	}
	return e.opts.Animator.Animate(ctx, el, apply)
}

func (e *Engine) guarded() bool {
	_, nop := e.opts.Guard.(NopGuard)
	return !nop
}

// beforeMove consults the guard with the engine lock released. Callers must
// re-check their state when it returns true.
func (e *Engine) beforeMove(ctx context.Context, info MoveInfo, fields map[string]any) bool {
	if !e.guarded() {
		return true
	}
	e.unlock()
	ok, err := protectBool("guard.BeforeMove", func() (bool, error) { return e.opts.Guard.BeforeMove(ctx, info) })
	e.mu.Lock()
	if err != nil {
		e.report("before-move guard failed", err, fields)
		return false
	}
	if !ok {
		e.debug("move vetoed", "element", info.ElementID, "rule", info.RuleID, "reason", ErrVetoed)
	}
	return ok
}

func (e *Engine) beforeRestore(ctx context.Context, info MoveInfo, fields map[string]any) bool {
	if !e.guarded() {
		return true
	}
	e.unlock()
	ok, err := protectBool("guard.BeforeRestore", func() (bool, error) { return e.opts.Guard.BeforeRestore(ctx, info) })
	e.mu.Lock()
	if err != nil {
		e.report("before-restore guard failed", err, fields)
		return false
	}
	if !ok {
		e.debug("restore vetoed", "element", info.ElementID, "rule", info.RuleID, "reason", ErrVetoed)
	}
	return ok
}

// afterMove runs the item hook, the rule hook and the guard, in that order.
func (e *Engine) afterMove(ctx context.Context, rs *ruleState, item *Item, info MoveInfo, fields map[string]any) {
	if err := protect("item.Moved", func() error { return item.Hooks.Moved(ctx, info) }); err != nil {
		e.report("item hook failed", err, fields)
	}
	if err := protect("rule.Moved", func() error { return rs.rule.Hooks.Moved(ctx, info) }); err != nil {
		e.report("rule hook failed", err, fields)
	}
	if err := protect("guard.AfterMove", func() error { return e.opts.Guard.AfterMove(ctx, info) }); err != nil {
		e.report("after-move guard failed", err, fields)
	}
}
