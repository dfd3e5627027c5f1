package mover

import (
	"context"
	"errors"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/mover/internal/ledger"
)

var errSwapAncestor = errors.New("mover: cannot swap an element with its ancestor")

func (e *Engine) busy(id string) bool {
	return e.ledger.Placements.Has(id) || e.ledger.Swapped(id)
}

// swap exchanges a with the element item.SwapWith finds. A pair already
// swapped is left alone.
func (e *Engine) swap(ctx context.Context, rs *ruleState, i int, a dom.Node, gen uint64) {
	item := &rs.rule.Items[i]
	fields := map[string]any{"rule": rs.id, "item": i}
	b, err := e.tree.Query(nil, item.SwapWith)
	if err != nil {
		e.report("swap selector failed", &TargetResolutionError{Selector: item.SwapWith, Role: "swap", Err: err}, fields)
		return
	}
	if b == nil {
		e.report("swap partner not found", &TargetResolutionError{Selector: item.SwapWith, Role: "swap"}, fields)
		return
	}
	if a == b {
		return
	}
	ida, err := e.elementID(a)
	if err != nil {
		e.report("cannot identify element", err, fields)
		return
	}
	idb, err := e.elementID(b)
	if err != nil {
		e.report("cannot identify element", err, fields)
		return
	}
	key := ledger.PairKey(ida, idb)
	if e.ledger.Swaps.Has(key) {
		return
	}
	if e.busy(ida) || e.busy(idb) {
		e.debug("swap skipped, element already relocated", "rule", rs.id, "a", ida, "b", idb)
		return
	}
	fields["element"], fields["with"] = ida, idb

	info := MoveInfo{RuleID: rs.id, ItemIndex: i, ElementID: ida, Element: a, Target: b, Swap: true}
	if !e.beforeMove(ctx, info, fields) {
		return
	}
	if e.destroyed || !rs.current(gen) || e.ledger.Swaps.Has(key) || e.busy(ida) || e.busy(idb) {
		return
	}

	pa, pb := e.tree.Parent(a), e.tree.Parent(b)
	if pa == nil || pb == nil {
		e.report("swap failed", errDetached, fields)
		return
	}
	if e.contains(a, b) || e.contains(b, a) {
		e.report("swap failed", errSwapAncestor, fields)
		return
	}
	s := &ledger.Swap{
		Key:           key,
		A:             a,
		B:             b,
		IDA:           ida,
		IDB:           idb,
		OriginParentA: pa,
		OriginAnchorA: e.tree.NextSibling(a),
		OriginParentB: pb,
		OriginAnchorB: e.tree.NextSibling(b),
		RuleID:        rs.id,
		ItemIndex:     i,
	}

	if err := e.animate(ctx, a, func() error { return e.exchange(a, b) }); err != nil {
		e.report("swap failed", err, fields)
		return
	}
	// Durable markers at both original slots: A's slot now holds B and
	// vice versa.
	ma, err := e.markBefore(b, "rdm:swap:"+ida)
	if err == nil {
		s.MarkerA = ma
		s.MarkerB, err = e.markBefore(a, "rdm:swap:"+idb)
	}
	if err != nil {
		if s.MarkerA != nil {
			_ = e.tree.Remove(s.MarkerA)
		}
		if xerr := e.exchange(a, b); xerr != nil {
			e.logger.Warn("mover: swap rollback failed", "error", xerr)
		}
		e.report("swap failed", err, fields)
		return
	}
	s.SwappedAt = e.clock.Now()
	e.ledger.Swaps.Put(key, s)

	e.afterMove(ctx, rs, item, info, fields)
	e.emit(Event{
		Type:      EventSwap,
		Rule:      rs.id,
		Predicate: rs.rule.Predicate,
		ElementID: ida,
		Item:      i,
		Detail:    map[string]any{"with": idb},
	})
}

// exchange swaps two nodes in the tree. Direct siblings are swapped with a
// single insertion; otherwise a temporary marker holds a's slot.
func (e *Engine) exchange(a, b dom.Node) error {
	pa, pb := e.tree.Parent(a), e.tree.Parent(b)
	if pa == nil || pb == nil {
		return errDetached
	}
	switch {
	case e.tree.NextSibling(a) == b:
		return e.tree.InsertBefore(pb, b, a)
	case e.tree.NextSibling(b) == a:
		return e.tree.InsertBefore(pa, a, b)
	}
	tmp, err := e.tree.CreateMarker("rdm:swap-tmp")
	if err != nil {
		return err
	}
	if err := e.tree.InsertBefore(pa, tmp, a); err != nil {
		return err
	}
	defer func() { _ = e.tree.Remove(tmp) }()
	if err := e.tree.InsertBefore(pb, a, b); err != nil {
		return err
	}
	return e.tree.InsertBefore(pa, b, tmp)
}

func (e *Engine) markBefore(n dom.Node, label string) (dom.Node, error) {
	p := e.tree.Parent(n)
	if p == nil {
		return nil, errDetached
	}
	m, err := e.tree.CreateMarker(label)
	if err != nil {
		return nil, err
	}
	if err := e.tree.InsertBefore(p, m, n); err != nil {
		return nil, err
	}
	return m, nil
}

// contains reports whether anc is n or one of its ancestors.
func (e *Engine) contains(anc, n dom.Node) bool {
	for c := n; c != nil; c = e.tree.Parent(c) {
		if c == anc {
			return true
		}
	}
	return false
}

// unswap returns both elements of a swap to their slots. Each element goes
// back to its marker, whatever happened to the other one meanwhile.
func (e *Engine) unswap(ctx context.Context, key string) bool {
	s, ok := e.ledger.Swaps.Get(key)
	if !ok {
		return false
	}
	fields := map[string]any{"rule": s.RuleID, "element": s.IDA, "with": s.IDB}
	info := MoveInfo{RuleID: s.RuleID, ItemIndex: s.ItemIndex, ElementID: s.IDA, Element: s.A, Target: s.B, Swap: true}
	if !e.beforeRestore(ctx, info, fields) {
		return false
	}
	if cur, ok := e.ledger.Swaps.Get(key); !ok || cur != s {
		return false
	}

	refA := e.swapRef(s.MarkerA, s.OriginParentA, s.OriginAnchorA, s.B)
	refB := e.swapRef(s.MarkerB, s.OriginParentB, s.OriginAnchorB, s.A)
	err := e.animate(ctx, s.A, func() error {
		if err := e.tree.Remove(s.A); err != nil {
			return err
		}
		if err := e.tree.Remove(s.B); err != nil {
			return err
		}
		if err := e.tree.InsertBefore(parentOr(e.tree, refA, s.OriginParentA), s.A, refA); err != nil {
			return err
		}
		return e.tree.InsertBefore(parentOr(e.tree, refB, s.OriginParentB), s.B, refB)
	})
	if err != nil {
		e.report("swap restore failed", err, fields)
		return false
	}
	for _, m := range []dom.Node{s.MarkerA, s.MarkerB} {
		if m != nil {
			_ = e.tree.Remove(m)
		}
	}
	e.ledger.Swaps.Delete(key)

	if err := protect("guard.AfterRestore", func() error { return e.opts.Guard.AfterRestore(ctx, info) }); err != nil {
		e.report("after-restore guard failed", err, fields)
	}
	e.emit(Event{Type: EventSwapRestore, Rule: s.RuleID, ElementID: s.IDA, Item: s.ItemIndex, Detail: map[string]any{"with": s.IDB}})
	return true
}

// swapRef is the reinsertion point of one swapped element: its marker when
// still attached, else the captured anchor under the origin parent unless
// that anchor is the partner (about to be detached), else append.
func (e *Engine) swapRef(marker, parent, anchor, partner dom.Node) dom.Node {
	if marker != nil && e.tree.Parent(marker) != nil {
		return marker
	}
	if anchor != nil && anchor != partner && e.tree.Parent(anchor) == parent {
		return anchor
	}
	return nil
}

func parentOr(t dom.Tree, ref, fallback dom.Node) dom.Node {
	if ref != nil {
		if p := t.Parent(ref); p != nil {
			return p
		}
	}
	return fallback
}
