package mover

import (
	"context"
	"sort"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/mover/internal/conflict"
	"github.com/hazyhaar/domshift/mover/internal/ledger"
)

// GroupAttr marks a group wrapper with the group name.
const GroupAttr = "data-move-group"

type groupMember struct {
	index  int
	el     dom.Node
	id     string
	holder *ledger.Placement
	origin origin
}

// placeGroup moves every resolvable member of a group rule as one unit. An
// existing group record makes it a no-op.
func (e *Engine) placeGroup(ctx context.Context, rs *ruleState, gen uint64, edge bool) {
	g := rs.rule.Group
	key := ledger.GroupKey(rs.id, g.Name)
	if e.ledger.Groups.Has(key) {
		return
	}
	fields := map[string]any{"rule": rs.id, "group": g.Name}

	var members []groupMember
	for i := range rs.rule.Items {
		item := &rs.rule.Items[i]
		el := e.resolveItem(rs, i)
		if el == nil {
			continue
		}
		id, err := e.elementID(el)
		if err != nil {
			e.report("cannot identify element", err, fields)
			continue
		}
		if e.ledger.Swapped(id) {
			e.debug("group member is swapped, skipping", "rule", rs.id, "element", id)
			continue
		}
		existing, _ := e.ledger.Placements.Get(id)
		d := conflict.Resolve(existing, rs.id, rs.rule.priority(item), rs.rule.exclusive(item))
		if !d.Proceed() {
			e.debug("group member rejected", "rule", rs.id, "element", id, "reason", d.String())
			continue
		}
		m := groupMember{index: i, el: el, id: id}
		if d == conflict.Reclaim {
			if !reclaimable(existing, rs.rule.priority(item), edge) {
				e.debug("group member held by another rule", "rule", rs.id, "element", id, "holder", existing.RuleID)
				continue
			}
			m.holder = existing
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		e.debug("group has no members to place", "rule", rs.id, "group", g.Name)
		return
	}

	target, sel, err := e.resolveTarget(rs)
	if err != nil {
		e.report("target not found", err, fields)
		return
	}

	kept := members[:0]
	for _, m := range members {
		info := MoveInfo{RuleID: rs.id, ItemIndex: m.index, ElementID: m.id, Element: m.el, Target: target, Group: g.Name}
		if e.beforeMove(ctx, info, fields) {
			kept = append(kept, m)
		}
	}
	members = kept
	if !rs.current(gen) || e.destroyed || e.ledger.Groups.Has(key) {
		return
	}

	kept = members[:0]
	for _, m := range members {
		if m.holder != nil {
			if cur, ok := e.ledger.Placements.Get(m.id); ok && cur.RuleID != rs.id && !e.restorePlacement(ctx, cur) {
				continue
			}
		}
		if e.ledger.Placements.Has(m.id) {
			continue
		}
		kept = append(kept, m)
	}
	members = kept
	if len(members) == 0 || !rs.current(gen) || e.destroyed {
		return
	}

	if g.KeepOrder {
		items := rs.rule.Items
		sort.SliceStable(members, func(a, b int) bool {
			return items[members[a].index].GroupOrder < items[members[b].index].GroupOrder
		})
	}

	// Every origin is captured before anything moves.
	for i := range members {
		o, err := e.capture(members[i].el, members[i].id)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = e.tree.Remove(members[j].origin.marker)
			}
			e.report("cannot capture origin", err, fields)
			return
		}
		members[i].origin = o
	}

	container := target
	ref := e.positionRef(target, rs.rule.Position, nil)
	var wrapper dom.Node
	if g.Wrapper != "" {
		w, err := e.wrap(g, target, ref)
		if err != nil {
			for _, m := range members {
				_ = e.tree.Remove(m.origin.marker)
			}
			e.report("cannot create group wrapper", err, fields)
			return
		}
		wrapper, container, ref = w, w, nil
	}

	for i, m := range members {
		el := m.el
		if err := e.animate(ctx, el, func() error { return e.tree.InsertBefore(container, el, ref) }); err != nil {
			for _, back := range members[:i+1] {
				e.rollback(back.el, back.origin)
			}
			for _, rest := range members[i+1:] {
				_ = e.tree.Remove(rest.origin.marker)
			}
			if wrapper != nil {
				_ = e.tree.Remove(wrapper)
			}
			e.report("group move failed", err, fields)
			return
		}
	}

	now := e.clock.Now()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		item := &rs.rule.Items[m.index]
		e.ledger.Place(&ledger.Placement{
			ElementID:    m.id,
			Element:      m.el,
			OriginParent: m.origin.parent,
			OriginAnchor: m.origin.anchor,
			Marker:       m.origin.marker,
			Target:       container,
			RuleID:       rs.id,
			Predicate:    rs.rule.Predicate,
			ItemIndex:    m.index,
			Priority:     rs.rule.priority(item),
			Exclusive:    rs.rule.exclusive(item),
			Group:        g.Name,
			PlacedAt:     now,
		})
		ids = append(ids, m.id)
	}
	e.ledger.Groups.Put(key, &ledger.Group{
		Name:       g.Name,
		RuleID:     rs.id,
		ElementIDs: ids,
		Wrapper:    wrapper,
		Target:     target,
		PlacedAt:   now,
	})

	for _, m := range members {
		info := MoveInfo{RuleID: rs.id, ItemIndex: m.index, ElementID: m.id, Element: m.el, Target: container, Group: g.Name}
		e.afterMove(ctx, rs, &rs.rule.Items[m.index], info, fields)
	}
	e.emit(Event{
		Type:      EventGroupMove,
		Rule:      rs.id,
		Predicate: rs.rule.Predicate,
		Group:     g.Name,
		Target:    sel,
		Detail:    map[string]any{"elements": ids},
	})
	e.persist(ctx)
}

func (e *Engine) wrap(g *GroupSpec, target, ref dom.Node) (dom.Node, error) {
	w, err := e.tree.CreateElement(g.Wrapper)
	if err != nil {
		return nil, err
	}
	if g.WrapperClass != "" {
		if err := e.tree.SetAttr(w, "class", g.WrapperClass); err != nil {
			return nil, err
		}
	}
	if err := e.tree.SetAttr(w, GroupAttr, g.Name); err != nil {
		return nil, err
	}
	if err := e.tree.InsertBefore(target, w, ref); err != nil {
		return nil, err
	}
	return w, nil
}

// restoreGroup puts every member the group still owns back and drops the
// wrapper.
func (e *Engine) restoreGroup(ctx context.Context, key string) bool {
	g, ok := e.ledger.Groups.Get(key)
	if !ok {
		return false
	}
	for i := len(g.ElementIDs) - 1; i >= 0; i-- {
		p, ok := e.ledger.Placements.Get(g.ElementIDs[i])
		if ok && p.RuleID == g.RuleID && p.Group == g.Name {
			e.restorePlacement(ctx, p)
		}
	}
	if cur, ok := e.ledger.Groups.Get(key); !ok || cur != g {
		return false
	}
	if g.Wrapper != nil {
		if err := e.tree.Remove(g.Wrapper); err != nil {
			e.debug("wrapper removal failed", "group", g.Name, "error", err)
		}
	}
	e.ledger.Groups.Delete(key)
	e.emit(Event{
		Type:   EventGroupRestore,
		Rule:   g.RuleID,
		Group:  g.Name,
		Detail: map[string]any{"elements": g.ElementIDs},
	})
	e.persist(ctx)
	return true
}
