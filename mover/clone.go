package mover

import (
	"context"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/mover/internal/ledger"
)

// CloneOfAttr links a clone to its source's identity token.
const CloneOfAttr = "data-move-clone-of"

// clone inserts a deep copy of src into the rule's target. A source has at
// most one live clone.
func (e *Engine) clone(ctx context.Context, rs *ruleState, i int, src dom.Node, gen uint64) {
	item := &rs.rule.Items[i]
	fields := map[string]any{"rule": rs.id, "item": i}
	sid, err := e.elementID(src)
	if err != nil {
		e.report("cannot identify element", err, fields)
		return
	}
	fields["element"] = sid
	if e.ledger.Clones.Has(sid) {
		return
	}
	target, sel, err := e.resolveTarget(rs)
	if err != nil {
		e.report("target not found", err, fields)
		return
	}

	info := MoveInfo{RuleID: rs.id, ItemIndex: i, ElementID: sid, Element: src, Target: target, Clone: true}
	if !e.beforeMove(ctx, info, fields) {
		return
	}
	if e.destroyed || !rs.current(gen) || e.ledger.Clones.Has(sid) {
		return
	}

	c, err := e.tree.Clone(src, true)
	if err != nil {
		e.report("clone failed", err, fields)
		return
	}
	cid, err := e.freshIdentity(c, sid)
	if err != nil {
		e.report("clone failed", err, fields)
		return
	}
	ref := e.positionRef(target, item.Position, nil)
	if err := e.animate(ctx, c, func() error { return e.tree.InsertBefore(target, c, ref) }); err != nil {
		e.report("clone insert failed", err, fields)
		return
	}
	e.ledger.Clones.Put(sid, &ledger.Clone{
		SourceID:  sid,
		Source:    src,
		Clone:     c,
		CloneID:   cid,
		RuleID:    rs.id,
		ItemIndex: i,
		ClonedAt:  e.clock.Now(),
	})

	info.Element = c
	e.afterMove(ctx, rs, item, info, fields)
	e.emit(Event{
		Type:      EventClone,
		Rule:      rs.id,
		Predicate: rs.rule.Predicate,
		ElementID: sid,
		Item:      i,
		Target:    sel,
		Clone:     true,
		Detail:    map[string]any{"cloneId": cid},
	})
}

// freshIdentity gives a detached clone its own token, drops the id
// attribute and strips tokens copied onto descendants.
func (e *Engine) freshIdentity(c dom.Node, sourceID string) (string, error) {
	if err := e.tree.RemoveAttr(c, "id"); err != nil {
		return "", err
	}
	nested, err := e.tree.QueryAll(c, "["+dom.IDAttr+"]")
	if err != nil {
		return "", err
	}
	for _, n := range nested {
		if err := e.tree.RemoveAttr(n, dom.IDAttr); err != nil {
			return "", err
		}
	}
	cid := e.opts.IDs()
	if err := e.tree.SetAttr(c, dom.IDAttr, cid); err != nil {
		return "", err
	}
	if err := e.tree.SetAttr(c, CloneOfAttr, sourceID); err != nil {
		return "", err
	}
	return cid, nil
}

// removeClone deletes the clone made from sid.
func (e *Engine) removeClone(ctx context.Context, sid string) bool {
	c, ok := e.ledger.Clones.Get(sid)
	if !ok {
		return false
	}
	fields := map[string]any{"rule": c.RuleID, "element": sid, "clone": c.CloneID}
	info := MoveInfo{RuleID: c.RuleID, ItemIndex: c.ItemIndex, ElementID: sid, Element: c.Clone, Clone: true}
	if !e.beforeRestore(ctx, info, fields) {
		return false
	}
	if cur, ok := e.ledger.Clones.Get(sid); !ok || cur != c {
		return false
	}
	if err := e.tree.Remove(c.Clone); err != nil {
		e.report("clone removal failed", err, fields)
		return false
	}
	e.ledger.Clones.Delete(sid)

	if err := protect("guard.AfterRestore", func() error { return e.opts.Guard.AfterRestore(ctx, info) }); err != nil {
		e.report("after-restore guard failed", err, fields)
	}
	e.emit(Event{
		Type:      EventRestore,
		Rule:      c.RuleID,
		ElementID: sid,
		Item:      c.ItemIndex,
		Clone:     true,
		Detail:    map[string]any{"cloneId": c.CloneID},
	})
	return true
}
