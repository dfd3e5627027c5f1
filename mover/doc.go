// Package mover relocates registered elements of a document tree between
// containers as viewport predicates change, and puts them back when the
// predicates stop matching.
//
// An Engine owns a set of rules. Each rule is gated on a predicate (a media
// query or a breakpoint name) and lists items to place into a target
// container. Every relocation is recorded with enough state to undo it
// exactly: the origin parent, the origin next sibling and a comment marker
// left at the origin slot. Competing rules are arbitrated by priority and
// exclusivity. Groups, swaps and clones are reversible composites built on
// the same records.
//
// Usage:
//
//	doc, _ := htmltree.ParseString(page)
//	em := media.NewEmulator(media.Viewport{Width: 1280, Height: 800})
//	eng, err := mover.New(doc, em, rules, mover.Options{Logger: logger})
//	if err != nil { ... }
//	eng.Init(ctx)
//	defer eng.Destroy(ctx)
//
// Concurrency: the engine serialises all work behind one mutex. Guard
// BeforeMove and BeforeRestore run with the mutex released and the engine
// re-checks its records afterwards. Lifecycle and item hooks, AfterMove,
// AfterRestore and conditions run with the mutex held and must not call
// back into the engine. Event subscribers and the error handler run after
// the mutex is released and may call any method.
package mover
