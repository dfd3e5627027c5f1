package mover

import (
	"context"
	"fmt"

	"github.com/hazyhaar/domshift/dom"
)

// RuleInfo describes a rule to its lifecycle hooks.
type RuleInfo struct {
	ID        string
	Predicate string
	Matches   bool
}

// MoveInfo describes one relocation to hooks and guards.
type MoveInfo struct {
	RuleID    string
	ItemIndex int
	ElementID string
	Element   dom.Node
	Target    dom.Node
	Group     string
	Swap      bool
	Clone     bool
}

// Lifecycle is the per-rule hook set.
type Lifecycle interface {
	Enter(ctx context.Context, r RuleInfo) error
	Leave(ctx context.Context, r RuleInfo) error
	Moved(ctx context.Context, m MoveInfo) error
}

// ItemHooks is the per-item hook set.
type ItemHooks interface {
	Moved(ctx context.Context, m MoveInfo) error
}

// Guard is consulted around every move and restore. BeforeMove and
// BeforeRestore may veto by returning false.
type Guard interface {
	BeforeMove(ctx context.Context, m MoveInfo) (bool, error)
	AfterMove(ctx context.Context, m MoveInfo) error
	BeforeRestore(ctx context.Context, m MoveInfo) (bool, error)
	AfterRestore(ctx context.Context, m MoveInfo) error
}

// NopLifecycle does nothing.
type NopLifecycle struct{}

func (NopLifecycle) Enter(context.Context, RuleInfo) error { return nil }
func (NopLifecycle) Leave(context.Context, RuleInfo) error { return nil }
func (NopLifecycle) Moved(context.Context, MoveInfo) error { return nil }

// NopGuard allows everything.
type NopGuard struct{}

func (NopGuard) BeforeMove(context.Context, MoveInfo) (bool, error)    { return true, nil }
func (NopGuard) AfterMove(context.Context, MoveInfo) error             { return nil }
func (NopGuard) BeforeRestore(context.Context, MoveInfo) (bool, error) { return true, nil }
func (NopGuard) AfterRestore(context.Context, MoveInfo) error          { return nil }

// LifecycleFuncs adapts closures to Lifecycle; nil fields are no-ops.
type LifecycleFuncs struct {
	OnEnter func(ctx context.Context, r RuleInfo) error
	OnLeave func(ctx context.Context, r RuleInfo) error
	OnMoved func(ctx context.Context, m MoveInfo) error
}

func (f LifecycleFuncs) Enter(ctx context.Context, r RuleInfo) error {
	if f.OnEnter == nil {
		return nil
	}
	return f.OnEnter(ctx, r)
}

func (f LifecycleFuncs) Leave(ctx context.Context, r RuleInfo) error {
	if f.OnLeave == nil {
		return nil
	}
	return f.OnLeave(ctx, r)
}

func (f LifecycleFuncs) Moved(ctx context.Context, m MoveInfo) error {
	if f.OnMoved == nil {
		return nil
	}
	return f.OnMoved(ctx, m)
}

// ItemFunc adapts a closure to ItemHooks.
type ItemFunc func(ctx context.Context, m MoveInfo) error

func (f ItemFunc) Moved(ctx context.Context, m MoveInfo) error { return f(ctx, m) }

// GuardFuncs adapts closures to Guard; nil fields allow.
type GuardFuncs struct {
	OnBeforeMove    func(ctx context.Context, m MoveInfo) (bool, error)
	OnAfterMove     func(ctx context.Context, m MoveInfo) error
	OnBeforeRestore func(ctx context.Context, m MoveInfo) (bool, error)
	OnAfterRestore  func(ctx context.Context, m MoveInfo) error
}

func (g GuardFuncs) BeforeMove(ctx context.Context, m MoveInfo) (bool, error) {
	if g.OnBeforeMove == nil {
		return true, nil
	}
	return g.OnBeforeMove(ctx, m)
}

func (g GuardFuncs) AfterMove(ctx context.Context, m MoveInfo) error {
	if g.OnAfterMove == nil {
		return nil
	}
	return g.OnAfterMove(ctx, m)
}

func (g GuardFuncs) BeforeRestore(ctx context.Context, m MoveInfo) (bool, error) {
	if g.OnBeforeRestore == nil {
		return true, nil
	}
	return g.OnBeforeRestore(ctx, m)
}

func (g GuardFuncs) AfterRestore(ctx context.Context, m MoveInfo) error {
	if g.OnAfterRestore == nil {
		return nil
	}
	return g.OnAfterRestore(ctx, m)
}

// protect runs fn, turning an error or a panic into a *CallbackFailure.
func protect(hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackFailure{Hook: hook, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if e := fn(); e != nil {
		return &CallbackFailure{Hook: hook, Err: e}
	}
	return nil
}

// protectBool is protect for veto-returning callbacks. A failure vetoes.
func protectBool(hook string, fn func() (bool, error)) (ok bool, err error) {
	err = protect(hook, func() error {
		var e error
		ok, e = fn()
		return e
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}
