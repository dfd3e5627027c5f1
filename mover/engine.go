package mover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"k8s.io/utils/clock"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/idgen"
	"github.com/hazyhaar/domshift/media"
	"github.com/hazyhaar/domshift/mover/internal/ledger"
	"github.com/hazyhaar/domshift/mover/internal/throttle"
)

// Record is the read-only view of a placement.
type Record = ledger.Entry

// Engine reconciles rules against a tree. Create one with New, start it
// with Init and tear it down with Destroy.
type Engine struct {
	tree    dom.Tree
	eval    media.Evaluator
	tracker *media.Tracker
	opts    Options
	logger  *slog.Logger
	clock   clock.WithDelayedExecution
	sched   *throttle.Throttle
	bus     bus

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	rules       *ledger.Store[string, *ruleState]
	ledger      *ledger.Ledger
	nextRule    int
	initialized bool
	paused      bool
	destroyed   bool
	stopObserve func()
	offAny      func()

	// Collected under mu, delivered by unlock.
	pendingEvents  []Event
	pendingReports []ErrorReport
}

// New validates rules and builds an engine over tree. Nothing is observed
// or moved before Init.
func New(tree dom.Tree, eval media.Evaluator, rules []Rule, opts Options) (*Engine, error) {
	if tree == nil || eval == nil {
		return nil, &ConfigurationError{Field: "engine", Reason: "tree and evaluator are required"}
	}
	opts.defaults()
	bp := media.DefaultBreakpoints().Merge(opts.Breakpoints)
	if err := bp.Validate(); err != nil {
		return nil, &ConfigurationError{Field: "breakpoints", Reason: err.Error()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		tree:    tree,
		eval:    eval,
		tracker: media.NewTracker(eval, bp, opts.Logger),
		opts:    opts,
		logger:  opts.Logger,
		clock:   opts.Clock,
		ctx:     ctx,
		cancel:  cancel,
		rules:   ledger.NewStore[string, *ruleState](),
		ledger:  ledger.New(),
	}
	e.sched = throttle.New(opts.Throttle, opts.Clock, func() { e.rescan(e.ctx) })

	for i := range rules {
		if _, err := e.register(rules[i]); err != nil {
			cancel()
			return nil, err
		}
	}
	return e, nil
}

// Init subscribes every rule, applies those whose predicate holds and
// starts observing the tree.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return ErrDestroyed
	}
	if e.initialized {
		return nil
	}
	e.offAny = e.tracker.OnAny(e.onPredicateEdge)
	for _, rs := range e.rules.Values() {
		if err := e.subscribe(rs); err != nil {
			return fmt.Errorf("mover: init: %w", err)
		}
	}
	e.initialized = true
	for _, rs := range e.rules.Values() {
		m, err := e.tracker.Matches(rs.rule.Predicate)
		if err != nil {
			e.report("predicate evaluation failed", err, map[string]any{"rule": rs.id})
			continue
		}
		e.evaluate(ctx, rs, m)
	}
	e.observe()
	e.emit(Event{Type: EventInit, Detail: map[string]any{
		"rules":  e.rules.Len(),
		"placed": e.ledger.Placements.Len(),
	}})
	return nil
}

// AddRule registers r and, once the engine is initialised, applies it when
// its predicate holds. It returns the rule ID.
func (e *Engine) AddRule(ctx context.Context, r Rule) (string, error) {
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return "", ErrDestroyed
	}
	rs, err := e.register(r)
	if err != nil {
		return "", err
	}
	e.emit(Event{Type: EventRuleAdded, Rule: rs.id, Predicate: rs.rule.Predicate})
	if !e.initialized {
		return rs.id, nil
	}
	if err := e.subscribe(rs); err != nil {
		e.rules.Delete(rs.id)
		return "", fmt.Errorf("mover: add rule: %w", err)
	}
	if !e.paused {
		m, err := e.tracker.Matches(rs.rule.Predicate)
		if err != nil {
			e.report("predicate evaluation failed", err, map[string]any{"rule": rs.id})
		} else {
			e.evaluate(ctx, rs, m)
		}
	}
	return rs.id, nil
}

// RemoveRule deactivates and forgets a rule.
func (e *Engine) RemoveRule(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return ErrDestroyed
	}
	rs, ok := e.rules.Get(id)
	if !ok {
		return fmt.Errorf("mover: rule %q: %w", id, ErrNotFound)
	}
	if rs.active {
		e.deactivate(ctx, rs)
	}
	rs.cancelPending()
	if rs.off != nil {
		rs.off()
		rs.off = nil
	}
	e.rules.Delete(id)
	e.emit(Event{Type: EventRuleRemoved, Rule: id, Predicate: rs.rule.Predicate})
	return nil
}

// RuleStatus describes a registered rule.
type RuleStatus struct {
	ID        string `json:"id"`
	Predicate string `json:"predicate"`
	Query     string `json:"query"`
	Active    bool   `json:"active"`
	Priority  int    `json:"priority"`
	Items     int    `json:"items"`
	Placed    int    `json:"placed"`
}

// Rules lists the registered rules in registration order.
func (e *Engine) Rules() []RuleStatus {
	e.mu.Lock()
	defer e.unlock()
	out := make([]RuleStatus, 0, e.rules.Len())
	for _, rs := range e.rules.Values() {
		out = append(out, RuleStatus{
			ID:        rs.id,
			Predicate: rs.rule.Predicate,
			Query:     e.tracker.Query(rs.rule.Predicate),
			Active:    rs.active,
			Priority:  rs.rule.Priority,
			Items:     len(rs.rule.Items),
			Placed:    len(e.ledger.OwnedBy(rs.id)),
		})
	}
	return out
}

// Pause stops reacting to predicate edges and tree mutations. Placements
// stay where they are.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return ErrDestroyed
	}
	if e.paused {
		return nil
	}
	e.paused = true
	e.unobserve()
	e.emit(Event{Type: EventPaused})
	return nil
}

// Resume undoes Pause and reconciles every rule with the current viewport.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.unlock()
		return ErrDestroyed
	}
	if !e.paused {
		e.unlock()
		return nil
	}
	e.paused = false
	e.observe()
	e.emit(Event{Type: EventResumed})
	e.unlock()

	e.rescan(ctx)
	return nil
}

// Refresh re-reads every predicate and re-applies active rules, picking up
// elements added to the tree since the last pass.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.unlock()
		return ErrDestroyed
	}
	e.unlock()

	e.rescan(ctx)

	e.mu.Lock()
	defer e.unlock()
	e.emit(Event{Type: EventRefreshed})
	return nil
}

// Destroy restores everything, drops all subscriptions and makes every later
// call fail with ErrDestroyed. Calling it twice is harmless.
func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return nil
	}
	// Edges arriving while guards run are ignored from here on.
	e.paused = true
	e.restoreAll(ctx)
	for _, rs := range e.rules.Values() {
		rs.cancelPending()
		if rs.off != nil {
			rs.off()
			rs.off = nil
		}
	}
	if e.offAny != nil {
		e.offAny()
		e.offAny = nil
	}
	e.unobserve()
	e.sched.Stop()
	e.tracker.Close()
	e.destroyed = true
	e.cancel()
	e.emit(Event{Type: EventDestroyed})
	return nil
}

// Stats summarises the engine state.
type Stats struct {
	Rules       int             `json:"rules"`
	ActiveRules int             `json:"activeRules"`
	Placed      int             `json:"placed"`
	Swaps       int             `json:"swaps"`
	Groups      int             `json:"groups"`
	Clones      int             `json:"clones"`
	Initialized bool            `json:"initialized"`
	Destroyed   bool            `json:"destroyed"`
	Paused      bool            `json:"paused"`
	Viewport    *media.Viewport `json:"viewport,omitempty"`
}

// Stats returns counters and flags.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.unlock()
	s := Stats{
		Rules:       e.rules.Len(),
		Placed:      e.ledger.Placements.Len(),
		Swaps:       e.ledger.Swaps.Len(),
		Groups:      e.ledger.Groups.Len(),
		Clones:      e.ledger.Clones.Len(),
		Initialized: e.initialized,
		Destroyed:   e.destroyed,
		Paused:      e.paused,
		Viewport:    e.viewport(),
	}
	for _, rs := range e.rules.Values() {
		if rs.active {
			s.ActiveRules++
		}
	}
	return s
}

func (e *Engine) viewport() *media.Viewport {
	if vr, ok := e.eval.(media.ViewportReporter); ok {
		vp := vr.Viewport()
		return &vp
	}
	return nil
}

// IsPlaced reports whether el is currently relocated.
func (e *Engine) IsPlaced(el dom.Node) bool {
	_, ok := e.Record(el)
	return ok
}

// IsPlacedSelector is IsPlaced for the first node matching selector.
func (e *Engine) IsPlacedSelector(selector string) (bool, error) {
	_, ok, err := e.RecordSelector(selector)
	return ok, err
}

// Record returns the placement of el.
func (e *Engine) Record(el dom.Node) (Record, bool) {
	e.mu.Lock()
	defer e.unlock()
	return e.record(el)
}

// RecordSelector is Record for the first node matching selector.
func (e *Engine) RecordSelector(selector string) (Record, bool, error) {
	el, err := e.tree.Query(nil, selector)
	if err != nil {
		return Record{}, false, err
	}
	if el == nil {
		return Record{}, false, nil
	}
	r, ok := e.Record(el)
	return r, ok, nil
}

func (e *Engine) record(el dom.Node) (Record, bool) {
	id, ok := e.tree.Attr(el, dom.IDAttr)
	if !ok {
		return Record{}, false
	}
	p, ok := e.ledger.Placements.Get(id)
	if !ok {
		return Record{}, false
	}
	return p.Entry(), true
}

// Snapshot copies every placement in placement order.
func (e *Engine) Snapshot() []Record {
	e.mu.Lock()
	defer e.unlock()
	return e.ledger.Snapshot()
}

// Restore undoes whatever relocation involves el: its placement, the swap
// it takes part in and the clone made from it. It reports whether anything
// was undone. An explicit restore also lifts an exclusive placement.
func (e *Engine) Restore(ctx context.Context, el dom.Node) (bool, error) {
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return false, ErrDestroyed
	}
	return e.restoreElement(ctx, el), nil
}

// RestoreSelector restores every node matching selector and returns how
// many were undone.
func (e *Engine) RestoreSelector(ctx context.Context, selector string) (int, error) {
	nodes, err := e.tree.QueryAll(nil, selector)
	if err != nil {
		return 0, &TargetResolutionError{Selector: selector, Role: "element", Err: err}
	}
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return 0, ErrDestroyed
	}
	n := 0
	for _, el := range nodes {
		if e.restoreElement(ctx, el) {
			n++
		}
	}
	return n, nil
}

// RestoreAll deactivates every rule, putting every element back. A later
// Refresh or predicate edge re-applies the rules that still match.
func (e *Engine) RestoreAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlock()
	if e.destroyed {
		return ErrDestroyed
	}
	e.restoreAll(ctx)
	return nil
}

// Subscribe calls fn for every event. Events are delivered after the engine
// lock is released, in emission order.
func (e *Engine) Subscribe(fn func(Event)) (off func()) {
	return e.bus.add("", fn)
}

// On calls fn for events of one type.
func (e *Engine) On(typ EventType, fn func(Event)) (off func()) {
	return e.bus.add(typ, fn)
}

// Tracker exposes the predicate tracker, mainly for diagnostics.
func (e *Engine) Tracker() *media.Tracker { return e.tracker }

// unlock releases mu and delivers what was collected under it.
func (e *Engine) unlock() {
	events, reports := e.pendingEvents, e.pendingReports
	e.pendingEvents, e.pendingReports = nil, nil
	e.mu.Unlock()

	for _, r := range reports {
		e.opts.ErrorHandler(r)
	}
	e.bus.dispatch(events)
}

func (e *Engine) emit(ev Event) {
	ev.ID = idgen.New()
	ev.Time = e.clock.Now()
	e.pendingEvents = append(e.pendingEvents, ev)
}

// report is the single path for recoverable errors.
func (e *Engine) report(message string, err error, fields map[string]any) {
	rep := ErrorReport{Message: message, Err: err, Context: fields, Timestamp: e.clock.Now()}
	if e.opts.ErrorHandler != nil {
		e.pendingReports = append(e.pendingReports, rep)
	} else {
		args := []any{"error", err}
		for k, v := range fields {
			args = append(args, k, v)
		}
		e.logger.Error("mover: "+message, args...)
	}
	detail := map[string]any{"message": message}
	for k, v := range fields {
		detail[k] = v
	}
	ev := Event{Type: EventError, Error: err.Error(), Detail: detail}
	if r, ok := fields["rule"].(string); ok {
		ev.Rule = r
	}
	e.emit(ev)
}

// debug logs engine diagnostics. They always go out at Debug; Options.Debug
// is for the caller to pick a handler level.
func (e *Engine) debug(msg string, args ...any) {
	e.logger.Debug("mover: "+msg, args...)
}
