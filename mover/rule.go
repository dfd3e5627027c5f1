package mover

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/media"
)

// Rule relocates its items into Target while Predicate matches.
type Rule struct {
	// ID names the rule; generated ("rule-N") when empty.
	ID string
	// Predicate is a media query or a breakpoint name ("md", "@md").
	Predicate string
	// Target lists container selectors; the first one that resolves wins.
	// Entries may themselves be comma-separated fallback lists.
	Target    []string
	Priority  int
	Exclusive bool
	Items     []Item
	// Group moves all items as one unit.
	Group *GroupSpec
	// Position places the group wrapper (or the group members when no
	// wrapper is used) inside the target.
	Position Position

	// Condition is ANDed with the predicate.
	Condition func(ctx context.Context, env ConditionEnv) (bool, error)
	Hooks     Lifecycle
}

// Item is one element of a rule.
type Item struct {
	// Selector finds the element in the document; Element, when set, wins.
	Selector string
	Element  dom.Node

	Position Position
	// Priority and Exclusive override the rule's values when non-nil.
	Priority  *int
	Exclusive *bool
	// Delay postpones the placement.
	Delay time.Duration
	// Lazy defers the placement until the element becomes visible.
	Lazy bool
	// SwapWith exchanges the element with the one this selector finds.
	SwapWith string
	// Clone inserts a copy into the target and leaves the element in place.
	Clone bool
	// GroupOrder sorts group members when the group keeps order.
	GroupOrder int

	Hooks ItemHooks
}

// GroupSpec turns a rule into a group move.
type GroupSpec struct {
	Name      string
	KeepOrder bool
	// Wrapper is the tag of an optional container created in the target.
	Wrapper      string
	WrapperClass string
}

// ConditionEnv is handed to Rule.Condition.
type ConditionEnv struct {
	RuleID    string
	Predicate string
	Query     string
	Matches   bool
	// Viewport is set when the evaluator reports one.
	Viewport *media.Viewport
}

// Int returns a pointer to v, for Item.Priority.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for Item.Exclusive.
func Bool(v bool) *bool { return &v }

func (r *Rule) priority(it *Item) int {
	if it.Priority != nil {
		return *it.Priority
	}
	return r.Priority
}

func (r *Rule) exclusive(it *Item) bool {
	if it.Exclusive != nil {
		return *it.Exclusive
	}
	return r.Exclusive
}

// targets flattens Target into the ordered fallback list.
func (r *Rule) targets() []string {
	var out []string
	for _, t := range r.Target {
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (r *Rule) swapOnly() bool {
	if len(r.Items) == 0 {
		return false
	}
	for _, it := range r.Items {
		if it.SwapWith == "" {
			return false
		}
	}
	return true
}

// validate checks the rule's shape; predicate parsing is the tracker's.
func (r *Rule) validate(tr *media.Tracker) error {
	if strings.TrimSpace(r.Predicate) == "" {
		return &ConfigurationError{Rule: r.ID, Field: "predicate", Reason: "missing"}
	}
	if err := tr.Validate(r.Predicate); err != nil {
		return &ConfigurationError{Rule: r.ID, Field: "predicate", Reason: err.Error()}
	}
	if len(r.Items) == 0 {
		return &ConfigurationError{Rule: r.ID, Field: "items", Reason: "empty"}
	}
	if len(r.targets()) == 0 && !r.swapOnly() {
		return &ConfigurationError{Rule: r.ID, Field: "target", Reason: "missing and not every item swaps"}
	}
	if r.Group != nil {
		if r.Group.Name == "" {
			return &ConfigurationError{Rule: r.ID, Field: "group.name", Reason: "missing"}
		}
		for i, it := range r.Items {
			if it.SwapWith != "" || it.Clone {
				return &ConfigurationError{Rule: r.ID, Field: fmt.Sprintf("items[%d]", i), Reason: "group members cannot swap or clone"}
			}
		}
	}
	for i, it := range r.Items {
		if it.Element == nil && strings.TrimSpace(it.Selector) == "" {
			return &ConfigurationError{Rule: r.ID, Field: fmt.Sprintf("items[%d].selector", i), Reason: "missing"}
		}
		if it.Delay < 0 {
			return &ConfigurationError{Rule: r.ID, Field: fmt.Sprintf("items[%d].delay", i), Reason: "negative"}
		}
	}
	return nil
}

type posKind int

const (
	posLast posKind = iota
	posFirst
	posIndex
	posBefore
)

// Position says where an element lands inside its target. The zero value
// appends.
type Position struct {
	kind     posKind
	index    int
	selector string
}

// Last appends to the target.
func Last() Position { return Position{kind: posLast} }

// First inserts before the target's first element child.
func First() Position { return Position{kind: posFirst} }

// Index inserts before the n-th element child; out of range appends.
func Index(n int) Position { return Position{kind: posIndex, index: n} }

// Before inserts before the target child matching selector; a miss appends.
func Before(selector string) Position { return Position{kind: posBefore, selector: selector} }

// ParsePosition reads "first", "last", an integer or a selector.
func ParsePosition(s string) Position {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "last", "append":
		return Last()
	case "first", "prepend":
		return First()
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Index(n)
	}
	return Before(s)
}

func (p Position) String() string {
	switch p.kind {
	case posFirst:
		return "first"
	case posIndex:
		return strconv.Itoa(p.index)
	case posBefore:
		return p.selector
	}
	return "last"
}

// MarshalText implements encoding.TextMarshaler.
func (p Position) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Position) UnmarshalText(b []byte) error {
	*p = ParsePosition(string(b))
	return nil
}
