package ledger

import (
	"time"

	"github.com/hazyhaar/domshift/dom"
)

// Placement records one element moved out of its origin.
type Placement struct {
	ElementID    string
	Element      dom.Node
	OriginParent dom.Node
	// OriginAnchor is the origin next sibling; nil means "append".
	OriginAnchor dom.Node
	Marker       dom.Node
	Target       dom.Node

	RuleID    string
	Predicate string
	ItemIndex int
	Priority  int
	Exclusive bool
	// Group is the owning group's name, empty for single placements.
	Group string

	PlacedAt time.Time
	// Seq increases with every write to the ledger; a restore that waited
	// on a guard compares it to detect a concurrent replacement.
	Seq uint64
}

// Swap records two elements that traded positions.
type Swap struct {
	Key           string
	A, B          dom.Node
	IDA, IDB      string
	OriginParentA dom.Node
	OriginAnchorA dom.Node
	OriginParentB dom.Node
	OriginAnchorB dom.Node
	// MarkerA sits where A used to be (now B's position), MarkerB likewise.
	MarkerA, MarkerB dom.Node
	RuleID           string
	ItemIndex        int
	SwappedAt        time.Time
}

// Group records a set of elements moved as a unit.
type Group struct {
	Name       string
	RuleID     string
	ElementIDs []string
	Wrapper    dom.Node
	Target     dom.Node
	PlacedAt   time.Time
}

// Clone records a copy inserted while the source stays in place.
type Clone struct {
	SourceID  string
	Source    dom.Node
	Clone     dom.Node
	CloneID   string
	RuleID    string
	ItemIndex int
	ClonedAt  time.Time
}

// PairKey identifies a swap independently of argument order.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Ledger bundles the four record stores.
type Ledger struct {
	Placements *Store[string, *Placement]
	Swaps      *Store[string, *Swap]
	Groups     *Store[string, *Group] // by rule ID + group name
	Clones     *Store[string, *Clone] // by source element ID

	seq uint64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		Placements: NewStore[string, *Placement](),
		Swaps:      NewStore[string, *Swap](),
		Groups:     NewStore[string, *Group](),
		Clones:     NewStore[string, *Clone](),
	}
}

// Place stores p, stamping its sequence number.
func (l *Ledger) Place(p *Placement) {
	l.seq++
	p.Seq = l.seq
	l.Placements.Put(p.ElementID, p)
}

// GroupKey keys a group record.
func GroupKey(ruleID, name string) string { return ruleID + "/" + name }

// Swapped reports whether id takes part in a recorded swap.
func (l *Ledger) Swapped(id string) bool {
	found := false
	l.Swaps.Each(func(_ string, s *Swap) bool {
		found = s.IDA == id || s.IDB == id
		return !found
	})
	return found
}

// OwnedBy returns the placements written by ruleID, in placement order.
func (l *Ledger) OwnedBy(ruleID string) []*Placement {
	var out []*Placement
	l.Placements.Each(func(_ string, p *Placement) bool {
		if p.RuleID == ruleID {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Entry is the immutable view of a placement handed outside the engine.
type Entry struct {
	ElementID string    `json:"elementId"`
	RuleID    string    `json:"rule"`
	Predicate string    `json:"predicate"`
	ItemIndex int       `json:"item"`
	Priority  int       `json:"priority"`
	Exclusive bool      `json:"exclusive,omitempty"`
	Group     string    `json:"group,omitempty"`
	PlacedAt  time.Time `json:"placedAt"`
}

// Entry returns the read-only view of p.
func (p *Placement) Entry() Entry {
	return Entry{
		ElementID: p.ElementID,
		RuleID:    p.RuleID,
		Predicate: p.Predicate,
		ItemIndex: p.ItemIndex,
		Priority:  p.Priority,
		Exclusive: p.Exclusive,
		Group:     p.Group,
		PlacedAt:  p.PlacedAt,
	}
}

// Snapshot copies the placements in insertion order.
func (l *Ledger) Snapshot() []Entry {
	vals := l.Placements.Values()
	out := make([]Entry, len(vals))
	for i, p := range vals {
		out[i] = p.Entry()
	}
	return out
}

// Reset drops every record.
func (l *Ledger) Reset() {
	l.Placements.Clear()
	l.Swaps.Clear()
	l.Groups.Clear()
	l.Clones.Clear()
}
