// Package conflict decides whether a rule may take an element another rule
// already placed.
package conflict

import "github.com/hazyhaar/domshift/mover/internal/ledger"

// Decision is the outcome of Resolve.
type Decision int

const (
	// Accept: nobody holds the element.
	Accept Decision = iota
	// Same: the candidate rule already holds it; nothing to do.
	Same
	// Reclaim: the candidate wins; the holder's placement is restored first.
	Reclaim
	// RejectLowerPriority: the holder has strictly higher priority.
	RejectLowerPriority
	// RejectExclusive: the holder placed it exclusively.
	RejectExclusive
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Same:
		return "same"
	case Reclaim:
		return "reclaim"
	case RejectLowerPriority:
		return "reject-lower-priority"
	case RejectExclusive:
		return "reject-exclusive"
	}
	return "unknown"
}

// Proceed reports whether the candidate should go on to place the element.
func (d Decision) Proceed() bool { return d == Accept || d == Reclaim }

// Resolve compares the current holder of an element with a candidate.
// Priority is checked before exclusivity. Equal priorities favour the
// candidate (latest activation wins). The candidate's own exclusivity does
// not enter the decision; it only protects a placement once written.
func Resolve(existing *ledger.Placement, ruleID string, priority int, exclusive bool) Decision {
	switch {
	case existing == nil:
		return Accept
	case existing.RuleID == ruleID:
		return Same
	case existing.Priority > priority:
		return RejectLowerPriority
	case existing.Exclusive:
		return RejectExclusive
	}
	return Reclaim
}
