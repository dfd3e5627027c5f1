package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazyhaar/domshift/mover/internal/ledger"
)

func TestResolve(t *testing.T) {
	held := &ledger.Placement{RuleID: "a", Priority: 5}
	excl := &ledger.Placement{RuleID: "a", Priority: 0, Exclusive: true}
	strongExcl := &ledger.Placement{RuleID: "a", Priority: 5, Exclusive: true}

	cases := []struct {
		name     string
		existing *ledger.Placement
		rule     string
		prio     int
		want     Decision
	}{
		{"free", nil, "b", 0, Accept},
		{"same rule", held, "a", 0, Same},
		{"lower", held, "b", 4, RejectLowerPriority},
		{"equal", held, "b", 5, Reclaim},
		{"higher", held, "b", 6, Reclaim},
		{"exclusive beats higher candidate", excl, "b", 100, RejectExclusive},
		{"priority checked before exclusive", strongExcl, "b", 1, RejectLowerPriority},
		{"exclusive at equal priority", strongExcl, "b", 5, RejectExclusive},
		{"exclusive same rule", excl, "a", 0, Same},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.existing, tc.rule, tc.prio, false)
			assert.Equal(t, tc.want, got, got.String())
		})
	}
}

func TestDecision_Proceed(t *testing.T) {
	assert.True(t, Accept.Proceed())
	assert.True(t, Reclaim.Proceed())
	assert.False(t, Same.Proceed())
	assert.False(t, RejectExclusive.Proceed())
	assert.False(t, RejectLowerPriority.Proceed())
}
