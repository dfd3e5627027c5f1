package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_OrderAndReplace(t *testing.T) {
	s := NewStore[string, int]()
	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("c", 3)
	s.Put("a", 10)

	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
	assert.Equal(t, []int{10, 2, 3}, s.Values())

	require.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, s.Keys())

	v, ok := s.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	s.Put("d", 4)
	assert.Equal(t, []string{"a", "c", "d"}, s.Keys())
	assert.Equal(t, 3, s.Len())
}

func TestStore_EachAllowsMutation(t *testing.T) {
	s := NewStore[string, int]()
	for i, k := range []string{"x", "y", "z"} {
		s.Put(k, i)
	}
	var seen []string
	s.Each(func(k string, _ int) bool {
		seen = append(seen, k)
		s.Delete(k)
		return true
	})
	assert.Equal(t, []string{"x", "y", "z"}, seen)
	assert.Zero(t, s.Len())
}

func TestPairKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("rdm-a", "rdm-b"), PairKey("rdm-b", "rdm-a"))
	assert.NotEqual(t, PairKey("rdm-a", "rdm-b"), PairKey("rdm-a", "rdm-c"))
}

func TestLedger_SeqAndSnapshot(t *testing.T) {
	l := New()
	p1 := &Placement{ElementID: "e1", RuleID: "r1"}
	p2 := &Placement{ElementID: "e2", RuleID: "r2", Group: "g"}
	l.Place(p1)
	l.Place(p2)
	assert.Less(t, p1.Seq, p2.Seq)

	again := &Placement{ElementID: "e1", RuleID: "r3"}
	l.Place(again)
	assert.Greater(t, again.Seq, p2.Seq)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "e1", snap[0].ElementID)
	assert.Equal(t, "r3", snap[0].RuleID)
	assert.Equal(t, "g", snap[1].Group)

	assert.Len(t, l.OwnedBy("r2"), 1)
	assert.Empty(t, l.OwnedBy("r1"))
}

func TestLedger_Swapped(t *testing.T) {
	l := New()
	l.Swaps.Put(PairKey("a", "b"), &Swap{IDA: "a", IDB: "b"})
	assert.True(t, l.Swapped("a"))
	assert.True(t, l.Swapped("b"))
	assert.False(t, l.Swapped("c"))
	l.Reset()
	assert.False(t, l.Swapped("a"))
}
