package media

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vp(w, h float64) Viewport { return Viewport{Width: w, Height: h} }

func TestParse_Match(t *testing.T) {
	cases := []struct {
		query string
		vp    Viewport
		want  bool
	}{
		{"(min-width: 768px)", vp(768, 600), true},
		{"(min-width: 768px)", vp(767, 600), false},
		{"(max-width: 767px)", vp(375, 800), true},
		{"screen and (min-width: 48em)", vp(768, 600), true},
		{"print and (min-width: 1px)", vp(768, 600), false},
		{"only screen and (max-height: 500px)", vp(1000, 400), true},
		{"not screen and (min-width: 768px)", vp(375, 800), true},
		{"not screen and (min-width: 768px)", vp(1024, 800), false},
		{"(orientation: portrait)", vp(375, 800), true},
		{"(orientation: landscape)", vp(375, 800), false},
		{"(min-aspect-ratio: 16/9)", vp(1920, 1080), true},
		{"(max-aspect-ratio: 1/1)", vp(1920, 1080), false},
		{"(width >= 768px)", vp(800, 600), true},
		{"(400px <= width < 800px)", vp(800, 600), false},
		{"(400px <= width < 800px)", vp(400, 600), true},
		{"width>=768", vp(1024, 768), true},
		{"width >= 768", vp(700, 768), false},
		{"(max-width: 500px), (min-width: 1000px)", vp(1200, 800), true},
		{"(max-width: 500px), (min-width: 1000px)", vp(700, 800), false},
		{"all", vp(1, 1), true},
		{"(min-width: 30rem)", vp(480, 100), true},
	}
	for _, tc := range cases {
		q, err := Parse(tc.query)
		require.NoError(t, err, tc.query)
		assert.Equal(t, tc.want, q.Match(tc.vp), "%s @ %vx%v", tc.query, tc.vp.Width, tc.vp.Height)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, bad := range []string{
		"",
		"(min-width 768px)",
		"(min-width: wide)",
		"(hover: hover)",
		"tv and (min-width: 1px)",
		"screen and",
		"(min-width: 768px",
		"(orientation: sideways)",
		"width>=",
	} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrSyntax, bad)
	}
}

func TestBreakpoints_Resolve(t *testing.T) {
	bp := DefaultBreakpoints().Merge(map[string]string{"tablet": "(min-width: 600px)"})
	assert.Equal(t, "(min-width: 768px)", bp.Resolve("md"))
	assert.Equal(t, "(min-width: 768px)", bp.Resolve("@md"))
	assert.Equal(t, "(min-width: 600px)", bp.Resolve("@tablet"))
	assert.Equal(t, "(max-width: 10px)", bp.Resolve("(max-width: 10px)"))
	require.NoError(t, bp.Validate())
	_, ok := DefaultBreakpoints()["tablet"]
	assert.False(t, ok, "Merge must not modify its receiver")
}

func TestEmulator_EdgesInSubscriptionOrder(t *testing.T) {
	em := NewEmulator(vp(375, 800))
	var mu sync.Mutex
	var got []string
	record := func(name string) func(bool) {
		return func(m bool) {
			mu.Lock()
			defer mu.Unlock()
			if m {
				got = append(got, name+"+")
			} else {
				got = append(got, name+"-")
			}
		}
	}
	_, err := em.Subscribe("(min-width: 768px)", record("a"))
	require.NoError(t, err)
	_, err = em.Subscribe("(max-width: 500px)", record("b"))
	require.NoError(t, err)
	_, err = em.Subscribe("(min-width: 768px)", record("c"))
	require.NoError(t, err)

	assert.Equal(t, 3, em.Resize(1024, 800))
	assert.Equal(t, []string{"a+", "b-", "c+"}, got)

	got = nil
	assert.Equal(t, 0, em.Resize(1100, 800), "no edge, no callback")
	assert.Empty(t, got)
}

func TestEmulator_Unsubscribe(t *testing.T) {
	em := NewEmulator(vp(375, 800))
	calls := 0
	off, err := em.Subscribe("(min-width: 768px)", func(bool) { calls++ })
	require.NoError(t, err)
	off()
	off()
	em.Resize(1024, 800)
	assert.Zero(t, calls)
	assert.Zero(t, em.subs.Len())
}

func TestEmulator_SubscribeRejectsBadQuery(t *testing.T) {
	em := NewEmulator(vp(375, 800))
	_, err := em.Subscribe("(nonsense)", func(bool) {})
	assert.Error(t, err)
}

func TestTracker_EdgeTriggered(t *testing.T) {
	em := NewEmulator(vp(375, 800))
	tr := NewTracker(em, DefaultBreakpoints(), nil)
	defer tr.Close()

	var edges []bool
	off, err := tr.OnChange("@md", func(m bool) { edges = append(edges, m) })
	require.NoError(t, err)
	defer off()

	m, err := tr.Matches("@md")
	require.NoError(t, err)
	assert.False(t, m)

	em.Resize(1024, 800)
	em.Resize(1200, 800)
	em.Resize(375, 800)
	assert.Equal(t, []bool{true, false}, edges)

	// Sync with an unchanged viewport delivers nothing.
	v, err := tr.Sync("@md")
	require.NoError(t, err)
	assert.False(t, v)
	assert.Len(t, edges, 2)
}

func TestTracker_OnAnyRunsFirst(t *testing.T) {
	em := NewEmulator(vp(375, 800))
	tr := NewTracker(em, nil, nil)
	var order []string
	tr.OnAny(func(pred string, m bool) { order = append(order, "any:"+pred) })
	_, err := tr.OnChange("width>=768", func(bool) { order = append(order, "rule") })
	require.NoError(t, err)
	em.Resize(800, 600)
	assert.Equal(t, []string{"any:width>=768", "rule"}, order)
}

func TestTracker_ReleaseAndClose(t *testing.T) {
	em := NewEmulator(vp(375, 800))
	tr := NewTracker(em, nil, nil)
	off1, err := tr.OnChange("(min-width: 768px)", func(bool) {})
	require.NoError(t, err)
	off2, err := tr.OnChange("(min-width: 768px)", func(bool) {})
	require.NoError(t, err)
	assert.Equal(t, 1, em.subs.Len())

	off1()
	assert.Len(t, tr.Predicates(), 1)
	off2()
	assert.Empty(t, tr.Predicates())
	assert.Zero(t, em.subs.Len())

	_, err = tr.OnChange("(min-width: 768px)", func(bool) {})
	require.NoError(t, err)
	tr.Close()
	assert.Zero(t, em.subs.Len())
	_, err = tr.Register("(min-width: 1px)")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTracker_UntrackedMatchesEvaluates(t *testing.T) {
	tr := NewTracker(NewEmulator(vp(1024, 768)), nil, nil)
	m, err := tr.Matches("(min-width: 768px)")
	require.NoError(t, err)
	assert.True(t, m)
	assert.Empty(t, tr.Predicates())
	assert.Error(t, tr.Validate("(bogus: 1)"))
}

func TestEmulator_ParsedCacheIsBounded(t *testing.T) {
	em := NewEmulator(Viewport{Width: 1000, Height: 800})
	for i := 0; i < 5*maxParsed; i++ {
		ok, err := em.Evaluate(fmt.Sprintf("(min-width: %dpx)", i))
		require.NoError(t, err)
		assert.Equal(t, i <= 1000, ok)
		em.mu.RLock()
		n := len(em.parsed)
		em.mu.RUnlock()
		require.LessOrEqual(t, n, maxParsed)
	}

	// Separate emulators do not share compiled queries.
	other := NewEmulator(Viewport{Width: 1000, Height: 800})
	assert.Empty(t, other.parsed)
}
