package mover

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshift/dom/htmltree"
	"github.com/hazyhaar/domshift/media"
)

func TestSidebarScenario(t *testing.T) {
	f := newFixture(t, 375, []Rule{sidebarRule()}, Options{})
	before := f.doc.HTML()
	x, main, side := f.q("#x"), f.q("#main"), f.q("#sidebar")
	require.Equal(t, main, f.doc.Parent(x))

	f.resize(1024)
	assert.Equal(t, side, f.doc.Parent(x))
	assert.Equal(t, []string{"x", "title"}, f.childIDs(side))
	moves := f.rec.of(EventMove)
	require.Len(t, moves, 1)
	assert.Equal(t, "x", moves[0].ElementID)
	assert.Equal(t, "sidebar", moves[0].Rule)
	assert.Equal(t, "#sidebar", moves[0].Target)
	assert.True(t, f.eng.IsPlaced(x))

	f.resize(375)
	assert.Equal(t, main, f.doc.Parent(x))
	assert.Equal(t, before, f.doc.HTML())
	restores := f.rec.of(EventRestore)
	require.Len(t, restores, 1)
	assert.Equal(t, "x", restores[0].ElementID)
	assert.False(t, f.eng.IsPlaced(x))
}

func TestEventOrderOnEdge(t *testing.T) {
	f := newFixture(t, 375, []Rule{sidebarRule()}, Options{})
	f.resize(1024)
	assert.Equal(t, []EventType{EventInit, EventBreakpointChange, EventEnter, EventMove}, f.rec.types())

	bp := f.rec.of(EventBreakpointChange)[0]
	assert.Equal(t, "width>=768", bp.Predicate)
	assert.True(t, bp.Matches)
}

func TestIdempotentReapply(t *testing.T) {
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{})
	require.Len(t, f.rec.of(EventMove), 1)

	require.NoError(t, f.eng.Refresh(f.ctx))
	require.NoError(t, f.eng.Refresh(f.ctx))

	assert.Len(t, f.rec.of(EventMove), 1)
	assert.Len(t, f.rec.of(EventEnter), 1)
	assert.Len(t, f.eng.Snapshot(), 1)
	assert.Len(t, f.rec.of(EventRefreshed), 2)
}

func TestRoundTripKeepsTextAndComments(t *testing.T) {
	src := `<html><head></head><body>
<main id="main">
  lead text
  <!-- note -->
  <p id="x" data-move-id="x">X <b>bold</b></p>
  tail <i>it</i>
</main>
<aside id="sidebar"> <h2 id="title" data-move-id="title">Side</h2> </aside>
</body></html>`
	rule := sidebarRule()
	rule.Items[0].Position = Index(0)
	f := newFixture(t, 375, []Rule{rule}, Options{}, src)
	before := f.doc.HTML()

	for i := 0; i < 3; i++ {
		f.resize(1024)
		require.Equal(t, f.q("#sidebar"), f.doc.Parent(f.q("#x")))
		f.resize(375)
		require.Equal(t, before, f.doc.HTML())
	}
}

func TestPriorityHolderKeepsElement(t *testing.T) {
	a := Rule{ID: "a", Predicate: "(min-width: 600px)", Target: []string{"#sidebar"}, Priority: 5, Items: []Item{{Selector: "#x"}}}
	b := Rule{ID: "b", Predicate: "(min-width: 300px)", Target: []string{"#foot"}, Priority: 2, Items: []Item{{Selector: "#x"}}}
	f := newFixture(t, 700, []Rule{a, b}, Options{})
	x := f.q("#x")

	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(x))
	rec, ok := f.eng.Record(x)
	require.True(t, ok)
	assert.Equal(t, "a", rec.RuleID)
	assert.Equal(t, 5, rec.Priority)

	// A leaves; B is still active but does not inherit the element.
	f.resize(500)
	assert.Equal(t, f.q("#main"), f.doc.Parent(x))
	assert.False(t, f.eng.IsPlaced(x))
	assert.Len(t, f.rec.of(EventMove), 1)
}

func TestHigherPriorityReclaims(t *testing.T) {
	a := Rule{ID: "a", Predicate: "(min-width: 600px)", Target: []string{"#sidebar"}, Priority: 1, Items: []Item{{Selector: "#x"}}}
	b := Rule{ID: "b", Predicate: "(min-width: 900px)", Target: []string{"#foot"}, Priority: 9, Items: []Item{{Selector: "#x"}}}
	f := newFixture(t, 100, []Rule{a, b}, Options{})
	before := f.doc.HTML()
	x := f.q("#x")
	f.resize(700)
	require.Equal(t, f.q("#sidebar"), f.doc.Parent(x))

	f.resize(1000)
	assert.Equal(t, f.q("#foot"), f.doc.Parent(x))
	rec, ok := f.eng.Record(x)
	require.True(t, ok)
	assert.Equal(t, "b", rec.RuleID)

	var seq []string
	for _, ev := range f.rec.events {
		if ev.Type == EventMove || ev.Type == EventRestore {
			seq = append(seq, string(ev.Type)+":"+ev.Rule)
		}
	}
	assert.Equal(t, []string{"move:a", "restore:a", "move:b"}, seq)

	f.resize(700)
	assert.Equal(t, f.q("#main"), f.doc.Parent(x))
	f.resize(100)
	assert.Equal(t, before, f.doc.HTML())
}

func TestFailedReclaimLeavesHolderInPlace(t *testing.T) {
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{})
	x := f.q("#x")

	_, err := f.eng.AddRule(f.ctx, Rule{ID: "b", Predicate: "width>=768", Target: []string{"#missing"}, Priority: 1,
		Items: []Item{{Selector: "#x"}}})
	require.NoError(t, err)

	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(x))
	rec, ok := f.eng.Record(x)
	require.True(t, ok)
	assert.Equal(t, "sidebar", rec.RuleID)
	assert.Empty(t, f.rec.of(EventRestore))
	assert.Len(t, f.rec.of(EventError), 1)
}

func TestVetoedReclaimLeavesHolderInPlace(t *testing.T) {
	guard := GuardFuncs{
		OnBeforeMove: func(_ context.Context, m MoveInfo) (bool, error) { return m.RuleID != "b", nil },
	}
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{Guard: guard})
	x := f.q("#x")

	_, err := f.eng.AddRule(f.ctx, Rule{ID: "b", Predicate: "width>=768", Target: []string{"#foot"}, Priority: 1,
		Items: []Item{{Selector: "#x"}}})
	require.NoError(t, err)

	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(x))
	rec, ok := f.eng.Record(x)
	require.True(t, ok)
	assert.Equal(t, "sidebar", rec.RuleID)
	assert.Empty(t, f.rec.of(EventRestore))
	assert.Len(t, f.rec.of(EventMove), 1)
}

func TestExclusiveRejectsEveryCompetitor(t *testing.T) {
	a := Rule{ID: "a", Predicate: "(min-width: 300px)", Target: []string{"#sidebar"}, Exclusive: true, Items: []Item{{Selector: "#x"}}}
	b := Rule{ID: "b", Predicate: "(min-width: 600px)", Target: []string{"#foot"}, Priority: 100, Items: []Item{{Selector: "#x"}}}
	f := newFixture(t, 400, []Rule{a, b}, Options{})
	x := f.q("#x")
	require.Equal(t, f.q("#sidebar"), f.doc.Parent(x))

	f.resize(700)
	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(x))
	require.NoError(t, f.eng.Refresh(f.ctx))
	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(x))

	// An explicit restore lifts the lock.
	ok, err := f.eng.Restore(f.ctx, x)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.q("#main"), f.doc.Parent(x))

	require.NoError(t, f.eng.RemoveRule(f.ctx, "a"))
	require.NoError(t, f.eng.Refresh(f.ctx))
	assert.Equal(t, f.q("#foot"), f.doc.Parent(x))
}

func TestItemOverridesRulePriority(t *testing.T) {
	a := Rule{ID: "a", Predicate: "(min-width: 300px)", Target: []string{"#sidebar"}, Priority: 1,
		Items: []Item{{Selector: "#x", Priority: Int(50)}}}
	b := Rule{ID: "b", Predicate: "(min-width: 600px)", Target: []string{"#foot"}, Priority: 10, Items: []Item{{Selector: "#x"}}}
	f := newFixture(t, 400, []Rule{a, b}, Options{})
	f.resize(700)
	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(f.q("#x")))
}

func TestTargetFallbackList(t *testing.T) {
	r := sidebarRule()
	r.Target = []string{"#missing, #also-missing", "#foot"}
	f := newFixture(t, 1024, []Rule{r}, Options{})
	assert.Equal(t, f.q("#foot"), f.doc.Parent(f.q("#x")))
	assert.Equal(t, "#foot", f.rec.of(EventMove)[0].Target)
}

func TestPositions(t *testing.T) {
	cases := []struct {
		pos  Position
		want []string
	}{
		{First(), []string{"x", "title"}},
		{Last(), []string{"title", "x"}},
		{Index(0), []string{"x", "title"}},
		{Index(7), []string{"title", "x"}},
		{Before("#title"), []string{"x", "title"}},
		{Before("#nothing"), []string{"title", "x"}},
		{ParsePosition("first"), []string{"x", "title"}},
		{ParsePosition("1"), []string{"title", "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.pos.String(), func(t *testing.T) {
			r := sidebarRule()
			r.Items[0].Position = tc.pos
			f := newFixture(t, 1024, []Rule{r}, Options{})
			assert.Equal(t, tc.want, f.childIDs(f.q("#sidebar")))
		})
	}
}

func TestMissingElementIsSkippedSilently(t *testing.T) {
	r := sidebarRule()
	r.Items = append([]Item{{Selector: "#ghost"}}, r.Items...)
	f := newFixture(t, 1024, []Rule{r}, Options{})
	assert.Empty(t, f.rec.of(EventError))
	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(f.q("#x")))
}

func TestMissingTargetIsReported(t *testing.T) {
	var mu sync.Mutex
	var reports []ErrorReport
	r := sidebarRule()
	r.Target = []string{"#nope"}
	r.Items = append(r.Items, Item{Selector: "#y"})
	f := newFixture(t, 1024, []Rule{r}, Options{ErrorHandler: func(rep ErrorReport) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, rep)
	}})

	// Both items fail independently; neither aborts the other.
	mu.Lock()
	require.Len(t, reports, 2)
	var tre *TargetResolutionError
	require.True(t, errors.As(reports[0].Err, &tre))
	assert.Equal(t, "target", tre.Role)
	assert.Equal(t, "sidebar", reports[0].Context["rule"])
	mu.Unlock()

	errs := f.rec.of(EventError)
	require.Len(t, errs, 2)
	assert.Equal(t, "sidebar", errs[0].Rule)
	assert.Zero(t, f.eng.Stats().Placed)
	assert.Equal(t, f.q("#main"), f.doc.Parent(f.q("#x")))
}

func TestConfigurationErrors(t *testing.T) {
	doc, err := htmltree.ParseString(page)
	require.NoError(t, err)
	em := media.NewEmulator(media.Viewport{Width: 1024, Height: 800})

	cases := map[string][]Rule{
		"predicate": {{Target: []string{"#sidebar"}, Items: []Item{{Selector: "#x"}}}},
		"bad query": {{Predicate: "(colour: blue)", Target: []string{"#sidebar"}, Items: []Item{{Selector: "#x"}}}},
		"target":    {{Predicate: "@md", Items: []Item{{Selector: "#x"}}}},
		"items":     {{Predicate: "@md", Target: []string{"#sidebar"}}},
		"selector":  {{Predicate: "@md", Target: []string{"#sidebar"}, Items: []Item{{}}}},
		"duplicate": {
			{ID: "r", Predicate: "@md", Target: []string{"#sidebar"}, Items: []Item{{Selector: "#x"}}},
			{ID: "r", Predicate: "@lg", Target: []string{"#sidebar"}, Items: []Item{{Selector: "#y"}}},
		},
		"group name": {{Predicate: "@md", Target: []string{"#sidebar"}, Group: &GroupSpec{}, Items: []Item{{Selector: "#x"}}}},
	}
	for name, rules := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(doc, em, rules, Options{Logger: quietLogger()})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			var ce *ConfigurationError
			assert.True(t, errors.As(err, &ce))
		})
	}

	// A swap-only rule needs no target.
	_, err = New(doc, em, []Rule{{Predicate: "@md", Items: []Item{{Selector: "#x", SwapWith: "#y"}}}}, Options{Logger: quietLogger()})
	assert.NoError(t, err)
}

func TestAddRuleAfterInit(t *testing.T) {
	f := newFixture(t, 1024, nil, Options{})
	id, err := f.eng.AddRule(f.ctx, Rule{Predicate: "@md", Target: []string{"#foot"}, Items: []Item{{Selector: "#y"}}})
	require.NoError(t, err)
	assert.Equal(t, "rule-1", id)
	assert.Equal(t, f.q("#foot"), f.doc.Parent(f.q("#y")))
	assert.Equal(t, []EventType{EventInit, EventRuleAdded, EventEnter, EventMove}, f.rec.types())

	rules := f.eng.Rules()
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Active)
	assert.Equal(t, "(min-width: 768px)", rules[0].Query)
	assert.Equal(t, 1, rules[0].Placed)
}

func TestRemoveRuleRestoresFirst(t *testing.T) {
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{})
	before := f.rec.of(EventMove)
	require.Len(t, before, 1)

	require.NoError(t, f.eng.RemoveRule(f.ctx, "sidebar"))
	assert.Equal(t, f.q("#main"), f.doc.Parent(f.q("#x")))
	assert.Empty(t, f.eng.Rules())
	types := f.rec.types()
	assert.Equal(t, []EventType{EventRestore, EventLeave, EventRuleRemoved}, types[len(types)-3:])

	assert.ErrorIs(t, f.eng.RemoveRule(f.ctx, "sidebar"), ErrNotFound)
	f.resize(375)
	f.resize(1024)
	assert.Equal(t, f.q("#main"), f.doc.Parent(f.q("#x")))
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, 375, []Rule{sidebarRule()}, Options{})
	require.NoError(t, f.eng.Pause())
	require.NoError(t, f.eng.Pause())
	f.resize(1024)
	assert.Equal(t, f.q("#main"), f.doc.Parent(f.q("#x")))
	assert.True(t, f.eng.Stats().Paused)

	require.NoError(t, f.eng.Resume(f.ctx))
	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(f.q("#x")))
	assert.Len(t, f.rec.of(EventPaused), 1)
	assert.Len(t, f.rec.of(EventResumed), 1)
}

func TestDestroyRestoresEverything(t *testing.T) {
	rules := []Rule{
		sidebarRule(),
		{ID: "swap", Predicate: "@md", Items: []Item{{Selector: "#y", SwapWith: "#title"}}},
		{ID: "clone", Predicate: "@md", Target: []string{"#foot"}, Items: []Item{{Selector: "#z", Clone: true}}},
	}
	f := newFixture(t, 375, rules, Options{})
	before := f.doc.HTML()
	f.resize(1024)
	s := f.eng.Stats()
	require.Equal(t, 1, s.Placed)
	require.Equal(t, 1, s.Swaps)
	require.Equal(t, 1, s.Clones)

	require.NoError(t, f.eng.Destroy(f.ctx))
	assert.Equal(t, before, f.doc.HTML())
	assert.Len(t, f.rec.of(EventDestroyed), 1)
	assert.True(t, f.eng.Stats().Destroyed)

	_, err := f.eng.AddRule(f.ctx, sidebarRule())
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.ErrorIs(t, f.eng.Pause(), ErrDestroyed)
	f.resize(375)
	f.resize(1024)
	assert.Equal(t, before, f.doc.HTML())
	assert.NoError(t, f.eng.Destroy(f.ctx))
}

func TestRestoreAllThenRefreshReapplies(t *testing.T) {
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{})
	require.NoError(t, f.eng.RestoreAll(f.ctx))
	assert.Equal(t, f.q("#main"), f.doc.Parent(f.q("#x")))
	assert.Zero(t, f.eng.Stats().ActiveRules)

	require.NoError(t, f.eng.Refresh(f.ctx))
	assert.Equal(t, f.q("#sidebar"), f.doc.Parent(f.q("#x")))
}

func TestRestoreSelector(t *testing.T) {
	r := sidebarRule()
	r.Items = append(r.Items, Item{Selector: "#y"})
	f := newFixture(t, 1024, []Rule{r}, Options{})
	n, err := f.eng.RestoreSelector(f.ctx, "main p, aside p")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"x", "y", "z"}, f.childIDs(f.q("#main")))

	ok, err := f.eng.IsPlacedSelector("#x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreFallsBackToAnchorThenAppend(t *testing.T) {
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{})
	main := f.q("#main").(*html.Node)
	marker := main.FirstChild
	require.Equal(t, html.CommentNode, marker.Type)
	assert.Equal(t, "rdm:x", marker.Data)

	// Marker gone: the captured next sibling is used.
	require.NoError(t, f.doc.Remove(marker))
	f.resize(375)
	assert.Equal(t, []string{"x", "y", "z"}, f.childIDs(main))

	// Marker and anchor gone: append.
	f.resize(1024)
	require.NoError(t, f.doc.Remove(main.FirstChild))
	require.NoError(t, f.doc.Remove(f.q("#y")))
	f.resize(375)
	assert.Equal(t, []string{"z", "x"}, f.childIDs(main))
}

func TestRestoreIntoDetachedOriginParent(t *testing.T) {
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{})
	main, x := f.q("#main"), f.q("#x")
	require.NoError(t, f.doc.Remove(main))

	f.resize(375)
	assert.Equal(t, main, f.doc.Parent(x))
	assert.False(t, f.doc.Attached(x))
	assert.Len(t, f.rec.of(EventRestore), 1)
	assert.False(t, f.eng.IsPlaced(x))
}

func TestConditionGatesRule(t *testing.T) {
	wide := false
	r := sidebarRule()
	r.Condition = func(_ context.Context, env ConditionEnv) (bool, error) {
		require.NotNil(t, env.Viewport)
		return wide && env.Matches, nil
	}
	f := newFixture(t, 1024, []Rule{r}, Options{})
	assert.False(t, f.eng.IsPlaced(f.q("#x")))

	wide = true
	require.NoError(t, f.eng.Refresh(f.ctx))
	assert.True(t, f.eng.IsPlaced(f.q("#x")))

	wide = false
	require.NoError(t, f.eng.Refresh(f.ctx))
	assert.False(t, f.eng.IsPlaced(f.q("#x")))
}

func TestConditionFailureIsReported(t *testing.T) {
	r := sidebarRule()
	r.Condition = func(context.Context, ConditionEnv) (bool, error) { panic("boom") }
	f := newFixture(t, 1024, []Rule{r}, Options{})
	errs := f.rec.of(EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "boom")
	assert.False(t, f.eng.IsPlaced(f.q("#x")))
}

func TestHooks(t *testing.T) {
	var calls []string
	r := sidebarRule()
	r.Hooks = LifecycleFuncs{
		OnEnter: func(_ context.Context, ri RuleInfo) error { calls = append(calls, "enter:"+ri.ID); return nil },
		OnLeave: func(_ context.Context, ri RuleInfo) error { calls = append(calls, "leave:"+ri.ID); return nil },
		OnMoved: func(_ context.Context, m MoveInfo) error {
			calls = append(calls, "rule-moved:"+m.ElementID)
			return nil
		},
	}
	r.Items[0].Hooks = ItemFunc(func(_ context.Context, m MoveInfo) error {
		calls = append(calls, "item-moved:"+m.ElementID)
		return errors.New("item hook complaint")
	})
	f := newFixture(t, 375, []Rule{r}, Options{})
	f.resize(1024)
	f.resize(375)

	assert.Equal(t, []string{"enter:sidebar", "item-moved:x", "rule-moved:x", "leave:sidebar"}, calls)
	errs := f.rec.of(EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "item hook complaint")
	// A failing after-hook does not undo the move.
	assert.Len(t, f.rec.of(EventRestore), 1)
}

func TestGuardVetoAndReentry(t *testing.T) {
	var f *fixture
	allow := false
	guard := GuardFuncs{
		OnBeforeMove: func(_ context.Context, m MoveInfo) (bool, error) {
			// The engine lock is released while guards run.
			_ = f.eng.Stats()
			return allow, nil
		},
	}
	f = newFixture(t, 375, []Rule{sidebarRule()}, Options{Guard: guard})
	f.resize(1024)
	assert.False(t, f.eng.IsPlaced(f.q("#x")))
	assert.Empty(t, f.rec.of(EventError))

	allow = true
	require.NoError(t, f.eng.Refresh(f.ctx))
	assert.True(t, f.eng.IsPlaced(f.q("#x")))
}

func TestGuardErrorAbortsRestore(t *testing.T) {
	guard := GuardFuncs{
		OnBeforeRestore: func(context.Context, MoveInfo) (bool, error) { return false, errors.New("not now") },
	}
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{Guard: guard})
	f.resize(375)
	assert.True(t, f.eng.IsPlaced(f.q("#x")))
	errs := f.rec.of(EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "not now")
}

func TestStatsReportsViewport(t *testing.T) {
	f := newFixture(t, 1024, []Rule{sidebarRule()}, Options{})
	s := f.eng.Stats()
	assert.Equal(t, 1, s.Rules)
	assert.Equal(t, 1, s.ActiveRules)
	assert.Equal(t, 1, s.Placed)
	assert.True(t, s.Initialized)
	require.NotNil(t, s.Viewport)
	assert.Equal(t, 1024.0, s.Viewport.Width)
}

func TestNamedBreakpoints(t *testing.T) {
	r := sidebarRule()
	r.Predicate = "@tablet"
	f := newFixture(t, 500, []Rule{r}, Options{Breakpoints: map[string]string{"tablet": "(min-width: 600px)"}})
	assert.False(t, f.eng.IsPlaced(f.q("#x")))
	f.resize(650)
	assert.True(t, f.eng.IsPlaced(f.q("#x")))
	bp := f.rec.of(EventBreakpointChange)
	require.Len(t, bp, 1)
	assert.Equal(t, "(min-width: 600px)", bp[0].Detail["query"])
}

func TestOnFiltersByType(t *testing.T) {
	f := newFixture(t, 375, []Rule{sidebarRule()}, Options{})
	var moves []string
	off := f.eng.On(EventMove, func(ev Event) { moves = append(moves, ev.ElementID) })

	f.resize(1024)
	f.resize(375)
	off()
	f.resize(1024)

	assert.Equal(t, []string{"x"}, moves)
	evs := f.rec.of(EventMove)
	require.Len(t, evs, 2)
	assert.NotEqual(t, evs[0].ID, evs[1].ID)
	assert.Equal(t, f.clock.Now(), evs[0].Time)
}

func TestDiagnosticsStayAtDebugLevel(t *testing.T) {
	logs := func(level slog.Level) string {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level}))
		newFixture(t, 1024, []Rule{sidebarRule()}, Options{Debug: true, Logger: logger})
		return buf.String()
	}
	assert.NotContains(t, logs(slog.LevelInfo), "mover: rule enter")
	assert.Contains(t, logs(slog.LevelDebug), "mover: rule enter")
}
