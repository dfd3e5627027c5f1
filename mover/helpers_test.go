package mover

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/dom/htmltree"
	"github.com/hazyhaar/domshift/media"
)

const page = `<html><head></head><body>` +
	`<main id="main"><p id="x" data-move-id="x">X</p><p id="y" data-move-id="y">Y</p><p id="z" data-move-id="z">Z</p></main>` +
	`<aside id="sidebar"><h2 id="title" data-move-id="title">Side</h2></aside>` +
	`<footer id="foot"></footer>` +
	`</body></html>`

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) of(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	doc   *htmltree.Document
	em    *media.Emulator
	clock *clocktesting.FakeClock
	eng   *Engine
	rec   *recorder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds an initialised engine over page (or src when given) at
// the given viewport width. Mutation observation is off unless opts sets a
// source.
func newFixture(t *testing.T, width float64, rules []Rule, opts Options, src ...string) *fixture {
	t.Helper()
	return buildFixture(t, width, rules, opts, false, src...)
}

// newObservedFixture is newFixture with the document as mutation source.
func newObservedFixture(t *testing.T, width float64, rules []Rule, opts Options) *fixture {
	t.Helper()
	return buildFixture(t, width, rules, opts, true)
}

func buildFixture(t *testing.T, width float64, rules []Rule, opts Options, observe bool, src ...string) *fixture {
	t.Helper()
	markup := page
	if len(src) > 0 {
		markup = src[0]
	}
	doc, err := htmltree.ParseString(markup)
	require.NoError(t, err)

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		doc:   doc,
		em:    media.NewEmulator(media.Viewport{Width: width, Height: 800}),
		clock: clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0)),
		rec:   &recorder{},
	}
	if opts.Clock == nil {
		opts.Clock = f.clock
	}
	if !observe && opts.Mutations == nil {
		opts.DisableMutations = true
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	f.eng, err = New(doc, f.em, rules, opts)
	require.NoError(t, err)
	f.eng.Subscribe(f.rec.add)
	require.NoError(t, f.eng.Init(f.ctx))
	t.Cleanup(func() { _ = f.eng.Destroy(context.Background()) })
	return f
}

func (f *fixture) q(sel string) dom.Node {
	f.t.Helper()
	n, err := f.doc.Query(nil, sel)
	require.NoError(f.t, err)
	require.NotNil(f.t, n, sel)
	return n
}

func (f *fixture) resize(width float64) { f.em.Resize(width, 800) }

func (f *fixture) childIDs(parent dom.Node) []string {
	var out []string
	for _, c := range f.doc.Children(parent) {
		id, _ := f.doc.Attr(c, "id")
		out = append(out, id)
	}
	return out
}

func sidebarRule() Rule {
	return Rule{
		ID:        "sidebar",
		Predicate: "width>=768",
		Target:    []string{"#sidebar"},
		Items:     []Item{{Selector: "#x", Position: First()}},
	}
}
