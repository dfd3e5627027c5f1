package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/domshift/dbopen"
	"github.com/hazyhaar/domshift/dom/htmltree"
	"github.com/hazyhaar/domshift/media"
	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/store"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type collector struct {
	mu     sync.Mutex
	events []mover.Event
	closed bool
}

func (c *collector) Send(_ context.Context, ev mover.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *collector) types() []mover.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]mover.EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf)
	ctx := context.Background()
	require.NoError(t, s.Send(ctx, mover.Event{ID: "1", Type: mover.EventMove, Rule: "r", ElementID: "x"}))
	require.NoError(t, s.Send(ctx, mover.Event{ID: "2", Type: mover.EventRestore, Rule: "r", ElementID: "x"}))
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var ev mover.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, mover.EventRestore, ev.Type)
	assert.Equal(t, "x", ev.ElementID)
}

func TestWebhook(t *testing.T) {
	var (
		calls atomic.Int32
		got   mover.Event
		hdr   http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		hdr = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL,
		WithWebhookBackoff(time.Millisecond),
		WithWebhookHeader("Authorization", "Bearer t"),
		WithWebhookLogger(quiet()))
	require.NoError(t, w.Send(context.Background(), mover.Event{ID: "e", Type: mover.EventSwap, Rule: "r"}))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, mover.EventSwap, got.Type)
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Equal(t, "swap", hdr.Get("X-Domshift-Event"))
	assert.Equal(t, "Bearer t", hdr.Get("Authorization"))
}

func TestWebhookGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(2), WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	err := w.Send(context.Background(), mover.Event{Type: mover.EventMove})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	require.Error(t, w.Send(context.Background(), mover.Event{Type: mover.EventMove}))
	assert.Equal(t, int32(1), calls.Load())
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSubjects(t *testing.T) {
	pub := &fakePublisher{}
	n := &NATS{pub: pub, prefix: "shop.layout", close: func() {}}
	ctx := context.Background()

	require.NoError(t, n.Send(ctx, mover.Event{Type: mover.EventMove, ElementID: "x"}))
	require.NoError(t, n.Send(ctx, mover.Event{Type: mover.EventBreakpointChange, Predicate: "@md"}))
	assert.Equal(t, []string{"shop.layout.move", "shop.layout.breakpointChange"}, pub.subjects)

	var ev mover.Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &ev))
	assert.Equal(t, "x", ev.ElementID)

	pub.err = errors.New("disconnected")
	assert.ErrorContains(t, n.Send(ctx, mover.Event{Type: mover.EventMove}), "disconnected")
	require.NoError(t, n.Close())

	assert.Equal(t, "domshift.events.init", NewNATSConn(nil, "").Subject(mover.Event{Type: mover.EventInit}))
}

func TestRouter(t *testing.T) {
	a, b := &collector{}, &collector{}
	boom := Callback(func(context.Context, mover.Event) error { return errors.New("boom") })
	r := NewRouter(quiet(), a, boom, b)
	assert.Equal(t, 3, r.Len())

	err := r.Send(context.Background(), mover.Event{Type: mover.EventMove})
	assert.EqualError(t, err, "boom")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	require.NoError(t, r.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestEventLogSink(t *testing.T) {
	st, err := store.New(dbopen.OpenMemory(t))
	require.NoError(t, err)
	l := NewEventLog(st, mover.EventBreakpointChange)
	ctx := context.Background()

	require.NoError(t, l.Send(ctx, mover.Event{ID: "1", Type: mover.EventMove, Rule: "r"}))
	require.NoError(t, l.Send(ctx, mover.Event{ID: "2", Type: mover.EventBreakpointChange}))
	require.NoError(t, l.Close())

	evs, err := st.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, mover.EventMove, evs[0].Type)
}

func TestAttachEngine(t *testing.T) {
	doc, err := htmltree.ParseString(`<html><body><main><p id="x">X</p></main><aside id="side"></aside></body></html>`)
	require.NoError(t, err)
	em := media.NewEmulator(media.Viewport{Width: 375, Height: 800})
	eng, err := mover.New(doc, em, []mover.Rule{{
		ID:        "side",
		Predicate: "width>=768",
		Target:    []string{"#side"},
		Items:     []mover.Item{{Selector: "#x"}},
	}}, mover.Options{DisableMutations: true, Logger: quiet()})
	require.NoError(t, err)

	c := &collector{}
	a := Attach(eng, c, WithLogger(quiet()))
	ctx := context.Background()
	require.NoError(t, eng.Init(ctx))
	em.Resize(1024, 800)
	em.Resize(375, 800)
	require.NoError(t, a.Close())
	assert.True(t, c.closed)

	types := c.types()
	assert.Contains(t, types, mover.EventInit)
	assert.Contains(t, types, mover.EventMove)
	assert.Contains(t, types, mover.EventRestore)
	assert.Equal(t, int64(len(types)), a.Stats().Sent)

	// Detached: later events are not forwarded.
	require.NoError(t, eng.Destroy(ctx))
	assert.Len(t, c.types(), len(types))
	require.NoError(t, a.Close())
}

type blockingSink struct {
	release chan struct{}
	n       atomic.Int32
}

func (b *blockingSink) Send(context.Context, mover.Event) error {
	<-b.release
	b.n.Add(1)
	return nil
}

func (b *blockingSink) Close() error { return nil }

type manualSource struct{ fn func(mover.Event) }

func (m *manualSource) Subscribe(fn func(mover.Event)) func() {
	m.fn = fn
	return func() {}
}

func TestAttachDropsWhenFull(t *testing.T) {
	src := &manualSource{}
	b := &blockingSink{release: make(chan struct{})}
	a := Attach(src, b, WithBuffer(1), WithLogger(quiet()))

	for i := 0; i < 10; i++ {
		src.fn(mover.Event{Type: mover.EventMove})
	}
	close(b.release)
	require.NoError(t, a.Close())

	st := a.Stats()
	assert.Equal(t, int64(10), st.Sent+st.Dropped)
	assert.GreaterOrEqual(t, st.Dropped, int64(8))
	assert.Equal(t, int32(st.Sent), b.n.Load())
}
