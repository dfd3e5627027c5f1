package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domshift/media"
)

// Media evaluates queries against the page's live viewport with the same
// parser the Emulator uses, so rule files behave identically on both
// backends. Window resizes reported by the page trigger re-evaluation.
type Media struct {
	tab *Tab

	mu   sync.RWMutex
	vp   media.Viewport
	subs media.Subscriptions
}

var (
	_ media.Evaluator        = (*Media)(nil)
	_ media.ViewportReporter = (*Media)(nil)
)

// NewMedia reads the current viewport of tab and follows its changes.
func NewMedia(ctx context.Context, tab *Tab) (*Media, error) {
	m := &Media{tab: tab}
	res, err := tab.Page.Context(ctx).Eval(`() => JSON.stringify({width: window.innerWidth, height: window.innerHeight})`)
	if err != nil {
		return nil, fmt.Errorf("browser: read viewport: %w", err)
	}
	vp, err := decodeViewport(res.Value.Str())
	if err != nil {
		return nil, err
	}
	m.vp = vp
	tab.handle(bindingResize, m.onResize)
	return m, nil
}

func decodeViewport(s string) (media.Viewport, error) {
	var vp media.Viewport
	if err := json.Unmarshal([]byte(s), &vp); err != nil {
		return vp, fmt.Errorf("browser: decode viewport: %w", err)
	}
	return vp, nil
}

func (m *Media) onResize(payload string) {
	vp, err := decodeViewport(payload)
	if err != nil {
		m.tab.logger.Debug("browser: resize payload", "error", err)
		return
	}
	m.set(vp)
}

func (m *Media) set(vp media.Viewport) int {
	m.mu.Lock()
	vp.Type = m.vp.Type
	m.vp = vp
	m.mu.Unlock()
	return m.subs.Refresh(m.Evaluate)
}

// Viewport implements media.ViewportReporter.
func (m *Media) Viewport() media.Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vp
}

// Evaluate implements media.Evaluator.
func (m *Media) Evaluate(query string) (bool, error) {
	q, err := media.Parse(query)
	if err != nil {
		return false, err
	}
	return q.Match(m.Viewport()), nil
}

// Subscribe implements media.Evaluator.
func (m *Media) Subscribe(query string, fn func(bool)) (func(), error) {
	v, err := m.Evaluate(query)
	if err != nil {
		return nil, err
	}
	return m.subs.Add(query, v, fn), nil
}

// SetViewport emulates a device of the given size and notifies the
// subscriptions that flipped. It returns the number of notifications.
func (m *Media) SetViewport(ctx context.Context, width, height int) (int, error) {
	err := proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            width < 768,
	}.Call(m.tab.Page.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("browser: set viewport: %w", err)
	}
	return m.set(media.Viewport{Width: float64(width), Height: float64(height)}), nil
}
