package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// TabOptions configures OpenTab.
type TabOptions struct {
	// Plain skips the stealth page setup.
	Plain bool
	// NavigateTimeout bounds navigation and load. Default: 30s.
	NavigateTimeout time.Duration
}

// Tab wraps a Rod page prepared for the engine: the node registry is
// installed and runtime bindings are dispatched from one goroutine.
type Tab struct {
	Page    *rod.Page
	PageURL string

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	handlers map[string]func(payload string)
}

// OpenTab creates a new tab and navigates to pageURL. An empty URL leaves
// the tab on about:blank for SetContent.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string, opts TabOptions) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 30 * time.Second
	}

	var (
		page *rod.Page
		err  error
	)
	if opts.Plain {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(b)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	tctx, cancel := context.WithCancel(context.Background())
	t := &Tab{
		Page:     page,
		PageURL:  pageURL,
		logger:   mgr.cfg.Logger,
		ctx:      tctx,
		cancel:   cancel,
		handlers: make(map[string]func(string)),
	}
	if err := t.install(); err != nil {
		t.Close()
		return nil, err
	}

	if pageURL != "" {
		navCtx, cancelNav := context.WithTimeout(ctx, opts.NavigateTimeout)
		defer cancelNav()
		if err := page.Context(navCtx).Navigate(pageURL); err != nil {
			t.Close()
			return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
		}
		if err := page.Context(navCtx).WaitLoad(); err != nil {
			t.logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
		}
	}
	if err := t.prepare(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tab) install() error {
	for _, name := range []string{bindingMutation, bindingResize, bindingVisible} {
		if err := (proto.RuntimeAddBinding{Name: name}).Call(t.Page); err != nil {
			return fmt.Errorf("browser: add binding %s: %w", name, err)
		}
	}
	if _, err := t.Page.EvalOnNewDocument("(" + runtimeJS + ")();(" + listenersJS + ")();"); err != nil {
		return fmt.Errorf("browser: install runtime: %w", err)
	}
	go t.Page.Context(t.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		t.mu.RLock()
		h := t.handlers[e.Name]
		t.mu.RUnlock()
		if h != nil {
			h(e.Payload)
		}
	})()
	return nil
}

// prepare makes sure the registry exists in the current document; pages
// already loaded before install never ran the new-document script.
func (t *Tab) prepare() error {
	if _, err := t.Page.Eval(runtimeJS); err != nil {
		return fmt.Errorf("browser: runtime: %w", err)
	}
	if _, err := t.Page.Eval(listenersJS); err != nil {
		return fmt.Errorf("browser: listeners: %w", err)
	}
	return nil
}

// SetContent replaces the document with html.
func (t *Tab) SetContent(ctx context.Context, html string) error {
	if err := t.Page.Context(ctx).SetDocumentContent(html); err != nil {
		return fmt.Errorf("browser: set content: %w", err)
	}
	return t.prepare()
}

// HTML serialises the document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (t *Tab) handle(name string, fn func(payload string)) {
	t.mu.Lock()
	t.handlers[name] = fn
	t.mu.Unlock()
}

// Close closes the tab.
func (t *Tab) Close() error {
	t.cancel()
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
