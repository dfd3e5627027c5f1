// Package render is domshift's server-side mode: it applies a rule set to
// an HTML document once per viewport width and returns the relocated
// markup. It exposes the renderer over HTTP (chi) and as MCP tools.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/domshift/dom/htmltree"
	"github.com/hazyhaar/domshift/idgen"
	"github.com/hazyhaar/domshift/media"
	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/sink"
)

// ErrInvalidInput marks errors caused by the request rather than the
// service.
var ErrInvalidInput = errors.New("render: invalid input")

// Options configures a Renderer.
type Options struct {
	// Rules is the initial rule file; nil starts with no rules.
	Rules *mover.FileConfig
	// Sanitize runs input through Policy before parsing.
	Sanitize bool
	// Policy defaults to SanitizePolicy().
	Policy  *bluemonday.Policy
	FromDOM bool
	Widths  []float64
	Height  float64
	// Sink receives the events of every render.
	Sink    sink.Sink
	Metrics *Metrics
	Logger  *slog.Logger
}

// Result is the outcome for one width.
type Result struct {
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	HTML       string         `json:"html"`
	Placements []mover.Record `json:"placements"`
	Events     int            `json:"events"`
	Stats      mover.Stats    `json:"stats"`
	Errors     []string       `json:"errors,omitempty"`
}

// Renderer applies the current rule set to documents. Rules can be
// replaced while renders are in flight; each render sees one version.
type Renderer struct {
	opts   Options
	policy *bluemonday.Policy
	logger *slog.Logger

	mu      sync.RWMutex
	cfg     *mover.FileConfig
	version int
}

// New validates the initial rules and returns a Renderer.
func New(opts Options) (*Renderer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Widths) == 0 {
		opts.Widths = DefaultConfig().Widths
	}
	if opts.Height <= 0 {
		opts.Height = DefaultConfig().Height
	}
	r := &Renderer{opts: opts, policy: opts.Policy, logger: opts.Logger}
	if r.policy == nil {
		r.policy = SanitizePolicy()
	}
	cfg := opts.Rules
	if cfg == nil {
		var err error
		if cfg, err = mover.ParseConfig([]byte("rules: []\n")); err != nil {
			return nil, err
		}
	}
	if err := r.SetConfig(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// SanitizePolicy is the UGC policy extended with the attributes and
// sectioning elements layout rules address.
func SanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("main", "aside", "nav", "header", "footer", "section", "article", "div", "span")
	p.AllowAttrs("class").Globally()
	p.AllowDataAttributes()
	return p
}

// SetConfig swaps the rule file after checking that an engine accepts it.
func (r *Renderer) SetConfig(cfg *mover.FileConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.version++
	v := r.version
	r.mu.Unlock()
	r.logger.Info("render: rules loaded", "rules", len(cfg.Rules), "version", v)
	return nil
}

// LoadYAML parses and installs a rule file.
func (r *Renderer) LoadYAML(doc []byte) error {
	cfg, err := mover.ParseConfig(doc)
	if err != nil {
		return err
	}
	return r.SetConfig(cfg)
}

func validate(cfg *mover.FileConfig) error {
	doc, err := htmltree.ParseString("<html><body></body></html>")
	if err != nil {
		return err
	}
	opts := mover.Options{DisableMutations: true, Logger: slog.New(slog.DiscardHandler)}
	cfg.Apply(&opts)
	eng, err := mover.New(doc, media.NewEmulator(media.Viewport{Width: 1024, Height: 800}), cfg.ToRules(), opts)
	if err != nil {
		return err
	}
	return eng.Destroy(context.Background())
}

func (r *Renderer) config() (*mover.FileConfig, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg, r.version
}

// Version counts successful SetConfig calls.
func (r *Renderer) Version() int {
	_, v := r.config()
	return v
}

// RuleCount is the number of rules in the current set.
func (r *Renderer) RuleCount() int {
	cfg, _ := r.config()
	return len(cfg.Rules)
}

// Breakpoints returns the default table merged with the rule file's.
func (r *Renderer) Breakpoints() media.Breakpoints {
	cfg, _ := r.config()
	return media.DefaultBreakpoints().Merge(cfg.Breakpoints)
}

// Request is a render call.
type Request struct {
	HTML   string    `json:"html"`
	Widths []float64 `json:"widths,omitempty"`
	Height float64   `json:"height,omitempty"`
	// FromDOM overrides Options.FromDOM when set.
	FromDOM *bool `json:"from_dom,omitempty"`
}

// Render renders html at each width with the renderer's defaults.
func (r *Renderer) Render(ctx context.Context, html string, widths []float64) ([]Result, error) {
	return r.Do(ctx, Request{HTML: html, Widths: widths})
}

// Do renders req.
func (r *Renderer) Do(ctx context.Context, req Request) ([]Result, error) {
	if req.HTML == "" {
		return nil, fmt.Errorf("%w: html is required", ErrInvalidInput)
	}
	widths := req.Widths
	if len(widths) == 0 {
		widths = r.opts.Widths
	}
	height := req.Height
	if height <= 0 {
		height = r.opts.Height
	}
	fromDOM := r.opts.FromDOM
	if req.FromDOM != nil {
		fromDOM = *req.FromDOM
	}
	src := req.HTML
	if r.opts.Sanitize {
		src = r.policy.Sanitize(src)
	}

	cfg, _ := r.config()
	out := make([]Result, 0, len(widths))
	for _, w := range widths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w <= 0 {
			return nil, fmt.Errorf("%w: width %v must be positive", ErrInvalidInput, w)
		}
		start := time.Now()
		res, events, err := r.renderOne(ctx, cfg, src, w, height, fromDOM)
		r.opts.Metrics.observeRender(err, time.Since(start), len(res.Placements), events)
		if err != nil {
			return nil, err
		}
		r.forward(ctx, events)
		out = append(out, res)
	}
	return out, nil
}

func (r *Renderer) renderOne(ctx context.Context, cfg *mover.FileConfig, src string, width, height float64, fromDOM bool) (Result, []mover.Event, error) {
	res := Result{Width: width, Height: height}
	doc, err := htmltree.ParseString(src)
	if err != nil {
		return res, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rules := staticRules(cfg.ToRules())
	if fromDOM {
		declared, err := mover.FromDOM(doc, idgen.Sequence("rdm-dom-"))
		if err != nil {
			return res, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		rules = append(rules, staticRules(declared)...)
	}

	var (
		mu     sync.Mutex
		events []mover.Event
	)
	opts := mover.Options{
		DisableMutations:  true,
		DisableAnimations: true,
		IDs:               idgen.Sequence("rdm-"),
		Logger:            r.logger,
		ErrorHandler: func(rep mover.ErrorReport) {
			mu.Lock()
			res.Errors = append(res.Errors, rep.Message+": "+rep.Err.Error())
			mu.Unlock()
		},
	}
	cfg.Apply(&opts)
	opts.DisableMutations, opts.DisableAnimations = true, true

	eng, err := mover.New(doc, media.NewEmulator(media.Viewport{Width: width, Height: height}), rules, opts)
	if err != nil {
		return res, nil, err
	}
	defer eng.Destroy(context.Background())
	eng.Subscribe(func(ev mover.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	if err := eng.Init(ctx); err != nil {
		return res, nil, err
	}

	res.HTML = doc.HTML()
	res.Placements = eng.Snapshot()
	res.Stats = eng.Stats()
	mu.Lock()
	res.Events = len(events)
	evs := append([]mover.Event(nil), events...)
	mu.Unlock()
	return res, evs, nil
}

// staticRules drops delays: a one-shot render has no later.
func staticRules(rules []mover.Rule) []mover.Rule {
	for i := range rules {
		items := make([]mover.Item, len(rules[i].Items))
		copy(items, rules[i].Items)
		for j := range items {
			items[j].Delay = 0
		}
		rules[i].Items = items
	}
	return rules
}

func (r *Renderer) forward(ctx context.Context, events []mover.Event) {
	if r.opts.Sink == nil {
		return
	}
	for _, ev := range events {
		if err := r.opts.Sink.Send(ctx, ev); err != nil {
			r.logger.Warn("render: sink send failed", "type", ev.Type, "error", err)
		}
	}
}
