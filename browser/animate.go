package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/domshift/dom"
)

// FlipAnimator animates relocations with the FLIP technique: it records
// the element's box, lets the move happen, then transitions the element
// from its old box to the new one. The transition runs in the page; Animate
// returns as soon as the move is applied.
type FlipAnimator struct {
	tree     *Tree
	duration time.Duration
	easing   string
}

var _ dom.Animator = (*FlipAnimator)(nil)

// NewFlipAnimator animates moves in tree. Zero values mean 300ms and
// ease-in-out, the engine defaults.
func NewFlipAnimator(tree *Tree, duration time.Duration, easing string) *FlipAnimator {
	if duration <= 0 {
		duration = 300 * time.Millisecond
	}
	if easing == "" {
		easing = "ease-in-out"
	}
	return &FlipAnimator{tree: tree, duration: duration, easing: easing}
}

type box struct {
	OK   bool    `json:"ok"`
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Animate implements dom.Animator.
func (a *FlipAnimator) Animate(ctx context.Context, n dom.Node, apply func() error) error {
	h, err := a.tree.handle(n)
	if err != nil {
		return apply()
	}
	first, ok := a.first(ctx, h)
	if err := apply(); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = a.tree.tab.Page.Context(ctx).Eval(`(h, left, top, ms, easing) => {
		const el = window.__domshift.get(h);
		if (!el.getBoundingClientRect) return;
		const last = el.getBoundingClientRect();
		const dx = left - last.left, dy = top - last.top;
		if (!dx && !dy) return;
		el.style.transition = "none";
		el.style.transform = "translate(" + dx + "px," + dy + "px)";
		requestAnimationFrame(() => {
			el.style.transition = "transform " + ms + "ms " + easing;
			el.style.transform = "";
			el.addEventListener("transitionend", () => { el.style.transition = ""; }, {once: true});
		});
	}`, h, first.Left, first.Top, a.duration.Milliseconds(), a.easing)
	if err != nil {
		a.tree.warn("animate", err)
	}
	return nil
}

func (a *FlipAnimator) first(ctx context.Context, h int64) (box, bool) {
	res, err := a.tree.tab.Page.Context(ctx).Eval(`(h) => {
		const el = window.__domshift.get(h);
		if (!el.getBoundingClientRect) return JSON.stringify({ok: false});
		const r = el.getBoundingClientRect();
		return JSON.stringify({ok: true, left: r.left, top: r.top});
	}`, h)
	if err != nil {
		a.tree.warn("measure", err)
		return box{}, false
	}
	var b box
	if err := json.Unmarshal([]byte(res.Value.Str()), &b); err != nil {
		return box{}, false
	}
	return b, b.OK
}
