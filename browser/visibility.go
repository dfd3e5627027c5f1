package browser

import (
	"context"
	"strconv"
	"sync"

	"github.com/hazyhaar/domshift/dom"
)

// Visibility is a dom.VisibilitySource backed by IntersectionObserver.
type Visibility struct {
	tree *Tree

	mu       sync.Mutex
	watchers map[int64]func()
}

var _ dom.VisibilitySource = (*Visibility)(nil)

// NewVisibility reports visibility of nodes of tree.
func NewVisibility(tree *Tree) *Visibility {
	v := &Visibility{tree: tree, watchers: make(map[int64]func())}
	tree.tab.handle(bindingVisible, v.onVisible)
	return v
}

// OnVisible implements dom.VisibilitySource.
func (v *Visibility) OnVisible(n dom.Node, fn func()) func() {
	h, err := v.tree.handle(n)
	if err != nil {
		return func() {}
	}
	res, err := v.tree.eval(`(h) => {
		const R = window.__domshift;
		const id = ++R.seq;
		const io = new IntersectionObserver((entries) => {
			if (!entries.some((e) => e.isIntersecting)) return;
			io.disconnect();
			R.watchers.delete(id);
			window.`+bindingVisible+`(String(id));
		});
		io.observe(R.get(h));
		R.watchers.set(id, io);
		return id;
	}`, h)
	if err != nil {
		v.tree.warn("visibility", err)
		return func() {}
	}
	id := int64(res.Value.Int())
	v.mu.Lock()
	v.watchers[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if !v.take(id) {
				return
			}
			if _, err := v.tree.eval(`(id) => {
				const R = window.__domshift;
				const io = R.watchers.get(id);
				if (io) { io.disconnect(); R.watchers.delete(id); }
			}`, id); err != nil {
				v.tree.warn("unwatch", err)
			}
		})
	}
}

func (v *Visibility) take(id int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.watchers[id]
	delete(v.watchers, id)
	return ok
}

func (v *Visibility) onVisible(payload string) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return
	}
	v.mu.Lock()
	fn := v.watchers[id]
	delete(v.watchers, id)
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ScrollIntoView scrolls n into the viewport, which fires its watchers.
func (v *Visibility) ScrollIntoView(ctx context.Context, n dom.Node) error {
	h, err := v.tree.handle(n)
	if err != nil {
		return err
	}
	_, err = v.tree.tab.Page.Context(ctx).Eval(`(h) => window.__domshift.get(h).scrollIntoView()`, h)
	return err
}
