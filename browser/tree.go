package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domshift/dom"
)

// Handle is the dom.Node of a Tree: the page-side registry id of a node.
type Handle int64

// Tree implements dom.Tree and dom.MutationSource over a live page.
// Methods without an error return log protocol failures and answer as if
// the node did not exist.
type Tree struct {
	tab *Tab
	ctx context.Context

	mu        sync.Mutex
	observers map[int64]func()
}

var (
	_ dom.Tree           = (*Tree)(nil)
	_ dom.MutationSource = (*Tree)(nil)
)

// NewTree binds a Tree to tab. ctx bounds every protocol call.
func NewTree(ctx context.Context, tab *Tab) *Tree {
	t := &Tree{tab: tab, ctx: ctx, observers: make(map[int64]func())}
	tab.handle(bindingMutation, t.onMutation)
	return t
}

func (t *Tree) eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	return t.tab.Page.Context(t.ctx).Eval(js, args...)
}

func (t *Tree) handle(n dom.Node) (int64, error) {
	h, ok := n.(Handle)
	if !ok || h <= 0 {
		return 0, dom.ErrForeignNode
	}
	return int64(h), nil
}

// scopeHandle maps a nil scope to the document.
func (t *Tree) scopeHandle(n dom.Node) (int64, error) {
	if n == nil {
		return 0, nil
	}
	return t.handle(n)
}

func wrap(id int64) dom.Node {
	if id <= 0 {
		return nil
	}
	return Handle(id)
}

func (t *Tree) evalNode(js string, args ...any) (dom.Node, error) {
	res, err := t.eval(js, args...)
	if err != nil {
		return nil, err
	}
	return wrap(int64(res.Value.Int())), nil
}

func (t *Tree) evalNodes(js string, args ...any) ([]dom.Node, error) {
	res, err := t.eval(js, args...)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal([]byte(res.Value.Str()), &ids); err != nil {
		return nil, fmt.Errorf("browser: decode handles: %w", err)
	}
	out := make([]dom.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, Handle(id))
	}
	return out, nil
}

func (t *Tree) warn(op string, err error) {
	t.tab.logger.Debug("browser: tree call failed", "op", op, "error", err)
}

// Root returns the document node.
func (t *Tree) Root() dom.Node {
	n, err := t.evalNode(`() => window.__domshift.id(document)`)
	if err != nil {
		t.warn("root", err)
		return nil
	}
	return n
}

// Body returns the body element.
func (t *Tree) Body() dom.Node {
	n, err := t.evalNode(`() => window.__domshift.id(document.body)`)
	if err != nil {
		t.warn("body", err)
		return nil
	}
	return n
}

func (t *Tree) Query(scope dom.Node, selector string) (dom.Node, error) {
	s, err := t.scopeHandle(scope)
	if err != nil {
		return nil, err
	}
	n, err := t.evalNode(`(s, sel) => {
		const R = window.__domshift;
		return R.id(R.scope(s).querySelector(sel));
	}`, s, selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return n, nil
}

func (t *Tree) QueryAll(scope dom.Node, selector string) ([]dom.Node, error) {
	s, err := t.scopeHandle(scope)
	if err != nil {
		return nil, err
	}
	out, err := t.evalNodes(`(s, sel) => {
		const R = window.__domshift;
		return R.ids(R.scope(s).querySelectorAll(sel));
	}`, s, selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query all %q: %w", selector, err)
	}
	return out, nil
}

func (t *Tree) Parent(n dom.Node) dom.Node {
	h, err := t.handle(n)
	if err != nil {
		return nil
	}
	p, err := t.evalNode(`(h) => {
		const R = window.__domshift;
		return R.id(R.get(h).parentNode);
	}`, h)
	if err != nil {
		t.warn("parent", err)
		return nil
	}
	return p
}

func (t *Tree) NextSibling(n dom.Node) dom.Node {
	h, err := t.handle(n)
	if err != nil {
		return nil
	}
	s, err := t.evalNode(`(h) => {
		const R = window.__domshift;
		return R.id(R.get(h).nextSibling);
	}`, h)
	if err != nil {
		t.warn("next sibling", err)
		return nil
	}
	return s
}

func (t *Tree) Children(n dom.Node) []dom.Node {
	h, err := t.handle(n)
	if err != nil {
		return nil
	}
	out, err := t.evalNodes(`(h) => {
		const R = window.__domshift;
		const n = R.get(h);
		return R.ids(n.children || []);
	}`, h)
	if err != nil {
		t.warn("children", err)
		return nil
	}
	return out
}

func (t *Tree) InsertBefore(parent, n, ref dom.Node) error {
	p, err := t.handle(parent)
	if err != nil {
		return err
	}
	c, err := t.handle(n)
	if err != nil {
		return err
	}
	r := int64(0)
	if ref != nil {
		if r, err = t.handle(ref); err != nil {
			return err
		}
	}
	_, err = t.eval(`(p, c, r) => {
		const R = window.__domshift;
		R.get(p).insertBefore(R.get(c), r ? R.get(r) : null);
	}`, p, c, r)
	if err != nil {
		return fmt.Errorf("browser: insert: %w", err)
	}
	return nil
}

func (t *Tree) Remove(n dom.Node) error {
	h, err := t.handle(n)
	if err != nil {
		return err
	}
	if _, err := t.eval(`(h) => window.__domshift.get(h).remove()`, h); err != nil {
		return fmt.Errorf("browser: remove: %w", err)
	}
	return nil
}

func (t *Tree) Clone(n dom.Node, deep bool) (dom.Node, error) {
	h, err := t.handle(n)
	if err != nil {
		return nil, err
	}
	c, err := t.evalNode(`(h, deep) => {
		const R = window.__domshift;
		return R.id(R.get(h).cloneNode(deep));
	}`, h, deep)
	if err != nil {
		return nil, fmt.Errorf("browser: clone: %w", err)
	}
	return c, nil
}

func (t *Tree) CreateMarker(label string) (dom.Node, error) {
	n, err := t.evalNode(`(label) => window.__domshift.id(document.createComment(label))`, label)
	if err != nil {
		return nil, fmt.Errorf("browser: create marker: %w", err)
	}
	return n, nil
}

func (t *Tree) CreateElement(tag string) (dom.Node, error) {
	n, err := t.evalNode(`(tag) => window.__domshift.id(document.createElement(tag))`, tag)
	if err != nil {
		return nil, fmt.Errorf("browser: create element %q: %w", tag, err)
	}
	return n, nil
}

func (t *Tree) Attr(n dom.Node, name string) (string, bool) {
	h, err := t.handle(n)
	if err != nil {
		return "", false
	}
	res, err := t.eval(`(h, name) => {
		const n = window.__domshift.get(h);
		const v = n.getAttribute ? n.getAttribute(name) : null;
		return JSON.stringify(v === null ? [false, ""] : [true, v]);
	}`, h, name)
	if err != nil {
		t.warn("attr", err)
		return "", false
	}
	var pair [2]any
	if err := json.Unmarshal([]byte(res.Value.Str()), &pair); err != nil {
		return "", false
	}
	ok, _ := pair[0].(bool)
	v, _ := pair[1].(string)
	return v, ok
}

func (t *Tree) SetAttr(n dom.Node, name, value string) error {
	h, err := t.handle(n)
	if err != nil {
		return err
	}
	if _, err := t.eval(`(h, name, value) => window.__domshift.get(h).setAttribute(name, value)`, h, name, value); err != nil {
		return fmt.Errorf("browser: set attribute %s: %w", name, err)
	}
	return nil
}

func (t *Tree) RemoveAttr(n dom.Node, name string) error {
	h, err := t.handle(n)
	if err != nil {
		return err
	}
	if _, err := t.eval(`(h, name) => window.__domshift.get(h).removeAttribute(name)`, h, name); err != nil {
		return fmt.Errorf("browser: remove attribute %s: %w", name, err)
	}
	return nil
}

func (t *Tree) Attached(n dom.Node) bool {
	h, err := t.handle(n)
	if err != nil {
		return false
	}
	res, err := t.eval(`(h) => {
		const n = window.__domshift.get(h);
		return n === document || document.contains(n);
	}`, h)
	if err != nil {
		t.warn("attached", err)
		return false
	}
	return res.Value.Bool()
}

// OuterHTML serialises n.
func (t *Tree) OuterHTML(n dom.Node) (string, error) {
	h, err := t.handle(n)
	if err != nil {
		return "", err
	}
	res, err := t.eval(`(h) => {
		const n = window.__domshift.get(h);
		return n.outerHTML !== undefined ? n.outerHTML : (n.textContent || "");
	}`, h)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Observe installs a MutationObserver on root. Bursts of records within
// one microtask are reported as a single notification.
func (t *Tree) Observe(root dom.Node, fn func()) func() {
	s, err := t.scopeHandle(root)
	if err != nil {
		return func() {}
	}
	res, err := t.eval(`(s) => {
		const R = window.__domshift;
		const id = ++R.seq;
		let queued = false;
		const mo = new MutationObserver(() => {
			if (queued) return;
			queued = true;
			queueMicrotask(() => {
				queued = false;
				window.`+bindingMutation+`(String(id));
			});
		});
		mo.observe(R.scope(s), {subtree: true, childList: true, attributes: true, characterData: true});
		R.observers.set(id, mo);
		return id;
	}`, s)
	if err != nil {
		t.warn("observe", err)
		return func() {}
	}
	id := int64(res.Value.Int())
	t.mu.Lock()
	t.observers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
			if _, err := t.eval(`(id) => {
				const R = window.__domshift;
				const mo = R.observers.get(id);
				if (mo) { mo.disconnect(); R.observers.delete(id); }
			}`, id); err != nil {
				t.warn("unobserve", err)
			}
		})
	}
}

func (t *Tree) onMutation(payload string) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return
	}
	t.mu.Lock()
	fn := t.observers[id]
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
