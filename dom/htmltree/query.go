package htmltree

import (
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshift/dom"
)

// compiled selectors are cached; rule selectors are re-run on every rescan.
var selectorCache sync.Map // string -> cascadia.Selector

func compile(selector string) (cascadia.Selector, error) {
	if s, ok := selectorCache.Load(selector); ok {
		return s.(cascadia.Selector), nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmltree: selector %q: %w", selector, err)
	}
	selectorCache.Store(selector, s)
	return s, nil
}

func (d *Document) scope(n dom.Node) (*html.Node, error) {
	if n == nil {
		return d.root, nil
	}
	return asNode(n)
}

// Query returns the first descendant of scope matching selector.
func (d *Document) Query(scope dom.Node, selector string) (dom.Node, error) {
	nodes, err := d.find(scope, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// QueryAll returns every descendant of scope matching selector, in document
// order.
func (d *Document) QueryAll(scope dom.Node, selector string) ([]dom.Node, error) {
	nodes, err := d.find(scope, selector)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (d *Document) find(scope dom.Node, selector string) ([]*html.Node, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	root, err := d.scope(scope)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(root).FindMatcher(sel).Nodes, nil
}

// Parent returns n's parent or nil.
func (d *Document) Parent(n dom.Node) dom.Node {
	hn, err := asNode(n)
	if err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if hn.Parent == nil {
		return nil
	}
	return hn.Parent
}

// NextSibling returns the node following n, of any type, or nil.
func (d *Document) NextSibling(n dom.Node) dom.Node {
	hn, err := asNode(n)
	if err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if hn.NextSibling == nil {
		return nil
	}
	return hn.NextSibling
}

// Children returns the element children of n.
func (d *Document) Children(n dom.Node) []dom.Node {
	hn, err := asNode(n)
	if err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []dom.Node
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Attr reads an attribute.
func (d *Document) Attr(n dom.Node, name string) (string, bool) {
	hn, err := asNode(n)
	if err != nil {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range hn.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Attached reports whether n is reachable from the document node.
func (d *Document) Attached(n dom.Node) bool {
	hn, err := asNode(n)
	if err != nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return contains(d.root, hn)
}
