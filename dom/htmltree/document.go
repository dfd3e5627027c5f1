// Package htmltree implements dom.Tree over a golang.org/x/net/html parse
// tree. Selectors are compiled with cascadia and evaluated through goquery so
// the scope node itself never matches, as with Element.querySelector.
//
// A Document is safe for concurrent use. Mutating calls notify observers
// registered with Observe after the document lock is released.
package htmltree

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshift/dom"
)

// Document is a parsed HTML document.
type Document struct {
	mu   sync.RWMutex
	root *html.Node

	obsMu     sync.Mutex
	nextObs   uint64
	observers map[uint64]observer
}

type observer struct {
	root *html.Node
	fn   func()
}

var (
	_ dom.Tree           = (*Document)(nil)
	_ dom.MutationSource = (*Document)(nil)
)

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmltree: parse: %w", err)
	}
	return &Document{root: root, observers: make(map[uint64]observer)}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render serialises the document.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// HTML returns the serialised document.
func (d *Document) HTML() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// OuterHTML serialises a single node.
func (d *Document) OuterHTML(n dom.Node) string {
	hn, ok := n.(*html.Node)
	if !ok || hn == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, hn); err != nil {
		return ""
	}
	return buf.String()
}

// Root returns the document node.
func (d *Document) Root() dom.Node { return d.root }

// Body returns the <body> element, or nil.
func (d *Document) Body() dom.Node {
	n, _ := d.Query(nil, "body")
	return n
}

// Observe registers fn for mutations inside root's subtree.
func (d *Document) Observe(root dom.Node, fn func()) func() {
	hn, _ := root.(*html.Node)
	if hn == nil {
		hn = d.root
	}
	d.obsMu.Lock()
	d.nextObs++
	id := d.nextObs
	d.observers[id] = observer{root: hn, fn: fn}
	d.obsMu.Unlock()
	return func() {
		d.obsMu.Lock()
		delete(d.observers, id)
		d.obsMu.Unlock()
	}
}

// notify runs observers whose root contains any of the touched nodes.
// Must be called without d.mu held.
func (d *Document) notify(touched ...*html.Node) {
	d.obsMu.Lock()
	var fns []func()
	d.mu.RLock()
	for _, o := range d.observers {
		for _, t := range touched {
			if t != nil && contains(o.root, t) {
				fns = append(fns, o.fn)
				break
			}
		}
	}
	d.mu.RUnlock()
	d.obsMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func contains(root, n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == root {
			return true
		}
	}
	return false
}

func asNode(n dom.Node) (*html.Node, error) {
	hn, ok := n.(*html.Node)
	if !ok || hn == nil {
		return nil, dom.ErrForeignNode
	}
	return hn, nil
}
