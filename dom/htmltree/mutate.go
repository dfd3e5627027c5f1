package htmltree

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domshift/dom"
)

var (
	errRefNotChild = errors.New("htmltree: reference node is not a child of parent")
	errCycle       = errors.New("htmltree: cannot insert a node into its own subtree")
)

// InsertBefore moves n under parent, before ref. A nil ref appends.
func (d *Document) InsertBefore(parent, n, ref dom.Node) error {
	p, err := asNode(parent)
	if err != nil {
		return err
	}
	c, err := asNode(n)
	if err != nil {
		return err
	}
	var r *html.Node
	if ref != nil {
		if r, err = asNode(ref); err != nil {
			return err
		}
	}

	d.mu.Lock()
	if r != nil && r.Parent != p {
		d.mu.Unlock()
		return errRefNotChild
	}
	if contains(c, p) {
		d.mu.Unlock()
		return errCycle
	}
	if r == c {
		// Already in place.
		d.mu.Unlock()
		return nil
	}
	old := c.Parent
	if old != nil {
		old.RemoveChild(c)
	}
	if r == nil {
		p.AppendChild(c)
	} else {
		p.InsertBefore(c, r)
	}
	d.mu.Unlock()

	d.notify(old, p)
	return nil
}

// Remove detaches n from its parent.
func (d *Document) Remove(n dom.Node) error {
	c, err := asNode(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	old := c.Parent
	if old != nil {
		old.RemoveChild(c)
	}
	d.mu.Unlock()
	if old != nil {
		d.notify(old)
	}
	return nil
}

// Clone copies n. The copy is detached.
func (d *Document) Clone(n dom.Node, deep bool) (dom.Node, error) {
	c, err := asNode(n)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneNode(c, deep), nil
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for k := n.FirstChild; k != nil; k = k.NextSibling {
			c.AppendChild(cloneNode(k, true))
		}
	}
	return c
}

// CreateMarker returns a detached comment node.
func (d *Document) CreateMarker(label string) (dom.Node, error) {
	return &html.Node{Type: html.CommentNode, Data: label}, nil
}

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) (dom.Node, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, errors.New("htmltree: empty tag name")
	}
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}, nil
}

// SetAttr writes an attribute. Attribute changes are not reported to
// observers: the engine only watches structure.
func (d *Document) SetAttr(n dom.Node, name, value string) error {
	c, err := asNode(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range c.Attr {
		if c.Attr[i].Namespace == "" && c.Attr[i].Key == name {
			c.Attr[i].Val = value
			return nil
		}
	}
	c.Attr = append(c.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

// RemoveAttr deletes an attribute if present.
func (d *Document) RemoveAttr(n dom.Node, name string) error {
	c, err := asNode(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := c.Attr[:0]
	for _, a := range c.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	c.Attr = kept
	return nil
}
