// Package dom defines the narrow document-tree contract the relocation
// engine works through. Backends: dom/htmltree (parsed HTML documents) and
// browser (a live Chrome page over CDP).
package dom

import (
	"context"
	"errors"
)

// Node is an opaque handle to a node owned by a Tree. Handles must be
// comparable with == : a backend returns the same handle every time it
// yields the same underlying node.
type Node interface{}

// Tree is the set of document primitives the engine needs.
//
// Query returns (nil, nil) on a miss and an error only for an invalid
// selector or a backend failure. A nil scope means the whole document.
type Tree interface {
	Root() Node
	Query(scope Node, selector string) (Node, error)
	QueryAll(scope Node, selector string) ([]Node, error)

	Parent(n Node) Node
	NextSibling(n Node) Node
	// Children returns element children only.
	Children(n Node) []Node

	// InsertBefore moves n under parent before ref. A nil ref appends.
	InsertBefore(parent, n, ref Node) error
	Remove(n Node) error
	Clone(n Node, deep bool) (Node, error)
	CreateMarker(label string) (Node, error)
	CreateElement(tag string) (Node, error)

	Attr(n Node, name string) (string, bool)
	SetAttr(n Node, name, value string) error
	RemoveAttr(n Node, name string) error

	// Attached reports whether n is reachable from the document root.
	Attached(n Node) bool
}

// MutationSource notifies subtree mutations. Notifications carry no content;
// they only signal that something changed.
type MutationSource interface {
	Observe(root Node, fn func()) (stop func())
}

// VisibilitySource fires fn once, the first time n becomes visible.
type VisibilitySource interface {
	OnVisible(n Node, fn func()) (stop func())
}

// Animator wraps a tree mutation so the driver can capture geometry before
// and after apply runs. It must call apply exactly once.
type Animator interface {
	Animate(ctx context.Context, n Node, apply func() error) error
}

// ErrForeignNode is returned when a handle does not belong to the tree.
var ErrForeignNode = errors.New("dom: node does not belong to this tree")

// IDAttr is the attribute carrying the engine's per-element identity token.
const IDAttr = "data-move-id"

// ElementID returns the identity token of n, stamping a fresh one from gen
// on first use.
func ElementID(t Tree, n Node, gen func() string) (string, error) {
	if id, ok := t.Attr(n, IDAttr); ok && id != "" {
		return id, nil
	}
	id := gen()
	if err := t.SetAttr(n, IDAttr, id); err != nil {
		return "", err
	}
	return id, nil
}

// IndexOf returns the position of n among the element children of its
// parent, or -1 when detached.
func IndexOf(t Tree, n Node) int {
	p := t.Parent(n)
	if p == nil {
		return -1
	}
	for i, c := range t.Children(p) {
		if c == n {
			return i
		}
	}
	return -1
}
