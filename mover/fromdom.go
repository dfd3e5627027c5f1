package mover

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/idgen"
)

// Attributes read by FromDOM.
const (
	AttrMoveTo   = "data-move-to"
	AttrMedia    = "data-move-media"
	AttrPosition = "data-move-position"
	AttrPriority = "data-move-priority"
	AttrOnce     = "data-move-once"
	AttrDelay    = "data-move-delay"
)

// DefaultMedia applies to elements without a data-move-media attribute.
const DefaultMedia = "(min-width: 768px)"

// FromDOM builds rules from data-move-* attributes. Elements sharing media
// and target become items of one rule, in document order. Each element gets
// its identity token so the item selector stays valid after it moves.
func FromDOM(tree dom.Tree, ids idgen.Generator) ([]Rule, error) {
	if ids == nil {
		ids = idgen.ElementToken
	}
	nodes, err := tree.QueryAll(nil, "["+AttrMoveTo+"]")
	if err != nil {
		return nil, fmt.Errorf("mover: from dom: %w", err)
	}
	var rules []Rule
	index := make(map[string]int)
	for _, n := range nodes {
		target, _ := tree.Attr(n, AttrMoveTo)
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		media, ok := tree.Attr(n, AttrMedia)
		if !ok || strings.TrimSpace(media) == "" {
			media = DefaultMedia
		}
		id, err := dom.ElementID(tree, n, ids)
		if err != nil {
			return nil, fmt.Errorf("mover: from dom: %w", err)
		}
		item := Item{Selector: fmt.Sprintf("[%s=%q]", dom.IDAttr, id)}
		if pos, ok := tree.Attr(n, AttrPosition); ok {
			item.Position = ParsePosition(pos)
		}
		if v, ok := tree.Attr(n, AttrPriority); ok {
			p, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, &ConfigurationError{Rule: id, Field: AttrPriority, Reason: err.Error()}
			}
			item.Priority = Int(p)
		}
		if v, ok := tree.Attr(n, AttrOnce); ok && v != "false" {
			item.Exclusive = Bool(true)
		}
		if v, ok := tree.Attr(n, AttrDelay); ok {
			ms, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || ms < 0 {
				return nil, &ConfigurationError{Rule: id, Field: AttrDelay, Reason: "want milliseconds"}
			}
			item.Delay = time.Duration(ms) * time.Millisecond
		}

		key := media + "\x00" + target
		i, ok := index[key]
		if !ok {
			i = len(rules)
			index[key] = i
			rules = append(rules, Rule{
				ID:        fmt.Sprintf("dom-%d", i+1),
				Predicate: media,
				Target:    []string{target},
			})
		}
		rules[i].Items = append(rules[i].Items, item)
	}
	return rules, nil
}
