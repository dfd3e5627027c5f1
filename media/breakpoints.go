package media

import (
	"sort"
	"strings"
)

// Breakpoints maps short names to media queries. Predicates may refer to an
// entry as "md" or "@md".
type Breakpoints map[string]string

// DefaultBreakpoints returns a fresh copy of the stock table.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{
		"sm":  "(min-width: 640px)",
		"md":  "(min-width: 768px)",
		"lg":  "(min-width: 1024px)",
		"xl":  "(min-width: 1280px)",
		"2xl": "(min-width: 1536px)",
	}
}

// Resolve returns the query a predicate stands for. Unknown names and plain
// queries come back unchanged.
func (b Breakpoints) Resolve(pred string) string {
	name := strings.TrimSpace(pred)
	if q, ok := b[strings.TrimPrefix(name, "@")]; ok {
		return q
	}
	return pred
}

// Merge returns b overlaid with other; neither input is modified.
func (b Breakpoints) Merge(other map[string]string) Breakpoints {
	out := make(Breakpoints, len(b)+len(other))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Names returns the table keys sorted.
func (b Breakpoints) Names() []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate parses every entry.
func (b Breakpoints) Validate() error {
	for _, name := range b.Names() {
		if _, err := Parse(b[name]); err != nil {
			return err
		}
	}
	return nil
}
