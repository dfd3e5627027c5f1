// Package media tracks viewport predicates: it parses the media query subset
// responsive rules are written in, evaluates it against a viewport, and turns
// evaluator callbacks into edge-triggered notifications.
package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("media: invalid query")

// Viewport is the environment a query is evaluated against.
type Viewport struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	// Type is the media type, "screen" when empty.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

func (v Viewport) mediaType() string {
	if v.Type == "" {
		return "screen"
	}
	return v.Type
}

// ViewportReporter is implemented by evaluators that know the viewport they
// evaluate against.
type ViewportReporter interface {
	Viewport() Viewport
}

type cmp int

const (
	cmpEQ cmp = iota
	cmpLT
	cmpLE
	cmpGT
	cmpGE
)

func (c cmp) apply(a, b float64) bool {
	switch c {
	case cmpLT:
		return a < b
	case cmpLE:
		return a <= b
	case cmpGT:
		return a > b
	case cmpGE:
		return a >= b
	default:
		return a == b
	}
}

// flip mirrors the operator for "value op feature" forms.
func (c cmp) flip() cmp {
	switch c {
	case cmpLT:
		return cmpGT
	case cmpLE:
		return cmpGE
	case cmpGT:
		return cmpLT
	case cmpGE:
		return cmpLE
	default:
		return cmpEQ
	}
}

type feature struct {
	name   string // width | height | aspect-ratio | orientation
	op     cmp
	value  float64
	orient string
}

func (f feature) eval(v Viewport) bool {
	switch f.name {
	case "width":
		return f.op.apply(v.Width, f.value)
	case "height":
		return f.op.apply(v.Height, f.value)
	case "aspect-ratio":
		if v.Height == 0 {
			return false
		}
		return f.op.apply(v.Width/v.Height, f.value)
	case "orientation":
		portrait := v.Height >= v.Width
		return (f.orient == "portrait") == portrait
	}
	return false
}

type alternative struct {
	not       bool
	mediaType string
	features  []feature
}

func (a alternative) eval(v Viewport) bool {
	ok := a.mediaType == "" || a.mediaType == "all" || a.mediaType == v.mediaType()
	for _, f := range a.features {
		if !ok {
			break
		}
		ok = f.eval(v)
	}
	if a.not {
		return !ok
	}
	return ok
}

// Query is a parsed media query list. The zero value matches nothing.
type Query struct {
	src  string
	alts []alternative
}

// String returns the source text.
func (q Query) String() string { return q.src }

// Match evaluates q against v. A list matches when any member does.
func (q Query) Match(v Viewport) bool {
	for _, a := range q.alts {
		if a.eval(v) {
			return true
		}
	}
	return false
}

// Parse compiles a media query list. Besides standard syntax it accepts the
// bare range shorthand "width>=768".
func Parse(src string) (Query, error) {
	q := Query{src: src}
	text := strings.ToLower(strings.TrimSpace(src))
	if text == "" {
		return Query{}, fmt.Errorf("%w: empty query", ErrSyntax)
	}
	for _, part := range strings.Split(text, ",") {
		alt, err := parseAlternative(strings.TrimSpace(part))
		if err != nil {
			return Query{}, fmt.Errorf("%w %q: %v", ErrSyntax, src, err)
		}
		q.alts = append(q.alts, alt)
	}
	return q, nil
}

// MustParse is Parse that panics; for static tables.
func MustParse(src string) Query {
	q, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return q
}

func parseAlternative(s string) (alternative, error) {
	var alt alternative
	if s == "" {
		return alt, errors.New("empty list member")
	}
	tokens, err := tokenize(s)
	if err != nil {
		return alt, err
	}
	expectFeature := false
	for i, tok := range tokens {
		switch {
		case tok == "and":
			if i == 0 || expectFeature {
				return alt, errors.New(`misplaced "and"`)
			}
			expectFeature = true
		case tok == "not" || tok == "only":
			if i != 0 {
				return alt, fmt.Errorf("misplaced %q", tok)
			}
			alt.not = tok == "not"
		case strings.HasPrefix(tok, "("):
			fs, err := parseFeature(strings.TrimSpace(tok[1 : len(tok)-1]))
			if err != nil {
				return alt, err
			}
			alt.features = append(alt.features, fs...)
			expectFeature = false
		case strings.ContainsAny(tok, "<>="):
			fs, err := parseRange(tok)
			if err != nil {
				return alt, err
			}
			alt.features = append(alt.features, fs...)
			expectFeature = false
		default:
			if alt.mediaType != "" || len(alt.features) > 0 {
				return alt, fmt.Errorf("unexpected %q", tok)
			}
			switch tok {
			case "all", "screen", "print", "speech":
				alt.mediaType = tok
			default:
				return alt, fmt.Errorf("unknown media type %q", tok)
			}
		}
	}
	if expectFeature {
		return alt, errors.New(`dangling "and"`)
	}
	return alt, nil
}

// tokenize splits on whitespace, keeping parenthesised groups whole and
// gluing operator runs ("width >= 768") into one token.
func tokenize(s string) ([]string, error) {
	var out []string
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			j := strings.IndexByte(s[i:], ')')
			if j < 0 {
				return nil, errors.New("unbalanced parenthesis")
			}
			out = append(out, s[i:i+j+1])
			i += j + 1
		default:
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '(' && s[j] != '\t' {
				j++
			}
			out = append(out, s[i:j])
			i = j
		}
	}
	// Glue "width", ">=", "768" style sequences.
	var glued []string
	for _, tok := range out {
		n := len(glued)
		if n > 0 && !strings.HasPrefix(tok, "(") && (isOpToken(tok) || isOpToken(glued[n-1]) || endsWithOp(glued[n-1]) || startsWithOp(tok)) {
			glued[n-1] += tok
			continue
		}
		glued = append(glued, tok)
	}
	return glued, nil
}

func isOpToken(s string) bool    { return s != "" && strings.Trim(s, "<>=") == "" }
func endsWithOp(s string) bool   { return s != "" && strings.ContainsRune("<>=", rune(s[len(s)-1])) }
func startsWithOp(s string) bool { return s != "" && strings.ContainsRune("<>=", rune(s[0])) }

var featureAliases = map[string]string{
	"width":        "width",
	"height":       "height",
	"aspect-ratio": "aspect-ratio",
}

func parseFeature(body string) ([]feature, error) {
	if strings.ContainsAny(body, "<>") || (strings.Contains(body, "=") && !strings.Contains(body, ":")) {
		return parseRange(body)
	}
	name, value, ok := strings.Cut(body, ":")
	if !ok {
		return nil, fmt.Errorf("feature %q has no value", body)
	}
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)

	if name == "orientation" {
		if value != "portrait" && value != "landscape" {
			return nil, fmt.Errorf("orientation %q", value)
		}
		return []feature{{name: "orientation", orient: value}}, nil
	}

	op := cmpEQ
	switch {
	case strings.HasPrefix(name, "min-"):
		op, name = cmpGE, strings.TrimPrefix(name, "min-")
	case strings.HasPrefix(name, "max-"):
		op, name = cmpLE, strings.TrimPrefix(name, "max-")
	}
	canon, ok := featureAliases[name]
	if !ok {
		return nil, fmt.Errorf("unsupported feature %q", name)
	}
	v, err := parseValue(canon, value)
	if err != nil {
		return nil, err
	}
	return []feature{{name: canon, op: op, value: v}}, nil
}

// parseRange handles "width >= 768px", "768px <= width" and
// "400px <= width < 800px".
func parseRange(body string) ([]feature, error) {
	parts, ops, err := splitOps(strings.ReplaceAll(body, " ", ""))
	if err != nil {
		return nil, err
	}
	switch len(parts) {
	case 2:
		if canon, ok := featureAliases[parts[0]]; ok {
			v, err := parseValue(canon, parts[1])
			if err != nil {
				return nil, err
			}
			return []feature{{name: canon, op: ops[0], value: v}}, nil
		}
		if canon, ok := featureAliases[parts[1]]; ok {
			v, err := parseValue(canon, parts[0])
			if err != nil {
				return nil, err
			}
			return []feature{{name: canon, op: ops[0].flip(), value: v}}, nil
		}
		return nil, fmt.Errorf("range %q names no feature", body)
	case 3:
		canon, ok := featureAliases[parts[1]]
		if !ok {
			return nil, fmt.Errorf("range %q names no feature", body)
		}
		lo, err := parseValue(canon, parts[0])
		if err != nil {
			return nil, err
		}
		hi, err := parseValue(canon, parts[2])
		if err != nil {
			return nil, err
		}
		return []feature{
			{name: canon, op: ops[0].flip(), value: lo},
			{name: canon, op: ops[1], value: hi},
		}, nil
	}
	return nil, fmt.Errorf("malformed range %q", body)
}

func splitOps(s string) ([]string, []cmp, error) {
	var parts []string
	var ops []cmp
	start := 0
	for i := 0; i < len(s); {
		var op cmp
		width := 0
		switch {
		case strings.HasPrefix(s[i:], ">="):
			op, width = cmpGE, 2
		case strings.HasPrefix(s[i:], "<="):
			op, width = cmpLE, 2
		case s[i] == '>':
			op, width = cmpGT, 1
		case s[i] == '<':
			op, width = cmpLT, 1
		case s[i] == '=':
			op, width = cmpEQ, 1
		default:
			i++
			continue
		}
		parts = append(parts, s[start:i])
		ops = append(ops, op)
		i += width
		start = i
	}
	parts = append(parts, s[start:])
	for _, p := range parts {
		if p == "" {
			return nil, nil, fmt.Errorf("malformed range %q", s)
		}
	}
	return parts, ops, nil
}

// parseValue reads a length (px, em, rem; bare numbers are px) or, for
// aspect-ratio, "w/h" or a plain number.
func parseValue(feature, s string) (float64, error) {
	if feature == "aspect-ratio" {
		if w, h, ok := strings.Cut(s, "/"); ok {
			a, err1 := strconv.ParseFloat(strings.TrimSpace(w), 64)
			b, err2 := strconv.ParseFloat(strings.TrimSpace(h), 64)
			if err1 != nil || err2 != nil || b == 0 {
				return 0, fmt.Errorf("aspect ratio %q", s)
			}
			return a / b, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "rem"):
		s, scale = strings.TrimSuffix(s, "rem"), 16
	case strings.HasSuffix(s, "em"):
		s, scale = strings.TrimSuffix(s, "em"), 16
	case strings.HasSuffix(s, "px"):
		s = strings.TrimSuffix(s, "px")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("length %q", s)
	}
	return v * scale, nil
}
