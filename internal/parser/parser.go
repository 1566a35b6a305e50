// Package parser evaluates page selectors (XPath and CSS) against a parsed
// HTML tree and extracts URLs from XML sitemaps.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Kind is the selector language.
type Kind int

const (
	// KindXPath evaluates XPath 1.0 expressions. Attribute and text() steps
	// yield their string values.
	KindXPath Kind = iota
	// KindCSS evaluates CSS selectors; Attribute picks what to read.
	KindCSS
)

func (k Kind) String() string {
	switch k {
	case KindXPath:
		return "xpath"
	case KindCSS:
		return "css"
	default:
		return "unknown"
	}
}

// ParseKind resolves a selector language name. Empty means xpath.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xpath":
		return KindXPath, nil
	case "css":
		return KindCSS, nil
	default:
		return 0, fmt.Errorf("unknown selector type %q", s)
	}
}

// Selector is a compiled selector expression. It is immutable and safe for
// concurrent use.
type Selector struct {
	Kind      Kind
	Expr      string
	Attribute string

	xpath   *xpath.Expr
	css     cascadia.Selector
	pattern *regexp.Regexp

	// xpath.Expr.Evaluate mutates the compiled query.
	mu sync.Mutex
}

// Compile compiles expr in the given language. pattern, when non-empty, is a
// regular expression applied to every extracted value (see regex.go).
func Compile(kind Kind, expr, attribute, pattern string) (*Selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty %s expression", kind)
	}

	s := &Selector{Kind: kind, Expr: expr, Attribute: attribute}

	var err error
	switch kind {
	case KindXPath:
		s.xpath, err = compileXPath(expr)
	case KindCSS:
		s.css, err = compileCSS(expr)
	default:
		err = fmt.Errorf("unknown selector kind %d", kind)
	}
	if err != nil {
		return nil, err
	}

	if pattern != "" {
		if s.pattern, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	return s, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level selectors.
func MustCompile(kind Kind, expr, attribute, pattern string) *Selector {
	s, err := Compile(kind, expr, attribute, pattern)
	if err != nil {
		panic(err)
	}
	return s
}

// Values evaluates the selector under node and returns every non-blank,
// trimmed value in document order.
func (s *Selector) Values(node *html.Node) []string {
	if s == nil || node == nil {
		return nil
	}

	var raw []string
	switch s.Kind {
	case KindXPath:
		raw = s.xpathValues(node)
	case KindCSS:
		raw = s.cssValues(node)
	}

	values := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		values = append(values, v)
	}
	return applyPattern(s.pattern, values)
}

// First returns the first value, or "" when nothing matches.
func (s *Selector) First(node *html.Node) string {
	if v := s.Values(node); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Join returns all values joined with a single space.
func (s *Selector) Join(node *html.Node) string {
	return strings.Join(s.Values(node), " ")
}

// Nodes returns the element nodes the selector matches under node. It is
// used for container selectors whose children are queried relatively.
func (s *Selector) Nodes(node *html.Node) []*html.Node {
	if s == nil || node == nil {
		return nil
	}
	switch s.Kind {
	case KindXPath:
		return s.xpathNodes(node)
	case KindCSS:
		return s.cssNodes(node)
	}
	return nil
}

func (s *Selector) String() string {
	return s.Kind.String() + ":" + s.Expr
}
