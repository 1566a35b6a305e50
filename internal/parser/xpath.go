package parser

import (
	"fmt"
	"strconv"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

func compileXPath(expr string) (*xpath.Expr, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return compiled, nil
}

// xpathValues evaluates the expression and returns the string value of each
// selected node. Scalar expressions (count(), string()) yield one value.
func (s *Selector) xpathValues(node *html.Node) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := s.xpath.Evaluate(htmlquery.CreateXPathNavigator(node)).(type) {
	case *xpath.NodeIterator:
		var values []string
		for v.MoveNext() {
			values = append(values, v.Current().Value())
		}
		return values
	case string:
		return []string{v}
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(v)}
	default:
		return nil
	}
}

func (s *Selector) xpathNodes(node *html.Node) []*html.Node {
	var nodes []*html.Node
	for _, n := range htmlquery.QuerySelectorAll(node, s.xpath) {
		if n.Type == html.ElementNode || n.Type == html.DocumentNode {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
