package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

func compileCSS(expr string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", expr, err)
	}
	return sel, nil
}

// cssValues reads the configured attribute from every match. An empty
// attribute (or "text") reads the element text.
func (s *Selector) cssValues(node *html.Node) []string {
	var values []string

	goquery.NewDocumentFromNode(node).FindMatcher(s.css).Each(func(i int, sel *goquery.Selection) {
		var val string

		switch s.Attribute {
		case "", "text":
			val = sel.Text()
		case "html", "innerHTML":
			val, _ = sel.Html()
		case "outerHTML":
			val, _ = goquery.OuterHtml(sel)
		default:
			val, _ = sel.Attr(s.Attribute)
		}

		values = append(values, val)
	})

	return values
}

func (s *Selector) cssNodes(node *html.Node) []*html.Node {
	return goquery.NewDocumentFromNode(node).FindMatcher(s.css).Nodes
}

// ResolveLink resolves href against base. Anchors, javascript:, mailto:,
// tel: and data: links are rejected, as is anything that is not http(s)
// after resolution. The fragment is dropped.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return "", false
	}

	parsedHref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := parsedHref
	if base != nil {
		resolved = base.ResolveReference(parsedHref)
	}

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// ResolveLinks resolves and de-duplicates hrefs, keeping first-seen order.
func ResolveLinks(baseURL string, hrefs []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	for _, href := range hrefs {
		abs, ok := ResolveLink(base, href)
		if !ok || seen[abs] {
			continue
		}
		seen[abs] = true
		links = append(links, abs)
	}
	return links
}
