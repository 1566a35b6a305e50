package profile

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/newscrawler/internal/parser"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// PaginationKind is the tag of a Pagination rule.
type PaginationKind int

const (
	PaginationNone PaginationKind = iota
	// PaginationLastPage reads the last page number and expands the
	// zero-indexed page parameter up to it.
	PaginationLastPage
	// PaginationPageLinks follows the page links inside the container.
	PaginationPageLinks
)

// ParsePaginationKind resolves a pagination kind name.
func ParsePaginationKind(s string) (PaginationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PaginationNone, nil
	case "last_page":
		return PaginationLastPage, nil
	case "page_links":
		return PaginationPageLinks, nil
	default:
		return 0, fmt.Errorf("unknown pagination kind %q", s)
	}
}

// Pagination is a compiled pagination rule.
type Pagination struct {
	Kind      PaginationKind
	Container *parser.Selector
	LastPage  *parser.Selector
	PageLinks *parser.Selector
	// Param is the query parameter carrying the page index.
	Param string
}

// Expand returns the follow-up listing URLs for a listing page. The page
// still yields its article links when Expand returns an error.
func (p *Pagination) Expand(pageURL string, doc *html.Node) ([]string, error) {
	if p.Kind == PaginationNone || p.Container == nil {
		return nil, nil
	}
	containers := p.Container.Nodes(doc)
	if len(containers) == 0 {
		return nil, nil
	}

	switch p.Kind {
	case PaginationLastPage:
		raw := ""
		for _, c := range containers {
			if raw = p.LastPage.First(c); raw != "" {
				break
			}
		}
		if raw == "" {
			return nil, nil
		}
		last, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, &types.PaginationError{URL: pageURL, Value: raw, Err: err}
		}
		return PageURLs(pageURL, p.Param, last), nil

	case PaginationPageLinks:
		var hrefs []string
		for _, c := range containers {
			hrefs = append(hrefs, p.PageLinks.Values(c)...)
		}
		return parser.ResolveLinks(pageURL, hrefs), nil
	}
	return nil, nil
}

// PageURLs builds the zero-indexed page URLs 0..last-2 for a site whose
// pagination control reports last as its final page number. Any existing
// page parameter is stripped from pageURL first.
func PageURLs(pageURL, param string, last int) []string {
	if param == "" {
		param = "page"
	}
	marker := "&" + param + "="
	base := pageURL
	if i := strings.Index(base, marker); i >= 0 {
		base = base[:i]
	} else if i := strings.Index(base, "?"+param+"="); i >= 0 {
		base = base[:i]
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}

	var urls []string
	for n := 1; n < last; n++ {
		urls = append(urls, fmt.Sprintf("%s%s%s=%d", base, sep, param, n-1))
	}
	return urls
}
