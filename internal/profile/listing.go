package profile

import (
	"net/url"

	"github.com/IshaanNene/newscrawler/internal/parser"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// ArticleLinks returns the resolved article links on a listing page that
// pass the listing filter and the allowed domains.
func (p *Profile) ArticleLinks(resp *types.Response) ([]string, error) {
	doc, err := resp.Node()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL(), Err: err}
	}
	if p.Listing.Links == nil {
		return nil, nil
	}

	var links []string
	for _, link := range parser.ResolveLinks(resp.URL(), p.Listing.Links.Values(doc)) {
		if p.Listing.Filter.Accept(link) && p.allowedURL(link) {
			links = append(links, link)
		}
	}
	return links, nil
}

// Pages returns the follow-up listing URLs reported by the page's
// pagination controls.
func (p *Profile) Pages(resp *types.Response) ([]string, error) {
	doc, err := resp.Node()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL(), Err: err}
	}
	return p.Listing.Pagination.Expand(resp.URL(), doc)
}

// AcceptSitemapEntry reports whether a <urlset> location should be fetched
// as an article.
func (p *Profile) AcceptSitemapEntry(loc string) bool {
	return p.Sitemap.Accept(loc) && p.allowedURL(loc)
}

func (p *Profile) allowedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return p.AllowsHost(u.Hostname())
}
