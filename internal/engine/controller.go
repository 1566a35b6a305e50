package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/IshaanNene/newscrawler/internal/keywords"
	"github.com/IshaanNene/newscrawler/internal/parser"
	"github.com/IshaanNene/newscrawler/internal/profile"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// Result is what handling one page produced.
type Result struct {
	Articles []*types.Article
	Requests []*types.Request
}

// Controller decides what to do with each fetched page of one site run:
// sitemaps yield child sitemaps or article requests, listings yield article
// links and pagination, articles are extracted, matched and emitted.
type Controller struct {
	profile *profile.Profile
	matcher *keywords.Matcher
	visited *VisitedSet
	stats   *RunStatistics
	logger  *slog.Logger
	now     func() time.Time
}

// NewController creates a Controller with a fresh VisitedSet.
func NewController(p *profile.Profile, m *keywords.Matcher, stats *RunStatistics, logger *slog.Logger) *Controller {
	return &Controller{
		profile: p,
		matcher: m,
		visited: NewVisitedSet(64 * 1024),
		stats:   stats,
		logger:  logger.With("component", "controller", "site", p.Name),
		now:     time.Now,
	}
}

// Visited returns the controller's run-scoped VisitedSet.
func (c *Controller) Visited() *VisitedSet { return c.visited }

// Handle dispatches a fetched page on its request's page type. Errors are
// logged with the page URL and never abort the run.
func (c *Controller) Handle(resp *types.Response) Result {
	pageType := types.PageArticle
	if resp.Request != nil {
		pageType = resp.Request.PageType
	}

	switch pageType {
	case types.PageSitemap:
		return c.handleSitemap(resp)
	case types.PageListing:
		return c.handleListing(resp)
	default:
		return c.handleArticle(resp)
	}
}

func (c *Controller) handleSitemap(resp *types.Response) Result {
	logger := c.logger.With("url", resp.URL(), "stage", "sitemap")

	body, err := parser.Decompress(resp.Body)
	if err != nil {
		logger.Warn("sitemap decompress failed", "error", err)
		return Result{}
	}
	sm, err := parser.ParseSitemap(body)
	if err != nil {
		logger.Warn("sitemap parse failed", "error", &types.ParseError{URL: resp.URL(), Err: err})
		return Result{}
	}

	var res Result
	switch sm.Kind {
	case parser.SitemapIndex:
		for _, loc := range sm.Locs() {
			if req := c.newRequest(loc, types.PageSitemap, resp); req != nil {
				res.Requests = append(res.Requests, req)
			}
		}
	default:
		skipped := 0
		for _, loc := range sm.Locs() {
			if !c.profile.AcceptSitemapEntry(loc) {
				skipped++
				continue
			}
			if req := c.newRequest(loc, types.PageArticle, resp); req != nil {
				res.Requests = append(res.Requests, req)
			}
		}
		logger.Debug("sitemap entries", "kind", sm.Kind.String(), "accepted", len(res.Requests), "skipped", skipped)
	}
	return res
}

func (c *Controller) handleListing(resp *types.Response) Result {
	logger := c.logger.With("url", resp.URL(), "stage", "listing")
	var res Result

	links, err := c.profile.ArticleLinks(resp)
	if err != nil {
		logger.Warn("listing links failed", "error", err)
	}
	for _, link := range links {
		if req := c.newRequest(link, types.PageArticle, resp); req != nil {
			res.Requests = append(res.Requests, req)
		}
	}

	pages, err := c.profile.Pages(resp)
	if err != nil {
		var pErr *types.PaginationError
		if errors.As(err, &pErr) {
			logger.Warn("pagination skipped", "last_page", pErr.Value, "error", pErr.Err)
		} else {
			logger.Warn("pagination failed", "error", err)
		}
	}
	// The current page counts as visited so a pagination control that
	// links back to it does not schedule it again.
	c.visited.MarkIfUnseen(resp.URL())
	for _, page := range pages {
		if !c.visited.MarkIfUnseen(page) {
			continue
		}
		if req := c.newRequest(page, types.PageListing, resp); req != nil {
			// Pagination stays at the listing's depth.
			if req.Depth > 0 {
				req.Depth--
			}
			res.Requests = append(res.Requests, req)
		}
	}

	logger.Debug("listing page", "articles", len(links), "pages", len(pages))
	return res
}

func (c *Controller) handleArticle(resp *types.Response) Result {
	c.stats.PagesCrawled.Add(1)

	pageURL := resp.URL()
	if !c.visited.MarkIfUnseen(pageURL) {
		return Result{}
	}
	logger := c.logger.With("url", pageURL, "stage", "article")

	if resp.IsEmpty() {
		logger.Debug("empty article page")
		return Result{}
	}

	ex, errs := c.profile.Extract(resp)
	for _, err := range errs {
		logger.Warn("field extraction failed", "error", err)
	}
	if ex.Empty() {
		logger.Debug("nothing extracted")
		return Result{}
	}

	matches := c.matcher.FindMatches(c.profile.MatchableText(ex))
	if matches.Len() == 0 {
		return Result{}
	}
	c.stats.RecordMatch(matches)

	article := BuildArticle(ex, matches, pageURL, c.profile)
	article.ScrapedAt = c.now()
	logger.Info("article matched", "keywords", article.Keywords)
	return Result{Articles: []*types.Article{article}}
}

// newRequest builds a follow-up request carrying the profile's headers.
// Invalid URLs are logged and dropped.
func (c *Controller) newRequest(rawURL string, pageType types.PageType, parent *types.Response) *types.Request {
	req, err := types.NewRequest(rawURL, pageType)
	if err != nil {
		c.logger.Debug("dropping invalid link", "url", rawURL, "error", err)
		return nil
	}
	for k, vs := range c.profile.Headers {
		for _, v := range vs {
			req.Headers.Add(k, v)
		}
	}
	if c.profile.Fetcher == profile.FetcherBrowser && req.FetcherType == "http" {
		req.FetcherType = "browser"
	}
	if parent != nil && parent.Request != nil {
		req.Depth = parent.Request.Depth + 1
		req.ParentURL = parent.URL()
	}
	if pageType == types.PageArticle {
		req.Priority = types.PriorityHigh
	}
	return req
}
