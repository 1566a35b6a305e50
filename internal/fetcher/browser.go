package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/profile"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod. It is
// used for listing pages that only render their article links with
// JavaScript.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      *config.Config
	cookies  []*proto.NetworkCookieParam
	stealth  bool
	logger   *slog.Logger
	pagePool chan *rod.Page
	slots    chan struct{}
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithMaxPages sets the maximum number of concurrent browser pages.
func WithMaxPages(n int) BrowserOption {
	return func(bf *BrowserFetcher) {
		if n > 0 {
			bf.slots = make(chan struct{}, n)
		}
	}
}

// NewBrowserFetcher launches a headless Chromium and connects to it. p may
// be nil; when set, its cookies are installed on every page.
func NewBrowserFetcher(cfg *config.Config, p *profile.Profile, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:     cfg,
		stealth: cfg.Fetcher.Stealth,
		logger:  logger.With("component", "browser_fetcher"),
		slots:   make(chan struct{}, max(cfg.Engine.Concurrency, 1)),
	}
	for _, opt := range opts {
		opt(bf)
	}
	if p != nil {
		bf.logger = bf.logger.With("site", p.Name)
		bf.cookies = cookieParams(p.Cookies, p.Domain)
	}

	launchURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf.browser = browser
	bf.pagePool = make(chan *rod.Page, cap(bf.slots))

	bf.logger.Info("browser fetcher ready", "max_pages", cap(bf.slots), "stealth", bf.stealth)
	return bf, nil
}

// Fetch navigates to a URL and returns the rendered page content.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	select {
	case bf.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, &types.FetchError{URL: req.URLString(), Err: ctx.Err()}
	}
	defer func() { <-bf.slots }()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}
	defer bf.putPage(page)
	page = page.Context(ctx)

	ua := req.Headers.Get("User-Agent")
	if ua == "" && len(bf.cfg.Engine.UserAgents) > 0 {
		ua = bf.cfg.Engine.UserAgents[0]
	}
	if ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	headers := make([]string, 0, len(req.Headers)*2)
	for k, vals := range req.Headers {
		if http.CanonicalHeaderKey(k) == "User-Agent" {
			continue
		}
		for _, v := range vals {
			headers = append(headers, k, v)
		}
	}
	if len(headers) > 0 {
		if _, err := page.SetExtraHeaders(headers); err != nil {
			bf.logger.Warn("failed to set headers", "error", err)
		}
	}

	if len(bf.cookies) > 0 {
		if err := page.SetCookies(bf.cookies); err != nil {
			bf.logger.Warn("failed to set cookies", "error", err)
		}
	}

	timeout := bf.cfg.Engine.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if err := page.Timeout(timeout).Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: ctx.Err() == nil}
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	// Rod does not expose the document status; a rendered page counts as 200.
	resp := types.NewStaticResponse(req, http.StatusOK, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)
	return resp, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// getPage retrieves a page from the pool or opens a new one.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
	}
	if bf.stealth {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage returns a page to the pool.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}

// cookieParams converts profile cookies for the DevTools protocol. Cookies
// without a domain are scoped to the profile's domain.
func cookieParams(cookies []*http.Cookie, domain string) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		d := c.Domain
		if d == "" {
			if domain == "" {
				continue
			}
			d = "." + domain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: d,
			Path:   path,
		})
	}
	return params
}
