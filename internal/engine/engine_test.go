package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/keywords"
	"github.com/IshaanNene/newscrawler/internal/profile"
	"github.com/IshaanNene/newscrawler/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sitemapProfile = `
name: testsite
domain: example.com
allowed_domains: [example.com]
seed_type: sitemap
seeds:
  granularity: static
  urls: [https://example.com/sitemap.xml]
sitemap:
  filter:
    kind: pattern
    patterns: [/news/]
fields:
  title: '//h1//text()'
  text: '//div[@class="body"]//p//text()'
  date: '//time/@datetime'
  authors: '//span[@class="author"]//text()'
`

const listingProfile = `
name: listsite
domain: example.com
seed_type: listing
seeds:
  granularity: search
  templates: ['https://example.com/search?q={q}']
  terms: [gaza]
listing:
  links: '//a[@class="story"]/@href'
  pagination:
    kind: last_page
    container: '//div[@class="pages"]'
    last_page: './/span[last()]//text()'
    param: page
fields:
  title: '//h1//text()'
`

func mustProfile(t testing.TB, doc string) *profile.Profile {
	t.Helper()
	p, err := profile.Parse([]byte(doc), "test.yaml")
	if err != nil {
		t.Fatalf("parse profile: %v", err)
	}
	return p
}

func mustMatcher(t testing.TB) *keywords.Matcher {
	t.Helper()
	m, err := keywords.Compile(keywords.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("compile keywords: %v", err)
	}
	return m
}

func makePage(t testing.TB, rawURL string, pageType types.PageType, body string) *types.Response {
	t.Helper()
	req, err := types.NewRequest(rawURL, pageType)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return types.NewStaticResponse(req, 200, []byte(body), "", 0)
}

func articleHTML(title, body string) string {
	return `<html><body><h1>` + title + `</h1>
<span class="author">Jane Doe</span>
<div class="body"><p>` + body + `</p></div></body></html>`
}

// --- Frontier Tests ---

func TestFrontierPriorityOrder(t *testing.T) {
	f := NewFrontier()

	low, _ := types.NewRequest("https://example.com/low", types.PageArticle)
	low.Priority = types.PriorityLow
	high, _ := types.NewRequest("https://example.com/high", types.PageArticle)
	high.Priority = types.PriorityHighest

	f.Push(low)
	f.Push(high)

	if f.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", f.Len())
	}
	if got := f.TryPop(); got.URLString() != "https://example.com/high" {
		t.Errorf("expected high priority first, got %s", got.URLString())
	}
	if got := f.TryPop(); got.URLString() != "https://example.com/low" {
		t.Errorf("expected low priority second, got %s", got.URLString())
	}
	if !f.IsEmpty() {
		t.Errorf("expected empty frontier, got %d", f.Len())
	}
}

func TestFrontierFIFOWithinPriority(t *testing.T) {
	f := NewFrontier()
	for _, p := range []string{"a", "b", "c", "d"} {
		r, _ := types.NewRequest("https://example.com/"+p, types.PageSitemap)
		f.Push(r)
	}
	var got []string
	for r := f.TryPop(); r != nil; r = f.TryPop() {
		got = append(got, r.URL.Path)
	}
	want := []string{"/a", "/b", "/c", "/d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFrontierArticlesFirst(t *testing.T) {
	f := NewFrontier()
	push := func(path string, pt types.PageType, prio int) {
		r, _ := types.NewRequest("https://example.com/"+path, pt)
		r.Priority = prio
		f.Push(r)
	}
	push("sitemap", types.PageSitemap, types.PriorityHighest)
	push("listing", types.PageListing, types.PriorityHighest)
	push("story-1", types.PageArticle, types.PriorityLow)
	push("story-2", types.PageArticle, types.PriorityLow)

	var got []string
	for r := f.TryPop(); r != nil; r = f.TryPop() {
		got = append(got, r.URL.Path)
	}
	want := []string{"/story-1", "/story-2", "/listing", "/sitemap"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFrontierClose(t *testing.T) {
	f := NewFrontier()
	f.Close()

	if !f.IsClosed() {
		t.Error("expected frontier to be closed")
	}
	r, _ := types.NewRequest("https://example.com/", types.PageArticle)
	f.Push(r)
	if f.Len() != 0 {
		t.Error("push after close should be dropped")
	}
}

// --- RobotsManager Tests ---

func TestRobotsCrawlDelayOnNonDefaultPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "User-agent: *\nCrawl-delay: 3\nDisallow: /private/\n")
	}))
	defer srv.Close()

	rm := NewRobotsManager(true, "newscrawler", srv.Client())
	ctx := context.Background()
	if !rm.IsAllowed(ctx, srv.URL+"/news/1") {
		t.Error("public path should be allowed")
	}
	if rm.IsAllowed(ctx, srv.URL+"/private/x") {
		t.Error("disallowed path should be blocked")
	}

	req, err := types.NewRequest(srv.URL+"/news/1", types.PageArticle)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(srv.URL)
	if u.Port() == "" || req.Domain() != u.Hostname() {
		t.Fatalf("expected a non-default port, got %s", srv.URL)
	}
	if got := rm.CrawlDelay(req.Domain()); got != 3*time.Second {
		t.Errorf("crawl delay = %v, want 3s", got)
	}
}

// --- VisitedSet Tests ---

func TestVisitedSetMarkIfUnseen(t *testing.T) {
	v := NewVisitedSet(16)

	if !v.MarkIfUnseen("https://example.com/a") {
		t.Error("first mark should report unseen")
	}
	if v.MarkIfUnseen("https://example.com/a") {
		t.Error("second mark should report seen")
	}
	if !v.Seen("https://example.com/a") {
		t.Error("expected Seen after mark")
	}
	if v.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", v.Len())
	}
}

func TestVisitedSetURLVariants(t *testing.T) {
	v := NewVisitedSet(16)
	v.MarkIfUnseen("https://Example.COM/Path/?b=2&a=1#frag")

	variants := []string{
		"https://example.com/Path?a=1&b=2",
		"https://example.com:443/Path/?b=2&a=1",
		"HTTPS://EXAMPLE.COM/Path?a=1&b=2#other",
	}
	for _, u := range variants {
		if !v.Seen(u) {
			t.Errorf("%s should canonicalize to the marked URL", u)
		}
	}
	if v.Seen("https://example.com/path?a=1&b=2") {
		t.Error("path case must be preserved")
	}
}

func TestVisitedSetConcurrent(t *testing.T) {
	v := NewVisitedSet(16)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.MarkIfUnseen("https://example.com/race") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

// --- Stats Tests ---

func TestStatsSnapshot(t *testing.T) {
	s := NewRunStatistics()
	s.RequestsSent.Add(42)
	s.PagesCrawled.Add(7)
	s.BytesDownloaded.Add(1024 * 1024)
	s.RecordMatch(keywords.MatchSet{"gaza": {}, "hamas": {}})
	s.RecordMatch(keywords.MatchSet{"gaza": {}})

	snap := s.Snapshot()
	if snap.RequestsSent != 42 {
		t.Errorf("expected 42 requests_sent, got %d", snap.RequestsSent)
	}
	if snap.PagesCrawled != 7 {
		t.Errorf("expected 7 pages, got %d", snap.PagesCrawled)
	}
	if snap.ArticlesFound != 2 {
		t.Errorf("expected 2 articles found, got %d", snap.ArticlesFound)
	}
	want := map[string]int64{"gaza": 2, "hamas": 1}
	if !reflect.DeepEqual(snap.KeywordMatches, want) {
		t.Errorf("keyword matches = %v, want %v", snap.KeywordMatches, want)
	}

	// Snapshot copies are independent of later updates.
	s.RecordMatch(keywords.MatchSet{"idf": {}})
	if _, ok := snap.KeywordMatches["idf"]; ok {
		t.Error("snapshot must not see later matches")
	}
}

// --- Controller Tests ---

func newTestController(t *testing.T, doc string) (*Controller, *RunStatistics) {
	t.Helper()
	stats := NewRunStatistics()
	return NewController(mustProfile(t, doc), mustMatcher(t), stats, testLogger()), stats
}

func TestControllerArticleEmittedOnce(t *testing.T) {
	c, stats := newTestController(t, sitemapProfile)
	page := articleHTML("Gaza ceasefire talks resume", "Negotiators met again on Sunday.")

	first := c.Handle(makePage(t, "https://example.com/news/talks", types.PageArticle, page))
	second := c.Handle(makePage(t, "https://example.com/news/talks", types.PageArticle, page))

	if len(first.Articles) != 1 {
		t.Fatalf("expected 1 article on first visit, got %d", len(first.Articles))
	}
	if len(second.Articles) != 0 {
		t.Errorf("expected no article on repeat visit, got %d", len(second.Articles))
	}
	if got := stats.PagesCrawled.Load(); got != 2 {
		t.Errorf("pages_crawled = %d, want 2", got)
	}
	if got := stats.ArticlesFound.Load(); got != 1 {
		t.Errorf("articles_found = %d, want 1", got)
	}

	a := first.Articles[0]
	if !reflect.DeepEqual(a.Keywords, []string{"gaza"}) {
		t.Errorf("keywords = %v, want [gaza]", a.Keywords)
	}
	if !reflect.DeepEqual(a.MatchedKeywords, a.Keywords) {
		t.Errorf("matched_keywords %v differ from keywords %v", a.MatchedKeywords, a.Keywords)
	}
	if a.Title != "Gaza ceasefire talks resume" {
		t.Errorf("title = %q", a.Title)
	}
	if a.SourceDomain != "example.com" {
		t.Errorf("source_domain = %q", a.SourceDomain)
	}
	if a.DatePublished != nil {
		t.Errorf("missing date should be null, got %q", *a.DatePublished)
	}
	if a.ScrapedAt.IsZero() {
		t.Error("scraped_at should be set")
	}
}

func TestControllerArticleNoMatch(t *testing.T) {
	c, stats := newTestController(t, sitemapProfile)
	res := c.Handle(makePage(t, "https://example.com/news/weather", types.PageArticle,
		articleHTML("Sunny weekend ahead", "Temperatures rise across the region.")))

	if len(res.Articles) != 0 {
		t.Errorf("expected no article, got %d", len(res.Articles))
	}
	if stats.PagesCrawled.Load() != 1 || stats.ArticlesFound.Load() != 0 {
		t.Errorf("pages=%d found=%d, want 1/0", stats.PagesCrawled.Load(), stats.ArticlesFound.Load())
	}
}

func TestControllerEmptyPage(t *testing.T) {
	c, stats := newTestController(t, sitemapProfile)
	res := c.Handle(makePage(t, "https://example.com/news/empty", types.PageArticle, ""))

	if len(res.Articles) != 0 || len(res.Requests) != 0 {
		t.Errorf("empty page produced %+v", res)
	}
	if got := stats.PagesCrawled.Load(); got != 1 {
		t.Errorf("pages_crawled = %d, want 1", got)
	}
}

func TestControllerSitemapDispatch(t *testing.T) {
	c, _ := newTestController(t, sitemapProfile)

	index := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
  <sitemap><loc>https://example.com/sitemap-2.xml</loc></sitemap>
</sitemapindex>`
	res := c.Handle(makePage(t, "https://example.com/sitemap.xml", types.PageSitemap, index))
	if len(res.Requests) != 2 {
		t.Fatalf("expected 2 child sitemaps, got %d", len(res.Requests))
	}
	for _, r := range res.Requests {
		if r.PageType != types.PageSitemap {
			t.Errorf("%s: page type %s, want sitemap", r.URLString(), r.PageType)
		}
		if r.Depth != 1 {
			t.Errorf("%s: depth %d, want 1", r.URLString(), r.Depth)
		}
	}

	urlset := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/news/one</loc></url>
  <url><loc>https://example.com/video/two</loc></url>
  <url><loc>https://other.org/news/three</loc></url>
  <url><loc>https://example.com/news/four</loc></url>
</urlset>`
	res = c.Handle(makePage(t, "https://example.com/sitemap-1.xml", types.PageSitemap, urlset))
	var got []string
	for _, r := range res.Requests {
		if r.PageType != types.PageArticle {
			t.Errorf("%s: page type %s, want article", r.URLString(), r.PageType)
		}
		got = append(got, r.URLString())
	}
	want := []string{"https://example.com/news/one", "https://example.com/news/four"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("article requests = %v, want %v", got, want)
	}
}

func TestControllerNotASitemap(t *testing.T) {
	c, _ := newTestController(t, sitemapProfile)
	res := c.Handle(makePage(t, "https://example.com/sitemap.xml", types.PageSitemap, "<html><body>oops</body></html>"))
	if len(res.Requests) != 0 || len(res.Articles) != 0 {
		t.Errorf("expected nothing from a non-sitemap page, got %+v", res)
	}
}

const listingPage = `<html><body>
<a class="story" href="/news/a">A</a>
<a class="story" href="https://example.com/news/b">B</a>
<div class="pages"><span>1</span><span>2</span><span>5</span></div>
</body></html>`

func TestControllerListingPagination(t *testing.T) {
	c, _ := newTestController(t, listingProfile)

	res := c.Handle(makePage(t, "https://example.com/search?q=gaza", types.PageListing, listingPage))

	var articles, pages []string
	for _, r := range res.Requests {
		switch r.PageType {
		case types.PageArticle:
			articles = append(articles, r.URLString())
		case types.PageListing:
			pages = append(pages, r.URLString())
			if r.Depth != 0 {
				t.Errorf("pagination depth = %d, want 0", r.Depth)
			}
		}
	}

	wantArticles := []string{"https://example.com/news/a", "https://example.com/news/b"}
	if !reflect.DeepEqual(articles, wantArticles) {
		t.Errorf("articles = %v, want %v", articles, wantArticles)
	}
	wantPages := []string{
		"https://example.com/search?q=gaza&page=0",
		"https://example.com/search?q=gaza&page=1",
		"https://example.com/search?q=gaza&page=2",
		"https://example.com/search?q=gaza&page=3",
	}
	if !reflect.DeepEqual(pages, wantPages) {
		t.Errorf("pages = %v, want %v", pages, wantPages)
	}

	// The same control seen again on page 2 schedules nothing new.
	again := c.Handle(makePage(t, "https://example.com/search?q=gaza&page=2", types.PageListing, listingPage))
	for _, r := range again.Requests {
		if r.PageType == types.PageListing {
			t.Errorf("pagination URL %s scheduled twice", r.URLString())
		}
	}
}

func TestControllerListingBadLastPage(t *testing.T) {
	c, _ := newTestController(t, listingProfile)
	body := strings.Replace(listingPage, "<span>5</span>", "<span>Next</span>", 1)

	res := c.Handle(makePage(t, "https://example.com/search?q=gaza", types.PageListing, body))

	articles := 0
	for _, r := range res.Requests {
		if r.PageType == types.PageListing {
			t.Errorf("unexpected pagination request %s", r.URLString())
		}
		if r.PageType == types.PageArticle {
			articles++
		}
	}
	if articles != 2 {
		t.Errorf("expected links to survive a bad last page, got %d", articles)
	}
}

// --- Record Tests ---

func TestBuildArticle(t *testing.T) {
	p := mustProfile(t, sitemapProfile)
	p.Domain = ""

	ex := profile.Extraction{
		Title: "Hamas and Israel agree pause",
		Text:  "Body",
		Date:  "2023-11-24T07:00:00Z",
	}
	matches := keywords.MatchSet{"israel": {}, "hamas": {}}

	a := BuildArticle(ex, matches, "https://www.bbc.co.uk/news/world-1", p)

	if !reflect.DeepEqual(a.Keywords, []string{"hamas", "israel"}) {
		t.Errorf("keywords = %v", a.Keywords)
	}
	if !reflect.DeepEqual(a.MatchedKeywords, a.Keywords) {
		t.Errorf("matched_keywords = %v", a.MatchedKeywords)
	}
	if a.SourceDomain != "bbc.co.uk" {
		t.Errorf("source_domain = %q, want bbc.co.uk", a.SourceDomain)
	}
	if a.Date() != "2023-11-24T07:00:00Z" {
		t.Errorf("date = %q", a.Date())
	}
	if a.Authors == nil {
		t.Error("authors should be an empty list, not nil")
	}
	if a.Source != "testsite" {
		t.Errorf("source = %q", a.Source)
	}

	// The two keyword lists must not alias.
	a.Keywords[0] = "changed"
	if a.MatchedKeywords[0] != "hamas" {
		t.Error("keywords and matched_keywords share storage")
	}
}

func TestSourceDomain(t *testing.T) {
	tests := []struct {
		url, configured, want string
	}{
		{"https://www.nbcnews.com/news/x", "", "nbcnews.com"},
		{"https://edition.cnn.com/2024/01/01/x", "", "cnn.com"},
		{"https://www.bbc.co.uk/news", "", "bbc.co.uk"},
		{"https://apnews.com/article/x", "ap.org", "ap.org"},
		{"not a url", "", ""},
	}
	for _, tt := range tests {
		if got := SourceDomain(tt.url, tt.configured); got != tt.want {
			t.Errorf("SourceDomain(%q, %q) = %q, want %q", tt.url, tt.configured, got, tt.want)
		}
	}
}

// --- Engine Tests ---

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	fetched  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := req.URLString()
	f.fetched = append(f.fetched, u)

	if n := f.failures[u]; n > 0 {
		f.failures[u] = n - 1
		return nil, &types.FetchError{URL: u, StatusCode: 503, Err: errors.New("unavailable"), Retryable: true}
	}
	body, ok := f.pages[u]
	if !ok {
		return nil, &types.FetchError{URL: u, StatusCode: 404, Err: errors.New("not found")}
	}
	return types.NewStaticResponse(req, 200, []byte(body), "", 0), nil
}

func (f *fakeFetcher) Close() error { return nil }

type memStorage struct {
	mu       sync.Mutex
	articles []*types.Article
	closed   bool
}

func (m *memStorage) Store(articles []*types.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles = append(m.articles, articles...)
	return nil
}

func (m *memStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.Concurrency = 2
	cfg.Engine.PolitenessDelay = 0
	cfg.Engine.RespectRobotsTxt = false
	cfg.Engine.RequestTimeout = 5 * time.Second
	cfg.Storage.BatchSize = 1
	return cfg
}

func TestEngineRunSitemapSite(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://example.com/sitemap.xml": `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap></sitemapindex>`,
			"https://example.com/sitemap-1.xml": `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://example.com/news/gaza</loc></url>
<url><loc>https://example.com/news/weather</loc></url>
<url><loc>https://example.com/news/gaza#dup</loc></url>
<url><loc>https://example.com/news/flaky</loc></url>
</urlset>`,
			"https://example.com/news/gaza":    articleHTML("Aid reaches Gaza", "Trucks crossed at Rafah."),
			"https://example.com/news/weather": articleHTML("Rain expected", "Bring an umbrella."),
			"https://example.com/news/flaky":   articleHTML("Israeli cabinet meets", "Ministers gathered."),
		},
		failures: map[string]int{"https://example.com/news/flaky": 1},
	}
	store := &memStorage{}

	e := New(testConfig(), mustProfile(t, sitemapProfile), mustMatcher(t), testLogger())
	e.SetFetcher("http", fetcher)
	e.SetStorage(store)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason != ReasonFinished {
		t.Errorf("reason = %q, want %q", reason, ReasonFinished)
	}
	if !store.closed {
		t.Error("storage was not closed")
	}

	got := map[string]bool{}
	for _, a := range store.articles {
		got[a.URL] = true
	}
	want := map[string]bool{
		"https://example.com/news/gaza":  true,
		"https://example.com/news/flaky": true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stored = %v, want %v", got, want)
	}

	snap := e.Stats().Snapshot()
	if snap.PagesCrawled != 3 {
		t.Errorf("pages_crawled = %d, want 3", snap.PagesCrawled)
	}
	if snap.ArticlesFound != 2 || snap.ArticlesStored != 2 {
		t.Errorf("found=%d stored=%d, want 2/2", snap.ArticlesFound, snap.ArticlesStored)
	}
	if e.GetState() != StateStopped {
		t.Errorf("state = %s, want stopped", e.GetState())
	}
}

func TestEngineCancelled(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}
	store := &memStorage{}

	e := New(testConfig(), mustProfile(t, sitemapProfile), mustMatcher(t), testLogger())
	e.SetFetcher("http", fetcher)
	e.SetStorage(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason != ReasonCancelled {
		t.Errorf("reason = %q, want %q", reason, ReasonCancelled)
	}
	if !store.closed {
		t.Error("storage must be closed on cancellation")
	}
}

func TestEngineRequiresFetcher(t *testing.T) {
	e := New(testConfig(), mustProfile(t, sitemapProfile), mustMatcher(t), testLogger())
	if err := e.Start(context.Background()); !errors.Is(err, types.ErrNoFetcher) {
		t.Errorf("expected ErrNoFetcher, got %v", err)
	}
}

func TestEngineAddRequestFilters(t *testing.T) {
	e := New(testConfig(), mustProfile(t, sitemapProfile), mustMatcher(t), testLogger())

	r1, _ := types.NewRequest("https://example.com/news/a", types.PageArticle)
	if err := e.AddRequest(r1); err != nil {
		t.Fatalf("first add: %v", err)
	}
	r2, _ := types.NewRequest("https://EXAMPLE.com/news/a#top", types.PageArticle)
	if err := e.AddRequest(r2); !errors.Is(err, types.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	r3, _ := types.NewRequest("https://elsewhere.org/news/a", types.PageArticle)
	if err := e.AddRequest(r3); err == nil {
		t.Error("expected off-site article to be rejected")
	}
	r4, _ := types.NewRequest("https://example.com/deep", types.PageSitemap)
	r4.Depth = 99
	if err := e.AddRequest(r4); err == nil {
		t.Error("expected depth limit to reject request")
	}
	if r1.MaxRetries != 5 {
		t.Errorf("max retries = %d, want config value 5", r1.MaxRetries)
	}
}

// --- Benchmarks ---

func BenchmarkFrontierPushPop(b *testing.B) {
	f := NewFrontier()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req, _ := types.NewRequest("https://example.com/page", types.PageArticle)
		req.Priority = i % 5
		f.Push(req)
	}
	for i := 0; i < b.N; i++ {
		f.TryPop()
	}
}

func BenchmarkVisitedSet(b *testing.B) {
	v := NewVisitedSet(1_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.MarkIfUnseen("https://example.com/page/" + string(rune(i%26+'a')))
	}
}
