package types

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Priority levels for request scheduling.
const (
	PriorityHighest = 0
	PriorityHigh    = 1
	PriorityNormal  = 2
	PriorityLow     = 3
	PriorityLowest  = 4
)

// PageType tells the controller how to treat a fetched page.
type PageType int

const (
	// PageArticle is a terminal page whose fields are extracted and matched.
	PageArticle PageType = iota
	// PageSitemap is an XML sitemap or sitemap index.
	PageSitemap
	// PageListing is an HTML page with article links and optional pagination.
	PageListing
)

func (p PageType) String() string {
	switch p {
	case PageArticle:
		return "article"
	case PageSitemap:
		return "sitemap"
	case PageListing:
		return "listing"
	default:
		return "unknown"
	}
}

// ParsePageType resolves a page type name from configuration.
func ParsePageType(s string) (PageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "article":
		return PageArticle, nil
	case "sitemap", "sitemap_index":
		return PageSitemap, nil
	case "listing":
		return PageListing, nil
	default:
		return 0, fmt.Errorf("unknown page type %q", s)
	}
}

// Request represents a URL to be fetched by the crawler.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// PageType decides which controller state handles the response.
	PageType PageType

	// Depth is the number of hops from the seed URL.
	Depth int

	// Priority controls scheduling order (lower = higher priority).
	Priority int

	// MaxRetries is the maximum number of retries for this request.
	MaxRetries int

	// RetryCount tracks the current retry attempt.
	RetryCount int

	// Timeout overrides the global request timeout for this request.
	Timeout time.Duration

	// FetcherType specifies which fetcher to use: "http", "browser" or "file".
	FetcherType string

	// ParentURL tracks which page this request was discovered on.
	ParentURL string

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a new Request with sensible defaults.
func NewRequest(rawURL string, pageType PageType) (*Request, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme == "" || (u.Host == "" && u.Scheme != "file") {
		return nil, fmt.Errorf("%w %q: missing scheme or host", ErrInvalidURL, rawURL)
	}

	fetcherType := "http"
	if u.Scheme == "file" {
		fetcherType = "file"
	}

	return &Request{
		URL:         u,
		Method:      http.MethodGet,
		Headers:     make(http.Header),
		PageType:    pageType,
		Priority:    PriorityNormal,
		MaxRetries:  3,
		FetcherType: fetcherType,
		CreatedAt:   time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// Clone creates a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := *r
	if r.URL != nil {
		u := *r.URL
		clone.URL = &u
	}
	clone.Headers = r.Headers.Clone()
	return &clone
}
