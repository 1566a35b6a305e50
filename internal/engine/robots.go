package engine

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const maxRobotsBodyBytes = 512 * 1024

// RobotsManager fetches, caches and enforces robots.txt per host.
// A missing or unreadable robots.txt allows everything.
type RobotsManager struct {
	enabled   bool
	userAgent string
	client    *http.Client

	mu    sync.RWMutex
	cache map[string]*robotsEntry
}

type robotsEntry struct {
	data *robotstxt.RobotsData // nil means allow all
}

// NewRobotsManager creates a RobotsManager. A nil client gets a 10s timeout
// default client.
func NewRobotsManager(enabled bool, userAgent string, client *http.Client) *RobotsManager {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsManager{
		enabled:   enabled,
		userAgent: userAgent,
		client:    client,
		cache:     make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether rawURL may be fetched. Non-HTTP URLs are always
// allowed.
func (rm *RobotsManager) IsAllowed(ctx context.Context, rawURL string) bool {
	if !rm.enabled {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return true
	}

	entry := rm.entry(ctx, u.Scheme, u.Host)
	if entry.data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return entry.data.TestAgent(path, rm.userAgent)
}

// CrawlDelay returns the crawl-delay robots.txt sets for host, if cached.
// host is a hostname without port, as Request.Domain returns it.
func (rm *RobotsManager) CrawlDelay(host string) time.Duration {
	rm.mu.RLock()
	entry, ok := rm.cache[strings.ToLower(host)]
	rm.mu.RUnlock()
	if !ok || entry.data == nil {
		return 0
	}
	if g := entry.data.FindGroup(rm.userAgent); g != nil {
		return g.CrawlDelay
	}
	return 0
}

// entry returns the cached robots.txt for hostport, fetching it on first
// use. The cache is keyed by hostname so CrawlDelay and the scheduler's
// per-domain gates agree on non-default ports.
func (rm *RobotsManager) entry(ctx context.Context, scheme, hostport string) *robotsEntry {
	key := robotsKey(hostport)
	rm.mu.RLock()
	entry, ok := rm.cache[key]
	rm.mu.RUnlock()
	if ok {
		return entry
	}

	entry = &robotsEntry{data: rm.fetch(ctx, scheme+"://"+hostport+"/robots.txt")}

	rm.mu.Lock()
	rm.cache[key] = entry
	rm.mu.Unlock()
	return entry
}

func robotsKey(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

func (rm *RobotsManager) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rm.userAgent)

	resp, err := rm.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
