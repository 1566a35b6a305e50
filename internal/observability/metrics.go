package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/newscrawler/internal/engine"
)

// Source is a running crawl whose counters are exported. *engine.Engine
// satisfies it.
type Source interface {
	Stats() *engine.RunStatistics
	QueueDepth() int
	GetState() engine.State
}

// Metrics exports per-site run statistics in Prometheus text format.
type Metrics struct {
	mu      sync.RWMutex
	sources map[string]Source
	logger  *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		sources: make(map[string]Source),
		logger:  logger.With("component", "metrics"),
	}
}

// Register exports src under the given site label. Registering the same
// site again replaces the previous source.
func (m *Metrics) Register(site string, src Source) {
	m.mu.Lock()
	m.sources[site] = src
	m.mu.Unlock()
}

type counter struct {
	name  string
	help  string
	kind  string
	value func(s engine.StatsSnapshot) float64
}

var counters = []counter{
	{"newscrawler_pages_crawled_total", "Pages fetched and handled", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.PagesCrawled) }},
	{"newscrawler_articles_found_total", "Article pages with at least one keyword match", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.ArticlesFound) }},
	{"newscrawler_articles_dropped_total", "Articles dropped by the pipeline", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.ArticlesDropped) }},
	{"newscrawler_articles_stored_total", "Articles written to storage", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.ArticlesStored) }},
	{"newscrawler_requests_total", "Requests sent", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.RequestsSent) }},
	{"newscrawler_requests_failed_total", "Requests that failed after retries", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.RequestsFailed) }},
	{"newscrawler_responses_ok_total", "Successful responses", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.ResponsesOK) }},
	{"newscrawler_urls_enqueued_total", "URLs added to the frontier", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.URLsEnqueued) }},
	{"newscrawler_urls_filtered_total", "URLs rejected by filters", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.URLsFiltered) }},
	{"newscrawler_bytes_downloaded_total", "Response bytes downloaded", "counter", func(s engine.StatsSnapshot) float64 { return float64(s.BytesDownloaded) }},
	{"newscrawler_active_workers", "Workers currently fetching", "gauge", func(s engine.StatsSnapshot) float64 { return float64(s.ActiveWorkers) }},
	{"newscrawler_elapsed_seconds", "Seconds since the crawl started", "gauge", func(s engine.StatsSnapshot) float64 { return s.Elapsed.Seconds() }},
}

type siteSnapshot struct {
	site  string
	state engine.State
	snap  engine.StatsSnapshot
	queue int
}

func (m *Metrics) snapshots() []siteSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]siteSnapshot, 0, len(m.sources))
	for site, src := range m.sources {
		out = append(out, siteSnapshot{
			site:  site,
			state: src.GetState(),
			snap:  src.Stats().Snapshot(),
			queue: src.QueueDepth(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].site < out[j].site })
	return out
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	m.WriteText(w)
}

// WriteText writes every metric family for all registered sites.
func (m *Metrics) WriteText(w io.Writer) {
	snaps := m.snapshots()

	for _, c := range counters {
		header(w, c.name, c.help, c.kind)
		for _, s := range snaps {
			fmt.Fprintf(w, "%s{site=%q} %s\n", c.name, s.site, formatValue(c.value(s.snap)))
		}
	}

	header(w, "newscrawler_queue_depth", "Requests waiting in the frontier", "gauge")
	for _, s := range snaps {
		fmt.Fprintf(w, "newscrawler_queue_depth{site=%q} %d\n", s.site, s.queue)
	}

	header(w, "newscrawler_keyword_matches_total", "Articles matching each keyword", "counter")
	for _, s := range snaps {
		kws := make([]string, 0, len(s.snap.KeywordMatches))
		for kw := range s.snap.KeywordMatches {
			kws = append(kws, kw)
		}
		sort.Strings(kws)
		for _, kw := range kws {
			fmt.Fprintf(w, "newscrawler_keyword_matches_total{site=%q,keyword=%q} %d\n",
				s.site, kw, s.snap.KeywordMatches[kw])
		}
	}
}

func header(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.3f", v)
}

type siteStatus struct {
	State      string `json:"state"`
	QueueDepth int    `json:"queue_depth"`
	engine.StatsSnapshot
}

// ServeStats serves the state and counters of every site as JSON.
func (m *Metrics) ServeStats(w http.ResponseWriter, r *http.Request) {
	sites := make(map[string]siteStatus)
	for _, s := range m.snapshots() {
		sites[s.site] = siteStatus{State: s.state.String(), QueueDepth: s.queue, StatsSnapshot: s.snap}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"sites":     sites,
	})
}

// Snapshot returns the summed counters of all sites as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	out := map[string]int64{}
	for _, s := range m.snapshots() {
		out["pages_crawled"] += s.snap.PagesCrawled
		out["articles_found"] += s.snap.ArticlesFound
		out["articles_stored"] += s.snap.ArticlesStored
		out["articles_dropped"] += s.snap.ArticlesDropped
		out["requests_total"] += s.snap.RequestsSent
		out["requests_failed"] += s.snap.RequestsFailed
		out["bytes_downloaded"] += s.snap.BytesDownloaded
		out["queue_depth"] += int64(s.queue)
	}
	return out
}

// StartServer starts the metrics HTTP server. It shuts down when ctx is
// cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/api/stats", m.ServeStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	return nil
}
