package engine

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/newscrawler/internal/keywords"
)

// RunStatistics tracks one site run. Counters are safe for concurrent use.
type RunStatistics struct {
	// Article pages handled, whether or not they matched.
	PagesCrawled atomic.Int64
	// Records emitted after a non-empty keyword match.
	ArticlesFound atomic.Int64

	RequestsSent    atomic.Int64
	RequestsFailed  atomic.Int64
	ResponsesOK     atomic.Int64
	URLsEnqueued    atomic.Int64
	URLsFiltered    atomic.Int64
	ArticlesDropped atomic.Int64
	ArticlesStored  atomic.Int64
	BytesDownloaded atomic.Int64
	ActiveWorkers   atomic.Int32

	StartTime time.Time

	mu             sync.Mutex
	keywordMatches map[string]int64
}

// NewRunStatistics returns statistics with the clock started now.
func NewRunStatistics() *RunStatistics {
	return &RunStatistics{
		StartTime:      time.Now(),
		keywordMatches: make(map[string]int64),
	}
}

// RecordMatch counts one found article and each keyword it matched.
func (s *RunStatistics) RecordMatch(matches keywords.MatchSet) {
	s.ArticlesFound.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for kw := range matches {
		s.keywordMatches[kw]++
	}
}

// KeywordMatches returns a copy of the per-keyword counters.
func (s *RunStatistics) KeywordMatches() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.keywordMatches))
	for k, v := range s.keywordMatches {
		out[k] = v
	}
	return out
}

// StatsSnapshot is a point-in-time copy of RunStatistics.
type StatsSnapshot struct {
	Elapsed         time.Duration    `json:"elapsed_ns"`
	PagesCrawled    int64            `json:"pages_crawled"`
	ArticlesFound   int64            `json:"articles_found"`
	RequestsSent    int64            `json:"requests_sent"`
	RequestsFailed  int64            `json:"requests_failed"`
	ResponsesOK     int64            `json:"responses_ok"`
	URLsEnqueued    int64            `json:"urls_enqueued"`
	URLsFiltered    int64            `json:"urls_filtered"`
	ArticlesDropped int64            `json:"articles_dropped"`
	ArticlesStored  int64            `json:"articles_stored"`
	BytesDownloaded int64            `json:"bytes_downloaded"`
	ActiveWorkers   int32            `json:"active_workers"`
	KeywordMatches  map[string]int64 `json:"keyword_matches"`
}

// Snapshot returns a copy of stats safe for reading.
func (s *RunStatistics) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Elapsed:         time.Since(s.StartTime),
		PagesCrawled:    s.PagesCrawled.Load(),
		ArticlesFound:   s.ArticlesFound.Load(),
		RequestsSent:    s.RequestsSent.Load(),
		RequestsFailed:  s.RequestsFailed.Load(),
		ResponsesOK:     s.ResponsesOK.Load(),
		URLsEnqueued:    s.URLsEnqueued.Load(),
		URLsFiltered:    s.URLsFiltered.Load(),
		ArticlesDropped: s.ArticlesDropped.Load(),
		ArticlesStored:  s.ArticlesStored.Load(),
		BytesDownloaded: s.BytesDownloaded.Load(),
		ActiveWorkers:   s.ActiveWorkers.Load(),
		KeywordMatches:  s.KeywordMatches(),
	}
}

// LogSummary writes the end-of-run summary. reason says why the run ended
// ("finished", "cancelled", "max_requests", ...).
func (s *RunStatistics) LogSummary(logger *slog.Logger, reason string) {
	snap := s.Snapshot()

	logger.Info("crawl finished",
		"reason", reason,
		"elapsed", snap.Elapsed.Round(time.Millisecond).String(),
		"pages_crawled", snap.PagesCrawled,
		"articles_found", snap.ArticlesFound,
		"articles_stored", snap.ArticlesStored,
		"requests_sent", snap.RequestsSent,
		"requests_failed", snap.RequestsFailed,
	)

	kws := make([]string, 0, len(snap.KeywordMatches))
	for kw := range snap.KeywordMatches {
		kws = append(kws, kw)
	}
	sort.Slice(kws, func(i, j int) bool {
		ci, cj := snap.KeywordMatches[kws[i]], snap.KeywordMatches[kws[j]]
		if ci != cj {
			return ci > cj
		}
		return kws[i] < kws[j]
	})
	for _, kw := range kws {
		logger.Info("keyword matches", "keyword", kw, "count", snap.KeywordMatches[kw])
	}
}
