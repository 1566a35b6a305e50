package observability

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/newscrawler/internal/engine"
	"github.com/IshaanNene/newscrawler/internal/keywords"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeSource struct {
	stats *engine.RunStatistics
	queue int
}

func (f *fakeSource) Stats() *engine.RunStatistics { return f.stats }
func (f *fakeSource) QueueDepth() int { return f.queue }
func (f *fakeSource) GetState() engine.State { return engine.StateRunning }

func TestServeHTTP(t *testing.T) {
	cnn := &fakeSource{stats: engine.NewRunStatistics(), queue: 7}
	cnn.stats.PagesCrawled.Add(12)
	cnn.stats.RecordMatch(keywords.MatchSet{"gaza": {}, "hamas": {}})
	cnn.stats.RecordMatch(keywords.MatchSet{"gaza": {}})

	bbc := &fakeSource{stats: engine.NewRunStatistics()}
	bbc.stats.ArticlesStored.Add(3)

	m := NewMetrics(testLogger)
	m.Register("cnn", cnn)
	m.Register("bbc", bbc)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, text, "# TYPE newscrawler_pages_crawled_total counter")
	assert.Contains(t, text, `newscrawler_pages_crawled_total{site="cnn"} 12`)
	assert.Contains(t, text, `newscrawler_articles_found_total{site="cnn"} 2`)
	assert.Contains(t, text, `newscrawler_articles_stored_total{site="bbc"} 3`)
	assert.Contains(t, text, `newscrawler_queue_depth{site="cnn"} 7`)
	assert.Contains(t, text, `newscrawler_keyword_matches_total{site="cnn",keyword="gaza"} 2`)
	assert.Contains(t, text, `newscrawler_keyword_matches_total{site="cnn",keyword="hamas"} 1`)

	// Sites are emitted in sorted order.
	assert.Less(t,
		strings.Index(text, `newscrawler_pages_crawled_total{site="bbc"}`),
		strings.Index(text, `newscrawler_pages_crawled_total{site="cnn"}`))
}

func TestSnapshotSumsSites(t *testing.T) {
	a := &fakeSource{stats: engine.NewRunStatistics(), queue: 2}
	a.stats.RequestsSent.Add(5)
	b := &fakeSource{stats: engine.NewRunStatistics(), queue: 1}
	b.stats.RequestsSent.Add(4)

	m := NewMetrics(testLogger)
	m.Register("a", a)
	m.Register("b", b)

	snap := m.Snapshot()
	assert.Equal(t, int64(9), snap["requests_total"])
	assert.Equal(t, int64(3), snap["queue_depth"])
}

func TestServeStats(t *testing.T) {
	src := &fakeSource{stats: engine.NewRunStatistics(), queue: 4}
	src.stats.ArticlesStored.Add(9)
	src.stats.RecordMatch(keywords.MatchSet{"idf": {}})

	m := NewMetrics(testLogger)
	m.Register("nbc", src)

	rec := httptest.NewRecorder()
	m.ServeStats(rec, httptest.NewRequest("GET", "/api/stats", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Sites map[string]struct {
			State          string           `json:"state"`
			QueueDepth     int              `json:"queue_depth"`
			ArticlesStored int64            `json:"articles_stored"`
			KeywordMatches map[string]int64 `json:"keyword_matches"`
		} `json:"sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	nbc := body.Sites["nbc"]
	assert.Equal(t, "running", nbc.State)
	assert.Equal(t, 4, nbc.QueueDepth)
	assert.Equal(t, int64(9), nbc.ArticlesStored)
	assert.Equal(t, map[string]int64{"idf": 1}, nbc.KeywordMatches)
}
