package backfill

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/fetcher"
	"github.com/IshaanNene/newscrawler/internal/media"
	"github.com/IshaanNene/newscrawler/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const bbcPage = `<html><body>
<h1> Gaza aid  convoy reaches Rafah </h1>
<figure><img src="https://ichef.bbci.co.uk/a.jpg"><figcaption>Trucks at the <b>Rafah</b> crossing</figcaption></figure>
<div><img src="https://ichef.bbci.co.uk/b.jpg?w=640"><div class="caption">Crowds wait</div></div>
<img src="https://ichef.bbci.co.uk/c.jpg">
</body></html>`

const foxPage = `<html><body>
<div class="image-ct inline">
  <img src="https://a57.foxnews.com/x.jpg?ve=1&tl=1">
  <div class="info"><div class="caption"><span>Smoke rises over Gaza.</span> <span>(Reuters)</span></div></div>
</div>
<div class="image-ct inline"><img src="https://a57.foxnews.com/y.jpg"></div>
</body></html>`

func newFetcher(t *testing.T) *fetcher.HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Engine.RequestTimeout = 5 * time.Second
	f, err := fetcher.NewHTTPFetcher(cfg, nil, testLogger)
	require.NoError(t, err)
	return f
}

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestTitleAndCaptions(t *testing.T) {
	d := doc(t, bbcPage)
	assert.Equal(t, "Gaza aid convoy reaches Rafah", Title(d))
	assert.Equal(t, "Trucks at the Rafah crossing", CaptionForImage(d, "https://ichef.bbci.co.uk/a.jpg"))
	assert.Equal(t, "Crowds wait", CaptionForImage(d, "https://ichef.bbci.co.uk/b.jpg"))
	assert.Equal(t, "", CaptionForImage(d, "https://ichef.bbci.co.uk/c.jpg"))
	assert.Equal(t, "", CaptionForImage(d, "https://elsewhere/none.jpg"))
}

func TestInlineCaptions(t *testing.T) {
	got := InlineCaptions(doc(t, foxPage))
	assert.Equal(t, map[string]string{
		"https://a57.foxnews.com/x.jpg": "Smoke rises over Gaza. (Reuters)",
	}, got)
}

func TestArticlesFillsTitleAndCaptions(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bbc":
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(bbcPage))
		case "/kept":
			w.Write([]byte(bbcPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	missing := &types.Article{
		URL: srv.URL + "/bbc",
		Images: []string{
			"https://ichef.bbci.co.uk/a.jpg",
			"https://ichef.bbci.co.uk/b.jpg?w=640",
			"https://ichef.bbci.co.uk/c.jpg",
		},
	}
	titled := &types.Article{URL: srv.URL + "/kept", Title: "Original title"}
	broken := &types.Article{URL: srv.URL + "/gone", Title: ""}

	b := New(newFetcher(t), Options{Workers: 2, MaxRetries: 3, RetryBackoff: 10 * time.Millisecond}, testLogger)
	require.NoError(t, b.Articles(context.Background(), []*types.Article{missing, titled, broken}))

	assert.Equal(t, int32(2), hits.Load(), "429 is retried")
	assert.Equal(t, "Gaza aid convoy reaches Rafah", missing.Title)
	assert.Equal(t, []string{"Trucks at the Rafah crossing", "Crowds wait", types.NoCaption}, missing.Captions)

	assert.Equal(t, "Original title", titled.Title, "existing title is kept")
	assert.Empty(t, broken.Title)

	stats := b.Stats()
	assert.Equal(t, int64(1), stats["titles_fixed"])
	assert.Equal(t, int64(2), stats["captions_fixed"])
	assert.Equal(t, int64(1), stats["failed"])
}

func TestImageIndexCaptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(foxPage))
	}))
	defer srv.Close()

	article := &types.Article{URL: srv.URL + "/fox/story", SourceDomain: "foxnews.com"}
	id := media.ArticleID(article.URL)
	old := "old caption"
	recs := []media.ImageRecord{
		{ArticleID: id, ImageURL: "https://a57.foxnews.com/x.jpg?ve=1", Caption: &old},
		{ArticleID: id, ImageURL: "https://a57.foxnews.com/y.jpg", Caption: &old},
		{ArticleID: "unknown", ImageURL: "https://a57.foxnews.com/z.jpg"},
	}

	b := New(newFetcher(t), Options{Workers: 1}, testLogger)
	require.NoError(t, b.ImageIndex(context.Background(), recs, []*types.Article{article}))

	require.NotNil(t, recs[0].Caption)
	assert.Equal(t, "Smoke rises over Gaza. (Reuters)", *recs[0].Caption)
	assert.Equal(t, "old caption", *recs[1].Caption)
	assert.Nil(t, recs[2].Caption)
}

func TestArticlesFallsBackToPageMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
<meta property="og:title" content="Hostages released">
<script type="application/ld+json">{"@type":"NewsArticle","datePublished":"2023-11-24T16:00:00Z"}</script>
</head><body><p>no heading</p></body></html>`))
	}))
	defer srv.Close()

	a := &types.Article{URL: srv.URL + "/story"}
	b := New(newFetcher(t), Options{Workers: 1}, testLogger)
	require.NoError(t, b.Articles(context.Background(), []*types.Article{a}))

	assert.Equal(t, "Hostages released", a.Title)
	assert.Equal(t, "2023-11-24T16:00:00Z", a.Date())
	assert.Equal(t, int64(1), b.Stats()["dates_fixed"])
}
