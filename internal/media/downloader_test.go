package media

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/newscrawler/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testOptions(dir string) Options {
	return Options{
		Dir:          dir,
		MaxRetries:   5,
		RetryBackoff: 10 * time.Millisecond,
		Timeout:      5 * time.Second,
		UserAgent:    "test-agent",
	}
}

func TestDownloadRetriesOn429(t *testing.T) {
	var hits atomic.Int32
	var referer atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		referer.Store(r.Header.Get("Referer"))
		w.Write([]byte("jpegdata"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(testOptions(dir), testLogger)

	out, err := d.Download(context.Background(), srv.URL+"/img/photo.jpg", filepath.Join(dir, "cnn.com", "a1"), "cnn.com_1_1", "https://cnn.com/story")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "https://cnn.com/story", referer.Load())
	assert.Equal(t, "cnn.com_1_1_photo.jpg", filepath.Base(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))

	_, err = os.Stat(out + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")

	// Existing files are not fetched again.
	_, err = d.Download(context.Background(), srv.URL+"/img/photo.jpg", filepath.Join(dir, "cnn.com", "a1"), "cnn.com_1_1", "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int64(1), d.Stats()["skipped"])
}

func TestDownloadGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	opts := testOptions(t.TempDir())
	opts.MaxRetries = 2
	d := NewDownloader(opts, testLogger)

	_, err := d.Download(context.Background(), srv.URL+"/a.png", opts.Dir, "p", "")
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDownloadDoesNotRetryOtherErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := testOptions(t.TempDir())
	d := NewDownloader(opts, testLogger)
	_, err := d.Download(context.Background(), srv.URL+"/a.png", opts.Dir, "p", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	entries, _ := os.ReadDir(opts.Dir)
	assert.Empty(t, entries, "failed downloads leave nothing behind")
}

func TestDownloadRejectsOversizedChunkedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flushing before the end forces chunked encoding, so no Content-Length.
		w.Write([]byte("01234"))
		w.(http.Flusher).Flush()
		w.Write([]byte("56789"))
	}))
	defer srv.Close()

	opts := testOptions(t.TempDir())
	opts.MaxSize = 8
	d := NewDownloader(opts, testLogger)
	_, err := d.Download(context.Background(), srv.URL+"/big.jpg", opts.Dir, "big", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	entries, _ := os.ReadDir(opts.Dir)
	assert.Empty(t, entries, "truncated images are not kept")

	opts.MaxSize = 10
	d = NewDownloader(opts, testLogger)
	out, err := d.Download(context.Background(), srv.URL+"/big.jpg", opts.Dir, "big", "")
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestFileNameExtensions(t *testing.T) {
	d := NewDownloader(testOptions(""), testLogger)
	assert.Equal(t, "a.jpg", d.fileName("https://e.com/x/a.jpg?w=800"))
	assert.Equal(t, "b.WEBP", d.fileName("https://e.com/b.WEBP"))
	assert.Equal(t, "c.avif.jpg", d.fileName("https://e.com/c.avif"))
	assert.Equal(t, "my photo.png", d.fileName("https://e.com/my%20photo.png"))
	assert.Equal(t, "image.jpg", d.fileName("https://e.com/"))
}

func TestRunBuildsIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	articles := []*types.Article{
		{
			URL:          "https://www.cnn.com/2023/10/08/a",
			SourceDomain: "cnn.com",
			Images:       []string{srv.URL + "/1.jpg", srv.URL + "/missing.jpg"},
			Captions:     []string{"Smoke over Gaza", types.NoCaption},
		},
		{
			URL:          "https://nypost.com/b",
			SourceDomain: "nypost.com",
			Images:       []string{srv.URL + "/2.png"},
		},
		{URL: "https://nypost.com/c", SourceDomain: "nypost.com"},
	}

	opts := testOptions(t.TempDir())
	d := NewDownloader(opts, testLogger)
	recs, err := d.Run(context.Background(), articles)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, "cnn.com", first.SourceDomain)
	assert.Equal(t, ArticleID(articles[0].URL), first.ArticleID)
	require.NotNil(t, first.Caption)
	assert.Equal(t, "Smoke over Gaza", *first.Caption)
	require.NotNil(t, first.LocalImgPath)
	assert.FileExists(t, *first.LocalImgPath)
	assert.NotEmpty(t, first.ImageID)

	assert.Nil(t, recs[1].Caption, "placeholder caption is recorded as null")
	assert.Nil(t, recs[1].LocalImgPath, "failed image keeps a record with a null path")
	assert.Equal(t, int64(1), d.Stats()["failed"])

	assert.Equal(t, "nypost.com", recs[2].SourceDomain)
	assert.Nil(t, recs[2].Caption)

	index := filepath.Join(opts.Dir, "index.json")
	require.NoError(t, WriteIndex(index, recs))
	back, err := ReadIndex(index)
	require.NoError(t, err)
	assert.Equal(t, recs, back)
}

func TestArticleIDStable(t *testing.T) {
	assert.Equal(t, ArticleID("https://e.com/a"), ArticleID("https://e.com/a"))
	assert.NotEqual(t, ArticleID("https://e.com/a"), ArticleID("https://e.com/b"))
}
