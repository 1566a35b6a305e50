package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func article(url, title string) *types.Article {
	a := &types.Article{
		Title:           title,
		Text:            "Body of " + title,
		URL:             url,
		SourceDomain:    "example.com",
		Authors:         []string{"Jane Doe"},
		Keywords:        []string{"gaza"},
		MatchedKeywords: []string{"gaza"},
	}
	a.SetDate("2023-10-08T10:00:00Z")
	return a
}

func TestArticlesFile(t *testing.T) {
	day := time.Date(2023, 10, 9, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("data", "cnn_articles_20231009.json"), ArticlesFile("data", "cnn", day, "json"))
}

func TestJSONStorageValidBetweenBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "bbc_articles_20231009.json")
	s, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)

	got, err := ReadArticles(path)
	require.NoError(t, err)
	assert.Empty(t, got, "fresh file holds an empty array")

	require.NoError(t, s.Store([]*types.Article{article("https://e.com/1", "one"), article("https://e.com/2", "two")}))
	got, err = ReadArticles(path)
	require.NoError(t, err, "file must parse before Close")
	require.Len(t, got, 2)

	require.NoError(t, s.Store(nil))
	require.NoError(t, s.Store([]*types.Article{article("https://e.com/3", "three")}))
	require.NoError(t, s.Close())

	got, err = ReadArticles(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{got[0].Title, got[1].Title, got[2].Title})
	assert.Equal(t, "2023-10-08T10:00:00Z", got[2].Date())

	assert.Error(t, s.Store([]*types.Article{article("https://e.com/4", "late")}))
}

func TestJSONStorageNullDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	s, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)

	a := article("https://e.com/x", "x")
	a.DatePublished = nil
	require.NoError(t, s.Store([]*types.Article{a}))
	require.NoError(t, s.Close())

	var raw []map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	v, ok := raw[0]["date_published"]
	assert.True(t, ok, "date_published is always present")
	assert.Nil(t, v)
	assert.NotContains(t, raw[0], "source", "internal fields stay out of the file")
}

func TestJSONLStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonl")
	s, err := NewJSONLStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store([]*types.Article{article("https://e.com/1", "one"), article("https://e.com/2", "two")}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 2, lines)
}

func TestCSVStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store([]*types.Article{article("https://e.com/1", "one")}))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeaders, rows[0])
	assert.Equal(t, "one", rows[1][0])
	assert.Equal(t, `["gaza"]`, rows[1][8])
}

type failingStorage struct{ closed bool }

func (f *failingStorage) Store([]*types.Article) error { return errors.New("disk full") }
func (f *failingStorage) Close() error                 { f.closed = true; return nil }
func (f *failingStorage) Name() string                 { return "failing" }

func TestMultiStorageFanOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	js, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)
	bad := &failingStorage{}

	m := NewMultiStorage([]Storage{bad, js}, testLogger)
	err = m.Store([]*types.Article{article("https://e.com/1", "one")})

	var sErr *types.StorageError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "failing", sErr.Backend)

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)

	got, err := ReadArticles(path)
	require.NoError(t, err)
	assert.Len(t, got, 1, "healthy backend still receives the batch")
}

func TestOpenFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Storage.Formats = []string{"json", "CSV"}
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	s, err := Open(cfg, "nbc", day, testLogger)
	require.NoError(t, err)
	multi, ok := s.(*MultiStorage)
	require.True(t, ok)
	assert.Len(t, multi.Backends(), 2)
	require.NoError(t, s.Close())

	assert.FileExists(t, filepath.Join(cfg.Paths.DataDir, "nbc_articles_20240102.json"))
	assert.FileExists(t, filepath.Join(cfg.Paths.DataDir, "nbc_articles_20240102.csv"))

	cfg.Storage.Formats = []string{"xml"}
	_, err = Open(cfg, "nbc", day, testLogger)
	var sErr *types.StorageError
	assert.ErrorAs(t, err, &sErr)
}

func TestWriteArticlesReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, WriteArticles(path, []*types.Article{article("https://e.com/1", "one")}))
	require.NoError(t, WriteArticles(path, []*types.Article{article("https://e.com/1", "one"), article("https://e.com/2", "two")}))

	got, err := ReadArticles(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
