package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of articles.
	Store(articles []*types.Article) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// ArticlesFile returns the output path for one site run:
// <dir>/<source>_articles_<YYYYMMDD>.<ext>.
func ArticlesFile(dir, source string, runDate time.Time, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_articles_%s.%s", source, runDate.Format("20060102"), ext))
}

// Open builds the storage for one site run from the configured formats.
// More than one backend is wrapped in a MultiStorage.
func Open(cfg *config.Config, source string, runDate time.Time, logger *slog.Logger) (Storage, error) {
	logger = logger.With("site", source)

	var backends []Storage
	closeAll := func() {
		for _, b := range backends {
			b.Close()
		}
	}

	for _, format := range cfg.Storage.Formats {
		format = strings.ToLower(strings.TrimSpace(format))
		s, err := NewFileStorage(format, ArticlesFile(cfg.Paths.DataDir, source, runDate, format), logger)
		if err != nil {
			closeAll()
			return nil, &types.StorageError{Backend: format, Err: err}
		}
		backends = append(backends, s)
	}

	if m := cfg.Storage.Mongo; m.Enabled {
		s, err := NewMongoStorage(m.URI, m.Database, m.Collection, logger)
		if err != nil {
			closeAll()
			return nil, &types.StorageError{Backend: "mongodb", Err: err}
		}
		backends = append(backends, s)
	}

	switch len(backends) {
	case 0:
		return nil, &types.StorageError{Backend: "none", Err: fmt.Errorf("no storage format configured")}
	case 1:
		return backends[0], nil
	default:
		return NewMultiStorage(backends, logger), nil
	}
}
