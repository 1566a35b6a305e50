package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// FileFetcher serves file:// URLs from the local disk. Some sites publish
// archive sitemaps that are crawled from saved copies.
type FileFetcher struct {
	maxBodySize int64
	logger      *slog.Logger
}

// NewFileFetcher creates a FileFetcher. maxBodySize <= 0 means unlimited.
func NewFileFetcher(maxBodySize int64, logger *slog.Logger) *FileFetcher {
	return &FileFetcher{
		maxBodySize: maxBodySize,
		logger:      logger.With("component", "file_fetcher"),
	}
}

// Fetch reads the file named by the request URL.
func (f *FileFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	path, err := FilePath(req.URL)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	start := time.Now()
	file, err := os.Open(path)
	if err != nil {
		status := 0
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: status, Err: err}
	}
	defer file.Close()

	var r io.Reader = file
	if f.maxBodySize > 0 {
		r = io.LimitReader(r, f.maxBodySize)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	resp := types.NewStaticResponse(req, http.StatusOK, body, req.URLString(), time.Since(start))
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		resp.ContentType = ct
		resp.Headers.Set("Content-Type", ct)
	}

	f.logger.Debug("file read", "path", path, "size", len(body))
	return resp, nil
}

// Close is a no-op.
func (f *FileFetcher) Close() error { return nil }

// Type returns the fetcher type identifier.
func (f *FileFetcher) Type() string { return "file" }

// FilePath returns the local path of a file:// URL.
func FilePath(u *url.URL) (string, error) {
	if u == nil || u.Scheme != "file" {
		return "", fmt.Errorf("not a file URL: %v", u)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("remote file host %q is not supported", u.Host)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return "", fmt.Errorf("file URL %q has no path", u.String())
	}
	return filepath.FromSlash(path), nil
}
