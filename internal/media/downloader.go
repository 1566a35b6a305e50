package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// ImageRecord is one entry of the image index.
type ImageRecord struct {
	ImageID      string  `json:"image_id"`
	ArticleID    string  `json:"article_id"`
	SourceDomain string  `json:"source_domain"`
	ImageURL     string  `json:"image_url"`
	Caption      *string `json:"caption"`
	LocalImgPath *string `json:"local_img_path"`
}

// Options configures a Downloader.
type Options struct {
	// Dir is the root image directory; files land in Dir/<source>/<article_id>/.
	Dir string
	// MaxRetries bounds retries after HTTP 429. Other failures are not retried.
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
	// MaxSize caps a single download in bytes; 0 means unlimited.
	MaxSize int64
	// Extensions are the file suffixes kept as-is; anything else gets ".jpg" appended.
	Extensions []string
	UserAgent  string
	// Interval is the minimum gap between two downloads of one source.
	Interval time.Duration
	// LimitPerSource stops each source after this many articles; 0 means all.
	LimitPerSource int
	// MaxSources bounds how many sources download at once; 0 means all.
	MaxSources int
}

// Downloader fetches article images, one worker per source domain.
type Downloader struct {
	opts       Options
	client     *http.Client
	logger     *slog.Logger
	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

// NewDownloader creates a new image downloader.
func NewDownloader(opts Options, logger *slog.Logger) *Downloader {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	}
	return &Downloader{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With("component", "media_downloader"),
	}
}

// Run downloads the images of every article and returns the index records,
// ordered by source then article. A failed image still yields a record
// with a null local path.
func (d *Downloader) Run(ctx context.Context, articles []*types.Article) ([]ImageRecord, error) {
	bySource := GroupBySource(articles)
	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	d.logger.Info("image download starting", "sources", len(sources), "articles", len(articles))

	results := make([][]ImageRecord, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	if d.opts.MaxSources > 0 {
		g.SetLimit(d.opts.MaxSources)
	}
	for i, src := range sources {
		g.Go(func() error {
			recs, err := d.processSource(ctx, src, bySource[src])
			results[i] = recs
			return err
		})
	}
	err := g.Wait()

	var all []ImageRecord
	for _, recs := range results {
		all = append(all, recs...)
	}
	d.logger.Info("image download finished",
		"records", len(all),
		"downloaded", d.downloaded.Load(),
		"skipped", d.skipped.Load(),
		"failed", d.failed.Load(),
	)
	return all, err
}

func (d *Downloader) processSource(ctx context.Context, src string, articles []*types.Article) ([]ImageRecord, error) {
	logger := d.logger.With("source", src)
	logger.Info("source starting", "articles", len(articles))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if d.opts.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(d.opts.Interval), 1)
	}

	var recs []ImageRecord
	for n, a := range articles {
		if d.opts.LimitPerSource > 0 && n >= d.opts.LimitPerSource {
			break
		}
		articleID := ArticleID(a.URL)
		dest := filepath.Join(d.opts.Dir, safeName(src), articleID)
		referer := refererFor(a.URL)

		for idx, imgURL := range a.Images {
			if err := limiter.Wait(ctx); err != nil {
				return recs, err
			}
			prefix := fmt.Sprintf("%s_%d_%d", safeName(src), n+1, idx+1)

			rec := ImageRecord{
				ImageID:      uuid.NewString(),
				ArticleID:    articleID,
				SourceDomain: src,
				ImageURL:     imgURL,
				Caption:      captionAt(a, idx),
			}
			local, err := d.Download(ctx, imgURL, dest, prefix, referer)
			if err != nil {
				if ctx.Err() != nil {
					return recs, ctx.Err()
				}
				d.failed.Add(1)
				logger.Warn("image download failed", "url", imgURL, "error", err)
			} else {
				rec.LocalImgPath = &local
			}
			recs = append(recs, rec)
		}
	}

	logger.Info("source finished", "images", len(recs))
	return recs, nil
}

// Download saves one image under dest and returns its local path. An
// existing file is reused. HTTP 429 is retried after RetryBackoff up to
// MaxRetries times; every other failure is final.
func (d *Downloader) Download(ctx context.Context, imgURL, dest, prefix, referer string) (string, error) {
	out := filepath.Join(dest, prefix+"_"+d.fileName(imgURL))
	if _, err := os.Stat(out); err == nil {
		d.skipped.Add(1)
		return out, nil
	}

	for attempt := 0; ; attempt++ {
		retry, err := d.fetchTo(ctx, imgURL, out, referer)
		if err == nil {
			d.downloaded.Add(1)
			d.logger.Debug("image saved", "url", imgURL, "path", out)
			return out, nil
		}
		if !retry || attempt >= d.opts.MaxRetries {
			return "", err
		}
		d.logger.Warn("rate limited, backing off", "url", imgURL, "backoff", d.opts.RetryBackoff, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.opts.RetryBackoff):
		}
	}
}

// fetchTo downloads imgURL into out via a temporary file. The bool result
// reports whether the failure was a 429.
func (d *Downloader) fetchTo(ctx context.Context, imgURL, out, referer string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	if d.opts.UserAgent != "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("download %s: %w", imgURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, fmt.Errorf("download %s: status %d", imgURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("download %s: status %d", imgURL, resp.StatusCode)
	}
	if d.opts.MaxSize > 0 && resp.ContentLength > d.opts.MaxSize {
		return false, fmt.Errorf("file too large: %d bytes (max %d)", resp.ContentLength, d.opts.MaxSize)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false, fmt.Errorf("create image dir: %w", err)
	}
	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("create file: %w", err)
	}

	var reader io.Reader = resp.Body
	if d.opts.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, d.opts.MaxSize+1)
	}
	n, copyErr := io.Copy(f, reader)
	if copyErr == nil && d.opts.MaxSize > 0 && n > d.opts.MaxSize {
		copyErr = fmt.Errorf("file too large: more than %d bytes", d.opts.MaxSize)
	}
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		if copyErr == nil {
			copyErr = closeErr
		}
		return false, fmt.Errorf("write file: %w", copyErr)
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("rename file: %w", err)
	}
	return false, nil
}

// Stats returns download statistics.
func (d *Downloader) Stats() map[string]int64 {
	return map[string]int64{
		"downloaded": d.downloaded.Load(),
		"skipped":    d.skipped.Load(),
		"failed":     d.failed.Load(),
	}
}

// fileName is the URL's base name, with ".jpg" appended when its extension
// is not an allowed image suffix.
func (d *Downloader) fileName(imgURL string) string {
	name := "image"
	if u, err := url.Parse(imgURL); err == nil {
		if base, err := url.PathUnescape(path.Base(u.Path)); err == nil && base != "" && base != "." && base != "/" {
			name = safeName(base)
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range d.opts.Extensions {
		if ext == strings.ToLower(allowed) {
			return name
		}
	}
	return name + ".jpg"
}

// GroupBySource buckets articles by source_domain, keeping input order
// within each bucket.
func GroupBySource(articles []*types.Article) map[string][]*types.Article {
	out := make(map[string][]*types.Article)
	for _, a := range articles {
		src := a.SourceDomain
		if src == "" {
			src = "UNKNOWN"
		}
		out[src] = append(out[src], a)
	}
	return out
}

// ArticleID derives a stable identifier from an article URL.
func ArticleID(articleURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(articleURL)).String()
}

// WriteIndex writes the image index as a JSON array.
func WriteIndex(path string, recs []ImageRecord) error {
	if recs == nil {
		recs = []ImageRecord{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadIndex loads an image index written by WriteIndex.
func ReadIndex(path string) ([]ImageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var recs []ImageRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	return recs, nil
}

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")

func safeName(s string) string {
	return nameReplacer.Replace(s)
}

// captionAt returns the caption of image idx when the record carries one
// caption per image.
func captionAt(a *types.Article, idx int) *string {
	if len(a.Captions) != len(a.Images) || idx >= len(a.Captions) {
		return nil
	}
	c := a.Captions[idx]
	if c == "" || c == types.NoCaption {
		return nil
	}
	return &c
}

// refererFor is the article URL without query or fragment.
func refererFor(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + u.Path
}
