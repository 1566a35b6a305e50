// Package backfill re-fetches stored articles to fill fields the crawl
// left empty: a missing title or publish date and image captions.
package backfill

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/newscrawler/internal/media"
	"github.com/IshaanNene/newscrawler/internal/parser"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// Fetcher retrieves a page. *fetcher.HTTPFetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)
}

// Options configures a Backfiller.
type Options struct {
	Workers int
	// MaxRetries is the number of attempts per page; only HTTP 429 is retried.
	MaxRetries int
	// RetryBackoff grows linearly: RetryBackoff*(attempt+1).
	RetryBackoff time.Duration
	// Interval is the minimum gap between two page fetches across all workers.
	Interval time.Duration
}

// Backfiller fills titles and captions from the live pages.
type Backfiller struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	titles   atomic.Int64
	dates    atomic.Int64
	captions atomic.Int64
	failed   atomic.Int64
}

// New creates a Backfiller.
func New(f Fetcher, opts Options, logger *slog.Logger) *Backfiller {
	if opts.Workers < 1 {
		opts.Workers = 5
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	return &Backfiller{
		fetcher: f,
		opts:    opts,
		logger:  logger.With("component", "backfill"),
	}
}

// Articles updates articles in place. Pages that cannot be fetched are
// logged and leave their article unchanged; only cancellation is returned.
func (b *Backfiller) Articles(ctx context.Context, articles []*types.Article) error {
	limiter := b.limiter()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	for _, a := range articles {
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			doc, err := b.document(ctx, a.URL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.failed.Add(1)
				b.logger.Error("backfill failed", "url", a.URL, "error", err)
				return nil
			}
			b.fill(a, doc)
			return nil
		})
	}
	err := g.Wait()

	b.logger.Info("backfill finished",
		"articles", len(articles),
		"titles_fixed", b.titles.Load(),
		"dates_fixed", b.dates.Load(),
		"captions_fixed", b.captions.Load(),
		"failed", b.failed.Load(),
	)
	return err
}

// ImageIndex refreshes the captions of image index records from each
// article's inline image blocks. Records whose article is unknown or whose
// image is not found keep their caption.
func (b *Backfiller) ImageIndex(ctx context.Context, recs []media.ImageRecord, articles []*types.Article) error {
	urls := make(map[string]string, len(articles))
	for _, a := range articles {
		urls[media.ArticleID(a.URL)] = a.URL
	}

	// Group record positions by article so each page is fetched once.
	byArticle := make(map[string][]int)
	var order []string
	for i, rec := range recs {
		if _, ok := byArticle[rec.ArticleID]; !ok {
			order = append(order, rec.ArticleID)
		}
		byArticle[rec.ArticleID] = append(byArticle[rec.ArticleID], i)
	}

	limiter := b.limiter()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	for _, id := range order {
		pageURL, ok := urls[id]
		if !ok {
			b.logger.Warn("no article url for image records", "article_id", id)
			continue
		}
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			doc, err := b.document(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.failed.Add(1)
				b.logger.Error("backfill failed", "url", pageURL, "error", err)
				return nil
			}
			captions := InlineCaptions(doc)
			for _, i := range byArticle[id] {
				if c, ok := captions[baseURL(recs[i].ImageURL)]; ok && c != "" {
					recs[i].Caption = &c
					b.captions.Add(1)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Stats returns backfill counters.
func (b *Backfiller) Stats() map[string]int64 {
	return map[string]int64{
		"titles_fixed":   b.titles.Load(),
		"dates_fixed":    b.dates.Load(),
		"captions_fixed": b.captions.Load(),
		"failed":         b.failed.Load(),
	}
}

func (b *Backfiller) fill(a *types.Article, doc *goquery.Document) {
	var meta parser.ArticleMetadata
	if strings.TrimSpace(a.Title) == "" || a.DatePublished == nil {
		meta = parser.ExtractMetadata(doc)
	}

	if strings.TrimSpace(a.Title) == "" {
		title := Title(doc)
		if title == "" {
			title = meta.Headline
		}
		if title != "" {
			a.Title = title
			b.titles.Add(1)
			b.logger.Info("title fixed", "url", a.URL, "title", title)
		} else {
			b.logger.Warn("no h1 to fix title", "url", a.URL)
		}
	}

	if a.DatePublished == nil {
		if d := meta.DatePublished; d != "" {
			a.SetDate(d)
			b.dates.Add(1)
		}
	}

	if len(a.Images) == 0 {
		return
	}
	inline := InlineCaptions(doc)
	captions := make([]string, len(a.Images))
	found := 0
	for i, src := range a.Images {
		c := CaptionForImage(doc, src)
		if c == "" {
			c = inline[baseURL(src)]
		}
		if c == "" {
			c = types.NoCaption
		} else {
			found++
		}
		captions[i] = c
	}
	if found > 0 {
		a.Captions = captions
		b.captions.Add(int64(found))
	}
}

// document fetches pageURL, retrying HTTP 429 with a linear back-off.
func (b *Backfiller) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := types.NewRequest(pageURL, types.PageArticle)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < b.opts.MaxRetries; attempt++ {
		resp, err := b.fetcher.Fetch(ctx, req)
		if err == nil {
			return resp.Document()
		}
		lastErr = err

		var fe *types.FetchError
		if !errors.As(err, &fe) || fe.StatusCode != http.StatusTooManyRequests {
			return nil, err
		}
		backoff := b.opts.RetryBackoff * time.Duration(attempt+1)
		b.logger.Warn("rate limited, backing off", "url", pageURL, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

func (b *Backfiller) limiter() *rate.Limiter {
	if b.opts.Interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(b.opts.Interval), 1)
}

// Title returns the text of the first h1.
func Title(doc *goquery.Document) string {
	return text(doc.Find("h1").First())
}

// CaptionForImage finds the caption of the img whose src is src: the
// figcaption of its enclosing figure, else a following div.caption sibling.
func CaptionForImage(doc *goquery.Document, src string) string {
	var img *goquery.Selection
	base := baseURL(src)
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("src")
		if v == src || baseURL(v) == base {
			img = s
			return false
		}
		return true
	})
	if img == nil {
		return ""
	}
	if c := text(img.Closest("figure").Find("figcaption").First()); c != "" {
		return c
	}
	return text(img.NextAllFiltered("div.caption").First())
}

// InlineCaptions maps image URLs (without query) to captions for pages
// built from div.image-ct.inline blocks.
func InlineCaptions(doc *goquery.Document) map[string]string {
	out := make(map[string]string)
	doc.Find("div.image-ct.inline").Each(func(_ int, block *goquery.Selection) {
		img := block.Find("img[src]").First()
		capDiv := block.Find("div.info div.caption").First()
		if img.Length() == 0 || capDiv.Length() == 0 {
			return
		}
		src, _ := img.Attr("src")
		var parts []string
		capDiv.Find("span").Each(func(_ int, span *goquery.Selection) {
			if t := text(span); t != "" {
				parts = append(parts, t)
			}
		})
		out[baseURL(src)] = strings.Join(parts, " ")
	})
	return out
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func baseURL(u string) string {
	base, _, _ := strings.Cut(u, "?")
	return base
}
