package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/profile"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// Fetcher is the interface for all request fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// ForProfile builds the fetchers one site run needs: http and file always,
// plus a headless browser when the profile asks for one.
func ForProfile(cfg *config.Config, p *profile.Profile, logger *slog.Logger) ([]Fetcher, error) {
	httpF, err := NewHTTPFetcher(cfg, p, logger)
	if err != nil {
		return nil, err
	}
	fetchers := []Fetcher{httpF, NewFileFetcher(cfg.Fetcher.MaxBodySize, logger)}

	if p.Fetcher == profile.FetcherBrowser || cfg.Fetcher.Type == "browser" {
		bf, err := NewBrowserFetcher(cfg, p, logger, WithMaxPages(p.Concurrency))
		if err != nil {
			httpF.Close()
			return nil, fmt.Errorf("site %s: %w", p.Name, err)
		}
		fetchers = append(fetchers, bf)
	}
	return fetchers, nil
}
