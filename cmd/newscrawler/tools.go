package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/newscrawler/internal/backfill"
	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/fetcher"
	"github.com/IshaanNene/newscrawler/internal/imagefix"
	"github.com/IshaanNene/newscrawler/internal/media"
	"github.com/IshaanNene/newscrawler/internal/storage"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// readArticleFiles loads and concatenates several article files.
func readArticleFiles(paths []string) ([]*types.Article, error) {
	var all []*types.Article
	for _, p := range paths {
		articles, err := storage.ReadArticles(p)
		if err != nil {
			return nil, err
		}
		all = append(all, articles...)
	}
	return all, nil
}

// downloadImagesCmd creates the "download-images" subcommand.
func downloadImagesCmd() *cobra.Command {
	var (
		limit    int
		sources  int
		interval time.Duration
		index    string
	)
	cmd := &cobra.Command{
		Use:   "download-images <articles.json>...",
		Short: "Download the images of crawled articles and write an image index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			logger := setupLogger(&cfg.Logging)

			articles, err := readArticleFiles(args)
			if err != nil {
				return err
			}

			opts := media.Options{
				Dir:            cfg.Paths.ImagesDir,
				MaxRetries:     cfg.Media.MaxRetries,
				RetryBackoff:   cfg.Media.RetryBackoff,
				Timeout:        cfg.Media.Timeout,
				MaxSize:        cfg.Media.MaxSizeMB * 1024 * 1024,
				Extensions:     cfg.Media.Extensions,
				UserAgent:      userAgent(cfg),
				LimitPerSource: limit,
				MaxSources:     sources,
				Interval:       interval,
			}

			d := media.NewDownloader(opts, logger)
			recs, runErr := d.Run(cmd.Context(), articles)

			if index == "" {
				index = filepath.Join(cfg.Paths.ImagesDir, cfg.Media.IndexFile)
			}
			if err := media.WriteIndex(index, recs); err != nil {
				return err
			}
			stats := d.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "%d images indexed in %s (%d downloaded, %d skipped, %d failed)\n",
				len(recs), index, stats["downloaded"], stats["skipped"], stats["failed"])
			return runErr
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "articles per source (0 = all)")
	cmd.Flags().IntVar(&sources, "sources", 0, "sources downloading at once (0 = all)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "minimum gap between downloads of one source")
	cmd.Flags().StringVar(&index, "index", "", "index path (default <images_dir>/<media.index_file>)")
	return cmd
}

// backfillCmd creates the "backfill" subcommand.
func backfillCmd() *cobra.Command {
	var index string
	cmd := &cobra.Command{
		Use:   "backfill <articles.json>...",
		Short: "Re-fetch article pages to fill missing titles and captions",
		Long: `Backfill re-fetches every article URL, fills an empty title from the page's
first h1 and rebuilds captions from figure captions. Each file is rewritten
in place. With --index the captions of an image index are refreshed too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(c *config.Config) {
				c.Engine.RequestTimeout = c.Backfill.Timeout
			})
			if err != nil {
				return err
			}
			logger := setupLogger(&cfg.Logging)

			f, err := fetcher.NewHTTPFetcher(cfg, nil, logger)
			if err != nil {
				return fmt.Errorf("create fetcher: %w", err)
			}
			defer f.Close()

			b := backfill.New(f, backfill.Options{
				Workers:      cfg.Backfill.Workers,
				MaxRetries:   cfg.Backfill.MaxRetries,
				RetryBackoff: cfg.Backfill.RetryBackoff,
			}, logger)

			var all []*types.Article
			for _, path := range args {
				articles, err := storage.ReadArticles(path)
				if err != nil {
					return err
				}
				if err := b.Articles(cmd.Context(), articles); err != nil {
					return err
				}
				if err := storage.WriteArticles(path, articles); err != nil {
					return err
				}
				logger.Info("file backfilled", "path", path, "articles", len(articles))
				all = append(all, articles...)
			}

			if index != "" {
				recs, err := media.ReadIndex(index)
				if err != nil {
					return err
				}
				if err := b.ImageIndex(cmd.Context(), recs, all); err != nil {
					return err
				}
				if err := media.WriteIndex(index, recs); err != nil {
					return err
				}
			}

			stats := b.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "titles fixed: %d, captions fixed: %d, failed: %d\n",
				stats["titles_fixed"], stats["captions_fixed"], stats["failed"])
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "image index whose captions are refreshed")
	return cmd
}

// fixImagesCmd creates the "fix-images" subcommand.
func fixImagesCmd() *cobra.Command {
	var (
		from   string
		failed string
	)
	cmd := &cobra.Command{
		Use:   "fix-images",
		Short: "Re-encode downloaded images whose content does not match their extension",
		Long: `fix-images checks every file under images_dir, or the paths listed in
--from, and rewrites readable images in the format their extension promises.
Files that cannot be fixed are written to --failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			logger := setupLogger(&cfg.Logging)

			var paths []string
			if from != "" {
				var skipped int
				paths, skipped, err = imagefix.ReadPathList(from)
				if err != nil {
					return err
				}
				if skipped > 0 {
					logger.Warn("entries without a path skipped", "count", skipped)
				}
			} else {
				paths, err = imagefix.Unreadable(cfg.Paths.ImagesDir)
				if err != nil {
					return err
				}
			}

			fixed, stillFailed := imagefix.New(logger).FixAll(paths)
			if failed == "" {
				failed = filepath.Join(cfg.Paths.DataDir, "still_failed_images.json")
			}
			if err := imagefix.WritePathList(failed, stillFailed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, fixed %d, still failing %d (listed in %s)\n",
				len(paths), fixed, len(stillFailed), failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "JSON list of {\"path\": ...} entries to repair")
	cmd.Flags().StringVar(&failed, "failed", "", "where to write files that could not be fixed")
	return cmd
}

func userAgent(cfg *config.Config) string {
	if len(cfg.Engine.UserAgents) > 0 {
		return cfg.Engine.UserAgents[0]
	}
	return config.DefaultUserAgent
}
