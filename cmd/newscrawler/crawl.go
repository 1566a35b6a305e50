package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/engine"
	"github.com/IshaanNene/newscrawler/internal/fetcher"
	"github.com/IshaanNene/newscrawler/internal/keywords"
	"github.com/IshaanNene/newscrawler/internal/observability"
	"github.com/IshaanNene/newscrawler/internal/pipeline"
	"github.com/IshaanNene/newscrawler/internal/profile"
	"github.com/IshaanNene/newscrawler/internal/storage"
)

type crawlOptions struct {
	parallel    int
	concurrency int
	delay       time.Duration
	maxRequests int
	formats     []string
	output      string
	metrics     bool
}

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl [site...]",
		Short: "Crawl the named sites, or every site when none is given",
		Long: `Crawl runs one independent pipeline per site profile. Each run writes
<data_dir>/<source>_articles_<YYYYMMDD>.json and logs its statistics when it ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "sites crawled at once (0 = all)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "n", 0, "workers per site (0 = config)")
	cmd.Flags().DurationVar(&opts.delay, "delay", -1, "politeness delay per domain (-1 = config)")
	cmd.Flags().IntVarP(&opts.maxRequests, "max-requests", "m", 0, "maximum requests per site (0 = unlimited)")
	cmd.Flags().StringSliceVarP(&opts.formats, "format", "f", nil, "output formats: json, jsonl, csv")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (default paths.data_dir)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "serve Prometheus metrics while crawling")
	return cmd
}

func (o *crawlOptions) apply(cfg *config.Config) {
	if o.concurrency > 0 {
		cfg.Engine.Concurrency = o.concurrency
	}
	if o.delay >= 0 {
		cfg.Engine.PolitenessDelay = o.delay
	}
	if o.maxRequests > 0 {
		cfg.Engine.MaxRequests = o.maxRequests
	}
	if len(o.formats) > 0 {
		cfg.Storage.Formats = o.formats
	}
	if o.output != "" {
		cfg.Paths.DataDir = o.output
	}
	if o.metrics {
		cfg.Metrics.Enabled = true
	}
}

func runCrawl(ctx context.Context, opts *crawlOptions, args []string) error {
	cfg, err := loadConfig(opts.apply)
	if err != nil {
		return err
	}
	logger := setupLogger(&cfg.Logging)

	reg, err := loadProfiles(cfg)
	if err != nil {
		return err
	}
	matcher, err := loadMatcher(cfg)
	if err != nil {
		return err
	}

	profiles, err := selectProfiles(reg, args)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	runDate := time.Now()
	logger.Info("starting crawl",
		"sites", len(profiles),
		"keywords", matcher.Len(),
		"concurrency", cfg.Engine.Concurrency,
		"output", cfg.Paths.DataDir,
		"formats", strings.Join(cfg.Storage.Formats, ","),
	)

	// A failing site is logged and does not stop the others.
	var g errgroup.Group
	if opts.parallel > 0 {
		g.SetLimit(opts.parallel)
	}
	failed := make([]bool, len(profiles))
	for i, p := range profiles {
		g.Go(func() error {
			if err := crawlSite(ctx, cfg, p, matcher, metrics, runDate, logger); err != nil {
				logger.Error("site run failed", "site", p.Name, "error", err)
				failed[i] = true
			}
			return nil
		})
	}
	g.Wait()

	var names []string
	for i, f := range failed {
		if f {
			names = append(names, profiles[i].Name)
		}
	}
	if len(names) > 0 {
		return fmt.Errorf("%d of %d sites failed: %s", len(names), len(profiles), strings.Join(names, ", "))
	}
	return nil
}

// crawlSite wires one engine for p and runs it to completion.
func crawlSite(ctx context.Context, cfg *config.Config, p *profile.Profile, m *keywords.Matcher,
	metrics *observability.Metrics, runDate time.Time, base *slog.Logger) error {

	logger, closeLog, err := siteLogger(cfg, base, p.Source, runDate)
	if err != nil {
		return err
	}
	defer closeLog()

	eng := engine.New(cfg, p, m, logger)

	fetchers, err := fetcher.ForProfile(cfg, p, logger)
	if err != nil {
		return fmt.Errorf("create fetchers: %w", err)
	}
	for _, f := range fetchers {
		eng.SetFetcher(f.Type(), f)
	}

	eng.SetPipeline(pipeline.Default(logger))

	store, err := storage.Open(cfg, p.Source, runDate, logger)
	if err != nil {
		for _, f := range fetchers {
			f.Close()
		}
		return err
	}
	eng.SetStorage(store)

	if metrics != nil {
		metrics.Register(p.Name, eng)
	}

	reason, err := eng.Run(ctx)
	if err != nil {
		// The engine never started, so nothing else closes these.
		store.Close()
		for _, f := range fetchers {
			f.Close()
		}
		return err
	}
	snap := eng.Stats().Snapshot()
	base.Info("site finished",
		"site", p.Name,
		"reason", reason,
		"pages_crawled", snap.PagesCrawled,
		"articles_found", snap.ArticlesFound,
		"articles_stored", snap.ArticlesStored,
		"output", storage.ArticlesFile(cfg.Paths.DataDir, p.Source, runDate, "json"),
	)
	return nil
}

// selectProfiles resolves site names; no names selects every profile.
func selectProfiles(reg *profile.Registry, names []string) ([]*profile.Profile, error) {
	if len(names) == 0 || (len(names) == 1 && names[0] == "all") {
		names = reg.Names()
	}
	out := make([]*profile.Profile, 0, len(names))
	for _, n := range names {
		p, err := reg.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// sitesCmd creates the "sites" subcommand.
func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the available site profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			reg, err := loadProfiles(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSOURCE\tDOMAIN\tSEEDS\tFETCHER")
			for _, name := range reg.Names() {
				p, _ := reg.Get(name)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Source, p.Domain, p.SeedType, p.Fetcher)
			}
			return w.Flush()
		},
	}
}

// seedsCmd creates the "seeds" subcommand.
func seedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seeds <site>",
		Short: "Print the seed URLs generated for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			reg, err := loadProfiles(cfg)
			if err != nil {
				return err
			}
			p, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			urls, err := p.SeedURLs()
			if err != nil {
				return err
			}
			for _, u := range urls {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}
