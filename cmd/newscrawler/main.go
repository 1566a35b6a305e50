package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/keywords"
	"github.com/IshaanNene/newscrawler/internal/profile"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "newscrawler",
		Short: "Keyword-driven news crawler",
		Long: `newscrawler crawls a fixed set of news sites, keeps the articles whose text
matches the keyword taxonomy and writes one JSON array per site and day.

Offline utilities download article images, backfill missing titles and
captions, and repair mislabelled image files.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(sitesCmd())
	rootCmd.AddCommand(seedsCmd())
	rootCmd.AddCommand(downloadImagesCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(fixImagesCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration, applies flag overrides, validates it
// and creates the working directories.
func loadConfig(overrides func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if overrides != nil {
		overrides(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Paths.Ensure(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger creates the process logger. It always writes to stderr;
// per-site file output is handled by siteLogger.
func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// siteLogger returns the logger for one site run. With logging.output=file
// it writes to <logs_dir>/<source>_spider_<YYYYMMDD>.log; the returned
// close func must be called when the run ends.
func siteLogger(cfg *config.Config, base *slog.Logger, source string, runDate time.Time) (*slog.Logger, func(), error) {
	if strings.ToLower(cfg.Logging.Output) != "file" {
		return base, func() {}, nil
	}
	path := cfg.Paths.LogFile(source, runDate)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return newLogger(&cfg.Logging, f), func() { f.Close() }, nil
}

// loadProfiles returns the builtin profiles, overlaid with profiles_dir.
func loadProfiles(cfg *config.Config) (*profile.Registry, error) {
	reg, err := profile.LoadBuiltin()
	if err != nil {
		return nil, fmt.Errorf("load builtin profiles: %w", err)
	}
	if cfg.ProfilesDir != "" {
		if err := profile.LoadDir(reg, cfg.ProfilesDir); err != nil {
			return nil, fmt.Errorf("load profiles from %s: %w", cfg.ProfilesDir, err)
		}
	}
	return reg, nil
}

// loadMatcher compiles the configured taxonomy, or the builtin one when
// the config has none.
func loadMatcher(cfg *config.Config) (*keywords.Matcher, error) {
	taxonomy := keywords.DefaultTaxonomy()
	if len(cfg.Keywords) > 0 {
		taxonomy = keywords.Taxonomy(cfg.Keywords)
	}
	return keywords.Compile(taxonomy)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("newscrawler %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
