package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Paths.DataDir == "" {
		return &types.ConfigError{Source: "config", Field: "paths.data_dir", Err: fmt.Errorf("must not be empty")}
	}

	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 1000 {
		return fmt.Errorf("engine.concurrency must be <= 1000, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.ConcurrencyPerDomain < 1 {
		return fmt.Errorf("engine.concurrency_per_domain must be >= 1, got %d", cfg.Engine.ConcurrencyPerDomain)
	}
	if cfg.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must be >= 0, got %d", cfg.Engine.MaxDepth)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.PolitenessDelay < 0 {
		return fmt.Errorf("engine.politeness_delay must be >= 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", cfg.Engine.MaxRetries)
	}
	if len(cfg.Engine.UserAgents) == 0 {
		return fmt.Errorf("engine.user_agents must contain at least one entry")
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true,
	}
	if len(cfg.Storage.Formats) == 0 {
		return fmt.Errorf("storage.formats must list at least one format")
	}
	for _, f := range cfg.Storage.Formats {
		if !validStorageTypes[strings.ToLower(f)] {
			return fmt.Errorf("storage format %q is not supported (valid: json, jsonl, csv)", f)
		}
	}
	if cfg.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be >= 1, got %d", cfg.Storage.BatchSize)
	}
	if cfg.Storage.Mongo.Enabled {
		if cfg.Storage.Mongo.URI == "" || cfg.Storage.Mongo.Database == "" || cfg.Storage.Mongo.Collection == "" {
			return fmt.Errorf("storage.mongo requires uri, database and collection when enabled")
		}
	}

	for category, words := range cfg.Keywords {
		for i, w := range words {
			if strings.TrimSpace(w) == "" {
				return &types.ConfigError{
					Source: "config",
					Field:  fmt.Sprintf("keywords.%s[%d]", category, i),
					Err:    fmt.Errorf("blank keyword"),
				}
			}
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" && cfg.Logging.Output != "file" {
		return fmt.Errorf("logging.output must be 'stderr' or 'file', got %q", cfg.Logging.Output)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	if cfg.Media.MaxRetries < 0 {
		return fmt.Errorf("media.max_retries must be >= 0")
	}
	if cfg.Backfill.Workers < 1 {
		return fmt.Errorf("backfill.workers must be >= 1, got %d", cfg.Backfill.Workers)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
		return fmt.Errorf("URL scheme must be http, https or file, got %q", u.Scheme)
	}
	if u.Host == "" && u.Scheme != "file" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
