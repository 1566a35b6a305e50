package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrBlocked       = errors.New("blocked by robots.txt")
	ErrDuplicate     = errors.New("duplicate URL")
	ErrEmptyResponse = errors.New("empty response body")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrCrawlStopped  = errors.New("crawl has been stopped")
	ErrNoFetcher     = errors.New("no fetcher available for request")
	ErrUnknownSite   = errors.New("unknown site profile")
	ErrNotSitemap    = errors.New("document is not a sitemap")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while parsing a fetched document.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractError reports a single article field that could not be extracted.
// It never aborts extraction of the remaining fields.
type ExtractError struct {
	URL   string
	Field string
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s from %s: %v", e.Field, e.URL, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// PaginationError reports a listing page whose pagination could not be expanded.
type PaginationError struct {
	URL   string
	Value string
	Err   error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("pagination error for %s (last page %q): %v", e.URL, e.Value, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }

// ConfigError is returned for invalid configuration, site profiles or seed ranges.
// A run never starts with a ConfigError.
type ConfigError struct {
	Source string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error (%s): %v", e.Source, e.Err)
	}
	return fmt.Sprintf("config error (%s.%s): %v", e.Source, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the processing pipeline.
type PipelineError struct {
	Stage   string
	Article *Article
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
