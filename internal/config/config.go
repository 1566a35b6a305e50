package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultUserAgent identifies the crawler to site operators.
const DefaultUserAgent = "NewsResearchBot(+https://ed.ac.uk/ug4-research-project; Data collection for academic research on news bias;)"

// Config is the root configuration for newscrawler.
type Config struct {
	Paths       PathsConfig         `mapstructure:"paths"        yaml:"paths"`
	Engine      EngineConfig        `mapstructure:"engine"       yaml:"engine"`
	Fetcher     FetcherConfig       `mapstructure:"fetcher"      yaml:"fetcher"`
	Storage     StorageConfig       `mapstructure:"storage"      yaml:"storage"`
	Keywords    map[string][]string `mapstructure:"keywords"     yaml:"keywords"`
	ProfilesDir string              `mapstructure:"profiles_dir" yaml:"profiles_dir"`
	Logging     LoggingConfig       `mapstructure:"logging"      yaml:"logging"`
	Metrics     MetricsConfig       `mapstructure:"metrics"      yaml:"metrics"`
	Media       MediaConfig         `mapstructure:"media"        yaml:"media"`
	Backfill    BackfillConfig      `mapstructure:"backfill"     yaml:"backfill"`
}

// PathsConfig holds the working directories of a run.
type PathsConfig struct {
	DataDir   string `mapstructure:"data_dir"   yaml:"data_dir"`
	LogsDir   string `mapstructure:"logs_dir"   yaml:"logs_dir"`
	CacheDir  string `mapstructure:"cache_dir"  yaml:"cache_dir"`
	ImagesDir string `mapstructure:"images_dir" yaml:"images_dir"`
}

// Ensure creates every configured directory. The entry point calls it once
// before any site run starts.
func (p *PathsConfig) Ensure() error {
	for _, dir := range []string{p.DataDir, p.LogsDir, p.CacheDir, p.ImagesDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogFile returns the per-site log file path for the given run date.
func (p *PathsConfig) LogFile(source string, runDate time.Time) string {
	return filepath.Join(p.LogsDir, fmt.Sprintf("%s_spider_%s.log", source, runDate.Format("20060102")))
}

// EngineConfig controls the crawl engine.
type EngineConfig struct {
	Concurrency          int           `mapstructure:"concurrency"            yaml:"concurrency"`
	ConcurrencyPerDomain int           `mapstructure:"concurrency_per_domain" yaml:"concurrency_per_domain"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"        yaml:"request_timeout"`
	PolitenessDelay      time.Duration `mapstructure:"politeness_delay"       yaml:"politeness_delay"`
	RespectRobotsTxt     bool          `mapstructure:"respect_robots_txt"     yaml:"respect_robots_txt"`
	MaxRetries           int           `mapstructure:"max_retries"            yaml:"max_retries"`
	MaxDepth             int           `mapstructure:"max_depth"              yaml:"max_depth"`
	MaxRequests          int           `mapstructure:"max_requests"           yaml:"max_requests"`
	UserAgents           []string      `mapstructure:"user_agents"            yaml:"user_agents"`
}

// FetcherConfig controls the request fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Formats   []string    `mapstructure:"formats"    yaml:"formats"`
	BatchSize int         `mapstructure:"batch_size" yaml:"batch_size"`
	Mongo     MongoConfig `mapstructure:"mongo"      yaml:"mongo"`
}

// MongoConfig enables an additional MongoDB sink.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// MediaConfig controls the image downloader.
type MediaConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"    yaml:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"  yaml:"retry_backoff"`
	Timeout      time.Duration `mapstructure:"timeout"        yaml:"timeout"`
	MaxSizeMB    int64         `mapstructure:"max_size_mb"    yaml:"max_size_mb"`
	Extensions   []string      `mapstructure:"extensions"     yaml:"extensions"`
	IndexFile    string        `mapstructure:"index_file"     yaml:"index_file"`
}

// BackfillConfig controls the caption/title backfill utility.
type BackfillConfig struct {
	Workers      int           `mapstructure:"workers"       yaml:"workers"`
	MaxRetries   int           `mapstructure:"max_retries"   yaml:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:   "./data",
			LogsDir:   "./logs",
			CacheDir:  "./cache",
			ImagesDir: "./data/images",
		},
		Engine: EngineConfig{
			Concurrency:          8,
			ConcurrencyPerDomain: 4,
			RequestTimeout:       180 * time.Second,
			PolitenessDelay:      2 * time.Second,
			RespectRobotsTxt:     true,
			MaxRetries:           5,
			MaxDepth:             4,
			UserAgents:           []string{DefaultUserAgent},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    5,
			MaxBodySize:     20 * 1024 * 1024, // 20MB, sitemaps get large
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		Storage: StorageConfig{
			Formats:   []string{"json"},
			BatchSize: 50,
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "newscrawler",
				Collection: "articles",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Media: MediaConfig{
			MaxRetries:   5,
			RetryBackoff: 10 * time.Second,
			Timeout:      60 * time.Second,
			MaxSizeMB:    25,
			Extensions:   []string{".jpg", ".jpeg", ".png", ".webp"},
			IndexFile:    "image_index.json",
		},
		Backfill: BackfillConfig{
			Workers:      5,
			MaxRetries:   3,
			RetryBackoff: 5 * time.Second,
			Timeout:      30 * time.Second,
		},
	}
}
