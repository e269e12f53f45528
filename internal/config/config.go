package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Pagination PaginationConfig `yaml:"pagination"`
	Sentiment  SentimentConfig  `yaml:"sentiment"`
	Sources    SourcesConfig    `yaml:"sources"`
	Report     ReportConfig     `yaml:"report"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Watch      WatchConfig      `yaml:"watch"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Server     ServerConfig     `yaml:"server"`
	Filter     FilterConfig     `yaml:"filter"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// HTTPConfig controls the shared fetch client.
type HTTPConfig struct {
	Timeout   string `yaml:"timeout"`
	Attempts  int    `yaml:"attempts"`
	Backoff   string `yaml:"backoff"`
	UserAgent string `yaml:"user_agent"`
}

// ParseTimeout returns the per-request timeout.
func (h HTTPConfig) ParseTimeout() time.Duration {
	return parseDuration(h.Timeout, 12*time.Second)
}

// ParseBackoff returns the base wait between retries.
func (h HTTPConfig) ParseBackoff() time.Duration {
	return parseDuration(h.Backoff, 2*time.Second)
}

// PaginationConfig controls courtesy delays and run size.
type PaginationConfig struct {
	PageDelay   string `yaml:"page_delay"`
	BucketDelay string `yaml:"bucket_delay"`
	Concurrency int    `yaml:"concurrency"`
	Target      int    `yaml:"target"`
}

// ParsePageDelay returns the pause between pages of one bucket.
func (p PaginationConfig) ParsePageDelay() time.Duration {
	return parseDuration(p.PageDelay, 500*time.Millisecond)
}

// ParseBucketDelay returns the pause between buckets.
func (p PaginationConfig) ParseBucketDelay() time.Duration {
	return parseDuration(p.BucketDelay, 500*time.Millisecond)
}

// SentimentConfig selects the classifier.
type SentimentConfig struct {
	Strategy string `yaml:"strategy"` // "lexicon" or "keyword"
}

// SourcesConfig holds per-platform endpoints and defaults.
type SourcesConfig struct {
	Reddit RedditConfig `yaml:"reddit"`
	Steam  SteamConfig  `yaml:"steam"`
	X      XConfig      `yaml:"x"`
	Nitter NitterConfig `yaml:"nitter"`
}

// RedditConfig for the public Reddit JSON endpoints.
type RedditConfig struct {
	BaseURL    string `yaml:"base_url"`
	Sort       string `yaml:"sort"`
	TimeFilter string `yaml:"time_filter"`
}

// SteamConfig for the Steam review, store search and news endpoints.
type SteamConfig struct {
	BaseURL string `yaml:"base_url"`
	NewsURL string `yaml:"news_url"`
	Lang    string `yaml:"lang"`
}

// XConfig for X API v2 recent search.
type XConfig struct {
	BaseURL         string `yaml:"base_url"`
	BearerToken     string `yaml:"bearer_token"`
	Lang            string `yaml:"lang"`
	ExcludeReplies  bool   `yaml:"exclude_replies"`
	ExcludeRetweets bool   `yaml:"exclude_retweets"`
}

// NitterConfig for Nitter RSS feeds.
type NitterConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ReportConfig configures the LLM narrative report.
type ReportConfig struct {
	Provider  string `yaml:"provider"` // "openai" or "anthropic"
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	Focus     string `yaml:"focus"`
	Tone      string `yaml:"tone"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// WatchConfig configures the periodic job runner.
type WatchConfig struct {
	Interval string      `yaml:"interval"`
	Jobs     []JobConfig `yaml:"jobs"`
}

// ParseInterval returns the watch interval as time.Duration.
func (w WatchConfig) ParseInterval() time.Duration {
	return parseDuration(w.Interval, time.Hour)
}

// JobConfig is one watched topic. Buckets use the "bucket=term" form.
type JobConfig struct {
	Topic   string   `yaml:"topic"`
	Source  string   `yaml:"source"`
	Buckets []string `yaml:"buckets"`
	Target  int      `yaml:"target"`
}

// ArchiveConfig configures the SQLite run archive.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	SessionTTL string `yaml:"session_ttl"`
}

// ParseSessionTTL returns the idle lifetime of an API session.
func (s ServerConfig) ParseSessionTTL() time.Duration {
	return parseDuration(s.SessionTTL, 30*time.Minute)
}

// FilterConfig is the default keyword filter applied to new sessions.
type FilterConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Timeout:  "12s",
			Attempts: 3,
			Backoff:  "2s",
		},
		Pagination: PaginationConfig{
			PageDelay:   "500ms",
			BucketDelay: "500ms",
			Concurrency: 1,
			Target:      100,
		},
		Sentiment: SentimentConfig{Strategy: "lexicon"},
		Sources: SourcesConfig{
			Reddit: RedditConfig{Sort: "relevance", TimeFilter: "all"},
			Steam:  SteamConfig{Lang: "english"},
			X:      XConfig{ExcludeRetweets: true},
		},
		Report: ReportConfig{
			Provider:  "anthropic",
			MaxTokens: 4096,
			Focus:     "overview",
			Tone:      "analytical",
		},
		Watch:   WatchConfig{Interval: "1h"},
		Archive: ArchiveConfig{Path: "./sentradar.db"},
		Server:  ServerConfig{Port: 8080, SessionTTL: "30m"},
	}
}

// Load reads configuration from a YAML file, then .env files, then applies env
// var overrides.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadEnvFiles loads .env style files without overriding variables already
// set. Missing files are skipped.
func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTRADAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SENTRADAR_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("X_BEARER_TOKEN"); v != "" {
		cfg.Sources.X.BearerToken = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if cfg.Report.APIKey != "" {
		return
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Report.APIKey = v
		cfg.Report.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Report.APIKey = v
		cfg.Report.Provider = "anthropic"
	}
}

// MinCourtesyDelay is the shortest page or bucket delay Validate accepts.
const MinCourtesyDelay = 100 * time.Millisecond

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	durations := []struct {
		key   string
		value string
		min   time.Duration
	}{
		{"http.timeout", c.HTTP.Timeout, time.Millisecond},
		{"http.backoff", c.HTTP.Backoff, 0},
		{"pagination.page_delay", c.Pagination.PageDelay, MinCourtesyDelay},
		{"pagination.bucket_delay", c.Pagination.BucketDelay, MinCourtesyDelay},
		{"watch.interval", c.Watch.Interval, time.Second},
		{"server.session_ttl", c.Server.SessionTTL, time.Second},
	}
	for _, d := range durations {
		if err := checkDuration(d.value, d.min); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
		}
	}
	switch strings.ToLower(c.Sentiment.Strategy) {
	case "", "lexicon", "vader", "keyword", "fallback":
	default:
		errs = append(errs, fmt.Errorf("sentiment.strategy: unknown strategy %q", c.Sentiment.Strategy))
	}
	if c.Pagination.Target <= 0 {
		errs = append(errs, fmt.Errorf("pagination.target must be positive, got %d", c.Pagination.Target))
	}
	if c.Pagination.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("pagination.concurrency must not be negative, got %d", c.Pagination.Concurrency))
	}
	if c.HTTP.Attempts < 1 {
		errs = append(errs, fmt.Errorf("http.attempts must be at least 1, got %d", c.HTTP.Attempts))
	}
	switch c.Report.Provider {
	case "", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("report.provider: unknown provider %q", c.Report.Provider))
	}
	for i, job := range c.Watch.Jobs {
		if len(job.Buckets) == 0 {
			errs = append(errs, fmt.Errorf("watch.jobs[%d]: no buckets", i))
		}
		if job.Target < 0 {
			errs = append(errs, fmt.Errorf("watch.jobs[%d]: target must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// checkDuration accepts an empty value, which means the default.
func checkDuration(s string, min time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < min {
		return fmt.Errorf("%s is below the minimum of %s", d, min)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
