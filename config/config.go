package config

import (
	"fmt"
	"net/url"
	"sort"
	"time"
)

// Config holds service configuration.
type Config struct {
	HTTPAddr string

	DatabaseURL     string
	RedisURL        string
	CacheSize       int
	CacheTTL        time.Duration
	FreshnessWindow time.Duration

	BaseURL          string
	SourceName       string
	ScrapeServiceURL string
	ScrapeServiceKey string
	Parallelism      int
	Delay            time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration
	UserAgent        string
	RespectRobotsTxt bool
	MaxDepth         int

	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	SearchWorkers      int
	DetailWorkers      int
	TargetConcurrency  int
	StallWindow        time.Duration
	StallCheckInterval time.Duration
	MaxStalls          int
	RetainJobs         int

	PriceBuckets []int

	LogLevel   string
	LogFormat  string
	Verbose    bool
	FluentHost string
	FluentPort int

	AMQPURL      string
	AMQPExchange string

	ExportDir    string
	ExportFormat string // csv, json, or dual
}

// DefaultConfig returns defaults suitable for a single local instance.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8080",

		CacheSize:       1024,
		CacheTTL:        30 * time.Minute,
		FreshnessWindow: 15 * time.Minute,

		BaseURL:          "https://www.realestate.com.au",
		Parallelism:      4,
		Delay:            500 * time.Millisecond,
		RandomDelay:      250 * time.Millisecond,
		Timeout:          20 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		MaxDepth:         6,

		MaxAttempts:     3,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 8 * time.Second,

		SearchWorkers:      2,
		DetailWorkers:      1,
		TargetConcurrency:  3,
		StallWindow:        2 * time.Minute,
		StallCheckInterval: 30 * time.Second,
		MaxStalls:          1,
		RetainJobs:         1000,

		PriceBuckets: []int{300, 500, 750, 1000, 1500},

		LogLevel:   "info",
		LogFormat:  "auto",
		FluentPort: 24224,

		AMQPExchange: "rentals.jobs",

		ExportDir:    "output",
		ExportFormat: "csv",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.ScrapeServiceURL != "" {
		parsed, err := url.Parse(c.ScrapeServiceURL)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("invalid scrape service URL %q", c.ScrapeServiceURL)
		}
		if c.ScrapeServiceKey == "" {
			return fmt.Errorf("scrape service key is required when a scrape service URL is set")
		}
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("freshness window must be positive")
	}
	if c.FreshnessWindow > c.CacheTTL {
		return fmt.Errorf("freshness window (%s) cannot exceed cache TTL (%s)", c.FreshnessWindow, c.CacheTTL)
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be positive")
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}

	if c.SearchWorkers <= 0 || c.DetailWorkers <= 0 {
		return fmt.Errorf("workers per job kind must be positive")
	}
	if c.TargetConcurrency <= 0 {
		return fmt.Errorf("target concurrency must be positive")
	}
	if c.StallWindow <= 0 || c.StallCheckInterval <= 0 {
		return fmt.Errorf("stall window and check interval must be positive")
	}
	if c.MaxStalls < 0 {
		return fmt.Errorf("max stalls cannot be negative")
	}
	if c.RetainJobs <= 0 {
		return fmt.Errorf("retained jobs must be positive")
	}

	if !sort.IntsAreSorted(c.PriceBuckets) {
		return fmt.Errorf("price buckets must be ascending")
	}
	for i := 1; i < len(c.PriceBuckets); i++ {
		if c.PriceBuckets[i] == c.PriceBuckets[i-1] {
			return fmt.Errorf("price buckets must be distinct")
		}
	}

	if c.FluentHost != "" && (c.FluentPort <= 0 || c.FluentPort > 65535) {
		return fmt.Errorf("fluent port must be between 1 and 65535")
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("amqp exchange cannot be empty when an amqp URL is set")
	}
	if c.ExportFormat != "csv" && c.ExportFormat != "json" && c.ExportFormat != "dual" {
		return fmt.Errorf("export format must be csv, json, or dual")
	}

	return nil
}
