package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is prepended to every upper-cased setting name.
const EnvPrefix = "RENTD_"

type setter func(c *Config, value string) error

// settings binds YAML keys (and RENTD_<KEY> environment variables) to fields.
var settings = map[string]setter{
	"http_addr":            stringField(func(c *Config) *string { return &c.HTTPAddr }),
	"database_url":         stringField(func(c *Config) *string { return &c.DatabaseURL }),
	"redis_url":            stringField(func(c *Config) *string { return &c.RedisURL }),
	"cache_size":           intField(func(c *Config) *int { return &c.CacheSize }),
	"cache_ttl":            durationField(func(c *Config) *time.Duration { return &c.CacheTTL }),
	"freshness_window":     durationField(func(c *Config) *time.Duration { return &c.FreshnessWindow }),
	"base_url":             stringField(func(c *Config) *string { return &c.BaseURL }),
	"source_name":          stringField(func(c *Config) *string { return &c.SourceName }),
	"scrape_service_url":   stringField(func(c *Config) *string { return &c.ScrapeServiceURL }),
	"scrape_service_key":   stringField(func(c *Config) *string { return &c.ScrapeServiceKey }),
	"parallelism":          intField(func(c *Config) *int { return &c.Parallelism }),
	"delay":                durationField(func(c *Config) *time.Duration { return &c.Delay }),
	"random_delay":         durationField(func(c *Config) *time.Duration { return &c.RandomDelay }),
	"timeout":              durationField(func(c *Config) *time.Duration { return &c.Timeout }),
	"user_agent":           stringField(func(c *Config) *string { return &c.UserAgent }),
	"respect_robots":       boolField(func(c *Config) *bool { return &c.RespectRobotsTxt }),
	"max_depth":            intField(func(c *Config) *int { return &c.MaxDepth }),
	"max_attempts":         intField(func(c *Config) *int { return &c.MaxAttempts }),
	"retry_backoff":        durationField(func(c *Config) *time.Duration { return &c.RetryBackoff }),
	"retry_backoff_max":    durationField(func(c *Config) *time.Duration { return &c.RetryBackoffMax }),
	"search_workers":       intField(func(c *Config) *int { return &c.SearchWorkers }),
	"detail_workers":       intField(func(c *Config) *int { return &c.DetailWorkers }),
	"target_concurrency":   intField(func(c *Config) *int { return &c.TargetConcurrency }),
	"stall_window":         durationField(func(c *Config) *time.Duration { return &c.StallWindow }),
	"stall_check_interval": durationField(func(c *Config) *time.Duration { return &c.StallCheckInterval }),
	"max_stalls":           intField(func(c *Config) *int { return &c.MaxStalls }),
	"retain_jobs":          intField(func(c *Config) *int { return &c.RetainJobs }),
	"price_buckets":        setPriceBuckets,
	"log_level":            stringField(func(c *Config) *string { return &c.LogLevel }),
	"log_format":           stringField(func(c *Config) *string { return &c.LogFormat }),
	"verbose":              boolField(func(c *Config) *bool { return &c.Verbose }),
	"fluent_host":          stringField(func(c *Config) *string { return &c.FluentHost }),
	"fluent_port":          intField(func(c *Config) *int { return &c.FluentPort }),
	"amqp_url":             stringField(func(c *Config) *string { return &c.AMQPURL }),
	"amqp_exchange":        stringField(func(c *Config) *string { return &c.AMQPExchange }),
	"export_dir":           stringField(func(c *Config) *string { return &c.ExportDir }),
	"export_format":        stringField(func(c *Config) *string { return &c.ExportFormat }),
}

// Load layers configuration: defaults, then the YAML file, then the .env
// file, then the process environment. Empty paths are skipped and a missing
// .env file is not an error. The result is not validated; callers apply
// flag overrides first.
func Load(envFile, yamlFile string) (*Config, error) {
	cfg := DefaultConfig()

	if yamlFile != "" {
		if err := applyYAML(cfg, yamlFile); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	for key, set := range settings {
		name := EnvPrefix + strings.ToUpper(key)
		value, ok := EnvString(name)
		if !ok {
			continue
		}
		if err := set(cfg, value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	raw := make(map[string]interface{})
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	for key, value := range raw {
		set, ok := settings[strings.ToLower(key)]
		if !ok {
			return fmt.Errorf("config file %s: unknown key %q", path, key)
		}
		if err := set(cfg, yamlScalar(value)); err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, key, err)
		}
	}
	return nil
}

// yamlScalar renders a decoded YAML value in the same textual form the
// environment uses. Lists become comma-separated.
func yamlScalar(v interface{}) string {
	if list, ok := v.([]interface{}); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// EnvString returns the value of key when it is set and non-blank.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool parses key as a boolean when it is set.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, true, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// EnvDuration parses key as a Go duration when it is set.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

func stringField(field func(*Config) *string) setter {
	return func(c *Config, value string) error {
		*field(c) = value
		return nil
	}
}

func intField(field func(*Config) *int) setter {
	return func(c *Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolField(field func(*Config) *bool) setter {
	return func(c *Config, value string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) setter {
	return func(c *Config, value string) error {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func setPriceBuckets(c *Config, value string) error {
	buckets, err := ParseIntList(value)
	if err != nil {
		return err
	}
	c.PriceBuckets = buckets
	return nil
}

// ParseIntList parses a comma-separated list of integers.
func ParseIntList(value string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}
