package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aluiziolira/go-scrape-rentals/api"
	"github.com/aluiziolira/go-scrape-rentals/cache"
	"github.com/aluiziolira/go-scrape-rentals/config"
	"github.com/aluiziolira/go-scrape-rentals/events"
	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/parser"
	"github.com/aluiziolira/go-scrape-rentals/ports"
	"github.com/aluiziolira/go-scrape-rentals/querybuilder"
	"github.com/aluiziolira/go-scrape-rentals/queue"
	"github.com/aluiziolira/go-scrape-rentals/results"
	"github.com/aluiziolira/go-scrape-rentals/scraper"
	"github.com/aluiziolira/go-scrape-rentals/search"
	"github.com/aluiziolira/go-scrape-rentals/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envFile := flag.String("env", ".env", "Path to a .env file (missing is fine)")
	yamlFile := flag.String("config", "", "Path to a YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides RENTD_HTTP_ADDR)")
	verbose := flag.Bool("v", false, "Enable debug logging")
	migrate := flag.Bool("migrate", true, "Apply the database schema on start")
	flag.Parse()

	cfg, err := config.Load(*envFile, *yamlFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLogger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *migrate, logger); err != nil {
		logger.Error("rentd stopped", slog.Any("error", err))
		closeLogger()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, migrate bool, logger logging.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, closeStore, err := openStore(ctx, cfg, migrate, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	pageCache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	fetchMetrics := scraper.NewMetrics(reg)
	fetcher, err := newFetcher(cfg, fetchMetrics, logger)
	if err != nil {
		return err
	}

	targets, err := querybuilder.New(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("query builder: %w", err)
	}
	stdCfg := parser.DefaultConfig()
	stdCfg.SourceName = cfg.SourceName
	stdCfg.MaxDepth = cfg.MaxDepth
	standardizer := parser.New(stdCfg)
	pages := results.New(cfg.PriceBuckets)

	var jobEvents ports.JobEvents
	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		jobEvents = publisher
		logger.Info("job events enabled", slog.String("exchange", cfg.AMQPExchange))
	}

	jobs, err := queue.New(queueConfig(cfg), queue.Deps{
		Targets:      targets,
		Standardizer: standardizer,
		Scraper:      fetcher,
		Store:        st,
		Cache:        pageCache,
		Pages:        pages,
		Events:       jobEvents,
		Metrics:      queue.NewMetrics(reg),
		FetchMetrics: fetchMetrics,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("job queue: %w", err)
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("start job queue: %w", err)
	}

	svc, err := search.New(search.Config{CacheTTL: cfg.CacheTTL, FreshnessWindow: cfg.FreshnessWindow}, search.Deps{
		Cache:   pageCache,
		Store:   st,
		Jobs:    jobs,
		Pages:   pages,
		Metrics: search.NewMetrics(reg),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("search service: %w", err)
	}

	validator, err := api.NewValidator()
	if err != nil {
		return fmt.Errorf("request schemas: %w", err)
	}
	checks := []api.Check{{Name: "store", Pinger: st}}
	if p, ok := pageCache.(ports.Pinger); ok {
		checks = append(checks, api.Check{Name: "cache", Pinger: p})
	}
	if p, ok := fetcher.(ports.Pinger); ok {
		checks = append(checks, api.Check{Name: "scrape_service", Pinger: p})
	}
	handler := api.NewHandler(svc, jobs, validator, logger, checks...)
	server := api.NewServer(cfg.HTTPAddr, api.NewRouter(handler, reg, logger), logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := server.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("http server shutdown", slog.Any("error", stopErr))
	}
	if closeErr := jobs.Close(shutdownCtx); closeErr != nil {
		logger.Warn("job queue shutdown", slog.Any("error", closeErr))
	}

	stats := jobs.Stats()
	logger.Info("rentd stopped",
		slog.Int64("jobs_submitted", stats.Submitted),
		slog.Int64("jobs_completed", stats.Completed),
		slog.Int64("jobs_failed", stats.Failed))
	return err
}

func openStore(ctx context.Context, cfg *config.Config, migrate bool, logger logging.Logger) (ports.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgres(pool)
	if migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("postgres store ready")
	return pg, pg.Close, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger logging.Logger) (ports.Cache, func(), error) {
	if cfg.RedisURL == "" {
		mem, err := cache.NewMemory(cfg.CacheSize)
		if err != nil {
			return nil, nil, fmt.Errorf("memory cache: %w", err)
		}
		logger.Info("using in-process cache", slog.Int("size", cfg.CacheSize))
		return mem, func() {}, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rc := cache.NewRedis(client)
	logger.Info("redis cache ready")
	return rc, func() {
		if err := rc.Close(); err != nil {
			logger.Warn("close redis", slog.Any("error", err))
		}
	}, nil
}

func newFetcher(cfg *config.Config, metrics *scraper.Metrics, logger logging.Logger) (ports.Scraper, error) {
	if cfg.ScrapeServiceURL != "" {
		logger.Info("fetching through scrape service", slog.String("url", cfg.ScrapeServiceURL))
		return scraper.NewServiceFetcher(cfg, metrics, logger)
	}
	return scraper.NewFetcher(cfg, metrics, logger)
}

func queueConfig(cfg *config.Config) queue.Config {
	qc := queue.DefaultConfig()
	qc.Workers = map[models.JobKind]int{
		models.JobSearch:     cfg.SearchWorkers,
		models.JobBulkDetail: cfg.DetailWorkers,
	}
	qc.TargetConcurrency = cfg.TargetConcurrency
	qc.TargetTimeout = cfg.Timeout
	qc.MaxAttempts = cfg.MaxAttempts
	qc.RetryBackoff = cfg.RetryBackoff
	qc.RetryBackoffMax = cfg.RetryBackoffMax
	qc.StallWindow = cfg.StallWindow
	qc.StallCheckInterval = cfg.StallCheckInterval
	qc.MaxStalls = cfg.MaxStalls
	qc.RetainJobs = cfg.RetainJobs
	qc.CacheTTL = cfg.CacheTTL
	qc.FreshnessWindow = cfg.FreshnessWindow
	return qc
}

// newLogger builds the console logger and, when a Fluentd host is set, fans
// records out to it as well.
func newLogger(cfg *config.Config) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	console, _ := logging.New(logging.Options{Level: level, Format: format})
	if cfg.FluentHost == "" {
		return console, func() {}, nil
	}

	client, err := logging.DialFluent(cfg.FluentHost, cfg.FluentPort)
	if err != nil {
		return nil, nil, err
	}
	fl, err := logging.NewFluent(client, "rentd", level)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	var closed bool
	return logging.Multi(console, fl), func() {
		if closed {
			return
		}
		closed = true
		if err := fl.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			console.Warn("close fluent logger", slog.Any("error", err))
		}
	}, nil
}
