package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/config"
	"github.com/aluiziolira/go-scrape-rentals/export"
	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/querybuilder"
	"github.com/aluiziolira/go-scrape-rentals/store"
)

func main() {
	envFile := flag.String("env", ".env", "Path to a .env file (missing is fine)")
	yamlFile := flag.String("config", "", "Path to a YAML config file")
	format := flag.String("format", "", "Output format: csv, json, or dual (default from RENTD_EXPORT_FORMAT)")
	dir := flag.String("dir", "", "Output directory (default from RENTD_EXPORT_DIR)")
	name := flag.String("name", "", "Output file base name (default listings-<timestamp>)")
	listingType := flag.String("listing-type", "", "rent or buy")
	suburb := flag.String("suburb", "", "Suburb to export")
	state := flag.String("state", "", "State code, e.g. NSW")
	postcode := flag.String("postcode", "", "Four-digit postcode")
	propertyType := flag.String("type", "", "apartment, house, or townhouse")
	bedrooms := flag.String("bedrooms", "", "Bedroom range, e.g. 2-any or 1-3")
	price := flag.String("price", "", "Price range, e.g. 0-800")
	sortKey := flag.String("sort", string(models.SortRelevance), "relevance, price-asc, price-desc, or newest")
	pageSize := flag.Int("page-size", models.MaxPageSize, "Rows read from the store per query")
	verbose := flag.Bool("v", false, "Enable debug logging and progress reports")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger, _ := logging.New(logging.Options{Level: level, Format: logging.FormatAuto, Writer: os.Stderr})

	cfg, err := config.Load(*envFile, *yamlFile)
	if err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if *format != "" {
		cfg.ExportFormat = strings.ToLower(*format)
	}
	if *dir != "" {
		cfg.ExportDir = *dir
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("RENTD_DATABASE_URL is required for export")
		os.Exit(1)
	}

	filter, err := buildFilter(*listingType, *suburb, *state, *postcode, *propertyType, *bedrooms, *price, *sortKey)
	if err != nil {
		logger.Error("invalid filter", slog.Any("error", err))
		os.Exit(1)
	}
	outFormat, err := export.ParseFormat(cfg.ExportFormat)
	if err != nil {
		logger.Error("invalid format", slog.Any("error", err))
		os.Exit(1)
	}
	base := *name
	if base == "" {
		base = "listings-" + time.Now().UTC().Format("20060102-150405")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect store", slog.Any("error", err))
		os.Exit(1)
	}
	src := store.NewPostgres(pool)
	defer src.Close()

	writer, err := export.NewFileWriter(outFormat, cfg.ExportDir, base)
	if err != nil {
		logger.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	start := time.Now()
	p := export.NewPipeline(writer, 0, logger)
	p.Start(1)
	if *verbose {
		p.StartProgressReporting(5 * time.Second)
	}

	read, exportErr := export.FromStore(ctx, src, filter, *pageSize, p)
	closeErr := p.Close()
	if err := writer.Close(); err != nil {
		logger.Error("close writer", slog.Any("error", err))
	}
	if exportErr != nil {
		logger.Error("export failed", slog.Any("error", exportErr))
		os.Exit(1)
	}
	if closeErr != nil {
		logger.Error("pipeline shutdown failed", slog.Any("error", closeErr))
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		logger.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(read, p.Stats(), time.Since(start), cfg.ExportDir, base, outFormat)
}

func buildFilter(listingType, suburb, state, postcode, propertyType, bedrooms, price, sortKey string) (models.PropertyFilter, error) {
	filter := models.PropertyFilter{
		ListingType: models.ListingType(strings.ToLower(listingType)),
		Suburb:      suburb,
		State:       strings.ToUpper(state),
		Postcode:    postcode,
		Sort:        models.SortKey(strings.ToLower(sortKey)),
	}
	if propertyType != "" {
		pt, ok := models.ParsePropertyType(propertyType)
		if !ok {
			return models.PropertyFilter{}, fmt.Errorf("unknown property type %q", propertyType)
		}
		filter.PropertyType = pt
	}
	if !models.ValidSort(filter.Sort) {
		return models.PropertyFilter{}, fmt.Errorf("unknown sort %q", sortKey)
	}

	var err error
	if filter.Bedrooms, err = querybuilder.DecodeRange(bedrooms); err != nil {
		return models.PropertyFilter{}, fmt.Errorf("bedrooms: %w", err)
	}
	if filter.Price, err = querybuilder.DecodeRange(price); err != nil {
		return models.PropertyFilter{}, fmt.Errorf("price: %w", err)
	}
	return filter, nil
}

func printSummary(read int, stats export.Stats, duration time.Duration, dir, base string, format export.Format) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Export complete")
	fmt.Printf("  Records read:  %d\n", read)
	fmt.Printf("  Written:       %d\n", stats.Written)
	fmt.Printf("  Duplicates:    %d\n", stats.Duplicates)
	fmt.Printf("  Invalid:       %d\n", stats.Invalid)
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output:        %s/%s (%s)\n", dir, base, format)
	fmt.Println(separator)
}
