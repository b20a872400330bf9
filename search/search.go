// Package search answers listing searches from the cache, then the store,
// and schedules background refreshes when stored data is missing or stale.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-rentals/cache"
	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/ports"
	"github.com/aluiziolira/go-scrape-rentals/results"
	"github.com/aluiziolira/go-scrape-rentals/store"
)

const (
	recordTimeout      = 3 * time.Second
	maxSuggestionLimit = 50
)

// JobQueue is the part of the job queue the search path uses.
type JobQueue interface {
	ports.JobSubmitter
	Stats() models.QueueStats
}

// Config holds the search path's knobs.
type Config struct {
	CacheTTL        time.Duration
	FreshnessWindow time.Duration
}

// Deps are the collaborators a Service drives. Store and Jobs are required.
type Deps struct {
	Cache   ports.Cache
	Store   ports.Store
	Jobs    JobQueue
	Pages   *results.Builder
	Metrics *Metrics
	Logger  logging.Logger
	Now     func() time.Time
}

// Service is the search orchestrator.
type Service struct {
	cfg       Config
	cache     ports.Cache
	store     ports.Store
	jobs      JobQueue
	pages     *results.Builder
	metrics   *Metrics
	log       logging.Logger
	now       func() time.Time
	freshness models.FreshnessPolicy
}

// New returns a Service. A nil cache behaves as a permanent miss.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Jobs == nil {
		return nil, errors.New("search: store and job queue are required")
	}
	if cfg.FreshnessWindow <= 0 {
		return nil, fmt.Errorf("freshness window must be positive")
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Pages == nil {
		deps.Pages = results.New(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		cfg:       cfg,
		cache:     deps.Cache,
		store:     deps.Store,
		jobs:      deps.Jobs,
		pages:     deps.Pages,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       deps.Now,
		freshness: models.FreshnessPolicy{Window: cfg.FreshnessWindow},
	}, nil
}

// Search answers params without waiting on any scrape. Failures are reported
// inside the returned page.
func (s *Service) Search(ctx context.Context, params models.SearchParams, requester models.RequesterContext) models.ResultPage {
	start := s.now()
	rec := models.SearchExecutionRecord{
		ID:        uuid.NewString(),
		Params:    params,
		Requester: requester,
		CreatedAt: start,
	}

	page := s.search(ctx, params, &rec)

	rec.Latency = s.now().Sub(start)
	rec.ResultCount = len(page.Properties)
	if page.Pagination != nil {
		rec.TotalCount = page.Pagination.Total
	}
	rec.Stale = page.Stale
	rec.RefreshJobID = page.RefreshJobID
	if page.Error != nil {
		rec.Error = fmt.Sprintf("%s: %s", page.Error.Kind, page.Error.Message)
	}
	s.record(ctx, rec)
	s.metrics.observe(page.Source, page.Error != nil, rec.Latency)
	return page
}

func (s *Service) search(ctx context.Context, params models.SearchParams, rec *models.SearchExecutionRecord) models.ResultPage {
	if err := params.Validate(); err != nil {
		return results.Failed(models.ErrorValidation, err)
	}
	params = params.Normalized()
	key := cache.Key(params)
	rec.Params = params
	rec.CacheKey = key

	if entry := s.lookup(ctx, key); entry != nil {
		page := entry.Page
		page.Source = models.SourceCache
		page.Stale = s.freshness.Stale(page.Properties, s.now())
		page.RefreshJobID = ""
		rec.Sources = []models.DataSource{models.SourceCache}
		return page
	}

	rows, total, err := s.store.Query(ctx, models.FilterFromParams(params), params.Offset(), params.PageSize)
	rec.Sources = []models.DataSource{models.SourceStore}
	if err != nil {
		s.log.Error("store query failed", slog.String("key", key), slog.Any("error", err))
		page := results.Failed(models.ErrorStore, fmt.Errorf("query listings: %w", err))
		page.Source = models.SourceStore
		return page
	}

	stale := s.freshness.Stale(rows, s.now())
	var jobID string
	if stale {
		jobID = s.refresh(ctx, params)
		if jobID != "" {
			rec.Sources = append(rec.Sources, models.SourceQueue)
		}
	}

	if len(rows) == 0 {
		page := results.Empty(models.SourceStore)
		if jobID != "" {
			page.Source = models.SourceQueue
		}
		page.Stale = true
		page.RefreshJobID = jobID
		return page
	}

	page := s.pages.Page(rows, total, params, models.SourceStore)
	s.writeCache(ctx, key, page)
	page.Stale = stale
	page.RefreshJobID = jobID
	return page
}

// lookup reads the cache. Errors and expired entries are misses.
func (s *Service) lookup(ctx context.Context, key string) *models.CacheEntry {
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.incCacheError()
		s.log.Warn("cache lookup failed", slog.String("key", key), slog.Any("error", err))
		return nil
	}
	if entry == nil || entry.Expired(s.now()) {
		return nil
	}
	return entry
}

func (s *Service) writeCache(ctx context.Context, key string, page models.ResultPage) {
	entry := models.CacheEntry{Page: page, WrittenAt: s.now(), TTL: s.cfg.CacheTTL}
	if err := s.cache.Set(ctx, key, entry, s.cfg.CacheTTL); err != nil {
		s.metrics.incCacheError()
		s.log.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// refresh submits a normal-priority search job and returns its id, or ""
// when submission failed.
func (s *Service) refresh(ctx context.Context, params models.SearchParams) string {
	id, err := s.jobs.Submit(ctx, models.JobSearch, params, models.PriorityNormal)
	if err != nil {
		s.log.Warn("refresh submission failed", slog.Any("error", err))
		return ""
	}
	s.metrics.incRefresh()
	s.log.Debug("refresh submitted", slog.String("job_id", id), slog.String("suburb", params.Suburb))
	return id
}

func (s *Service) record(ctx context.Context, rec models.SearchExecutionRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.store.AppendExecutionRecord(ctx, rec); err != nil {
		s.log.Warn("append execution record failed", slog.String("id", rec.ID), slog.Any("error", err))
	}
}

// GetByKey returns one stored listing. store.ErrNotFound is passed through.
func (s *Service) GetByKey(ctx context.Context, key models.NaturalKey) (*models.Property, error) {
	if key.SourceName == "" || key.SourceListingID == "" {
		return nil, &models.ValidationError{Field: "key", Reason: "source and listing id are required"}
	}
	return s.store.GetByKey(ctx, key)
}

// LocationSuggestions returns known locations whose suburb or postcode
// starts with text, most listed first.
func (s *Service) LocationSuggestions(ctx context.Context, text string, limit int) ([]models.Location, error) {
	if limit <= 0 {
		limit = store.DefaultSuggestionLimit
	}
	if limit > maxSuggestionLimit {
		limit = maxSuggestionLimit
	}
	return s.store.LocationSuggestions(ctx, strings.TrimSpace(text), limit)
}

// QueueStats reports the job queue's state.
func (s *Service) QueueStats() models.QueueStats {
	return s.jobs.Stats()
}

// InvalidateCache drops cached pages matching pattern. An empty pattern
// drops every search page; patterns are confined to search keys.
func (s *Service) InvalidateCache(ctx context.Context, pattern string) (int, error) {
	pattern = strings.TrimSpace(pattern)
	switch {
	case pattern == "":
		pattern = cache.AllSearches
	case !strings.HasPrefix(pattern, cache.KeyPrefix):
		pattern = cache.KeyPrefix + pattern
	}
	n, err := s.cache.Invalidate(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("invalidate %q: %w", pattern, err)
	}
	s.log.Info("cache invalidated", slog.String("pattern", pattern), slog.Int("removed", n))
	return n, nil
}

// RequestRefresh queues a search job at priority on behalf of an operator.
// The cached page for params is dropped first so the job does not skip on it.
func (s *Service) RequestRefresh(ctx context.Context, params models.SearchParams, priority models.Priority) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	params = params.Normalized()
	if _, err := s.cache.Invalidate(ctx, cache.Key(params)); err != nil {
		s.metrics.incCacheError()
		s.log.Warn("cache invalidation before refresh failed", slog.Any("error", err))
	}
	id, err := s.jobs.Submit(ctx, models.JobSearch, params, priority)
	if err != nil {
		return "", fmt.Errorf("submit refresh: %w", err)
	}
	s.metrics.incRefresh()
	return id, nil
}
