// Package ports declares the contracts the orchestrators consume. Adapters
// live in the cache, store, scraper and events packages.
package ports

import (
	"context"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// Cache is a best-effort accelerator for result pages. Callers treat any
// error as a miss.
type Cache interface {
	// Get returns the entry for key. A miss is (nil, nil).
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Set(ctx context.Context, key string, entry models.CacheEntry, ttl time.Duration) error
	// Invalidate removes every key matching the glob pattern and returns the
	// number removed.
	Invalidate(ctx context.Context, pattern string) (int, error)
}

// Store is the source of truth for listings, jobs and search history.
type Store interface {
	// UpsertMany applies records atomically. Either every record is written
	// or none is.
	UpsertMany(ctx context.Context, records []models.Property) error
	Query(ctx context.Context, filter models.PropertyFilter, offset, limit int) ([]models.Property, int, error)
	GetByKey(ctx context.Context, key models.NaturalKey) (*models.Property, error)
	LocationSuggestions(ctx context.Context, prefix string, limit int) ([]models.Location, error)

	SaveJob(ctx context.Context, job *models.ScrapeJob) error
	UpdateJobResult(ctx context.Context, job *models.ScrapeJob) error
	AppendExecutionRecord(ctx context.Context, record models.SearchExecutionRecord) error

	Ping(ctx context.Context) error
}

// Scraper fetches one target. Implementations do not retry.
type Scraper interface {
	Fetch(ctx context.Context, url string) (models.FetchResult, error)
}

// JobEvents receives job lifecycle notifications.
type JobEvents interface {
	Publish(ctx context.Context, job *models.ScrapeJob) error
}

// JobSubmitter enqueues refresh work.
type JobSubmitter interface {
	Submit(ctx context.Context, kind models.JobKind, params models.SearchParams, priority models.Priority) (string, error)
}

// Pinger is implemented by adapters that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
