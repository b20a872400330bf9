package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-rentals/cache"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/parser"
	"github.com/aluiziolira/go-scrape-rentals/scraper"
)

var errNoListings = errors.New("no listings found")

// outcome is what a run reports back to finish.
type outcome struct {
	status models.JobStatus
	result models.JobResult
	errs   []string
}

func (q *Queue) execute(r *run) {
	defer r.cancel()
	job := r.qj.job

	var out outcome
	switch job.Kind {
	case models.JobSearch:
		out = q.runSearch(r.ctx, r, job.Params)
	case models.JobBulkDetail:
		out = q.runDetails(r.ctx, r, job.URLs)
	default:
		out = outcome{status: models.StatusFailed, errs: []string{ErrUnknownKind.Error()}}
	}
	q.finish(r, out)
}

// runSearch refreshes the listings behind params: skip when fresh data
// already exists, otherwise fetch every target, upsert the union and write
// a fresh cache page.
func (q *Queue) runSearch(ctx context.Context, r *run, params models.SearchParams) outcome {
	key := cache.Key(params)
	if q.alreadyFresh(ctx, key, params) {
		return outcome{status: models.StatusCompleted, result: models.JobResult{SkippedFresh: true}}
	}

	targets := q.deps.Targets.BuildAll(params)
	records, outcomes := q.fetchAll(ctx, r, targets)
	result := models.JobResult{Targets: outcomes, Records: len(records)}

	if len(records) > 0 {
		if err := q.deps.Store.UpsertMany(ctx, records); err != nil {
			result.Records = 0
			return outcome{
				status: models.StatusFailed,
				result: result,
				errs:   append(targetErrors(outcomes), fmt.Sprintf("upsert: %v", err)),
			}
		}
		q.writeCache(ctx, key, params)
	}

	return outcome{
		status: models.ClassifyTargets(outcomes),
		result: result,
		errs:   targetErrors(outcomes),
	}
}

// runDetails refreshes individual listing pages.
func (q *Queue) runDetails(ctx context.Context, r *run, urls []string) outcome {
	records, outcomes := q.fetchAll(ctx, r, urls)
	result := models.JobResult{Targets: outcomes, Records: len(records)}

	if len(records) > 0 {
		if err := q.deps.Store.UpsertMany(ctx, records); err != nil {
			result.Records = 0
			return outcome{
				status: models.StatusFailed,
				result: result,
				errs:   append(targetErrors(outcomes), fmt.Sprintf("upsert: %v", err)),
			}
		}
	}

	return outcome{
		status: models.ClassifyTargets(outcomes),
		result: result,
		errs:   targetErrors(outcomes),
	}
}

// alreadyFresh reports whether another run refreshed params since this job
// was queued.
func (q *Queue) alreadyFresh(ctx context.Context, key string, params models.SearchParams) bool {
	now := q.now()
	entry, err := q.deps.Cache.Get(ctx, key)
	switch {
	case err != nil:
		q.log.Warn("cache lookup failed", slog.String("key", key), slog.Any("error", err))
	case entry != nil && !entry.Expired(now) && !q.freshness.Stale(entry.Page.Properties, now):
		return true
	}

	records, _, err := q.deps.Store.Query(ctx, models.FilterFromParams(params), params.Offset(), params.PageSize)
	if err != nil {
		q.log.Warn("store freshness check failed", slog.Any("error", err))
		return false
	}
	return !q.freshness.Stale(records, now)
}

func (q *Queue) writeCache(ctx context.Context, key string, params models.SearchParams) {
	rows, total, err := q.deps.Store.Query(ctx, models.FilterFromParams(params), params.Offset(), params.PageSize)
	if err != nil {
		q.log.Warn("reload page for cache failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if len(rows) == 0 {
		return
	}
	entry := models.CacheEntry{
		Page:      q.deps.Pages.Page(rows, total, params, models.SourceQueue),
		WrittenAt: q.now(),
		TTL:       q.cfg.CacheTTL,
	}
	if err := q.deps.Cache.Set(ctx, key, entry, q.cfg.CacheTTL); err != nil {
		q.log.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// fetchAll fetches and standardizes targets with bounded fan-out. Outcomes
// keep the order of targets.
func (q *Queue) fetchAll(ctx context.Context, r *run, targets []string) ([]models.Property, []models.TargetOutcome) {
	outcomes := make([]models.TargetOutcome, len(targets))
	batches := make([][]models.Property, len(targets))

	var g errgroup.Group
	g.SetLimit(q.cfg.TargetConcurrency)
	for i, target := range targets {
		i, target := i, target // per-iteration copies (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			batches[i], outcomes[i] = q.fetchTarget(ctx, r, target)
			return nil
		})
	}
	_ = g.Wait()

	var records []models.Property
	for _, batch := range batches {
		records = append(records, batch...)
	}
	return parser.Dedupe(records), outcomes
}

// fetchTarget retries retryable failures with exponential backoff. Each
// attempt gets its own timeout.
func (q *Queue) fetchTarget(ctx context.Context, r *run, target string) ([]models.Property, models.TargetOutcome) {
	out := models.TargetOutcome{URL: target}

	var (
		payload models.FetchResult
		err     error
	)
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		payload, err = q.fetchOnce(ctx, target)
		r.beat(q.now())
		if err == nil {
			break
		}
		if ctx.Err() != nil || !scraper.IsRetryable(err) || attempt >= q.cfg.MaxAttempts {
			out.Error = err.Error()
			q.log.Warn("target failed",
				slog.String("url", target),
				slog.Int("attempts", attempt),
				slog.String("error_type", scraper.ErrorLabel(err)),
				slog.Any("error", err))
			return nil, out
		}

		delay := q.backoff(attempt)
		q.deps.FetchMetrics.IncRetries()
		q.log.Debug("retrying target",
			slog.String("url", target),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))
		if !sleep(ctx, delay) {
			out.Error = ctx.Err().Error()
			return nil, out
		}
	}

	records, err := q.deps.Standardizer.Standardize(payload)
	if err != nil {
		out.Error = err.Error()
		q.log.Warn("standardize failed", slog.String("url", target), slog.Any("error", err))
		return nil, out
	}
	out.Records = len(records)
	if len(records) == 0 {
		out.Error = errNoListings.Error()
	}
	return records, out
}

func (q *Queue) fetchOnce(ctx context.Context, target string) (models.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, q.cfg.TargetTimeout)
	defer cancel()
	return q.deps.Scraper.Fetch(ctx, target)
}

func (q *Queue) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := q.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := q.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func targetErrors(outcomes []models.TargetOutcome) []string {
	var errs []string
	for _, o := range outcomes {
		if o.Error != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", o.URL, o.Error))
		}
	}
	return errs
}
