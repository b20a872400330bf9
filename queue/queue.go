// Package queue runs scrape jobs: per-kind priority queues drained by bounded
// worker pools, with retries, per-target timeouts and stall detection.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"github.com/aluiziolira/go-scrape-rentals/cache"
	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/ports"
	"github.com/aluiziolira/go-scrape-rentals/results"
	"github.com/aluiziolira/go-scrape-rentals/scraper"
)

var (
	// ErrQueueClosed is returned by submissions after Close.
	ErrQueueClosed = errors.New("queue: closed")
	// ErrJobNotFound is returned for ids the queue has never seen or no longer retains.
	ErrJobNotFound = errors.New("queue: job not found")
	// ErrJobNotPending is returned when cancelling a job that already started.
	ErrJobNotPending = errors.New("queue: job is not pending")
	// ErrUnknownKind rejects a job kind without a worker pool.
	ErrUnknownKind = errors.New("queue: unknown job kind")
)

const persistTimeout = 5 * time.Second

// Config holds the queue's tuning knobs.
type Config struct {
	Workers            map[models.JobKind]int
	TargetConcurrency  int
	TargetTimeout      time.Duration
	MaxAttempts        int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	StallWindow        time.Duration
	StallCheckInterval time.Duration
	MaxStalls          int
	RetainJobs         int
	CacheTTL           time.Duration
	FreshnessWindow    time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:            map[models.JobKind]int{models.JobSearch: 2, models.JobBulkDetail: 1},
		TargetConcurrency:  3,
		TargetTimeout:      20 * time.Second,
		MaxAttempts:        3,
		RetryBackoff:       500 * time.Millisecond,
		RetryBackoffMax:    8 * time.Second,
		StallWindow:        2 * time.Minute,
		StallCheckInterval: 30 * time.Second,
		MaxStalls:          1,
		RetainJobs:         1000,
		CacheTTL:           30 * time.Minute,
		FreshnessWindow:    15 * time.Minute,
	}
}

// Validate checks the configuration for obvious errors.
func (c Config) Validate() error {
	for _, kind := range models.JobKinds {
		if c.Workers[kind] <= 0 {
			return fmt.Errorf("workers for %s must be positive", kind)
		}
	}
	if c.TargetConcurrency <= 0 {
		return fmt.Errorf("target concurrency must be positive")
	}
	if c.TargetTimeout <= 0 {
		return fmt.Errorf("target timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 || c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
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
	return nil
}

// Standardizer converts a fetched payload into listing records.
type Standardizer interface {
	Standardize(payload models.FetchResult) ([]models.Property, error)
}

// TargetBuilder expands search parameters into query targets.
type TargetBuilder interface {
	BuildAll(params models.SearchParams) []string
}

// Deps are the collaborators a Queue drives. Targets, Standardizer, Scraper
// and Store are required.
type Deps struct {
	Targets      TargetBuilder
	Standardizer Standardizer
	Scraper      ports.Scraper
	Store        ports.Store
	Cache        ports.Cache
	Pages        *results.Builder
	Events       ports.JobEvents
	Metrics      *Metrics
	FetchMetrics *scraper.Metrics
	Logger       logging.Logger
	Now          func() time.Time
}

// Queue owns the lifecycle of every scrape job it accepts.
type Queue struct {
	cfg       Config
	deps      Deps
	log       logging.Logger
	now       func() time.Time
	freshness models.FreshnessPolicy

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[models.JobKind]*jobHeap
	byID    map[string]*queuedJob
	running map[string]*run
	seq     uint64
	closed  bool
	started bool

	finished *lru.Cache[string, *models.ScrapeJob]
	counters counters

	wg     sync.WaitGroup
	cron   *cron.Cron
	cancel context.CancelFunc
}

type counters struct {
	submitted atomic.Int64
	completed atomic.Int64
	partial   atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	skipped   atomic.Int64
	stalled   atomic.Int64
}

// run is one execution of a job. A stalled run is replaced in Queue.running
// and its outcome is dropped.
type run struct {
	qj       *queuedJob
	ctx      context.Context
	cancel   context.CancelFunc
	lastBeat atomic.Int64
}

func (r *run) beat(at time.Time) { r.lastBeat.Store(at.UnixNano()) }

func (r *run) idleSince() time.Time { return time.Unix(0, r.lastBeat.Load()) }

// New validates cfg and returns a stopped queue. Call Start to run workers.
func New(cfg Config, deps Deps) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}
	if deps.Targets == nil || deps.Standardizer == nil || deps.Scraper == nil || deps.Store == nil {
		return nil, errors.New("queue: targets, standardizer, scraper and store are required")
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

	finished, err := lru.New[string, *models.ScrapeJob](cfg.RetainJobs)
	if err != nil {
		return nil, fmt.Errorf("job retention: %w", err)
	}

	q := &Queue{
		cfg:       cfg,
		deps:      deps,
		log:       deps.Logger,
		now:       deps.Now,
		freshness: models.FreshnessPolicy{Window: cfg.FreshnessWindow},
		pending:   make(map[models.JobKind]*jobHeap, len(models.JobKinds)),
		byID:      make(map[string]*queuedJob),
		running:   make(map[string]*run),
		finished:  finished,
	}
	q.cond = sync.NewCond(&q.mu)
	for _, kind := range models.JobKinds {
		q.pending[kind] = &jobHeap{}
	}
	return q, nil
}

// Submit persists a job for params and queues it. The job id is returned
// once the pending row exists in the store.
func (q *Queue) Submit(ctx context.Context, kind models.JobKind, params models.SearchParams, priority models.Priority) (string, error) {
	if kind != models.JobSearch {
		return "", fmt.Errorf("submit %s with search params: %w", kind, ErrUnknownKind)
	}
	if err := params.Validate(); err != nil {
		return "", err
	}
	job := q.newJob(kind, priority)
	job.Params = params.Normalized()
	return q.enqueue(ctx, job)
}

// SubmitDetails queues a bulk-detail job that refreshes individual listing pages.
func (q *Queue) SubmitDetails(ctx context.Context, urls []string, priority models.Priority) (string, error) {
	if len(urls) == 0 {
		return "", &models.ValidationError{Field: "urls", Reason: "at least one listing URL is required"}
	}
	job := q.newJob(models.JobBulkDetail, priority)
	job.URLs = append([]string(nil), urls...)
	return q.enqueue(ctx, job)
}

func (q *Queue) newJob(kind models.JobKind, priority models.Priority) *models.ScrapeJob {
	return &models.ScrapeJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		Priority:    priority,
		Status:      models.StatusPending,
		SubmittedAt: q.now(),
	}
}

func (q *Queue) enqueue(ctx context.Context, job *models.ScrapeJob) (string, error) {
	if q.isClosed() {
		return "", ErrQueueClosed
	}
	if err := q.deps.Store.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("persist job %s: %w", job.ID, err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	q.seq++
	qj := &queuedJob{job: job, seq: q.seq}
	q.pending[job.Kind].push(qj)
	q.byID[job.ID] = qj
	q.updateGaugesLocked(job.Kind)
	snapshot := job.Clone()
	q.cond.Broadcast()
	q.mu.Unlock()

	q.counters.submitted.Add(1)
	q.deps.Metrics.incSubmitted(snapshot)
	q.log.Info("job submitted",
		slog.String("job_id", snapshot.ID),
		slog.String("kind", string(snapshot.Kind)),
		slog.String("priority", snapshot.Priority.String()))
	q.publish(ctx, snapshot)
	return snapshot.ID, nil
}

// Cancel removes a pending job and records it as cancelled. Jobs that have
// started cannot be cancelled.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	qj, ok := q.byID[id]
	if !ok {
		_, running := q.running[id]
		_, done := q.finished.Peek(id)
		q.mu.Unlock()
		if running || done {
			return fmt.Errorf("cancel %s: %w", id, ErrJobNotPending)
		}
		return fmt.Errorf("cancel %s: %w", id, ErrJobNotFound)
	}
	q.pending[qj.job.Kind].remove(qj)
	delete(q.byID, id)
	if err := qj.job.Transition(models.StatusCancelled, q.now()); err != nil {
		q.mu.Unlock()
		return err
	}
	q.finished.Add(id, qj.job)
	q.updateGaugesLocked(qj.job.Kind)
	snapshot := qj.job.Clone()
	q.mu.Unlock()

	q.counters.cancelled.Add(1)
	q.deps.Metrics.incFinished(snapshot)
	q.log.Info("job cancelled", slog.String("job_id", id))
	q.persist(ctx, snapshot)
	q.publish(ctx, snapshot)
	return nil
}

// Job returns a copy of a pending, running or retained job.
func (q *Queue) Job(id string) (*models.ScrapeJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if qj, ok := q.byID[id]; ok {
		return qj.job.Clone(), nil
	}
	if r, ok := q.running[id]; ok {
		return r.qj.job.Clone(), nil
	}
	if job, ok := q.finished.Get(id); ok {
		return job.Clone(), nil
	}
	return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
}

// Stats returns a snapshot of queue depth, running jobs and lifetime counters.
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	kinds := make(map[models.JobKind]models.KindStats, len(q.pending))
	for kind, h := range q.pending {
		kinds[kind] = models.KindStats{
			Workers: q.cfg.Workers[kind],
			Running: q.runningLocked(kind),
			Pending: h.countByPriority(),
		}
	}
	q.mu.Unlock()

	return models.QueueStats{
		Kinds:     kinds,
		Submitted: q.counters.submitted.Load(),
		Completed: q.counters.completed.Load(),
		Partial:   q.counters.partial.Load(),
		Failed:    q.counters.failed.Load(),
		Cancelled: q.counters.cancelled.Load(),
		Skipped:   q.counters.skipped.Load(),
		Stalled:   q.counters.stalled.Load(),
	}
}

// Start launches the worker pools and the stall sweeper. Runs inherit ctx.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.started {
		q.mu.Unlock()
		return errors.New("queue: already started")
	}
	q.started = true
	q.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.cron = cron.New()
	spec := fmt.Sprintf("@every %s", q.cfg.StallCheckInterval)
	if _, err := q.cron.AddFunc(spec, q.sweep); err != nil {
		cancel()
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	for _, kind := range models.JobKinds {
		for i := 0; i < q.cfg.Workers[kind]; i++ {
			q.wg.Add(1)
			go q.worker(runCtx, kind)
		}
	}
	q.cron.Start()

	q.log.Info("job queue started",
		slog.Int("search_workers", q.cfg.Workers[models.JobSearch]),
		slog.Int("detail_workers", q.cfg.Workers[models.JobBulkDetail]),
		slog.String("stall_check", spec))
	return nil
}

// Close stops accepting jobs and waits for running jobs to finish. Pending
// jobs stay persisted as pending. When ctx expires first, running jobs are
// cancelled and ctx's error is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	if q.cron != nil {
		<-q.cron.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if q.cancel != nil {
			q.cancel()
		}
		<-done
		return ctx.Err()
	}
	if q.cancel != nil {
		q.cancel()
	}
	return nil
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) worker(ctx context.Context, kind models.JobKind) {
	defer q.wg.Done()
	for {
		r, snapshot, ok := q.next(ctx, kind)
		if !ok {
			return
		}
		q.log.Debug("job started", slog.String("job_id", snapshot.ID), slog.String("kind", string(kind)))
		q.persist(ctx, snapshot)
		q.publish(ctx, snapshot)
		q.execute(r)
	}
}

// next blocks until a job of kind is available or the queue closes.
func (q *Queue) next(ctx context.Context, kind models.JobKind) (*run, *models.ScrapeJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.pending[kind]
	for !q.closed && h.Len() == 0 {
		q.cond.Wait()
	}
	if q.closed {
		return nil, nil, false
	}

	qj := h.pop()
	delete(q.byID, qj.job.ID)
	now := q.now()
	if err := qj.job.Transition(models.StatusRunning, now); err != nil {
		q.log.Error("dequeued job in unexpected state", slog.String("job_id", qj.job.ID), slog.Any("error", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{qj: qj, ctx: runCtx, cancel: cancel}
	r.beat(now)
	q.running[qj.job.ID] = r
	q.updateGaugesLocked(kind)
	return r, qj.job.Clone(), true
}

// finish records the outcome of r unless the run was superseded.
func (q *Queue) finish(r *run, out outcome) {
	id := r.qj.job.ID

	q.mu.Lock()
	if q.running[id] != r {
		q.mu.Unlock()
		q.log.Debug("discarding outcome of superseded run", slog.String("job_id", id))
		return
	}
	delete(q.running, id)

	job := r.qj.job
	out.result.Stalls = r.qj.stalls
	job.Result = &out.result
	job.Errors = append(job.Errors, out.errs...)
	if err := job.Transition(out.status, q.now()); err != nil {
		q.log.Error("finish job", slog.String("job_id", id), slog.Any("error", err))
	}
	q.finished.Add(id, job)
	q.updateGaugesLocked(job.Kind)
	snapshot := job.Clone()
	q.mu.Unlock()

	q.countFinished(snapshot)
	q.log.Info("job finished",
		slog.String("job_id", id),
		slog.String("status", string(snapshot.Status)),
		slog.Int("records", out.result.Records),
		slog.Bool("skipped_fresh", out.result.SkippedFresh))
	q.persist(r.ctx, snapshot)
	q.publish(r.ctx, snapshot)
}

func (q *Queue) countFinished(job *models.ScrapeJob) {
	switch job.Status {
	case models.StatusCompleted:
		q.counters.completed.Add(1)
		if job.Result != nil && job.Result.SkippedFresh {
			q.counters.skipped.Add(1)
		}
	case models.StatusPartial:
		q.counters.partial.Add(1)
	case models.StatusFailed:
		q.counters.failed.Add(1)
	}
	q.deps.Metrics.incFinished(job)
}

// sweep flags runs idle for longer than the stall window. A job is requeued
// at its original position up to MaxStalls times and failed after that.
func (q *Queue) sweep() {
	now := q.now()
	var changed []*models.ScrapeJob

	q.mu.Lock()
	for id, r := range q.running {
		if now.Sub(r.idleSince()) <= q.cfg.StallWindow {
			continue
		}
		delete(q.running, id)
		r.cancel()

		qj := r.qj
		job := qj.job
		q.counters.stalled.Add(1)
		q.deps.Metrics.incStalls()

		if qj.stalls < q.cfg.MaxStalls {
			qj.stalls++
			if err := job.Transition(models.StatusPending, now); err == nil {
				q.pending[job.Kind].push(qj)
				q.byID[id] = qj
				q.cond.Broadcast()
			}
		} else {
			qj.stalls++
			job.Errors = append(job.Errors, fmt.Sprintf("stalled %d times", qj.stalls))
			job.Result = &models.JobResult{Stalls: qj.stalls}
			if err := job.Transition(models.StatusFailed, now); err == nil {
				q.finished.Add(id, job)
			}
		}
		q.updateGaugesLocked(job.Kind)
		changed = append(changed, job.Clone())
	}
	q.mu.Unlock()

	ctx := context.Background()
	for _, job := range changed {
		q.log.Warn("job stalled",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)))
		if job.Status == models.StatusFailed {
			q.countFinished(job)
		}
		q.persist(ctx, job)
		q.publish(ctx, job)
	}
}

func (q *Queue) runningLocked(kind models.JobKind) int {
	n := 0
	for _, r := range q.running {
		if r.qj.job.Kind == kind {
			n++
		}
	}
	return n
}

func (q *Queue) updateGaugesLocked(kind models.JobKind) {
	q.deps.Metrics.setDepth(kind, q.pending[kind].Len(), q.runningLocked(kind))
}

// persist writes job state. It survives cancellation of ctx so a shutdown
// still records how the job ended.
func (q *Queue) persist(ctx context.Context, job *models.ScrapeJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := q.deps.Store.UpdateJobResult(ctx, job); err != nil {
		q.log.Warn("persist job failed",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)),
			slog.Any("error", err))
	}
}

func (q *Queue) publish(ctx context.Context, job *models.ScrapeJob) {
	if q.deps.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := q.deps.Events.Publish(ctx, job); err != nil {
		q.log.Warn("publish job event failed",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)),
			slog.Any("error", err))
	}
}
