package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/cache"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/scraper"
	"github.com/aluiziolira/go-scrape-rentals/store"
)

// fakeTargets maps params to one target per suburb unless targets is set.
type fakeTargets struct {
	targets []string
}

func (f fakeTargets) BuildAll(p models.SearchParams) []string {
	if len(f.targets) > 0 {
		return f.targets
	}
	return []string{"https://rentals.test/" + strings.ToLower(p.Suburb)}
}

type fakeScraper struct {
	mu    sync.Mutex
	calls []string
	fetch func(ctx context.Context, url string, call int) (models.FetchResult, error)
}

func (f *fakeScraper) Fetch(ctx context.Context, url string) (models.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	f.mu.Unlock()
	if f.fetch == nil {
		return models.FetchResult{URL: url, StatusCode: 200}, nil
	}
	return f.fetch(ctx, url, n)
}

func (f *fakeScraper) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeStandardizer emits one record per payload, keyed by URL.
type fakeStandardizer struct{}

func (fakeStandardizer) Standardize(payload models.FetchResult) ([]models.Property, error) {
	if payload.URL == "" {
		return nil, errors.New("empty payload")
	}
	suburb := payload.URL[strings.LastIndex(payload.URL, "/")+1:]
	if suburb == "empty" {
		return nil, nil
	}
	now := time.Now()
	return []models.Property{{
		SourceListingID: payload.URL,
		SourceName:      "rentals.test",
		ListingType:     models.ListingRent,
		Address:         models.Address{Suburb: strings.ToUpper(suburb[:1]) + suburb[1:], State: "NSW", Postcode: "2050"},
		Metadata:        models.Metadata{ScrapedAt: now, LastUpdated: now},
	}}, nil
}

type fakeEvents struct {
	mu       sync.Mutex
	statuses map[string][]models.JobStatus
}

func (f *fakeEvents) Publish(_ context.Context, job *models.ScrapeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string][]models.JobStatus)
	}
	f.statuses[job.ID] = append(f.statuses[job.ID], job.Status)
	return nil
}

func (f *fakeEvents) For(id string) []models.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.JobStatus(nil), f.statuses[id]...)
}

type failingUpsertStore struct {
	*store.Memory
}

func (failingUpsertStore) UpsertMany(context.Context, []models.Property) error {
	return errors.New("deadlock detected")
}

type failingSaveStore struct {
	*store.Memory
}

func (failingSaveStore) SaveJob(context.Context, *models.ScrapeJob) error {
	return errors.New("connection refused")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = map[models.JobKind]int{models.JobSearch: 1, models.JobBulkDetail: 1}
	cfg.TargetTimeout = time.Second
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	cfg.StallCheckInterval = time.Hour
	return cfg
}

func params(suburb string) models.SearchParams {
	return models.SearchParams{
		ListingType: models.ListingRent,
		Suburb:      suburb,
		State:       "NSW",
		Postcode:    "2050",
	}
}

func newTestQueue(t *testing.T, cfg Config, deps Deps) *Queue {
	t.Helper()
	if deps.Targets == nil {
		deps.Targets = fakeTargets{}
	}
	if deps.Standardizer == nil {
		deps.Standardizer = fakeStandardizer{}
	}
	if deps.Scraper == nil {
		deps.Scraper = &fakeScraper{}
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	q, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Close(ctx)
	})
	return q
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, q *Queue, id string, want models.JobStatus) *models.ScrapeJob {
	t.Helper()
	var job *models.ScrapeJob
	waitFor(t, "job "+id+" to be "+string(want), func() bool {
		j, err := q.Job(id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	})
	return job
}

func mustSubmit(t *testing.T, q *Queue, p models.SearchParams, priority models.Priority) string {
	t.Helper()
	id, err := q.Submit(context.Background(), models.JobSearch, p, priority)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return id
}

func TestCriticalRunsBeforeEarlierNormal(t *testing.T) {
	sc := &fakeScraper{}
	q := newTestQueue(t, testConfig(), Deps{Scraper: sc})

	normal := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	critical := mustSubmit(t, q, params("Newtown"), models.PriorityCritical)
	low := mustSubmit(t, q, params("Glebe"), models.PriorityLow)

	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{normal, critical, low} {
		waitStatus(t, q, id, models.StatusCompleted)
	}

	want := []string{"https://rentals.test/newtown", "https://rentals.test/camperdown", "https://rentals.test/glebe"}
	got := sc.Calls()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("execution order = %v, want %v", got, want)
	}
}

func TestSamePriorityIsFIFO(t *testing.T) {
	h := &jobHeap{}
	for i, p := range []models.Priority{models.PriorityHigh, models.PriorityHigh, models.PriorityLow, models.PriorityHigh} {
		h.push(&queuedJob{job: &models.ScrapeJob{ID: string(rune('a' + i)), Priority: p}, seq: uint64(i + 1)})
	}
	var order []string
	for h.Len() > 0 {
		order = append(order, h.pop().job.ID)
	}
	if strings.Join(order, "") != "abdc" {
		t.Fatalf("pop order = %v", order)
	}
}

func TestJobClassification(t *testing.T) {
	targets := []string{"https://rentals.test/a", "https://rentals.test/b", "https://rentals.test/c"}
	tests := []struct {
		name    string
		failing map[string]bool
		want    models.JobStatus
	}{
		{"all succeed", nil, models.StatusCompleted},
		{"one fails", map[string]bool{targets[1]: true}, models.StatusPartial},
		{"all fail", map[string]bool{targets[0]: true, targets[1]: true, targets[2]: true}, models.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &fakeScraper{fetch: func(_ context.Context, url string, _ int) (models.FetchResult, error) {
				if tt.failing[url] {
					return models.FetchResult{}, &scraper.FetchError{URL: url, Err: scraper.ErrNotFound{}}
				}
				return models.FetchResult{URL: url, StatusCode: 200}, nil
			}}
			mem := store.NewMemory()
			q := newTestQueue(t, testConfig(), Deps{Scraper: sc, Store: mem, Targets: fakeTargets{targets: targets}})
			if err := q.Start(context.Background()); err != nil {
				t.Fatal(err)
			}

			id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
			job := waitStatus(t, q, id, tt.want)

			if len(job.Result.Targets) != len(targets) {
				t.Fatalf("expected %d target outcomes, got %d", len(targets), len(job.Result.Targets))
			}
			if len(job.Errors) != len(tt.failing) {
				t.Errorf("expected %d errors, got %v", len(tt.failing), job.Errors)
			}
			waitFor(t, "persisted terminal status", func() bool {
				persisted, ok := mem.Job(id)
				return ok && persisted.Status == tt.want
			})
			if got := len(sc.Calls()); got != len(targets) {
				t.Errorf("non-retryable failures must not retry: %d fetches", got)
			}
		})
	}
}

func TestZeroRecordTargetCountsAsFailed(t *testing.T) {
	targets := []string{"https://rentals.test/a", "https://rentals.test/empty"}
	q := newTestQueue(t, testConfig(), Deps{Targets: fakeTargets{targets: targets}})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	job := waitStatus(t, q, id, models.StatusPartial)
	if job.Result.Targets[1].Error != errNoListings.Error() {
		t.Fatalf("unexpected outcome %+v", job.Result.Targets[1])
	}
}

func TestRetryableFailuresRetryWithBackoff(t *testing.T) {
	sc := &fakeScraper{fetch: func(_ context.Context, url string, call int) (models.FetchResult, error) {
		if call < 3 {
			return models.FetchResult{}, &scraper.FetchError{URL: url, Err: scraper.ErrUpstream{Err: errors.New("status 503")}}
		}
		return models.FetchResult{URL: url, StatusCode: 200}, nil
	}}
	fetchMetrics := scraper.NewMetrics(nil)
	q := newTestQueue(t, testConfig(), Deps{Scraper: sc, FetchMetrics: fetchMetrics})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	job := waitStatus(t, q, id, models.StatusCompleted)
	if got := job.Result.Targets[0].Attempts; got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestRetryBudgetIsBounded(t *testing.T) {
	sc := &fakeScraper{fetch: func(_ context.Context, url string, _ int) (models.FetchResult, error) {
		return models.FetchResult{}, &scraper.FetchError{URL: url, Err: scraper.ErrRateLimited{}}
	}}
	q := newTestQueue(t, testConfig(), Deps{Scraper: sc})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	job := waitStatus(t, q, id, models.StatusFailed)
	if got := job.Result.Targets[0].Attempts; got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	sc := &fakeScraper{fetch: func(_ context.Context, url string, _ int) (models.FetchResult, error) {
		return models.FetchResult{}, &scraper.FetchError{URL: url, Err: scraper.ErrUnauthorized{}}
	}}
	q := newTestQueue(t, testConfig(), Deps{Scraper: sc})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	job := waitStatus(t, q, id, models.StatusFailed)
	if got := job.Result.Targets[0].Attempts; got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestPerTargetTimeoutAllowsPartial(t *testing.T) {
	targets := []string{"https://rentals.test/fast", "https://rentals.test/hang"}
	sc := &fakeScraper{fetch: func(ctx context.Context, url string, _ int) (models.FetchResult, error) {
		if strings.HasSuffix(url, "hang") {
			<-ctx.Done()
			return models.FetchResult{}, &scraper.FetchError{URL: url, Err: scraper.ErrTimeout{Err: ctx.Err()}}
		}
		return models.FetchResult{URL: url, StatusCode: 200}, nil
	}}
	cfg := testConfig()
	cfg.TargetTimeout = 20 * time.Millisecond
	cfg.MaxAttempts = 2
	q := newTestQueue(t, cfg, Deps{Scraper: sc, Targets: fakeTargets{targets: targets}})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	job := waitStatus(t, q, id, models.StatusPartial)
	if job.Result.Targets[1].Attempts != 2 || job.Result.Targets[0].Records != 1 {
		t.Fatalf("unexpected outcomes %+v", job.Result.Targets)
	}
}

func TestSkipsScrapeWhenDataIsFresh(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now()
	fresh := models.Property{
		SourceListingID: "1",
		SourceName:      "rentals.test",
		ListingType:     models.ListingRent,
		Address:         models.Address{Suburb: "Camperdown", State: "NSW", Postcode: "2050"},
		Metadata:        models.Metadata{ScrapedAt: now, LastUpdated: now},
	}
	if err := mem.UpsertMany(context.Background(), []models.Property{fresh}); err != nil {
		t.Fatal(err)
	}
	sc := &fakeScraper{}
	q := newTestQueue(t, testConfig(), Deps{Scraper: sc, Store: mem})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	job := waitStatus(t, q, id, models.StatusCompleted)
	if !job.Result.SkippedFresh {
		t.Fatalf("expected skipped job, got %+v", job.Result)
	}
	if len(sc.Calls()) != 0 {
		t.Fatalf("fresh data must not be re-scraped")
	}
	if q.Stats().Skipped != 1 {
		t.Fatalf("expected skipped counter to be 1")
	}
}

func TestRefreshWritesStoreAndCache(t *testing.T) {
	mem := store.NewMemory()
	pages, err := cache.NewMemory(8)
	if err != nil {
		t.Fatal(err)
	}
	q := newTestQueue(t, testConfig(), Deps{Store: mem, Cache: pages})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := params("Camperdown")
	id := mustSubmit(t, q, p, models.PriorityNormal)
	waitStatus(t, q, id, models.StatusCompleted)

	if mem.Len() != 1 {
		t.Fatalf("expected 1 stored listing, got %d", mem.Len())
	}
	entry, err := pages.Get(context.Background(), cache.Key(p))
	if err != nil || entry == nil {
		t.Fatalf("expected cached page, got %v, %v", entry, err)
	}
	if len(entry.Page.Properties) != 1 || entry.Page.Pagination.Total != 1 {
		t.Fatalf("unexpected cached page %+v", entry.Page)
	}
}

func TestUpsertFailureFailsJob(t *testing.T) {
	q := newTestQueue(t, testConfig(), Deps{Store: failingUpsertStore{store.NewMemory()}})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	job := waitStatus(t, q, id, models.StatusFailed)
	if len(job.Errors) == 0 || !strings.Contains(job.Errors[len(job.Errors)-1], "upsert") {
		t.Fatalf("expected upsert error, got %v", job.Errors)
	}
}

func TestSubmitPersistsBeforeEnqueue(t *testing.T) {
	mem := store.NewMemory()
	q := newTestQueue(t, testConfig(), Deps{Store: mem})

	id := mustSubmit(t, q, params("camperdown"), models.PriorityHigh)
	persisted, ok := mem.Job(id)
	if !ok || persisted.Status != models.StatusPending {
		t.Fatalf("expected pending row, got %+v", persisted)
	}
	if persisted.Params.Suburb != "Camperdown" {
		t.Fatalf("params were not normalized: %q", persisted.Params.Suburb)
	}

	failing := newTestQueue(t, testConfig(), Deps{Store: failingSaveStore{store.NewMemory()}})
	if _, err := failing.Submit(context.Background(), models.JobSearch, params("Camperdown"), models.PriorityNormal); err == nil {
		t.Fatal("expected persistence error")
	}
	if pending := failing.Stats().Kinds[models.JobSearch].Pending[models.PriorityNormal.String()]; pending != 0 {
		t.Fatalf("unpersisted job was queued")
	}
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	q := newTestQueue(t, testConfig(), Deps{})
	p := params("Camperdown")
	p.Postcode = "20"
	_, err := q.Submit(context.Background(), models.JobSearch, p, models.PriorityNormal)
	var verr *models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "postcode" {
		t.Fatalf("expected postcode validation error, got %v", err)
	}
	if _, err := q.Submit(context.Background(), models.JobBulkDetail, params("Camperdown"), models.PriorityNormal); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestCancelPendingJob(t *testing.T) {
	mem := store.NewMemory()
	events := &fakeEvents{}
	q := newTestQueue(t, testConfig(), Deps{Store: mem, Events: events})
	ctx := context.Background()

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	if err := q.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	job, err := q.Job(id)
	if err != nil || job.Status != models.StatusCancelled || job.CompletedAt == nil {
		t.Fatalf("unexpected job after cancel: %+v, %v", job, err)
	}
	if persisted, _ := mem.Job(id); persisted.Status != models.StatusCancelled {
		t.Fatalf("cancel was not persisted: %s", persisted.Status)
	}
	stats := q.Stats()
	if stats.Cancelled != 1 || stats.Kinds[models.JobSearch].Pending[models.PriorityNormal.String()] != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := events.For(id); len(got) != 2 || got[1] != models.StatusCancelled {
		t.Fatalf("unexpected events %v", got)
	}

	if err := q.Cancel(ctx, id); !errors.Is(err, ErrJobNotPending) {
		t.Fatalf("expected ErrJobNotPending, got %v", err)
	}
	if err := q.Cancel(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCancelRunningJobIsRejected(t *testing.T) {
	release := make(chan struct{})
	sc := &fakeScraper{fetch: func(ctx context.Context, url string, _ int) (models.FetchResult, error) {
		<-release
		return models.FetchResult{URL: url, StatusCode: 200}, nil
	}}
	q := newTestQueue(t, testConfig(), Deps{Scraper: sc})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	waitStatus(t, q, id, models.StatusRunning)
	if err := q.Cancel(context.Background(), id); !errors.Is(err, ErrJobNotPending) {
		t.Fatalf("expected ErrJobNotPending, got %v", err)
	}
	close(release)
	waitStatus(t, q, id, models.StatusCompleted)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStalledJobIsRequeuedOnceThenFailed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	sc := &fakeScraper{fetch: func(ctx context.Context, url string, _ int) (models.FetchResult, error) {
		<-ctx.Done()
		return models.FetchResult{}, ctx.Err()
	}}
	cfg := testConfig()
	cfg.TargetTimeout = time.Hour
	cfg.StallWindow = time.Minute
	mem := store.NewMemory()
	q := newTestQueue(t, cfg, Deps{Scraper: sc, Store: mem, Now: clock.Now})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	waitFor(t, "first fetch", func() bool { return len(sc.Calls()) == 1 })

	clock.Advance(30 * time.Second)
	q.sweep()
	if job, _ := q.Job(id); job.Status != models.StatusRunning {
		t.Fatalf("job within the stall window must keep running, got %s", job.Status)
	}

	clock.Advance(time.Minute)
	q.sweep()
	waitFor(t, "requeued run", func() bool { return len(sc.Calls()) == 2 })

	clock.Advance(2 * time.Minute)
	q.sweep()
	job := waitStatus(t, q, id, models.StatusFailed)
	if job.Result == nil || job.Result.Stalls != 2 {
		t.Fatalf("expected 2 stalls recorded, got %+v", job.Result)
	}
	if stats := q.Stats(); stats.Stalled != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	waitFor(t, "persisted failure", func() bool {
		persisted, ok := mem.Job(id)
		return ok && persisted.Status == models.StatusFailed
	})
}

func TestSubmitDetails(t *testing.T) {
	urls := []string{"https://rentals.test/listing-1", "https://rentals.test/listing-2"}
	sc := &fakeScraper{}
	mem := store.NewMemory()
	q := newTestQueue(t, testConfig(), Deps{Scraper: sc, Store: mem})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id, err := q.SubmitDetails(context.Background(), urls, models.PriorityHigh)
	if err != nil {
		t.Fatal(err)
	}
	job := waitStatus(t, q, id, models.StatusCompleted)
	if job.Kind != models.JobBulkDetail || job.Result.Records != 2 || mem.Len() != 2 {
		t.Fatalf("unexpected detail job %+v", job)
	}

	if _, err := q.SubmitDetails(context.Background(), nil, models.PriorityHigh); err == nil {
		t.Fatal("expected an error for an empty URL list")
	}
}

func TestLifecycleEvents(t *testing.T) {
	events := &fakeEvents{}
	q := newTestQueue(t, testConfig(), Deps{Events: events})
	if err := q.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	id := mustSubmit(t, q, params("Camperdown"), models.PriorityNormal)
	waitStatus(t, q, id, models.StatusCompleted)

	want := []models.JobStatus{models.StatusPending, models.StatusRunning, models.StatusCompleted}
	waitFor(t, "completion event", func() bool { return len(events.For(id)) == len(want) })
	for i, s := range events.For(id) {
		if s != want[i] {
			t.Fatalf("events = %v, want %v", events.For(id), want)
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	q := newTestQueue(t, testConfig(), Deps{})
	if err := q.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Submit(context.Background(), models.JobSearch, params("Camperdown"), models.PriorityNormal); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Start(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed from Start, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	q := &Queue{cfg: Config{RetryBackoff: 100 * time.Millisecond, RetryBackoffMax: 300 * time.Millisecond}}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{6, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := q.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Workers = map[models.JobKind]int{models.JobSearch: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing detail workers")
	}
}
