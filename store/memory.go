package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// Memory is a Store kept in process memory. It honours the same contract as
// Postgres, including all-or-nothing batches.
type Memory struct {
	mu         sync.RWMutex
	properties map[models.NaturalKey]models.Property
	jobs       map[string]*models.ScrapeJob
	executions []models.SearchExecutionRecord
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		properties: make(map[models.NaturalKey]models.Property),
		jobs:       make(map[string]*models.ScrapeJob),
	}
}

func (m *Memory) UpsertMany(ctx context.Context, records []models.Property) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateBatch(records); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		key := r.Key()
		if stored, ok := m.properties[key]; ok {
			r = merge(stored, r)
		}
		m.properties[key] = r
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, filter models.PropertyFilter, offset, limit int) ([]models.Property, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	matched := make([]models.Property, 0)
	for _, p := range m.properties {
		if filter.Matches(p) {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	sortProperties(matched, filter.Sort)
	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []models.Property{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (m *Memory) GetByKey(ctx context.Context, key models.NaturalKey) (*models.Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.properties[key]
	if !ok {
		return nil, fmt.Errorf("property %s: %w", key, ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) LocationSuggestions(ctx context.Context, prefix string, limit int) ([]models.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	prefix = strings.TrimSpace(prefix)

	m.mu.RLock()
	counts := make(map[models.Location]int)
	for _, p := range m.properties {
		if p.Address.Suburb == "" || p.Address.Postcode == "" {
			continue
		}
		loc := models.Location{Suburb: p.Address.Suburb, State: p.Address.State, Postcode: p.Address.Postcode}
		if matchesLocationPrefix(loc, prefix) {
			counts[loc]++
		}
	}
	m.mu.RUnlock()

	locs := make([]models.Location, 0, len(counts))
	for loc, n := range counts {
		loc.Listings = n
		locs = append(locs, loc)
	}
	return rankLocations(locs, limit), nil
}

func (m *Memory) SaveJob(ctx context.Context, job *models.ScrapeJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) UpdateJobResult(ctx context.Context, job *models.ScrapeJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) AppendExecutionRecord(ctx context.Context, record models.SearchExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, record)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Job returns the persisted copy of a job.
func (m *Memory) Job(id string) (*models.ScrapeJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// Jobs returns the number of persisted jobs.
func (m *Memory) Jobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Executions returns a copy of the search history.
func (m *Memory) Executions() []models.SearchExecutionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SearchExecutionRecord, len(m.executions))
	copy(out, m.executions)
	return out
}

// Len returns the number of stored listings.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.properties)
}
