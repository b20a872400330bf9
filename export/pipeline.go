// Package export writes stored listings to CSV and JSONL files through a
// batching, de-duplicating pipeline.
package export

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("export: pipeline closed")

const defaultBatchSize = 64

// Writer is an export destination.
type Writer interface {
	Write(records []models.Property) error
	Close() error
	Validate() error
}

// Stats counts what the pipeline did with the records it received.
type Stats struct {
	Written    int64 `json:"written"`
	Invalid    int64 `json:"invalid"`
	Duplicates int64 `json:"duplicates"`
}

// Pipeline drops keyless and repeated records and writes the rest in batches.
type Pipeline struct {
	writer    Writer
	ch        chan models.Property
	batchSize int
	log       logging.Logger

	wg sync.WaitGroup

	seen   map[models.NaturalKey]struct{}
	seenMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline. A non-positive batchSize uses the default.
func NewPipeline(writer Writer, batchSize int, logger logging.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		writer:    writer,
		ch:        make(chan models.Property, 512),
		batchSize: batchSize,
		log:       logger,
		seen:      make(map[models.NaturalKey]struct{}),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines. One worker preserves input order.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues records for writing.
func (p *Pipeline) Process(records ...models.Property) error {
	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, r := range records {
		if err := p.enqueue(r); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to flush and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.ch)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first write error.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// StartProgressReporting logs the counters every interval until Close.
func (p *Pipeline) StartProgressReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s := p.Stats()
				p.log.Info("export progress",
					slog.Int64("written", s.Written),
					slog.Int64("invalid", s.Invalid),
					slog.Int64("duplicates", s.Duplicates))
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]models.Property, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		p.count(func(s *Stats) { s.Written += int64(len(batch)) })
		batch = batch[:0]
		return nil
	}

	for r := range p.ch {
		if !p.accept(r) {
			continue
		}
		batch = append(batch, r)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) accept(r models.Property) bool {
	if !r.HasKey() {
		p.count(func(s *Stats) { s.Invalid++ })
		return false
	}

	key := r.Key()
	p.seenMu.Lock()
	if _, ok := p.seen[key]; ok {
		p.seenMu.Unlock()
		p.count(func(s *Stats) { s.Duplicates++ })
		return false
	}
	p.seen[key] = struct{}{}
	p.seenMu.Unlock()
	return true
}

func (p *Pipeline) count(update func(*Stats)) {
	p.statsMu.Lock()
	update(&p.stats)
	p.statsMu.Unlock()
}

func (p *Pipeline) enqueue(r models.Property) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.ch <- r:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.ch)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}
