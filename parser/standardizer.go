// Package parser converts raw scraped payloads into canonical property
// records.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// Config tunes a Standardizer.
type Config struct {
	// SourceName overrides the source derived from the payload host.
	SourceName string
	// MaxDepth bounds the structured-data walk.
	MaxDepth int
	Currency string
}

// DefaultConfig returns the defaults used by the service.
func DefaultConfig() Config {
	return Config{
		MaxDepth: 6,
		Currency: "AUD",
	}
}

// StandardizationError reports a payload that could not be decoded at all.
type StandardizationError struct {
	SourceURL string
	Err       error
}

func (e *StandardizationError) Error() string {
	return fmt.Sprintf("standardize %s: %v", e.SourceURL, e.Err)
}

func (e *StandardizationError) Unwrap() error {
	return e.Err
}

// Report is the outcome of one standardization pass.
type Report struct {
	Records     []models.Property
	Provenance  models.Provenance
	Skipped     int
	SkipReasons map[string]int
}

func (r *Report) skip(reason string) {
	r.Skipped++
	r.SkipReasons[reason]++
}

// Standardizer maps scraped payloads to canonical records. It holds no
// mutable state and is safe for concurrent use.
type Standardizer struct {
	cfg Config
	now func() time.Time
}

// New builds a Standardizer, filling unset fields from DefaultConfig.
func New(cfg Config) *Standardizer {
	defaults := DefaultConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.MaxDepth
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	return &Standardizer{cfg: cfg, now: time.Now}
}

// Standardize returns the canonical records found in payload.
func (s *Standardizer) Standardize(payload models.FetchResult) ([]models.Property, error) {
	report, err := s.Analyze(payload)
	if err != nil {
		return nil, err
	}
	return report.Records, nil
}

// Analyze standardizes payload and reports how the records were found.
// Structured data is preferred; rendered text is scanned only when the
// structured path yields nothing. Malformed elements are skipped. An error
// is returned only when nothing in the payload can be decoded.
func (s *Standardizer) Analyze(payload models.FetchResult) (Report, error) {
	report := Report{SkipReasons: make(map[string]int)}
	page, err := url.Parse(payload.URL)
	if err != nil || payload.URL == "" {
		page = nil
	}
	scrapedAt := payload.FetchedAt
	if scrapedAt.IsZero() {
		scrapedAt = s.now()
	}
	scrapedAt = scrapedAt.UTC()

	structured := bytes.TrimSpace(payload.StructuredData)
	hasStructured := len(structured) > 0 && !bytes.Equal(structured, []byte("null"))
	hasMarkup := strings.TrimSpace(payload.Markup) != ""
	if !hasStructured && !hasMarkup {
		return report, &StandardizationError{SourceURL: payload.URL, Err: errors.New("empty payload")}
	}

	var decodeErr error
	if hasStructured {
		root, err := decodeJSON(structured)
		if err != nil {
			decodeErr = err
		} else {
			records := s.fromStructured(root, page, scrapedAt, &report)
			if len(records) > 0 {
				report.Records = Dedupe(records)
				report.Provenance = models.ProvenanceStructured
				return report, nil
			}
		}
	}

	if hasMarkup {
		lines, err := renderLines(payload.Markup)
		if err != nil {
			if decodeErr != nil {
				return report, &StandardizationError{SourceURL: payload.URL, Err: errors.Join(decodeErr, err)}
			}
			return report, nil
		}
		if records := s.textFallback(lines, page, scrapedAt); len(records) > 0 {
			report.Records = Dedupe(records)
			report.Provenance = models.ProvenanceText
		}
		return report, nil
	}

	if decodeErr != nil {
		return report, &StandardizationError{SourceURL: payload.URL, Err: decodeErr}
	}
	return report, nil
}

func (s *Standardizer) fromStructured(root any, page *url.URL, scrapedAt time.Time, report *Report) []models.Property {
	var elements []map[string]any
	findListingArrays(root, 0, s.cfg.MaxDepth, &elements)
	if len(elements) == 0 {
		if obj, ok := findListingObject(root, s.cfg.MaxDepth); ok {
			elements = append(elements, obj)
		}
	}

	records := make([]models.Property, 0, len(elements))
	for _, el := range elements {
		p, err := s.mapListing(el, page, scrapedAt)
		if err != nil {
			report.skip(err.Error())
			continue
		}
		records = append(records, p)
	}
	return records
}

func (s *Standardizer) sourceName(page *url.URL) string {
	if s.cfg.SourceName != "" {
		return s.cfg.SourceName
	}
	if page == nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(page.Hostname()), "www.")
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode structured data: %w", err)
	}
	return root, nil
}
