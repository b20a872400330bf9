package models

import (
	"time"
)

// DataSource names the component that answered a search.
type DataSource string

const (
	SourceCache DataSource = "cache"
	SourceStore DataSource = "store"
	SourceQueue DataSource = "queue"
)

// ErrorKind classifies failures reported inside a search response.
type ErrorKind string

const (
	ErrorValidation      ErrorKind = "validation"
	ErrorUpstreamFetch   ErrorKind = "upstream_fetch"
	ErrorStandardization ErrorKind = "standardization"
	ErrorStore           ErrorKind = "store"
	ErrorCache           ErrorKind = "cache"
)

// SearchError is the typed failure carried by a ResultPage.
type SearchError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Pagination describes the position of a page within the full result set.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// FacetCount is a distinct value and its number of occurrences.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// PriceBucket counts prices in [Min, Max). A nil Max is open-ended.
type PriceBucket struct {
	Label string   `json:"label"`
	Min   float64  `json:"min"`
	Max   *float64 `json:"max,omitempty"`
	Count int      `json:"count"`
}

// Facets summarise a result page.
type Facets struct {
	Suburbs       []FacetCount  `json:"suburbs"`
	PropertyTypes []FacetCount  `json:"property_types"`
	PriceBuckets  []PriceBucket `json:"price_buckets"`
}

// ResultPage is the response to a search. Pagination is nil for an empty,
// unpaginated answer.
type ResultPage struct {
	Properties   []Property   `json:"properties"`
	Pagination   *Pagination  `json:"pagination,omitempty"`
	Facets       *Facets      `json:"facets,omitempty"`
	Source       DataSource   `json:"source,omitempty"`
	Stale        bool         `json:"stale,omitempty"`
	RefreshJobID string       `json:"refresh_job_id,omitempty"`
	Error        *SearchError `json:"error,omitempty"`
}

// CacheEntry is a cached result page.
type CacheEntry struct {
	Page      ResultPage    `json:"page"`
	WrittenAt time.Time     `json:"written_at"`
	TTL       time.Duration `json:"ttl"`
}

// Expired reports whether the entry outlived its TTL at now. A zero TTL never expires.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.WrittenAt) >= e.TTL
}

// FreshnessPolicy decides when stored data needs a background refresh.
type FreshnessPolicy struct {
	Window time.Duration
}

// Stale reports whether records are empty or any record was scraped longer
// than Window before now.
func (f FreshnessPolicy) Stale(records []Property, now time.Time) bool {
	if len(records) == 0 {
		return true
	}
	for _, r := range records {
		if now.Sub(r.Metadata.ScrapedAt) > f.Window {
			return true
		}
	}
	return false
}
