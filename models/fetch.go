package models

import (
	"encoding/json"
	"time"
)

// FetchResult is the raw payload returned by a scrape adapter.
type FetchResult struct {
	URL            string            `json:"url"`
	StatusCode     int               `json:"status_code"`
	Markup         string            `json:"markup,omitempty"`
	StructuredData json.RawMessage   `json:"structured_data,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	FetchedAt      time.Time         `json:"fetched_at"`
}
