package models

import "time"

// RequesterContext identifies who issued a search.
type RequesterContext struct {
	SessionID  string `json:"session_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// SearchExecutionRecord is the append-only audit row for one search call.
type SearchExecutionRecord struct {
	ID           string           `json:"id"`
	Params       SearchParams     `json:"params"`
	CacheKey     string           `json:"cache_key"`
	ResultCount  int              `json:"result_count"`
	TotalCount   int              `json:"total_count"`
	Latency      time.Duration    `json:"latency"`
	Sources      []DataSource     `json:"sources"`
	Stale        bool             `json:"stale"`
	RefreshJobID string           `json:"refresh_job_id,omitempty"`
	Error        string           `json:"error,omitempty"`
	Requester    RequesterContext `json:"requester"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Succeeded reports whether the search finished without a typed failure.
func (r SearchExecutionRecord) Succeeded() bool {
	return r.Error == ""
}
