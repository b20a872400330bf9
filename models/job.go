package models

import (
	"fmt"
	"strings"
	"time"
)

// JobKind separates queues with independent worker pools.
type JobKind string

const (
	JobSearch     JobKind = "search"
	JobBulkDetail JobKind = "bulk-detail"
)

// JobKinds lists every kind the queue serves.
var JobKinds = []JobKind{JobSearch, JobBulkDetail}

// Priority is an ordered job priority class.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Priorities lists the classes from highest to lowest.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses a priority class name.
func ParsePriority(text string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", text)
	}
}

// MarshalText encodes the class name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a class name.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
	StatusCancelled JobStatus = "cancelled"
)

// running → pending is the single stall requeue.
var validTransitions = map[JobStatus][]JobStatus{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusPartial, StatusPending},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// TargetOutcome is the result of one query target within a job.
type TargetOutcome struct {
	URL      string `json:"url"`
	Records  int    `json:"records"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Succeeded reports whether the target produced at least one record.
func (t TargetOutcome) Succeeded() bool {
	return t.Error == "" && t.Records > 0
}

// JobResult summarises a finished job.
type JobResult struct {
	Targets      []TargetOutcome `json:"targets,omitempty"`
	Records      int             `json:"records"`
	SkippedFresh bool            `json:"skipped_fresh,omitempty"`
	Stalls       int             `json:"stalls,omitempty"`
}

// ScrapeJob is a request for fresh data, owned by the job queue.
type ScrapeJob struct {
	ID          string       `json:"id"`
	Kind        JobKind      `json:"kind"`
	Params      SearchParams `json:"params"`
	URLs        []string     `json:"urls,omitempty"`
	Priority    Priority     `json:"priority"`
	Status      JobStatus    `json:"status"`
	SubmittedAt time.Time    `json:"submitted_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Result      *JobResult   `json:"result,omitempty"`
	Errors      []string     `json:"errors,omitempty"`
}

// Transition moves the job to status to, stamping lifecycle timestamps.
func (j *ScrapeJob) Transition(to JobStatus, at time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("job %s: transition %s -> %s not allowed", j.ID, j.Status, to)
	}
	switch {
	case to == StatusRunning:
		j.StartedAt = &at
	case to == StatusPending:
		j.StartedAt = nil
	case to.Terminal():
		j.CompletedAt = &at
	}
	j.Status = to
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *ScrapeJob) Clone() *ScrapeJob {
	out := *j
	out.URLs = append([]string(nil), j.URLs...)
	out.Errors = append([]string(nil), j.Errors...)
	if j.Result != nil {
		result := *j.Result
		result.Targets = append([]TargetOutcome(nil), j.Result.Targets...)
		out.Result = &result
	}
	return &out
}

// ClassifyTargets derives the terminal status from per-target outcomes:
// completed when every target succeeded, failed when none did and partial
// otherwise.
func ClassifyTargets(outcomes []TargetOutcome) JobStatus {
	succeeded := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		}
	}
	switch {
	case len(outcomes) == 0 || succeeded == 0:
		return StatusFailed
	case succeeded == len(outcomes):
		return StatusCompleted
	default:
		return StatusPartial
	}
}

// KindStats describes one job kind's queue.
type KindStats struct {
	Workers int            `json:"workers"`
	Running int            `json:"running"`
	Pending map[string]int `json:"pending"`
}

// QueueStats is a point-in-time snapshot of the job queue.
type QueueStats struct {
	Kinds     map[JobKind]KindStats `json:"kinds"`
	Submitted int64                 `json:"submitted"`
	Completed int64                 `json:"completed"`
	Partial   int64                 `json:"partial"`
	Failed    int64                 `json:"failed"`
	Cancelled int64                 `json:"cancelled"`
	Skipped   int64                 `json:"skipped"`
	Stalled   int64                 `json:"stalled"`
}
