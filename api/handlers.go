// Package api exposes the search service and job queue over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aluiziolira/go-scrape-rentals/export"
	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/ports"
	"github.com/aluiziolira/go-scrape-rentals/querybuilder"
	"github.com/aluiziolira/go-scrape-rentals/queue"
	"github.com/aluiziolira/go-scrape-rentals/store"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
	// SessionHeader identifies the caller's session in execution records.
	SessionHeader = "X-Session-ID"
)

// Searcher is the search service surface the controllers use.
type Searcher interface {
	Search(ctx context.Context, params models.SearchParams, requester models.RequesterContext) models.ResultPage
	GetByKey(ctx context.Context, key models.NaturalKey) (*models.Property, error)
	LocationSuggestions(ctx context.Context, text string, limit int) ([]models.Location, error)
	QueueStats() models.QueueStats
	InvalidateCache(ctx context.Context, pattern string) (int, error)
	RequestRefresh(ctx context.Context, params models.SearchParams, priority models.Priority) (string, error)
}

// Jobs is the job queue surface the controllers use.
type Jobs interface {
	SubmitDetails(ctx context.Context, urls []string, priority models.Priority) (string, error)
	Cancel(ctx context.Context, id string) error
	Job(id string) (*models.ScrapeJob, error)
}

// Check is one dependency probed by /readyz.
type Check struct {
	Name   string
	Pinger ports.Pinger
}

// Handler holds the HTTP controllers.
type Handler struct {
	search    Searcher
	jobs      Jobs
	validator *Validator
	checks    []Check
	log       logging.Logger
}

// NewHandler wires the controllers. checks are probed in order by /readyz.
func NewHandler(search Searcher, jobs Jobs, validator *Validator, logger logging.Logger, checks ...Check) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{search: search, jobs: jobs, validator: validator, checks: checks, log: logger}
}

// SearchGet handles GET /api/v1/search.
func (h *Handler) SearchGet(w http.ResponseWriter, r *http.Request) {
	params, err := ParseSearchQuery(r.URL.Query())
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondSearch(w, r, params)
}

// SearchPost handles POST /api/v1/search with a JSON body.
func (h *Handler) SearchPost(w http.ResponseWriter, r *http.Request) {
	var params models.SearchParams
	if !h.decodeBody(w, r, searchRequestSchema, &params) {
		return
	}
	h.respondSearch(w, r, params)
}

func (h *Handler) respondSearch(w http.ResponseWriter, r *http.Request, params models.SearchParams) {
	page := h.search.Search(r.Context(), params, requesterFrom(r))
	RespondWithJSON(w, pageStatus(page), page)
}

// Export handles GET /api/v1/export, writing one search page as CSV or JSONL.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format := query.Get("format")
	if format == "" {
		format = string(export.FormatCSV)
	}
	parsed, err := export.ParseFormat(format)
	if err != nil || parsed == export.FormatDual {
		WriteJSONError(w, http.StatusBadRequest, "format must be csv or jsonl")
		return
	}

	params, err := ParseSearchQuery(query)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := h.search.Search(r.Context(), params, requesterFrom(r))
	if page.Error != nil {
		RespondWithJSON(w, pageStatus(page), page)
		return
	}

	switch parsed {
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", `attachment; filename="listings.jsonl"`)
		err = export.WriteJSONL(w, page.Properties)
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="listings.csv"`)
		err = export.WriteCSV(w, page.Properties)
	}
	if err != nil {
		h.log.Warn("export write failed", slog.String("trace_id", TraceIDFromContext(r.Context())), slog.Any("error", err))
	}
}

// GetProperty handles GET /api/v1/properties/{source}/{id}.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	key := models.NaturalKey{
		SourceName:      chi.URLParam(r, "source"),
		SourceListingID: chi.URLParam(r, "id"),
	}
	p, err := h.search.GetByKey(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, p)
}

// Locations handles GET /api/v1/locations?q=&limit=.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if text := query.Get("limit"); text != "" {
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			WriteJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	locations, err := h.search.LocationSuggestions(r.Context(), query.Get("q"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"locations": locations})
}

// QueueStats handles GET /api/v1/queue/stats.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, h.search.QueueStats())
}

type jobRequest struct {
	Kind     models.JobKind  `json:"kind"`
	Priority models.Priority `json:"priority"`
	Params   json.RawMessage `json:"params"`
	URLs     []string        `json:"urls"`
}

// SubmitJob handles POST /api/v1/jobs.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r, jobRequestSchema)
	if !ok {
		return
	}
	req := jobRequest{Priority: models.PriorityNormal}
	if err := json.Unmarshal(body, &req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		id  string
		err error
	)
	switch req.Kind {
	case models.JobSearch:
		if err := h.validator.Validate(searchRequestSchema, req.Params); err != nil {
			WriteJSONError(w, http.StatusBadRequest, "params: "+err.Error())
			return
		}
		var params models.SearchParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, err = h.search.RequestRefresh(r.Context(), params, req.Priority)
	case models.JobBulkDetail:
		id, err = h.jobs.SubmitDetails(r.Context(), req.URLs, req.Priority)
	default:
		err = fmt.Errorf("%w: %s", queue.ErrUnknownKind, req.Kind)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+url.PathEscape(id))
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Job(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/v1/jobs/{id}.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateCache handles DELETE /api/v1/cache?pattern=.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.search.InvalidateCache(r.Context(), r.URL.Query().Get("pattern"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz pings every registered dependency.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.Pinger.Ping(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			results[c.Name] = err.Error()
			h.log.Warn("readiness check failed", slog.String("check", c.Name), slog.Any("error", err))
			continue
		}
		results[c.Name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	}
	RespondWithJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, schema string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	if err := h.validator.Validate(schema, body); err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return body, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, schema string, dst interface{}) bool {
	body, ok := h.readBody(w, r, schema)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			slog.String("trace_id", TraceIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	WriteJSONError(w, status, err.Error())
}

func errorStatus(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, queue.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrJobNotPending):
		return http.StatusConflict
	case errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func pageStatus(page models.ResultPage) int {
	if page.Error == nil {
		return http.StatusOK
	}
	switch page.Error.Kind {
	case models.ErrorValidation:
		return http.StatusBadRequest
	case models.ErrorStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func requesterFrom(r *http.Request) models.RequesterContext {
	return models.RequesterContext{
		SessionID:  r.Header.Get(SessionHeader),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}

// ParseSearchQuery reads SearchParams from URL query values. Ranges use the
// min-max form (e.g. bedrooms=2-any, price=0-800).
func ParseSearchQuery(values url.Values) (models.SearchParams, error) {
	p := models.SearchParams{
		ListingType:  models.ListingType(values.Get("listing_type")),
		Suburb:       values.Get("suburb"),
		State:        values.Get("state"),
		Postcode:     values.Get("postcode"),
		PropertyType: models.PropertyType(values.Get("property_type")),
		Sort:         models.SortKey(values.Get("sort")),
	}
	if p.ListingType == "" {
		p.ListingType = models.ListingRent
	}

	ranges := []struct {
		name string
		dst  *models.Range
	}{
		{"bedrooms", &p.Bedrooms},
		{"bathrooms", &p.Bathrooms},
		{"price", &p.Price},
	}
	for _, rg := range ranges {
		r, err := querybuilder.DecodeRange(strings.TrimSpace(values.Get(rg.name)))
		if err != nil {
			return models.SearchParams{}, &models.ValidationError{Field: rg.name, Reason: err.Error()}
		}
		*rg.dst = r
	}

	ints := []struct {
		name string
		set  func(int)
	}{
		{"parking", func(n int) { p.Parking = models.IntPtr(n) }},
		{"page", func(n int) { p.Page = n }},
		{"page_size", func(n int) { p.PageSize = n }},
	}
	for _, f := range ints {
		text := strings.TrimSpace(values.Get(f.name))
		if text == "" {
			continue
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return models.SearchParams{}, &models.ValidationError{Field: f.name, Reason: fmt.Sprintf("%q is not a number", text)}
		}
		f.set(n)
	}
	return p, nil
}
