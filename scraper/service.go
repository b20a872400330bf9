package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/config"
	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
)

// serviceWaitFor is how long the rendering service lets a page settle.
const serviceWaitFor = 2 * time.Second

type serviceRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	Timeout         int64    `json:"timeout"`
	WaitFor         int64    `json:"waitFor"`
}

type serviceResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		HTML     string         `json:"html"`
		Markdown string         `json:"markdown"`
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

// ServiceFetcher renders targets through a remote scraping service.
type ServiceFetcher struct {
	*client
	endpoint string
	health   string
	apiKey   string
	timeout  time.Duration
}

// NewServiceFetcher builds a fetcher for cfg.ScrapeServiceURL.
func NewServiceFetcher(cfg *config.Config, metrics *Metrics, logger logging.Logger) (*ServiceFetcher, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ScrapeServiceURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse scrape service url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("scrape service url must include a host")
	}
	if cfg.ScrapeServiceKey == "" {
		return nil, fmt.Errorf("scrape service key cannot be empty")
	}

	c, err := newClient(cfg, "service", []string{base.Host}, metrics, logger)
	if err != nil {
		return nil, err
	}
	// The service does the rendering; robots rules apply to the target, not to it.
	c.collector.IgnoreRobotsTxt = true

	return &ServiceFetcher{
		client:   c,
		endpoint: base.String() + "/v1/scrape",
		health:   base.String() + "/health",
		apiKey:   cfg.ScrapeServiceKey,
		timeout:  cfg.Timeout,
	}, nil
}

// Fetch asks the service to render target and returns its HTML, falling back
// to the markdown rendering when no HTML is returned.
func (s *ServiceFetcher) Fetch(ctx context.Context, target string) (models.FetchResult, error) {
	result := models.FetchResult{URL: target, Metadata: map[string]string{}}
	if _, err := url.ParseRequestURI(target); err != nil {
		return result, s.fail(target, ErrMalformedTarget{Err: err})
	}

	body, err := json.Marshal(serviceRequest{
		URL:             target,
		Formats:         []string{"html", "markdown"},
		OnlyMainContent: true,
		Timeout:         s.timeout.Milliseconds(),
		WaitFor:         serviceWaitFor.Milliseconds(),
	})
	if err != nil {
		return result, fmt.Errorf("encode scrape request: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body), s.headers())
	result.FetchedAt = time.Now().UTC()
	if err != nil {
		if resp != nil {
			result.StatusCode = resp.StatusCode
		}
		return result, retarget(err, target)
	}
	result.StatusCode = resp.StatusCode

	var payload serviceResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return result, s.fail(target, ErrUpstream{Err: fmt.Errorf("decode service response: %w", err)})
	}
	if !payload.Success {
		msg := payload.Error
		if msg == "" {
			msg = "service reported failure"
		}
		return result, s.fail(target, ErrUpstream{Err: errors.New(msg)})
	}

	result.Markup = payload.Data.HTML
	if result.Markup == "" {
		result.Markup = payload.Data.Markdown
	}
	for k, v := range payload.Data.Metadata {
		if text, ok := v.(string); ok {
			result.Metadata[k] = text
		}
	}
	if payload.Data.HTML != "" {
		data, meta := extractStructured(payload.Data.HTML)
		result.StructuredData = data
		for k, v := range meta {
			result.Metadata[k] = v
		}
	}
	return result, nil
}

// Ping checks the service health endpoint.
func (s *ServiceFetcher) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.health, nil, s.headers())
	return err
}

func (s *ServiceFetcher) headers() http.Header {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+s.apiKey)
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Accept", "application/json")
	return hdr
}

// retarget reports a service failure against the listing target rather than
// the service endpoint.
func retarget(err error, target string) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return &FetchError{URL: target, Err: fe.Err}
	}
	return err
}
