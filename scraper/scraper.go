package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/config"
	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/gocolly/colly/v2"
)

const (
	ctxResponse = "response"
	ctxError    = "error"
)

// client issues single requests through a shared colly collector and hands
// the response back to the caller. Retries are left to the caller.
type client struct {
	collector *colly.Collector
	adapter   string
	metrics   *Metrics
	logger    logging.Logger
}

func newClient(cfg *config.Config, adapter string, allowedHosts []string, metrics *Metrics, logger logging.Logger) (*client, error) {
	collector := colly.NewCollector(
		colly.AllowedDomains(allowedHosts...),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	if logger == nil {
		logger = logging.Nop()
	}
	c := &client{collector: collector, adapter: adapter, metrics: metrics, logger: logger}
	c.configureHandlers()
	return c, nil
}

func (c *client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		c.metrics.IncRequest(c.adapter)
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxResponse, r)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			c.metrics.ObserveDuration(c.adapter, time.Since(start))
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Request == nil {
			return
		}
		r.Request.Ctx.Put(ctxResponse, r)
		r.Request.Ctx.Put(ctxError, err)
	})
}

// do performs one request and returns the response or a classified error.
// The call returns as soon as ctx is done; the collector's own timeout bounds
// the abandoned request.
func (c *client) do(ctx context.Context, method, target string, body io.Reader, hdr http.Header) (*colly.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.fail(target, classifyError(err, 0))
	}

	reqCtx := colly.NewContext()
	done := make(chan error, 1)
	go func() {
		done <- c.collector.Request(method, target, body, reqCtx, hdr)
	}()

	var err error
	select {
	case <-ctx.Done():
		return nil, c.fail(target, classifyError(ctx.Err(), 0))
	case err = <-done:
	}

	resp, _ := reqCtx.GetAny(ctxResponse).(*colly.Response)
	if err == nil && resp != nil {
		return resp, nil
	}
	if err == nil {
		if cbErr, ok := reqCtx.GetAny(ctxError).(error); ok {
			err = cbErr
		} else {
			err = fmt.Errorf("no response")
		}
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	classified := classifyError(err, status)
	if status != 0 {
		c.logger.Warn("non-2xx response",
			"adapter", c.adapter,
			"status", status,
			"url", target,
		)
	}
	return resp, c.fail(target, classified)
}

func (c *client) fail(target string, err error) error {
	label := errorTypeLabel(err)
	c.metrics.IncError(c.adapter, label)
	c.logger.Debug("fetch failed",
		"adapter", c.adapter,
		"url", target,
		"category", label,
		"error", err,
	)
	return &FetchError{URL: target, Err: err}
}

// Fetcher downloads listing pages directly from the source site.
type Fetcher struct {
	*client
}

// NewFetcher builds a direct fetcher restricted to the host of cfg.BaseURL.
func NewFetcher(cfg *config.Config, metrics *Metrics, logger logging.Logger) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	hosts := []string{parsed.Host}
	if bare := strings.TrimPrefix(parsed.Host, "www."); bare != parsed.Host {
		hosts = append(hosts, bare)
	} else {
		hosts = append(hosts, "www."+parsed.Host)
	}

	c, err := newClient(cfg, "direct", hosts, metrics, logger)
	if err != nil {
		return nil, err
	}
	return &Fetcher{client: c}, nil
}

// Fetch downloads target and extracts any embedded structured data.
func (f *Fetcher) Fetch(ctx context.Context, target string) (models.FetchResult, error) {
	resp, err := f.do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		result := models.FetchResult{URL: target, FetchedAt: time.Now().UTC()}
		if resp != nil {
			result.StatusCode = resp.StatusCode
		}
		return result, err
	}

	result := models.FetchResult{
		URL:        target,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now().UTC(),
		Metadata:   map[string]string{},
	}
	contentType := ""
	if resp.Headers != nil {
		contentType = resp.Headers.Get("Content-Type")
	}
	if contentType != "" {
		result.Metadata["content_type"] = contentType
	}

	if strings.Contains(contentType, "json") {
		result.StructuredData = append([]byte(nil), resp.Body...)
		return result, nil
	}

	result.Markup = string(resp.Body)
	data, meta := extractStructured(result.Markup)
	result.StructuredData = data
	for k, v := range meta {
		result.Metadata[k] = v
	}
	return result, nil
}
