package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrUnauthorized indicates rejected credentials (HTTP 401).
type ErrUnauthorized struct {
	Err error
}

func (e ErrUnauthorized) Error() string {
	return fmt.Errorf("unauthorized: %w", e.Err).Error()
}

func (e ErrUnauthorized) Unwrap() error {
	return e.Err
}

// ErrQuotaExceeded indicates the scraping service refused for lack of
// credits (HTTP 402).
type ErrQuotaExceeded struct {
	Err error
}

func (e ErrQuotaExceeded) Error() string {
	return fmt.Errorf("quota_exceeded: %w", e.Err).Error()
}

func (e ErrQuotaExceeded) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrUpstream indicates a server-side failure (HTTP 5xx) or a service
// response that reported failure.
type ErrUpstream struct {
	Err error
}

func (e ErrUpstream) Error() string {
	return fmt.Errorf("upstream: %w", e.Err).Error()
}

func (e ErrUpstream) Unwrap() error {
	return e.Err
}

// ErrMalformedTarget indicates a target that can never be fetched as given.
type ErrMalformedTarget struct {
	Err error
}

func (e ErrMalformedTarget) Error() string {
	return fmt.Errorf("malformed_target: %w", e.Err).Error()
}

func (e ErrMalformedTarget) Unwrap() error {
	return e.Err
}

// FetchError ties a classified failure to the target it belongs to.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt at the same target may
// succeed: timeouts, connection failures, rate limiting and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var timeout ErrTimeout
	var conn ErrConnection
	var rateLimited ErrRateLimited
	var upstream ErrUpstream
	return errors.As(err, &timeout) ||
		errors.As(err, &conn) ||
		errors.As(err, &rateLimited) ||
		errors.As(err, &upstream)
}

// ErrorLabel returns the metric label for a classified error.
func ErrorLabel(err error) string {
	return errorTypeLabel(err)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var unauthorized ErrUnauthorized
	if errors.As(err, &unauthorized) {
		return "unauthorized"
	}
	var quota ErrQuotaExceeded
	if errors.As(err, &quota) {
		return "quota_exceeded"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var upstream ErrUpstream
	if errors.As(err, &upstream) {
		return "upstream"
	}
	var malformed ErrMalformedTarget
	if errors.As(err, &malformed) {
		return "malformed_target"
	}
	return "other"
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	if errors.Is(err, colly.ErrForbiddenDomain) || errors.Is(err, colly.ErrMissingURL) ||
		errors.Is(err, colly.ErrNoURLFiltersMatch) || errors.Is(err, colly.ErrForbiddenURL) {
		return ErrMalformedTarget{Err: err}
	}
	if errors.Is(err, colly.ErrRobotsTxtBlocked) {
		return ErrForbidden{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusUnauthorized:
			return ErrUnauthorized{Err: wrapped}
		case statusCode == http.StatusPaymentRequired:
			return ErrQuotaExceeded{Err: wrapped}
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrUpstream{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
