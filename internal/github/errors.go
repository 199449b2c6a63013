package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/repo-matcher/internal/retry"
)

// ErrNotFound matches a 404 APIError with errors.Is.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode  int
	Status      string
	Message     string
	RateLimited bool

	wait time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("bad status: %s", e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RateLimited {
		msg += " (rate limited)"
	}
	return msg
}

// RetryAfter returns how long upstream asked us to wait, if it said so.
func (e *APIError) RetryAfter() time.Duration {
	return e.wait
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Classify maps client errors to retry classes: rate limits, 5xx and
// network failures are retryable, everything else is not.
func Classify(err error) retry.Class {
	if err == nil {
		return retry.Permanent
	}

	// Client.Timeout errors also match context.DeadlineExceeded. Only the
	// bare sentinel means the caller's deadline passed.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && netErr != context.DeadlineExceeded {
		return retry.Transient
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Permanent
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RateLimited:
			return retry.RateLimited
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return retry.Transient
		default:
			return retry.Permanent
		}
	}

	if errors.As(err, &netErr) {
		return retry.Transient
	}

	return retry.Permanent
}

// newAPIError builds an APIError from a response whose body was already read.
func newAPIError(resp *http.Response, body []byte, now time.Time) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    errorMessage(body),
	}

	remaining := resp.Header.Get("X-RateLimit-Remaining")
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.RateLimited = true
	case resp.StatusCode == http.StatusForbidden && remaining == "0":
		apiErr.RateLimited = true
	case resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(apiErr.Message), "rate limit"):
		// Secondary rate limits come without the remaining header.
		apiErr.RateLimited = true
	}

	if !apiErr.RateLimited {
		return apiErr
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && seconds > 0 {
		apiErr.wait = time.Duration(seconds) * time.Second
		return apiErr
	}

	if remaining == "0" {
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			if wait := time.Unix(reset, 0).Sub(now); wait > 0 {
				apiErr.wait = wait
			}
		}
	}

	return apiErr
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Message)
}
