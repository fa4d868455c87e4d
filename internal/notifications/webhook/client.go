// Package webhook posts JSON notifications to incoming webhook URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// Client posts JSON bodies to webhook URLs at a bounded rate.
type Client struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a webhook client. name prefixes error messages.
// ratePerSecond <= 0 disables pacing.
func NewClient(name string, ratePerSecond float64) *Client {
	return &Client{
		name:       name,
		httpClient: &http.Client{},
		limiter:    NewLimiter(ratePerSecond),
	}
}

// NewLimiter returns a limiter allowing ratePerSecond requests with a burst of one.
func NewLimiter(ratePerSecond float64) *rate.Limiter {
	if ratePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), 1)
}

// PostJSON waits for the limiter, then posts v as JSON. Any non-2xx response is an error.
// The request is bounded by ctx.
func (c *Client) PostJSON(ctx context.Context, url string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RetryableError{Service: c.name, Message: fmt.Sprintf("rate limiter: %v", err)}
	}

	body, err := json.Marshal(v)
	if err != nil {
		return &PermanentError{Service: c.name, Message: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Service: c.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Service: c.name, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return c.handleResponse(resp, url)
}

func (c *Client) handleResponse(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		slog.Debug("webhook delivered", "service", c.name, "webhook", MaskURL(url), "status", resp.StatusCode)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := http.StatusText(resp.StatusCode)
	if len(body) > 0 {
		text = fmt.Sprintf("%s: %s", text, bytes.TrimSpace(body))
	}

	return StatusError(c.name, resp.StatusCode, text)
}

// StatusError classifies a non-2xx response.
// Rate limiting and server errors are retryable, other client errors are not.
func StatusError(service string, code int, message string) error {
	if code == http.StatusTooManyRequests || code >= 500 {
		return &RetryableError{Service: service, Code: code, Message: message}
	}
	return &PermanentError{Service: service, Code: code, Message: message}
}

// MaskURL hides the secret part of a webhook URL for logging.
func MaskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates an error that another attempt will not fix.
type PermanentError struct {
	Service string
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	return formatError(e.Service, e.Code, e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error.
type RetryableError struct {
	Service string
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	return formatError(e.Service, e.Code, e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }

func formatError(service string, code int, message string) string {
	if code > 0 {
		return fmt.Sprintf("%s error %d: %s", service, code, message)
	}
	return fmt.Sprintf("%s error: %s", service, message)
}
