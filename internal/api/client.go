// Package api implements the HTTP client for the remote sync service: list,
// download, upload, and status, each carrying an X-API-Key header, with
// automatic retry and exponential backoff + jitter on transient failures.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Retry tuning (§4.3): base 1s, factor 2x, cap 60s, ±25% jitter.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "sitesync/0.1"
)

// Client talks to the remote sync service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. baseURL should not have a trailing slash.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Error wraps a non-2xx terminal response for the error classifier to
// inspect.
type Error struct {
	StatusCode int
	Message    string
	Details    map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

// errorBody is the documented failure-response shape:
// { message|error, details? }.
type errorBody struct {
	Message string         `json:"message"`
	ErrMsg  string         `json:"error"`
	Details map[string]any `json:"details"`
}

// do executes an authenticated request with retry. path is appended to
// baseURL verbatim — callers that need raw, non-URL-encoded slashes (the
// download operation) build path themselves.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int

	for {
		resp, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
			}

			if attempt >= maxRetries {
				return nil, fmt.Errorf("api: %s %s failed after %d retries: %w", method, path, maxRetries, err)
			}

			backoff := c.calcBackoff(attempt)
			c.logger.Warn("retrying after network error",
				slog.String("method", method), slog.String("path", path),
				slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("api: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			raw = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method), slog.String("path", path),
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("api: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return nil, terminalError(resp.StatusCode, raw)
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func terminalError(statusCode int, raw []byte) *Error {
	var decoded errorBody

	message := string(raw)

	if err := json.Unmarshal(raw, &decoded); err == nil {
		if decoded.Message != "" {
			message = decoded.Message
		} else if decoded.ErrMsg != "" {
			message = decoded.ErrMsg
		}
	}

	return &Error{StatusCode: statusCode, Message: message, Details: decoded.Details}
}

func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not security-sensitive
	backoff += jitter

	return time.Duration(backoff)
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
