// Package httpclient provides a retrying HTTP client shared by the A2A,
// MCP and LLM transports. Retries are driven by response status: rate
// limiting honors Retry-After, transient server errors back off
// exponentially, everything else fails immediately.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Strategy classifies how a response status should be retried.
type Strategy int

const (
	NoRetry Strategy = iota
	BackoffRetry
	RateLimitRetry
)

// StrategyFunc maps an HTTP status code to a retry strategy.
type StrategyFunc func(statusCode int) Strategy

// DefaultStrategy retries rate limits and transient upstream failures.
func DefaultStrategy(statusCode int) Strategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return RateLimitRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return BackoffRetry
	default:
		return NoRetry
	}
}

// Client wraps an http.Client with retry behavior.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	strategy   StrategyFunc
	sleep      func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the base backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithStrategy replaces the retry strategy.
func WithStrategy(fn StrategyFunc) Option {
	return func(c *Client) { c.strategy = fn }
}

// New creates a retrying client with sane defaults.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
		strategy:   DefaultStrategy,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RetryError is returned when retries are exhausted.
type RetryError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("HTTP %d: retries exhausted after %d attempts", e.StatusCode, e.Attempts)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Do executes the request, retrying per the configured strategy. The
// request body is recreated from GetBody between attempts.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("recreating request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport errors are not retried; the caller decides.
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		strategy := c.strategy(resp.StatusCode)
		if strategy == NoRetry || attempt == c.maxRetries {
			if strategy == NoRetry {
				return resp, nil
			}
			resp.Body.Close()
			return nil, &RetryError{
				StatusCode: resp.StatusCode,
				Attempts:   attempt + 1,
				Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			}
		}

		delay := c.delayFor(strategy, attempt, resp.Header)
		lastStatus = resp.StatusCode
		resp.Body.Close()

		slog.Debug("Retrying HTTP request",
			"url", req.URL.String(),
			"status", lastStatus,
			"attempt", attempt+1,
			"max", c.maxRetries,
			"delay", delay,
		)
		c.sleep(delay)
	}

	return nil, &RetryError{
		StatusCode: lastStatus,
		Attempts:   c.maxRetries + 1,
		Err:        fmt.Errorf("max retries exceeded"),
	}
}

// delayFor computes the wait before the next attempt.
func (c *Client) delayFor(strategy Strategy, attempt int, header http.Header) time.Duration {
	if strategy == RateLimitRetry {
		if after := parseRetryAfter(header); after > 0 {
			if after > c.maxDelay {
				return c.maxDelay
			}
			return after
		}
	}

	delay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
