package httputil

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/krxscan/pkg/logger"
)

// Client is an HTTP client wrapper with retry, pacing and logging
// ⭐ SSOT: 모든 외부 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient  *http.Client
	logger      *logger.Logger
	retryConfig RetryConfig
	limiter     *rate.Limiter
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Enabled      bool
}

// New creates a new HTTP client
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(log *logger.Logger, timeout time.Duration, ratePerSec float64) *Client {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		retryConfig: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     10 * time.Second,
			Enabled:      true,
		},
		limiter: limiter,
	}
}

// WithRetry configures retry behavior
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retryConfig.MaxRetries = maxRetries
	c.retryConfig.InitialDelay = initialDelay
	c.retryConfig.Enabled = true
	return c
}

// DisableRetry disables automatic retry
func (c *Client) DisableRetry() *Client {
	c.retryConfig.Enabled = false
	return c
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.do(req)
}

// PostForm performs a form-encoded POST request with extra headers
func (c *Client) PostForm(ctx context.Context, targetURL string, form url.Values, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

// do executes the request with rate limiting and retry
func (c *Client) do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	attempts := 1
	if c.retryConfig.Enabled {
		attempts = c.retryConfig.MaxRetries + 1
	}

	delay := c.retryConfig.InitialDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		start := time.Now()
		resp, lastErr = c.httpClient.Do(req)
		elapsed := time.Since(start)

		if lastErr == nil && resp.StatusCode < http.StatusInternalServerError {
			c.logger.WithFields(map[string]interface{}{
				"method":   req.Method,
				"url":      req.URL.String(),
				"status":   resp.StatusCode,
				"duration": elapsed.String(),
			}).Debug("HTTP request completed")
			return resp, nil
		}

		if resp != nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
		}

		if attempt < attempts-1 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt + 1,
				"url":     req.URL.String(),
				"delay":   delay.String(),
			}).WithError(lastErr).Warn("HTTP request failed, retrying")

			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}

			delay *= 2
			if delay > c.retryConfig.MaxDelay {
				delay = c.retryConfig.MaxDelay
			}
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}
