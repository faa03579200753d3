package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/live-translator/internal/metrics"
)

// Client translates text through a LibreTranslate-compatible HTTP API
type Client struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.Metrics

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains translation client configuration
type Config struct {
	Endpoint       string
	APIKey         string
	SourceLanguage string        // "auto" detects the source language
	Timeout        time.Duration // per attempt; zero means no timeout
	MaxRetries     int
	BackoffBase    time.Duration
	MaxBackoff     time.Duration
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

// statusError is returned for a non-2xx response
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.code, e.body)
}

// NewClient creates a new translation HTTP client
func NewClient(config Config, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.SourceLanguage == "" {
		config.SourceLanguage = "auto"
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: m,
	}, nil
}

// Translate translates text into target. It never returns an error value;
// failures come back as an Outcome with the placeholder text.
func (c *Client) Translate(ctx context.Context, text string, target Language) Outcome {
	startTime := time.Now()
	c.incrementTotalRequests()

	outcome := c.translate(ctx, text, target)

	c.recordOutcome(outcome.Failed, time.Since(startTime))
	c.metrics.RecordTranslation(target.String(), outcome.Failed, time.Since(startTime).Seconds())
	return outcome
}

func (c *Client) translate(ctx context.Context, text string, target Language) Outcome {
	if !target.Valid() {
		return Failure(fmt.Errorf("%w: %q", ErrUnsupportedLanguage, string(target)))
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			wait := c.config.BackoffBase << (attempt - 1)
			if wait <= 0 || wait > c.config.MaxBackoff {
				wait = c.config.MaxBackoff
			}

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return Failure(ctx.Err())
			}
		}

		translated, err := c.doRequest(ctx, text, target)
		if err == nil {
			return Outcome{Text: translated}
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	return Failure(lastErr)
}

// doRequest performs a single HTTP request to the translation API
func (c *Client) doRequest(ctx context.Context, text string, target Language) (string, error) {
	payload, err := json.Marshal(translateRequest{
		Q:      text,
		Source: c.config.SourceLanguage,
		Target: target.BackendCode(),
		Format: "text",
		APIKey: c.config.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Live-Translator/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var response translateResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if response.Error != "" {
		return "", fmt.Errorf("translation backend error: %s", response.Error)
	}

	translated := strings.TrimSpace(response.TranslatedText)
	if translated == "" {
		return "", fmt.Errorf("translation backend returned empty text")
	}

	return translated, nil
}

// isRetryableError determines if an error is retryable
func isRetryableError(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code >= 500 || statusErr.code == http.StatusTooManyRequests
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) recordOutcome(failed bool, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if failed {
		c.failedRequests++
		return
	}

	c.successRequests++
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
	}
}
