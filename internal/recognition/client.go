package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/metrics"
)

// ErrClientClosed is returned by Transcribe after Close
var ErrClientClosed = errors.New("recognition client is closed")

// Client provides HTTP client functionality for speech recognition requests
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore
	metrics    *metrics.Metrics

	closed    chan struct{}
	closeOnce sync.Once

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	emptyResults    uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains recognition client configuration
type Config struct {
	Endpoint      string
	APIKey        string // optional; sent as a bearer token
	Model         string
	Language      string // source language hint; empty lets the backend detect
	BeamSize      int
	Temperature   float32
	Timeout       time.Duration // per attempt; zero means no timeout
	MaxRetries    int
	BackoffBase   time.Duration
	MaxBackoff    time.Duration
	MaxConcurrent int
}

// StatusError is returned when the API answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed when repeated
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Response represents the verbose JSON response of the recognition API
type Response struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	EmptyResults    uint64        `json:"empty_results"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new recognition HTTP client
func NewClient(config Config, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Model == "" {
		config.Model = "whisper-1"
	}

	if config.BeamSize <= 0 {
		config.BeamSize = 5
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		metrics:    m,
		closed:     make(chan struct{}),
	}, nil
}

// Transcribe sends an audio chunk for recognition and returns the joined text
func (c *Client) Transcribe(ctx context.Context, chunk *audio.Chunk) (string, error) {
	if chunk == nil || len(chunk.Samples) == 0 {
		id := ""
		if chunk != nil {
			id = chunk.ID
		}
		return "", &Error{ChunkID: id, Err: fmt.Errorf("chunk has no audio")}
	}

	wavData, err := chunk.WAV()
	if err != nil {
		return "", &Error{ChunkID: chunk.ID, Err: err}
	}

	select {
	case <-c.closed:
		return "", &Error{ChunkID: chunk.ID, Err: ErrClientClosed}
	default:
	}

	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", &Error{ChunkID: chunk.ID, Err: ctx.Err()}
	}

	startTime := time.Now()
	c.incrementTotalRequests()
	c.metrics.RecordRecognitionRequest()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordRecognitionRetry()

			timer := time.NewTimer(c.backoff(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				c.incrementFailedRequests()
				c.metrics.RecordRecognitionFailure(time.Since(startTime).Seconds())
				return "", &Error{ChunkID: chunk.ID, Err: ctx.Err()}
			}
		}

		response, err := c.doRequest(ctx, chunk.ID, wavData)
		if err == nil {
			text := response.JoinedText()
			c.incrementSuccessRequests(text == "")
			c.updateAvgResponseTime(time.Since(startTime))
			c.metrics.RecordRecognitionSuccess(time.Since(startTime).Seconds())
			return text, nil
		}

		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	c.metrics.RecordRecognitionFailure(time.Since(startTime).Seconds())
	return "", &Error{ChunkID: chunk.ID, Err: lastErr}
}

// backoff returns the wait before the given retry attempt
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.config.BackoffBase << (attempt - 1)
	if wait <= 0 || wait > c.config.MaxBackoff {
		wait = c.config.MaxBackoff
	}
	return wait
}

// doRequest performs a single HTTP request to the recognition API
func (c *Client) doRequest(ctx context.Context, chunkID string, wavData []byte) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(chunkID, wavData)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Live-Translator/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var response Response
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &response, nil
}

// JoinedText returns the segment texts joined by spaces, falling back to
// the top-level text when the response carries no segments
func (r *Response) JoinedText() string {
	if len(r.Segments) > 0 {
		return JoinSegments(r.Segments)
	}
	return strings.TrimSpace(r.Text)
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(chunkID string, wavData []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", chunkID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := [][2]string{
		{"model", c.config.Model},
		{"response_format", "verbose_json"},
		{"beam_size", strconv.Itoa(c.config.BeamSize)},
		{"temperature", strconv.FormatFloat(float64(c.config.Temperature), 'f', 2, 32)},
	}
	if c.config.Language != "" {
		fields = append(fields, [2]string{"language", c.config.Language})
	}

	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", field[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError determines if an error is retryable
func isRetryableError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Connection failures and transport timeouts
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests(empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
	if empty {
		c.emptyResults++
	}
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
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
		EmptyResults:    c.emptyResults,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close rejects new requests and waits for active ones to complete or for
// ctx to end. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.closed) })
	defer c.httpClient.CloseIdleConnections()

	acquired := 0
	defer func() {
		for ; acquired > 0; acquired-- {
			<-c.semaphore
		}
	}()

	for acquired < c.config.MaxConcurrent {
		select {
		case c.semaphore <- struct{}{}:
			acquired++
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d active requests: %w", c.config.MaxConcurrent-acquired, ctx.Err())
		}
	}
	return nil
}
