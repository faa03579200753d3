package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypro1111/live-translator/internal/audio"
)

func testChunk() *audio.Chunk {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i)
	}
	return audio.NewChunk(1, samples, 16000)
}

func newTestClient(t *testing.T, endpoint string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Endpoint:    endpoint,
		Model:       "whisper-small",
		Language:    "en",
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}

func TestTranscribeMultipartRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}

		expectedFields := map[string]string{
			"model":           "whisper-small",
			"response_format": "verbose_json",
			"language":        "en",
			"beam_size":       "5",
			"temperature":     "0.00",
		}
		for field, want := range expectedFields {
			if got := r.FormValue(field); got != want {
				t.Errorf("Expected field %s=%q, got %q", field, want, got)
			}
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
			return
		}
		defer file.Close()

		data, _ := io.ReadAll(file)
		samples, rate, err := audio.DecodeWAV(data)
		if err != nil {
			t.Errorf("Uploaded file is not a valid WAV: %v", err)
			return
		}
		if rate != 16000 || len(samples) != 1600 {
			t.Errorf("Expected 1600 samples at 16000 Hz, got %d at %d Hz", len(samples), rate)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{
			Text: "ignored",
			Segments: []Segment{
				{Text: "  hello "},
				{Text: "   "},
				{Text: "world"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)

	text, err := client.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "hello world" {
		t.Errorf("Expected %q, got %q", "hello world", text)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Expected 1 successful request, got %+v", stats)
	}
}

func TestTranscribeFallsBackToText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "  plain text  "}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)

	text, err := client.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "plain text" {
		t.Errorf("Expected %q, got %q", "plain text", text)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text": "third time"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)

	text, err := client.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "third time" {
		t.Errorf("Expected %q, got %q", "third time", text)
	}

	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}

	if stats := client.GetStats(); stats.TotalRetries != 2 {
		t.Errorf("Expected 2 retries, got %d", stats.TotalRetries)
	}
}

func TestTranscribeFailures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		maxRetries    int
		expectedCalls int32
	}{
		{"client error is not retried", http.StatusBadRequest, "bad audio", 3, 1},
		{"server error exhausts retries", http.StatusInternalServerError, "boom", 2, 3},
		{"invalid JSON", http.StatusOK, "not json", 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, tt.maxRetries)
			chunk := testChunk()

			_, err := client.Transcribe(context.Background(), chunk)

			var recErr *Error
			if !errors.As(err, &recErr) {
				t.Fatalf("Expected recognition Error, got %v", err)
			}

			if recErr.ChunkID != chunk.ID {
				t.Errorf("Expected chunk ID %s, got %s", chunk.ID, recErr.ChunkID)
			}

			if calls.Load() != tt.expectedCalls {
				t.Errorf("Expected %d calls, got %d", tt.expectedCalls, calls.Load())
			}

			if stats := client.GetStats(); stats.FailedRequests != 1 {
				t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
			}
		})
	}
}

func TestTranscribeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)

	_, err := client.Transcribe(context.Background(), testChunk())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}

	if statusErr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", statusErr.Code)
	}

	if !statusErr.Retryable() {
		t.Error("Expected 429 to be retryable")
	}
}

func TestTranscribeEmptyChunk(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", 0)

	_, err := client.Transcribe(context.Background(), audio.NewChunk(1, nil, 16000))

	var recErr *Error
	if !errors.As(err, &recErr) {
		t.Fatalf("Expected recognition Error, got %v", err)
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint:    server.URL,
		MaxRetries:  5,
		BackoffBase: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Transcribe(ctx, testChunk())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected cancellation to interrupt backoff, took %v", elapsed)
	}
}

func TestCloseWaitsForActiveRequests(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(Response{Text: "late"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1/audio/transcriptions", 0)

	done := make(chan error, 1)
	go func() {
		_, err := client.Transcribe(context.Background(), testChunk())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for client.GetStats().ActiveRequests != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the request to start")
		}
		time.Sleep(time.Millisecond)
	}

	// Bounded by ctx while the request hangs, and repeatable
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := client.Close(ctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Close %d: expected DeadlineExceeded, got %v", i+1, err)
		}
	}

	_, err := client.Transcribe(context.Background(), testChunk())
	if !errors.Is(err, ErrClientClosed) {
		t.Errorf("Expected ErrClientClosed for a new request, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("Expected the active request to finish, got %v", err)
	}

	if err := client.Close(context.Background()); err != nil {
		t.Errorf("Expected Close to succeed once idle, got %v", err)
	}
	if err := client.Close(context.Background()); err != nil {
		t.Errorf("Expected a second Close to succeed, got %v", err)
	}
}

func TestJoinSegments(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		expected string
	}{
		{"no segments", nil, ""},
		{"single segment", []Segment{{Text: " hi "}}, "hi"},
		{"blank segments skipped", []Segment{{Text: "a"}, {Text: " "}, {Text: "b"}}, "a b"},
		{"all blank", []Segment{{Text: ""}, {Text: "\n"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinSegments(tt.segments); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
