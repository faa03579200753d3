package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/queue"
	"github.com/skypro1111/live-translator/internal/translation"
)

// scriptedSource delivers total chunks, then blocks like an input that has
// gone quiet until its context is cancelled
type scriptedSource struct {
	total  uint64
	failAt uint64 // capture number that fails with a device error
	delay  time.Duration

	mu      sync.Mutex
	seq     uint64
	flushes atomic.Int32
}

func (s *scriptedSource) Capture(ctx context.Context, duration time.Duration, sampleRate int) (*audio.Chunk, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	if s.failAt != 0 && seq == s.failAt {
		return nil, &audio.DeviceError{Device: "test", Op: "read", Err: audio.ErrStreamClosed}
	}

	if seq > s.total {
		<-ctx.Done()
		return nil, &audio.DeviceError{Device: "test", Op: "read", Err: ctx.Err()}
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, &audio.DeviceError{Device: "test", Op: "read", Err: ctx.Err()}
		}
	}

	return audio.NewChunk(seq, make([]int16, audio.SamplesFor(duration, sampleRate)), sampleRate), nil
}

func (s *scriptedSource) Flush() {
	s.flushes.Add(1)
}

// scriptedRecognizer returns per-sequence texts, errors, delays and panics.
// Chunks without a scripted text are recognized as "chunk <seq>".
type scriptedRecognizer struct {
	texts  map[uint64]string
	errs   map[uint64]error
	delays map[uint64]time.Duration
	panics map[uint64]bool

	// gate, when set, holds the first call until closed
	gate  chan struct{}
	calls atomic.Int32
}

func (r *scriptedRecognizer) Transcribe(ctx context.Context, chunk *audio.Chunk) (string, error) {
	if r.calls.Add(1) == 1 && r.gate != nil {
		<-r.gate
	}

	if delay := r.delays[chunk.Seq]; delay > 0 {
		time.Sleep(delay)
	}

	if r.panics[chunk.Seq] {
		panic("recognizer exploded")
	}

	if err := r.errs[chunk.Seq]; err != nil {
		return "", err
	}

	if text, ok := r.texts[chunk.Seq]; ok {
		return text, nil
	}
	return fmt.Sprintf("chunk %d", chunk.Seq), nil
}

// prefixTranslator answers "<lang>:<text>"
type prefixTranslator struct {
	calls atomic.Int32
}

func (t *prefixTranslator) Translate(ctx context.Context, text string, target translation.Language) translation.Outcome {
	t.calls.Add(1)
	return translation.Outcome{Text: string(target) + ":" + text}
}

type failingTranslator struct{}

func (failingTranslator) Translate(ctx context.Context, text string, target translation.Language) translation.Outcome {
	return translation.Failure(errors.New("quota exceeded"))
}

type panickingTranslator struct{}

func (panickingTranslator) Translate(ctx context.Context, text string, target translation.Language) translation.Outcome {
	panic("translator exploded")
}

// recordingSink keeps every status and result it receives
type recordingSink struct {
	mu       sync.Mutex
	statuses []Status
	results  []Result
}

func (s *recordingSink) OnStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) OnResult(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *recordingSink) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.statuses...)
}

func (s *recordingSink) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func (s *recordingSink) Kinds() []Kind {
	statuses := s.Statuses()
	kinds := make([]Kind, len(statuses))
	for i, status := range statuses {
		kinds[i] = status.Kind
	}
	return kinds
}

func (s *recordingSink) Count(kind Kind) int {
	count := 0
	for _, k := range s.Kinds() {
		if k == kind {
			count++
		}
	}
	return count
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPipeline(t *testing.T, source audio.Source, recognizer *scriptedRecognizer, translator translation.Translator, opts ...func(*Config)) (*Pipeline, *recordingSink) {
	t.Helper()

	config := Config{
		SampleRate:    100,
		ChunkDuration: 50 * time.Millisecond,
		QueuePolicy:   queue.PolicyBlock,
	}
	for _, opt := range opts {
		opt(&config)
	}

	sink := &recordingSink{}
	p, err := New(testLogger(), config, Deps{
		Source:     source,
		Recognizer: recognizer,
		Translator: translator,
		Sink:       sink,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Cleanup(func() {
		p.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Wait(ctx)
	})

	return p, sink
}

// testContext returns a run context cancelled when the test ends. Tests
// cancel it after Stop to release a source waiting for audio that will
// never come, as process shutdown would.
func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx, cancel
}

// stopAndWait stops the run, releases its source and waits for Idle
func stopAndWait(t *testing.T, p *Pipeline, cancel context.CancelFunc) error {
	t.Helper()

	p.Stop()
	cancel()
	return waitIdle(t, p)
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitIdle(t *testing.T, p *Pipeline) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Timed out waiting for the run to exit")
	}

	if p.State() != StateIdle {
		t.Errorf("Expected state idle after Wait, got %s", p.State())
	}
	return err
}
