package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/metrics"
	"github.com/skypro1111/live-translator/internal/queue"
	"github.com/skypro1111/live-translator/internal/recognition"
	"github.com/skypro1111/live-translator/internal/translation"
)

var (
	// ErrStopping is returned by Start while the previous run is still exiting
	ErrStopping = errors.New("pipeline is still stopping")

	// ErrUnsupportedLanguage is returned by Start for an unknown target
	ErrUnsupportedLanguage = translation.ErrUnsupportedLanguage

	// ErrLanguageLocked is returned by Start while a run in another target
	// language is active
	ErrLanguageLocked = errors.New("pipeline is running with another target language")
)

// State is the lifecycle state of a Pipeline
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config contains the chunking and queueing parameters of a Pipeline
type Config struct {
	SampleRate    int
	ChunkDuration time.Duration
	QueueCapacity int // zero means unbounded
	QueuePolicy   queue.Policy
}

// Deps are the collaborators a Pipeline drives
type Deps struct {
	Source     audio.Source
	Recognizer recognition.Recognizer
	Translator translation.Translator
	Sink       ResultSink       // defaults to Discard
	Metrics    *metrics.Metrics // optional
}

// Pipeline orchestrates the capture and processing loops
type Pipeline struct {
	config     Config
	source     audio.Source
	recognizer recognition.Recognizer
	translator translation.Translator
	sink       ResultSink
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// The queue outlives individual runs
	queue *queue.Queue[*audio.Chunk]

	// mu serializes Start, Stop and run transitions; state and current are
	// only written with mu held
	mu      sync.Mutex
	state   atomic.Int32
	current atomic.Pointer[run]

	runs                atomic.Uint64
	chunksCaptured      atomic.Uint64
	chunksProcessed     atomic.Uint64
	chunksSilent        atomic.Uint64
	chunksFailed        atomic.Uint64
	chunksDiscarded     atomic.Uint64
	resultsEmitted      atomic.Uint64
	translationFailures atomic.Uint64
}

// run is one Running period of the pipeline
type run struct {
	id        string
	target    translation.Language
	startedAt time.Time

	// ctx is cancelled by Stop; parent bounds calls already in flight
	ctx    context.Context
	parent context.Context
	cancel context.CancelFunc

	// input is cancelled once the capture loop has exited
	input    context.Context
	endInput context.CancelFunc

	done chan struct{}
	err  error // valid once done is closed
}

// Stats represents pipeline statistics for monitoring
type Stats struct {
	State               string    `json:"state"`
	TargetLanguage      string    `json:"target_language,omitempty"`
	RunID               string    `json:"run_id,omitempty"`
	StartedAt           time.Time `json:"started_at,omitempty"`
	Runs                uint64    `json:"runs"`
	ChunksCaptured      uint64    `json:"chunks_captured"`
	ChunksProcessed     uint64    `json:"chunks_processed"`
	ChunksSilent        uint64    `json:"chunks_silent"`
	ChunksFailed        uint64    `json:"chunks_failed"`
	ChunksDiscarded     uint64    `json:"chunks_discarded"`
	ChunksDropped       uint64    `json:"chunks_dropped"`
	ResultsEmitted      uint64    `json:"results_emitted"`
	TranslationFailures uint64    `json:"translation_failures"`
	QueueDepth          int       `json:"queue_depth"`
	QueueCapacity       int       `json:"queue_capacity"`
	QueuePolicy         string    `json:"queue_policy"`
}

// New creates an idle pipeline and reports the Ready status to the sink
func New(logger *slog.Logger, config Config, deps Deps) (*Pipeline, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.ChunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %v", config.ChunkDuration)
	}

	if deps.Source == nil || deps.Recognizer == nil || deps.Translator == nil {
		return nil, fmt.Errorf("source, recognizer and translator are required")
	}

	if deps.Sink == nil {
		deps.Sink = Discard{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		config:     config,
		source:     deps.Source,
		recognizer: deps.Recognizer,
		translator: deps.Translator,
		sink:       deps.Sink,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "pipeline"),
		queue:      queue.New[*audio.Chunk](config.QueueCapacity, config.QueuePolicy),
	}

	p.queue.OnDrop(func(chunk *audio.Chunk) {
		p.metrics.RecordChunkDropped()
		p.logger.Warn("Chunk queue full, dropped oldest chunk",
			slog.String("chunk_id", chunk.ID),
			slog.Uint64("seq", chunk.Seq))
	})

	p.emit(Status{Kind: StatusReady, Message: "Ready"})
	return p, nil
}

// Start begins a run translating into target. It is a no-op while Running
// in the same language, fails with ErrLanguageLocked while Running in
// another one and with ErrStopping while a previous run is still exiting.
//
// ctx bounds the whole run: cancelling it interrupts in-flight recognition
// and translation calls, which Stop deliberately lets finish.
func (p *Pipeline) Start(ctx context.Context, target translation.Language) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, string(target))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateRunning:
		if current := p.current.Load(); current.target != target {
			return fmt.Errorf("%w: running in %s, requested %s", ErrLanguageLocked, current.target, target)
		}
		p.logger.Debug("Start ignored, pipeline already running")
		return nil
	case StateStopping:
		return ErrStopping
	}

	// Chunks left over from an earlier run belong to that run
	if leftovers := p.queue.Drain(); len(leftovers) > 0 {
		p.chunksDiscarded.Add(uint64(len(leftovers)))
		p.metrics.RecordChunksDiscarded(len(leftovers))
		p.logger.Info("Discarded chunks left from previous run", slog.Int("count", len(leftovers)))
	}
	if flusher, ok := p.source.(interface{ Flush() }); ok {
		flusher.Flush()
	}
	p.metrics.SetQueueSize(0)

	runCtx, cancel := context.WithCancel(ctx)
	inputCtx, endInput := context.WithCancel(runCtx)
	r := &run{
		id:        uuid.NewString(),
		target:    target,
		startedAt: time.Now(),
		ctx:       runCtx,
		parent:    ctx,
		cancel:    cancel,
		input:     inputCtx,
		endInput:  endInput,
		done:      make(chan struct{}),
	}

	p.current.Store(r)
	p.setState(StateRunning)
	p.runs.Add(1)
	p.metrics.RecordRunStarted()

	p.logger.Info("Pipeline started",
		slog.String("run_id", r.id),
		slog.String("target_language", string(target)),
		slog.Duration("chunk_duration", p.config.ChunkDuration),
		slog.Int("sample_rate", p.config.SampleRate))

	p.emit(Status{Kind: StatusListening, Message: "Listening..."})

	var g errgroup.Group
	g.Go(func() error { return p.captureLoop(r) })
	g.Go(func() error { return p.processLoop(r) })

	go p.finish(r, &g)

	return nil
}

// Stop cancels the current run. It is a no-op unless Running and does not
// wait for the loops to exit; use Wait or Done for that.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != StateRunning {
		return
	}

	r := p.current.Load()
	p.setState(StateStopping)
	r.cancel()

	p.logger.Info("Pipeline stopping", slog.String("run_id", r.id))
	p.emit(Status{Kind: StatusStopped, Message: "Stopped"})
}

// Wait blocks until the current run has fully exited and returns the error
// that ended it, if any. It returns immediately when no run was started.
func (p *Pipeline) Wait(ctx context.Context) error {
	r := p.current.Load()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the current run has fully exited
func (p *Pipeline) Done() <-chan struct{} {
	if r := p.current.Load(); r != nil {
		return r.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// State returns the current lifecycle state
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Stats returns current pipeline statistics
func (p *Pipeline) Stats() Stats {
	stats := Stats{
		State:               p.State().String(),
		Runs:                p.runs.Load(),
		ChunksCaptured:      p.chunksCaptured.Load(),
		ChunksProcessed:     p.chunksProcessed.Load(),
		ChunksSilent:        p.chunksSilent.Load(),
		ChunksFailed:        p.chunksFailed.Load(),
		ChunksDiscarded:     p.chunksDiscarded.Load(),
		ChunksDropped:       p.queue.Dropped(),
		ResultsEmitted:      p.resultsEmitted.Load(),
		TranslationFailures: p.translationFailures.Load(),
		QueueDepth:          p.queue.Len(),
		QueueCapacity:       p.queue.Capacity(),
		QueuePolicy:         p.queue.Policy().String(),
	}

	if r := p.current.Load(); r != nil && p.State() != StateIdle {
		stats.TargetLanguage = string(r.target)
		stats.RunID = r.id
		stats.StartedAt = r.startedAt
	}

	return stats
}

// finish waits for both loops of r and returns the pipeline to Idle
func (p *Pipeline) finish(r *run, g *errgroup.Group) {
	err := g.Wait()
	r.cancel()

	p.mu.Lock()
	r.err = err
	if p.current.Load() == r {
		// The run ended without a Stop: the parent context was cancelled
		// or the input failed and the queue has been emptied
		if p.State() == StateRunning {
			p.emit(Status{Kind: StatusStopped, Message: "Stopped"})
		}
		p.setState(StateIdle)
	}
	p.mu.Unlock()

	close(r.done)

	attrs := []any{
		slog.String("run_id", r.id),
		slog.Duration("duration", time.Since(r.startedAt)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	p.logger.Info("Pipeline run finished", attrs...)
}

// inputFailed reports a fatal capture error of run r. The run keeps going
// until the processing loop has emptied the queue; finish then reports
// Stopped.
func (p *Pipeline) inputFailed(r *run, err error) {
	p.emitRunning(r, Status{Kind: StatusError, Message: err.Error(), Err: err})
}

// setState records a state transition; callers hold p.mu
func (p *Pipeline) setState(state State) {
	p.state.Store(int32(state))
	p.metrics.SetPipelineState(int(state))
}

func (p *Pipeline) emit(status Status) {
	if status.At.IsZero() {
		status.At = time.Now()
	}
	p.sink.OnStatus(status)
}

// emitRunning emits status only while r has not been cancelled, so no
// loop status can follow the Stopped status of its run
func (p *Pipeline) emitRunning(r *run, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}
	p.emit(status)
}
