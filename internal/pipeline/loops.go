package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/recognition"
	"github.com/skypro1111/live-translator/internal/translation"
)

// captureLoop records chunks into the queue until r is cancelled or the
// source fails. A capture in progress when Stop arrives is completed and its
// chunk discarded.
func (p *Pipeline) captureLoop(r *run) error {
	logger := p.logger.With(slog.String("run_id", r.id), slog.String("loop", "capture"))
	defer r.endInput()

	for first := true; ; first = false {
		if r.ctx.Err() != nil {
			return nil
		}

		// Start already reported Listening for the first capture
		if !first {
			p.emitRunning(r, Status{Kind: StatusListening, Message: "Listening..."})
		}

		chunk, err := p.capture(r.parent)

		if r.ctx.Err() != nil {
			if chunk != nil {
				p.chunksDiscarded.Add(1)
				p.metrics.RecordChunksDiscarded(1)
				logger.Debug("Discarding chunk captured after stop", slog.String("chunk_id", chunk.ID))
			}
			return nil
		}

		if err != nil {
			p.metrics.RecordDeviceError()
			logger.Error("Audio capture failed, stopping run",
				slog.String("error", err.Error()),
				slog.Int("queued", p.queue.Len()))
			p.inputFailed(r, err)
			return err
		}

		p.chunksCaptured.Add(1)
		p.metrics.RecordChunkCaptured(chunk.Duration.Seconds(), len(chunk.Samples)*2)

		if err := p.queue.Enqueue(r.ctx, chunk); err != nil {
			// Cancelled while waiting for queue space
			p.chunksDiscarded.Add(1)
			p.metrics.RecordChunksDiscarded(1)
			return nil
		}

		depth := p.queue.Len()
		p.metrics.SetQueueSize(depth)
		logger.Debug("Chunk captured",
			slog.String("chunk_id", chunk.ID),
			slog.Uint64("seq", chunk.Seq),
			slog.Int("queue_depth", depth))
	}
}

// processLoop recognizes and translates queued chunks in FIFO order until
// r is cancelled. Once the capture loop has exited on its own, it empties
// the queue and returns.
func (p *Pipeline) processLoop(r *run) error {
	logger := p.logger.With(slog.String("run_id", r.id), slog.String("loop", "process"))

	for {
		chunk, err := p.queue.Dequeue(r.input)
		if err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			var ok bool
			if chunk, ok = p.queue.TryDequeue(); !ok {
				return nil
			}
		}
		p.metrics.SetQueueSize(p.queue.Len())

		p.processChunk(r, chunk, logger)
		p.chunksProcessed.Add(1)

		if r.input.Err() == nil {
			p.emitRunning(r, Status{Kind: StatusListening, Message: "Listening..."})
		}
	}
}

// processChunk runs one chunk through recognition and translation. The
// external calls use the parent context so a Stop lets them complete.
func (p *Pipeline) processChunk(r *run, chunk *audio.Chunk, logger *slog.Logger) {
	p.emitRunning(r, Status{Kind: StatusProcessing, Message: "Processing...", ChunkID: chunk.ID})

	text, err := p.transcribe(r.parent, chunk)
	if err != nil {
		p.chunksFailed.Add(1)
		logger.Warn("Recognition failed, skipping chunk",
			slog.String("chunk_id", chunk.ID),
			slog.Uint64("seq", chunk.Seq),
			slog.String("error", err.Error()))
		p.emit(Status{Kind: StatusError, Message: err.Error(), ChunkID: chunk.ID, Err: err})
		return
	}

	if text == "" {
		p.chunksSilent.Add(1)
		p.metrics.RecordChunkSilent()
		logger.Debug("No speech recognized", slog.String("chunk_id", chunk.ID), slog.Uint64("seq", chunk.Seq))
		return
	}

	outcome := p.translate(r.parent, text, r.target)
	if outcome.Failed {
		p.translationFailures.Add(1)
		attrs := []any{slog.String("chunk_id", chunk.ID), slog.String("target_language", string(r.target))}
		if outcome.Err != nil {
			attrs = append(attrs, slog.String("error", outcome.Err.Error()))
		}
		logger.Warn("Translation failed, using placeholder", attrs...)
	}

	result := Result{
		ChunkID:           chunk.ID,
		Seq:               chunk.Seq,
		Original:          text,
		Translated:        outcome.Text,
		TranslationFailed: outcome.Failed,
		Language:          r.target,
		CapturedAt:        chunk.CapturedAt,
		CompletedAt:       time.Now(),
	}

	p.sink.OnResult(result)
	p.resultsEmitted.Add(1)
	p.metrics.RecordResult(result.CompletedAt.Sub(chunk.CapturedAt).Seconds())

	logger.Info("Chunk translated",
		slog.String("chunk_id", chunk.ID),
		slog.Uint64("seq", chunk.Seq),
		slog.Int("chars", len(text)),
		slog.Bool("translation_failed", outcome.Failed))
}

// capture asks the source for one chunk, turning any failure into a
// *audio.DeviceError
func (p *Pipeline) capture(ctx context.Context) (chunk *audio.Chunk, err error) {
	defer func() {
		if v := recover(); v != nil {
			chunk = nil
			err = &audio.DeviceError{Device: "source", Op: "capture", Err: fmt.Errorf("panic: %v", v)}
		}
	}()

	chunk, err = p.source.Capture(ctx, p.config.ChunkDuration, p.config.SampleRate)
	if err != nil {
		var devErr *audio.DeviceError
		if !errors.As(err, &devErr) {
			err = &audio.DeviceError{Device: "source", Op: "capture", Err: err}
		}
		return nil, err
	}

	if chunk == nil {
		return nil, &audio.DeviceError{Device: "source", Op: "capture", Err: errors.New("source returned no chunk")}
	}

	return chunk, nil
}

// transcribe calls the recognizer, turning any failure into a
// *recognition.Error and trimming the text
func (p *Pipeline) transcribe(ctx context.Context, chunk *audio.Chunk) (text string, err error) {
	defer func() {
		if v := recover(); v != nil {
			text = ""
			err = &recognition.Error{ChunkID: chunk.ID, Err: fmt.Errorf("panic: %v", v)}
		}
	}()

	text, err = p.recognizer.Transcribe(ctx, chunk)
	if err != nil {
		var recErr *recognition.Error
		if !errors.As(err, &recErr) {
			err = &recognition.Error{ChunkID: chunk.ID, Err: err}
		}
		return "", err
	}

	return strings.TrimSpace(text), nil
}

// translate calls the translator, turning a panic into a failed outcome
func (p *Pipeline) translate(ctx context.Context, text string, target translation.Language) (outcome translation.Outcome) {
	defer func() {
		if v := recover(); v != nil {
			outcome = translation.Failure(fmt.Errorf("panic: %v", v))
		}
	}()

	outcome = p.translator.Translate(ctx, text, target)
	if outcome.Failed && outcome.Text == "" {
		outcome.Text = translation.FailedPlaceholder
	}
	return outcome
}
