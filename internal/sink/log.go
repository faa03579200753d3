package sink

import (
	"log/slog"

	"github.com/skypro1111/live-translator/internal/pipeline"
)

// Log writes statuses and results to a structured logger
type Log struct {
	logger *slog.Logger
}

// NewLog creates a sink logging through logger
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "sink")}
}

func (l *Log) OnStatus(status pipeline.Status) {
	attrs := []any{
		slog.String("status", status.Kind.String()),
		slog.String("color", status.Color()),
		slog.String("message", status.Message),
	}
	if status.ChunkID != "" {
		attrs = append(attrs, slog.String("chunk_id", status.ChunkID))
	}

	if status.Kind == pipeline.StatusError {
		l.logger.Warn("Status", attrs...)
		return
	}
	l.logger.Debug("Status", attrs...)
}

func (l *Log) OnResult(result pipeline.Result) {
	l.logger.Info("Result",
		slog.String("chunk_id", result.ChunkID),
		slog.Uint64("seq", result.Seq),
		slog.String("language", string(result.Language)),
		slog.String("original", result.Original),
		slog.String("translated", result.Translated),
		slog.Bool("translation_failed", result.TranslationFailed))
}
