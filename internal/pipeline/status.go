package pipeline

import (
	"time"

	"github.com/skypro1111/live-translator/internal/translation"
)

// Kind identifies a status transition reported to the sink
type Kind int

const (
	StatusReady Kind = iota
	StatusListening
	StatusProcessing
	StatusStopped
	StatusError
)

func (k Kind) String() string {
	switch k {
	case StatusReady:
		return "ready"
	case StatusListening:
		return "listening"
	case StatusProcessing:
		return "processing"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Color returns the display colour for the status line
func (k Kind) Color() string {
	switch k {
	case StatusReady:
		return "blue"
	case StatusListening:
		return "green"
	case StatusProcessing:
		return "orange"
	default:
		return "red"
	}
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status is a state transition or problem report shown to the user
type Status struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	ChunkID string    `json:"chunk_id,omitempty"`
	Err     error     `json:"-"`
	At      time.Time `json:"at"`
}

// Color returns the display colour for the status
func (s Status) Color() string {
	return s.Kind.Color()
}

// Result pairs a recognized utterance with its translation
type Result struct {
	ChunkID           string               `json:"chunk_id"`
	Seq               uint64               `json:"seq"`
	Original          string               `json:"original"`
	Translated        string               `json:"translated"`
	TranslationFailed bool                 `json:"translation_failed"`
	Language          translation.Language `json:"language"`
	CapturedAt        time.Time            `json:"captured_at"`
	CompletedAt       time.Time            `json:"completed_at"`
}

// ResultSink receives status transitions and results. Methods are called
// from the pipeline's goroutines, so implementations must be safe for
// concurrent use. They must not call Start or Stop synchronously.
type ResultSink interface {
	OnStatus(status Status)
	OnResult(result Result)
}

// Discard is a ResultSink that ignores everything
type Discard struct{}

func (Discard) OnStatus(Status) {}

func (Discard) OnResult(Result) {}
