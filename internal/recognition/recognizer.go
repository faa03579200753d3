package recognition

import (
	"context"
	"fmt"
	"strings"

	"github.com/skypro1111/live-translator/internal/audio"
)

// Recognizer converts one chunk of speech to text. An empty string means
// no speech was recognized. Failures are reported as *Error.
type Recognizer interface {
	Transcribe(ctx context.Context, chunk *audio.Chunk) (string, error)
}

// Error reports that a single chunk could not be recognized.
// It is not fatal to the pipeline.
type Error struct {
	ChunkID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recognition failed for chunk %s: %v", e.ChunkID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Segment represents a segment of transcribed text
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// JoinSegments joins segment texts with single spaces, skipping blank ones
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
