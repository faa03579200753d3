package audio

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is one fixed-duration unit of captured mono PCM-16 audio.
// A chunk is never modified after it has been produced by a Source.
type Chunk struct {
	ID         string        `json:"id"`
	Seq        uint64        `json:"seq"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`
	CapturedAt time.Time     `json:"captured_at"`
	Samples    []int16       `json:"-"`
}

// NewChunk wraps captured samples into a chunk stamped with the current time
func NewChunk(seq uint64, samples []int16, sampleRate int) *Chunk {
	var duration time.Duration
	if sampleRate > 0 {
		duration = time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	}

	return &Chunk{
		ID:         uuid.NewString(),
		Seq:        seq,
		SampleRate: sampleRate,
		Duration:   duration,
		CapturedAt: time.Now(),
		Samples:    samples,
	}
}

// WAV encodes the chunk as a mono 16-bit WAV file
func (c *Chunk) WAV() ([]byte, error) {
	return EncodeWAV(c.Samples, c.SampleRate)
}

// SamplesFor returns the number of samples in duration at sampleRate.
func SamplesFor(duration time.Duration, sampleRate int) int {
	if duration <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(int64(duration) * int64(sampleRate) / int64(time.Second))
}

// bytesToSamples converts little-endian PCM-16 bytes to samples
func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
