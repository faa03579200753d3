package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Source produces fixed-duration chunks from a live audio input.
//
// Capture blocks until exactly duration*sampleRate samples have been
// gathered and never returns a partial chunk. Input failures are reported
// as *DeviceError.
type Source interface {
	Capture(ctx context.Context, duration time.Duration, sampleRate int) (*Chunk, error)
}

// ReaderSource captures chunks from a stream of mono little-endian PCM-16
// samples, such as stdin fed by a recording tool or a WAV file body.
type ReaderSource struct {
	name       string
	r          io.Reader
	closer     io.Closer
	sampleRate int

	// pace delays each chunk until its real-time end, so file playback
	// behaves like a live input
	pace        bool
	lastCapture time.Time

	seq uint64
	mu  sync.Mutex
}

// NewReaderSource creates a source reading raw PCM at sampleRate from r
func NewReaderSource(name string, r io.Reader, sampleRate int) *ReaderSource {
	s := &ReaderSource{
		name:       name,
		r:          r,
		sampleRate: sampleRate,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenWAVFile opens a mono PCM-16 WAV file as a chunk source.
// With pace set, chunks are released no faster than real time.
func OpenWAVFile(path string, pace bool) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file %s: %w", path, err)
	}

	header, err := ReadWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read WAV file %s: %w", path, err)
	}

	// Chunks after the audio data are not samples
	s := NewReaderSource(path, io.LimitReader(f, int64(header.Subchunk2Size)), int(header.SampleRate))
	s.closer = f
	s.pace = pace
	return s, nil
}

// SampleRate returns the sample rate of the underlying input
func (s *ReaderSource) SampleRate() int {
	return s.sampleRate
}

// Capture reads exactly one chunk of audio from the reader
func (s *ReaderSource) Capture(ctx context.Context, duration time.Duration, sampleRate int) (*Chunk, error) {
	n, err := checkCapture(s.name, duration, sampleRate, s.sampleRate)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, n*2)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = fmt.Errorf("%w: input ended mid-chunk", ErrStreamClosed)
		} else if err == io.EOF {
			err = ErrStreamClosed
		}
		return nil, &DeviceError{Device: s.name, Op: "read", Err: err}
	}

	if s.pace {
		s.waitRealTime(ctx, duration)
	}

	s.seq++
	return NewChunk(s.seq, bytesToSamples(buf), sampleRate), nil
}

// waitRealTime sleeps until duration has passed since the previous chunk
func (s *ReaderSource) waitRealTime(ctx context.Context, duration time.Duration) {
	if s.lastCapture.IsZero() {
		s.lastCapture = time.Now()
	}

	release := s.lastCapture.Add(duration)
	s.lastCapture = release

	wait := time.Until(release)
	if wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Close closes the underlying reader if it is closable
func (s *ReaderSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// BufferSource captures chunks from a Buffer filled by the UDP ingest
type BufferSource struct {
	buffer      *Buffer
	idleTimeout time.Duration

	seq uint64
	mu  sync.Mutex
}

// NewBufferSource creates a source draining buffer. A capture fails when no
// audio arrives for idleTimeout; zero waits forever.
func NewBufferSource(buffer *Buffer, idleTimeout time.Duration) *BufferSource {
	return &BufferSource{
		buffer:      buffer,
		idleTimeout: idleTimeout,
	}
}

// Capture blocks until the buffer holds a full chunk of audio
func (s *BufferSource) Capture(ctx context.Context, duration time.Duration, sampleRate int) (*Chunk, error) {
	n, err := checkCapture("udp", duration, sampleRate, s.buffer.SampleRate())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	samples, err := s.buffer.ReadSamples(ctx, n, s.idleTimeout)
	if err != nil {
		return nil, &DeviceError{Device: "udp", Op: "read", Err: err}
	}

	s.seq++
	return NewChunk(s.seq, samples, sampleRate), nil
}

// Flush discards audio that arrived while nobody was capturing
func (s *BufferSource) Flush() {
	s.buffer.Flush()
}
