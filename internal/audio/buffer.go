package audio

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Buffer accumulates PCM audio received over the network for one stream,
// restoring packet order by sequence number and tracking packet loss.
// Readers block in ReadSamples until enough audio is available.
type Buffer struct {
	streamID   uint32
	sampleRate int

	// Audio data storage
	rawAudioData []byte
	maxBytes     int // oldest audio is discarded beyond this

	// Sequence tracking
	lastSeq      uint32
	expectedSeq  uint32
	rawSeqBuffer map[uint32][]byte

	// Packet loss tracking
	lostPackets map[uint32]bool
	maxGap      uint32

	lastUpdate   time.Time
	totalPackets uint32
	lostCount    uint32
	trimmedBytes uint64
	closed       bool

	notify chan struct{}
	mu     sync.Mutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	StreamID     uint32    `json:"stream_id"`
	SampleRate   int       `json:"sample_rate"`
	TotalPackets uint32    `json:"total_packets"`
	LostPackets  uint32    `json:"lost_packets"`
	LossRate     float64   `json:"loss_rate"`
	BufferSize   int       `json:"buffer_size_samples"`
	PendingSeqs  int       `json:"pending_sequences"`
	LastSequence uint32    `json:"last_sequence"`
	LastUpdate   time.Time `json:"last_update"`
	TrimmedBytes uint64    `json:"trimmed_bytes"`
	Closed       bool      `json:"closed"`
}

// NewBuffer creates an audio buffer holding at most maxBuffered of audio
func NewBuffer(sampleRate int, maxBuffered time.Duration) *Buffer {
	maxBytes := SamplesFor(maxBuffered, sampleRate) * 2
	if maxBytes <= 0 {
		maxBytes = sampleRate * 2 * 30
	}

	return &Buffer{
		sampleRate:   sampleRate,
		rawAudioData: make([]byte, 0, sampleRate*4),
		maxBytes:     maxBytes,
		rawSeqBuffer: make(map[uint32][]byte),
		lostPackets:  make(map[uint32]bool),
		lastUpdate:   time.Now(),
		maxGap:       20,
		notify:       make(chan struct{}, 1),
	}
}

// Reset prepares the buffer for a new stream, discarding any previous audio
func (b *Buffer) Reset(streamID uint32, sampleRate int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streamID = streamID
	if sampleRate > 0 {
		b.sampleRate = sampleRate
	}
	b.rawAudioData = b.rawAudioData[:0]
	b.rawSeqBuffer = make(map[uint32][]byte)
	b.lostPackets = make(map[uint32]bool)
	b.lastSeq = 0
	b.expectedSeq = 0
	b.totalPackets = 0
	b.lostCount = 0
	b.trimmedBytes = 0
	b.closed = false
	b.lastUpdate = time.Now()
	b.signal()
}

// AddAudioData adds PCM audio data to the buffer with sequence handling
func (b *Buffer) AddAudioData(sequence uint32, rawData []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("stream %d is closed", b.streamID)
	}

	if len(rawData)%2 != 0 {
		return fmt.Errorf("audio data length must be even (got %d bytes)", len(rawData))
	}

	b.lastUpdate = time.Now()
	b.totalPackets++

	if err := b.addRawBytesWithSequence(sequence, rawData); err != nil {
		return err
	}

	b.trimOverflow()
	b.signal()
	return nil
}

// Close marks the end of the stream; pending readers fail with ErrStreamClosed
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.signal()
}

// Flush discards all buffered audio without ending the stream
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trimmedBytes += uint64(len(b.rawAudioData))
	b.rawAudioData = b.rawAudioData[:0]
}

// ReadSamples blocks until n samples are buffered and removes them.
// It fails with ErrIdleTimeout when no packet arrives for idleTimeout
// (zero disables the timeout) and with ErrStreamClosed once the stream has
// ended and fewer than n samples remain.
func (b *Buffer) ReadSamples(ctx context.Context, n int, idleTimeout time.Duration) ([]int16, error) {
	need := n * 2

	for {
		b.mu.Lock()
		if len(b.rawAudioData) >= need {
			samples := bytesToSamples(b.rawAudioData[:need])
			remaining := copy(b.rawAudioData, b.rawAudioData[need:])
			b.rawAudioData = b.rawAudioData[:remaining]
			b.mu.Unlock()
			return samples, nil
		}
		if b.closed {
			b.mu.Unlock()
			return nil, ErrStreamClosed
		}
		lastUpdate := b.lastUpdate
		b.mu.Unlock()

		var timer *time.Timer
		var timeout <-chan time.Time
		if idleTimeout > 0 {
			wait := idleTimeout - time.Since(lastUpdate)
			if wait <= 0 {
				return nil, fmt.Errorf("%w for %s", ErrIdleTimeout, idleTimeout)
			}
			timer = time.NewTimer(wait)
			timeout = timer.C
		}

		var err error
		select {
		case <-b.notify:
		case <-timeout:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return nil, err
		}
	}
}

// signal wakes a blocked reader; callers hold b.mu
func (b *Buffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// trimOverflow drops the oldest audio beyond maxBytes; callers hold b.mu
func (b *Buffer) trimOverflow() {
	if len(b.rawAudioData) <= b.maxBytes {
		return
	}

	excess := len(b.rawAudioData) - b.maxBytes
	excess += excess % 2
	remaining := copy(b.rawAudioData, b.rawAudioData[excess:])
	b.rawAudioData = b.rawAudioData[:remaining]
	b.trimmedBytes += uint64(excess)
}

// markMissingAsLost marks a range of sequence numbers as lost
func (b *Buffer) markMissingAsLost(start, end uint32) {
	for seq := start; seq <= end; seq++ {
		if _, buffered := b.rawSeqBuffer[seq]; !buffered {
			b.lostPackets[seq] = true
			b.lostCount++
		}
	}
}

// cleanupOldLostPackets removes very old lost packet tracking
func (b *Buffer) cleanupOldLostPackets() {
	if b.lastSeq < 100 {
		return
	}
	cutoff := b.lastSeq - 100
	for seq := range b.lostPackets {
		if seq < cutoff {
			delete(b.lostPackets, seq)
		}
	}
}

// addRawBytesWithSequence handles sequence-ordered addition of raw bytes
func (b *Buffer) addRawBytesWithSequence(sequence uint32, rawData []byte) error {
	if b.totalPackets == 1 {
		b.expectedSeq = sequence
		b.lastSeq = sequence - 1
	}

	if sequence == b.expectedSeq {
		b.rawAudioData = append(b.rawAudioData, rawData...)
		b.lastSeq = sequence
		b.expectedSeq = sequence + 1

		b.processBufferedRawPackets()

	} else if sequence > b.expectedSeq {
		b.rawSeqBuffer[sequence] = make([]byte, len(rawData))
		copy(b.rawSeqBuffer[sequence], rawData)

		// Give up on the gap once it grows too large
		if sequence-b.expectedSeq > b.maxGap {
			b.markMissingAsLost(b.expectedSeq, sequence-1)
			b.expectedSeq = sequence
			b.processBufferedRawPackets()
		}

	} else {
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, lastSeq=%d", sequence, b.lastSeq)
	}

	b.cleanupOldLostPackets()

	return nil
}

// processBufferedRawPackets appends any consecutive buffered packets
func (b *Buffer) processBufferedRawPackets() {
	for {
		rawData, exists := b.rawSeqBuffer[b.expectedSeq]
		if !exists {
			break
		}

		b.rawAudioData = append(b.rawAudioData, rawData...)
		delete(b.rawSeqBuffer, b.expectedSeq)
		delete(b.lostPackets, b.expectedSeq)

		b.lastSeq = b.expectedSeq
		b.expectedSeq++
	}
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	lossRate := float64(0)
	if b.totalPackets > 0 {
		lossRate = float64(b.lostCount) / float64(b.totalPackets) * 100
	}

	return BufferStats{
		StreamID:     b.streamID,
		SampleRate:   b.sampleRate,
		TotalPackets: b.totalPackets,
		LostPackets:  b.lostCount,
		LossRate:     lossRate,
		BufferSize:   len(b.rawAudioData) / 2,
		PendingSeqs:  len(b.rawSeqBuffer),
		LastSequence: b.lastSeq,
		LastUpdate:   b.lastUpdate,
		TrimmedBytes: b.trimmedBytes,
		Closed:       b.closed,
	}
}

// SampleRate returns the sample rate of the current stream
func (b *Buffer) SampleRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleRate
}

// Size returns the current number of samples in the buffer
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rawAudioData) / 2
}
