package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func createAudioData(seq uint32, samples int) []byte {
	data := make([]byte, samples*2)
	for i := 0; i < len(data); i += 2 {
		data[i] = byte(seq % 256)
		data[i+1] = byte(seq / 256)
	}
	return data
}

func TestNewBuffer(t *testing.T) {
	sampleRate := 8000

	buffer := NewBuffer(sampleRate, time.Second)

	if buffer == nil {
		t.Fatal("NewBuffer returned nil")
	}

	if buffer.SampleRate() != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, buffer.SampleRate())
	}

	if buffer.GetStats().LastSequence != 0 {
		t.Errorf("Expected initial sequence 0, got %d", buffer.GetStats().LastSequence)
	}

	if buffer.Size() != 0 {
		t.Errorf("Expected initial size 0, got %d", buffer.Size())
	}
}

func TestAddAudioData(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)

	initialTime := buffer.GetStats().LastUpdate

	// Wait a bit to ensure time difference
	time.Sleep(10 * time.Millisecond)

	sequence := uint32(100)
	if err := buffer.AddAudioData(sequence, createAudioData(sequence, 160)); err != nil {
		t.Errorf("Failed to add audio data: %v", err)
	}

	if buffer.GetStats().LastSequence != sequence {
		t.Errorf("Expected sequence %d, got %d", sequence, buffer.GetStats().LastSequence)
	}

	if !buffer.GetStats().LastUpdate.After(initialTime) {
		t.Error("Expected last update time to be updated")
	}

	if buffer.Size() != 160 {
		t.Errorf("Expected 160 samples, got %d", buffer.Size())
	}

	if stats := buffer.GetStats(); stats.TotalPackets != 1 {
		t.Errorf("Expected 1 total packet, got %d", stats.TotalPackets)
	}

	if err := buffer.AddAudioData(101, []byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length audio data")
	}
}

func TestSequenceOrdering(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)

	// Add packets out of order: 1, 3, 2, 4
	if err := buffer.AddAudioData(1, createAudioData(1, 80)); err != nil {
		t.Errorf("Failed to add packet 1: %v", err)
	}

	if err := buffer.AddAudioData(3, createAudioData(3, 80)); err != nil {
		t.Errorf("Failed to add packet 3: %v", err)
	}

	// Packet 2 is missing, so packet 3 waits outside the main buffer
	if buffer.Size() != 80 {
		t.Errorf("Expected 80 samples after packets 1,3, got %d", buffer.Size())
	}

	if err := buffer.AddAudioData(2, createAudioData(2, 80)); err != nil {
		t.Errorf("Failed to add packet 2: %v", err)
	}

	if buffer.Size() != 240 {
		t.Errorf("Expected 240 samples after reordering, got %d", buffer.Size())
	}

	if buffer.GetStats().LastSequence != 3 {
		t.Errorf("Expected last sequence 3, got %d", buffer.GetStats().LastSequence)
	}

	samples, err := buffer.ReadSamples(context.Background(), 240, 0)
	if err != nil {
		t.Fatalf("ReadSamples failed: %v", err)
	}
	for i, want := range []int16{1, 2, 3} {
		if got := samples[i*80]; got != want {
			t.Errorf("Packet %d: expected sample %d, got %d", i+1, want, got)
		}
	}

	if err := buffer.AddAudioData(2, createAudioData(2, 80)); err == nil {
		t.Error("Expected error for duplicate packet")
	}
}

func TestPacketLossDetection(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)

	audioData := make([]byte, 160)

	buffer.AddAudioData(1, audioData)

	// A large gap gives up on packets 2-29
	buffer.AddAudioData(30, audioData)

	stats := buffer.GetStats()
	if stats.LostPackets != 28 {
		t.Errorf("Expected 28 lost packets, got %d", stats.LostPackets)
	}

	if stats.LossRate == 0 {
		t.Error("Expected non-zero loss rate")
	}

	if buffer.GetStats().LastSequence != 30 {
		t.Errorf("Expected last sequence 30, got %d", buffer.GetStats().LastSequence)
	}

	if buffer.Size() != 160 {
		t.Errorf("Expected 160 samples, got %d", buffer.Size())
	}
}

func TestBufferTrimming(t *testing.T) {
	// One second at 8kHz
	buffer := NewBuffer(8000, time.Second)

	for i := 0; i < 20; i++ {
		if err := buffer.AddAudioData(uint32(i+1), createAudioData(uint32(i+1), 800)); err != nil {
			t.Fatalf("Failed to add audio data %d: %v", i+1, err)
		}
	}

	if buffer.Size() != 8000 {
		t.Errorf("Expected buffer trimmed to 8000 samples, got %d", buffer.Size())
	}

	stats := buffer.GetStats()
	if stats.TrimmedBytes != 16000 {
		t.Errorf("Expected 16000 trimmed bytes, got %d", stats.TrimmedBytes)
	}
}

func TestReadSamplesWaitsForData(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)

	go func() {
		for i := uint32(1); i <= 4; i++ {
			time.Sleep(5 * time.Millisecond)
			buffer.AddAudioData(i, createAudioData(i, 100))
		}
	}()

	samples, err := buffer.ReadSamples(context.Background(), 400, time.Second)
	if err != nil {
		t.Fatalf("ReadSamples failed: %v", err)
	}

	if len(samples) != 400 {
		t.Errorf("Expected 400 samples, got %d", len(samples))
	}

	if buffer.Size() != 0 {
		t.Errorf("Expected empty buffer after read, got %d samples", buffer.Size())
	}
}

func TestReadSamplesIdleTimeout(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)
	buffer.AddAudioData(1, createAudioData(1, 100))

	start := time.Now()
	_, err := buffer.ReadSamples(context.Background(), 400, 30*time.Millisecond)
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("Expected ErrIdleTimeout, got %v", err)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected idle timeout well under a second, took %v", elapsed)
	}

	// Partial audio stays buffered
	if buffer.Size() != 100 {
		t.Errorf("Expected 100 samples to remain, got %d", buffer.Size())
	}
}

func TestReadSamplesClosed(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)
	buffer.AddAudioData(1, createAudioData(1, 100))

	go func() {
		time.Sleep(10 * time.Millisecond)
		buffer.Close()
	}()

	_, err := buffer.ReadSamples(context.Background(), 400, 0)
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Expected ErrStreamClosed, got %v", err)
	}

	if err := buffer.AddAudioData(2, createAudioData(2, 100)); err == nil {
		t.Error("Expected error adding audio to a closed stream")
	}

	buffer.Reset(7, 16000)
	if buffer.GetStats().Closed {
		t.Error("Expected Reset to reopen the buffer")
	}
	if buffer.SampleRate() != 16000 {
		t.Errorf("Expected sample rate 16000 after reset, got %d", buffer.SampleRate())
	}
	if buffer.Size() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", buffer.Size())
	}
}

func TestReadSamplesContextCancel(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := buffer.ReadSamples(ctx, 400, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestFlush(t *testing.T) {
	buffer := NewBuffer(8000, time.Second)
	buffer.AddAudioData(1, createAudioData(1, 100))

	buffer.Flush()

	if buffer.Size() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", buffer.Size())
	}

	// Stream continues after a flush
	if err := buffer.AddAudioData(2, createAudioData(2, 100)); err != nil {
		t.Errorf("Failed to add audio after flush: %v", err)
	}
	if buffer.Size() != 100 {
		t.Errorf("Expected 100 samples, got %d", buffer.Size())
	}
}
