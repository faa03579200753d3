package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidDuration    = errors.New("chunk duration must cover at least one sample")
	ErrInvalidSampleRate  = errors.New("sample rate must be positive")
	ErrSampleRateMismatch = errors.New("sample rate does not match the input")
	ErrStreamClosed       = errors.New("audio stream closed")
	ErrIdleTimeout        = errors.New("no audio received")
)

// DeviceError reports that the audio input could not deliver a chunk.
// It is fatal to the current run.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// checkCapture validates a capture request and returns the sample count to read
func checkCapture(device string, duration time.Duration, sampleRate, inputRate int) (int, error) {
	if sampleRate <= 0 {
		return 0, &DeviceError{Device: device, Op: "capture", Err: ErrInvalidSampleRate}
	}

	if inputRate > 0 && sampleRate != inputRate {
		return 0, &DeviceError{
			Device: device,
			Op:     "capture",
			Err:    fmt.Errorf("%w: requested %d Hz, input is %d Hz", ErrSampleRateMismatch, sampleRate, inputRate),
		}
	}

	n := SamplesFor(duration, sampleRate)
	if n <= 0 {
		return 0, &DeviceError{Device: device, Op: "capture", Err: ErrInvalidDuration}
	}

	return n, nil
}
