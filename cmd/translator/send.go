package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/protocol"
)

const sendFrameDefault = 20 * time.Millisecond

var sendOpts struct {
	addr     string
	streamID uint32
	device   string
	frame    time.Duration
	realtime bool
}

var sendCmd = &cobra.Command{
	Use:   "send <file.wav>",
	Short: "Stream a mono PCM-16 WAV file to a translator's UDP input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sent, duration, err := sendWAV(cmd.Context(), args[0], sendOpts.addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d audio packets (%s of audio) to %s\n", sent, duration, sendOpts.addr)
		return nil
	},
}

// sendWAV streams the file as start, audio and end packets and returns the
// number of audio packets sent and the duration of the file's audio
func sendWAV(ctx context.Context, path, addr string) (int, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open WAV file %s: %w", path, err)
	}
	defer f.Close()

	header, err := audio.ReadWAVHeader(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read WAV file %s: %w", path, err)
	}
	duration := header.Duration()
	data := io.LimitReader(f, int64(header.Subchunk2Size))

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(protocol.EncodeStart(sendOpts.streamID, header.SampleRate, sendOpts.device)); err != nil {
		return 0, 0, fmt.Errorf("failed to send start packet: %w", err)
	}

	frameSamples := audio.SamplesFor(sendOpts.frame, int(header.SampleRate))
	if frameSamples <= 0 {
		return 0, 0, fmt.Errorf("frame %s is shorter than one sample", sendOpts.frame)
	}
	frame := make([]byte, frameSamples*2)

	var ticker *time.Ticker
	if sendOpts.realtime {
		ticker = time.NewTicker(sendOpts.frame)
		defer ticker.Stop()
	}

	sent := 0
	for seq := uint32(1); ; seq++ {
		n, readErr := io.ReadFull(data, frame)
		n -= n % 2
		if n > 0 {
			packet, err := protocol.EncodeAudio(sendOpts.streamID, seq, frame[:n])
			if err != nil {
				return sent, duration, err
			}
			if _, err := conn.Write(packet); err != nil {
				return sent, duration, fmt.Errorf("failed to send audio packet %d: %w", seq, err)
			}
			sent++
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			return sent, duration, fmt.Errorf("failed to read audio: %w", readErr)
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return sent, duration, ctx.Err()
			}
		}
	}

	if _, err := conn.Write(protocol.EncodeEnd(sendOpts.streamID)); err != nil {
		return sent, duration, fmt.Errorf("failed to send end packet: %w", err)
	}
	return sent, duration, nil
}
