package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/config"
	"github.com/skypro1111/live-translator/internal/metrics"
	"github.com/skypro1111/live-translator/internal/protocol"
)

// ErrStreamBusy is returned for packets of a stream other than the active one
var ErrStreamBusy = errors.New("another stream is active")

// UDPReceiver accepts framed PCM datagrams for a single live stream and
// writes the audio into a Buffer read by the pipeline's chunk source
type UDPReceiver struct {
	conn    *net.UDPConn
	config  config.UDPConfig
	logger  *slog.Logger
	buffer  *audio.Buffer
	metrics *metrics.Metrics

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Packet processing
	packetChan chan *incomingPacket

	// Active stream, guarded by mu
	streamID      uint32
	streamActive  bool
	streamStarted time.Time
	device        string

	// Basic counters
	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	packetsRejected  uint64
	packetsDropped   uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// ReceiverStatistics represents receiver performance metrics
type ReceiverStatistics struct {
	PacketsReceived  uint64            `json:"packets_received"`
	PacketsProcessed uint64            `json:"packets_processed"`
	ParseErrors      uint64            `json:"parse_errors"`
	PacketsRejected  uint64            `json:"packets_rejected"`
	PacketsDropped   uint64            `json:"packets_dropped"`
	StreamActive     bool              `json:"stream_active"`
	StreamID         uint32            `json:"stream_id,omitempty"`
	Device           string            `json:"device,omitempty"`
	QueueSize        int               `json:"queue_size"`
	QueueCapacity    int               `json:"queue_capacity"`
	Buffer           audio.BufferStats `json:"buffer"`
}

// NewUDPReceiver creates a receiver writing into buffer
func NewUDPReceiver(cfg config.UDPConfig, logger *slog.Logger, buffer *audio.Buffer, m *metrics.Metrics) *UDPReceiver {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPReceiver{
		config:     cfg,
		logger:     logger,
		buffer:     buffer,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, 1000),
	}
}

// Start begins listening for UDP packets
func (s *UDPReceiver) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP receiver started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	// One processor keeps buffer writes in arrival order
	s.wg.Add(2)
	go s.packetProcessor()
	go s.receiveLoop()

	return nil
}

// Addr returns the bound local address, or nil before Start
func (s *UDPReceiver) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the receiver and ends the active stream
func (s *UDPReceiver) Stop() error {
	s.logger.Info("Stopping UDP receiver...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	s.mu.Lock()
	if s.streamActive {
		s.endStreamLocked()
	}
	packetsReceived := s.packetsReceived
	packetsProcessed := s.packetsProcessed
	parseErrors := s.parseErrors
	s.mu.Unlock()

	s.logger.Info("UDP receiver stopped",
		slog.Uint64("packets_received", packetsReceived),
		slog.Uint64("packets_processed", packetsProcessed),
		slog.Uint64("parse_errors", parseErrors),
	)

	return nil
}

// receiveLoop is the main packet receiving loop
func (s *UDPReceiver) receiveLoop() {
	defer s.wg.Done()
	defer close(s.packetChan)

	buffer := make([]byte, protocol.MaxPacketSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Wake up periodically to observe cancellation
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// The read buffer is reused
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.packetChan <- packet:
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()
			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor processes packets from the packet channel
func (s *UDPReceiver) packetProcessor() {
	defer s.wg.Done()

	for packet := range s.packetChan {
		if err := s.HandlePacket(packet.data); err != nil {
			s.logger.Debug("Packet rejected",
				slog.String("remote_addr", packet.remoteAddr.String()),
				slog.Int("packet_size", len(packet.data)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// HandlePacket parses one datagram and applies it to the active stream
func (s *UDPReceiver) HandlePacket(data []byte) error {
	parsedPacket, err := protocol.ParsePacket(data)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		s.metrics.RecordParseError()

		s.logger.Warn("Failed to parse packet",
			slog.Int("packet_size", len(data)),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	header := parsedPacket.Header
	switch header.PacketType {
	case protocol.PacketTypeStart:
		err = s.startStreamLocked(header, parsedPacket.Start)
	case protocol.PacketTypeAudio:
		err = s.addAudioLocked(header, parsedPacket.Audio)
	case protocol.PacketTypeEnd:
		err = s.checkStreamLocked(header.StreamID)
		if err == nil {
			s.logger.Info("Stream ended by sender", slog.Uint64("stream_id", uint64(header.StreamID)))
			s.endStreamLocked()
		}
	}

	if err != nil {
		if errors.Is(err, ErrStreamBusy) {
			s.packetsRejected++
		}
		return err
	}

	s.packetsProcessed++
	s.metrics.RecordPacketProcessed()
	return nil
}

// startStreamLocked makes streamID the active stream; callers hold s.mu
func (s *UDPReceiver) startStreamLocked(header *protocol.Header, payload *protocol.StartPayload) error {
	if s.streamActive && s.streamID != header.StreamID {
		s.logger.Warn("Rejecting start of a second stream",
			slog.Uint64("active_stream_id", uint64(s.streamID)),
			slog.Uint64("stream_id", uint64(header.StreamID)),
		)
		return fmt.Errorf("stream %d: %w", header.StreamID, ErrStreamBusy)
	}

	if !s.streamActive {
		s.metrics.RecordStreamCreated()
	}

	s.streamID = header.StreamID
	s.streamActive = true
	s.streamStarted = time.Now()
	s.device = payload.GetDevice()
	s.buffer.Reset(header.StreamID, int(payload.SampleRate))

	s.logger.Info("Stream started",
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.String("device", s.device),
		slog.Int("sample_rate", int(payload.SampleRate)),
	)
	return nil
}

// addAudioLocked appends audio of the active stream; callers hold s.mu
func (s *UDPReceiver) addAudioLocked(header *protocol.Header, payload *protocol.AudioPayload) error {
	if err := s.checkStreamLocked(header.StreamID); err != nil {
		return err
	}

	if err := s.buffer.AddAudioData(payload.Sequence, payload.AudioData); err != nil {
		s.logger.Debug("Failed to add audio data",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// checkStreamLocked reports whether packets of streamID are accepted
func (s *UDPReceiver) checkStreamLocked(streamID uint32) error {
	if !s.streamActive {
		return fmt.Errorf("stream %d was never started", streamID)
	}
	if s.streamID != streamID {
		return fmt.Errorf("stream %d: %w", streamID, ErrStreamBusy)
	}
	return nil
}

// endStreamLocked closes the buffer so readers see end of stream
func (s *UDPReceiver) endStreamLocked() {
	s.buffer.Close()
	s.streamActive = false
	s.metrics.RecordStreamDestroyed(time.Since(s.streamStarted).Seconds())
}

// GetStatistics returns current receiver statistics
func (s *UDPReceiver) GetStatistics() ReceiverStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ReceiverStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		PacketsRejected:  s.packetsRejected,
		PacketsDropped:   s.packetsDropped,
		StreamActive:     s.streamActive,
		QueueSize:        len(s.packetChan),
		QueueCapacity:    cap(s.packetChan),
		Buffer:           s.buffer.GetStats(),
	}
	if s.streamActive {
		stats.StreamID = s.streamID
		stats.Device = s.device
	}
	return stats
}
