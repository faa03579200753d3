package protocol

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Header
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid start header",
			data: []byte{
				0x01,       // PacketType: Start
				0x00, 0x2C, // PacketLen: 44 (8 + 36)
				0x00, 0x00, 0x30, 0x39, // StreamID: 12345
				0x01, // Channels: mono
			},
			expected: &Header{
				PacketType: PacketTypeStart,
				PacketLen:  44,
				StreamID:   12345,
				Channels:   ChannelsMono,
			},
		},
		{
			name: "valid audio header",
			data: []byte{
				0x02,       // PacketType: Audio
				0x01, 0x00, // PacketLen: 256
				0x12, 0x34, 0x56, 0x78, // StreamID: 305419896
				0x01, // Channels: mono
			},
			expected: &Header{
				PacketType: PacketTypeAudio,
				PacketLen:  256,
				StreamID:   305419896,
				Channels:   ChannelsMono,
			},
		},
		{
			name:        "header too short",
			data:        []byte{0x01, 0x00},
			expectError: true,
			errorMsg:    "header too short",
		},
		{
			name:        "empty data",
			data:        []byte{},
			expectError: true,
			errorMsg:    "header too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseHeader(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			} else if *result != *tt.expected {
				t.Errorf("Expected header %+v, got %+v", tt.expected, result)
			}
		})
	}
}

func TestParseStartPayload(t *testing.T) {
	valid := make([]byte, StartPayloadSize)
	binary.BigEndian.PutUint32(valid[0:4], 16000)
	copy(valid[4:], "mic-1")

	zeroRate := make([]byte, StartPayloadSize)

	tests := []struct {
		name        string
		data        []byte
		expectError bool
		errorMsg    string
	}{
		{name: "valid payload", data: valid},
		{name: "payload too short", data: valid[:10], expectError: true, errorMsg: "start payload too short"},
		{name: "zero sample rate", data: zeroRate, expectError: true, errorMsg: "zero sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseStartPayload(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if result.SampleRate != 16000 {
				t.Errorf("Expected sample rate 16000, got %d", result.SampleRate)
			}
			if result.GetDevice() != "mic-1" {
				t.Errorf("Expected device 'mic-1', got '%s'", result.GetDevice())
			}
		})
	}
}

func TestParseAudioPayload(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectedSeq uint32
		expectedLen int
		expectError bool
	}{
		{
			name:        "payload with audio",
			data:        []byte{0x00, 0x00, 0x00, 0x2A, 0x01, 0x02, 0x03, 0x04},
			expectedSeq: 42,
			expectedLen: 4,
		},
		{
			name:        "sequence only",
			data:        []byte{0xFF, 0xFF, 0xFF, 0xFF},
			expectedSeq: 0xFFFFFFFF,
			expectedLen: 0,
		},
		{
			name:        "payload too short",
			data:        []byte{0x00, 0x01},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseAudioPayload(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if result.Sequence != tt.expectedSeq {
				t.Errorf("Expected sequence %d, got %d", tt.expectedSeq, result.Sequence)
			}
			if len(result.AudioData) != tt.expectedLen {
				t.Errorf("Expected %d audio bytes, got %d", tt.expectedLen, len(result.AudioData))
			}
		})
	}
}

func TestParsePacketRoundTrip(t *testing.T) {
	start := EncodeStart(7, 16000, "usb-mic")
	packet, err := ParsePacket(start)
	if err != nil {
		t.Fatalf("Failed to parse start packet: %v", err)
	}
	if packet.Start == nil || packet.Audio != nil {
		t.Fatalf("Expected start payload only, got %+v", packet)
	}
	if packet.Header.StreamID != 7 {
		t.Errorf("Expected stream 7, got %d", packet.Header.StreamID)
	}
	if packet.Start.SampleRate != 16000 || packet.Start.GetDevice() != "usb-mic" {
		t.Errorf("Unexpected start payload: %s", packet.Start)
	}

	pcm := []byte{0x01, 0x00, 0xFF, 0x7F}
	audio, err := EncodeAudio(7, 3, pcm)
	if err != nil {
		t.Fatalf("Failed to encode audio packet: %v", err)
	}
	packet, err = ParsePacket(audio)
	if err != nil {
		t.Fatalf("Failed to parse audio packet: %v", err)
	}
	if packet.Audio == nil || packet.Audio.Sequence != 3 {
		t.Fatalf("Expected audio payload with sequence 3, got %+v", packet.Audio)
	}
	if string(packet.Audio.AudioData) != string(pcm) {
		t.Errorf("Expected audio %v, got %v", pcm, packet.Audio.AudioData)
	}

	packet, err = ParsePacket(EncodeEnd(7))
	if err != nil {
		t.Fatalf("Failed to parse end packet: %v", err)
	}
	if packet.Header.PacketType != PacketTypeEnd || packet.Start != nil || packet.Audio != nil {
		t.Errorf("Expected bare end packet, got %+v", packet)
	}
}

func TestParsePacketErrors(t *testing.T) {
	audio, _ := EncodeAudio(1, 1, []byte{0x00, 0x00})

	badType := EncodeEnd(1)
	badType[0] = 0x09

	stereo := EncodeEnd(1)
	stereo[7] = 2

	oddAudio := make([]byte, HeaderSize+AudioPayloadHeaderSize+3)
	oddAudio[0] = PacketTypeAudio
	binary.BigEndian.PutUint16(oddAudio[1:3], uint16(len(oddAudio)))
	oddAudio[7] = ChannelsMono

	endWithPayload := make([]byte, HeaderSize+2)
	endWithPayload[0] = PacketTypeEnd
	binary.BigEndian.PutUint16(endWithPayload[1:3], uint16(len(endWithPayload)))
	endWithPayload[7] = ChannelsMono

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{name: "too short", data: []byte{0x02}, errorMsg: "packet too short"},
		{name: "length mismatch", data: append(append([]byte{}, audio...), 0x00), errorMsg: "packet length mismatch"},
		{name: "unknown type", data: badType, errorMsg: "invalid packet type"},
		{name: "stereo", data: stereo, errorMsg: "unsupported channel count"},
		{name: "partial sample", data: oddAudio, errorMsg: "partial sample"},
		{name: "end with payload", data: endWithPayload, errorMsg: "end packet must not carry a payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.data)
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestEncodeAudioRejects(t *testing.T) {
	if _, err := EncodeAudio(1, 1, []byte{0x01}); err == nil {
		t.Errorf("Expected error for odd-length audio")
	}
	if _, err := EncodeAudio(1, 1, make([]byte, MaxPacketSize)); err == nil {
		t.Errorf("Expected error for oversized packet")
	}
}

func TestEncodeStartTruncatesDevice(t *testing.T) {
	long := strings.Repeat("x", 64)
	packet, err := ParsePacket(EncodeStart(1, 8000, long))
	if err != nil {
		t.Fatalf("Failed to parse start packet: %v", err)
	}
	if got := packet.Start.GetDevice(); len(got) != DeviceSize-1 {
		t.Errorf("Expected device truncated to %d bytes, got %d", DeviceSize-1, len(got))
	}
}

func TestIsValidPacketType(t *testing.T) {
	tests := []struct {
		ptype    uint8
		expected bool
	}{
		{PacketTypeStart, true},
		{PacketTypeAudio, true},
		{PacketTypeEnd, true},
		{0x00, false},
		{0x04, false},
	}

	for _, tt := range tests {
		if result := IsValidPacketType(tt.ptype); result != tt.expected {
			t.Errorf("IsValidPacketType(0x%02x): expected %v, got %v", tt.ptype, tt.expected, result)
		}
	}
}

func TestExtractString(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"null terminated", []byte{'a', 'b', 0, 'c'}, "ab"},
		{"no terminator", []byte{'a', 'b', 'c'}, "abc"},
		{"leading null", []byte{0, 'a'}, ""},
		{"empty", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ExtractString(tt.input); result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestStringMethods(t *testing.T) {
	header := &Header{PacketType: PacketTypeAudio, PacketLen: 12, StreamID: 5, Channels: 1}
	if s := header.String(); !strings.Contains(s, "Type:Audio") || !strings.Contains(s, "StreamID:5") {
		t.Errorf("Unexpected header string: %s", s)
	}

	unknown := &Header{PacketType: 0x7F}
	if s := unknown.String(); !strings.Contains(s, "Unknown(0x7f)") {
		t.Errorf("Unexpected header string: %s", s)
	}

	audio := &AudioPayload{Sequence: 9, AudioData: make([]byte, 6)}
	if s := audio.String(); !strings.Contains(s, "Sequence:9") || !strings.Contains(s, "AudioDataLen:6") {
		t.Errorf("Unexpected audio payload string: %s", s)
	}
}
