package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/stage"
)

// Protocol constants
const (
	// Packet types
	PacketTypeStart  = 0x01
	PacketTypeAudio  = 0x02
	PacketTypeStop   = 0x03
	PacketTypeCancel = 0x04

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	StartPayloadSize       = 32 // 16 + 16 bytes
	AudioPayloadHeaderSize = 4  // Sample rate (4 bytes)
	MaxPacketSize          = 65535

	// String field sizes in start payload
	LanguageSize = 16

	// MaxChannels bounds the interleaved channel count of an audio packet
	MaxChannels = 8
)

// Header represents the 8-byte packet header
// Layout: [PacketType:1][PacketLen:2][SessionID:4][Channels:1]
type Header struct {
	PacketType uint8  // 0x01=Start, 0x02=Audio, 0x03=Stop, 0x04=Cancel
	PacketLen  uint16 // Total packet size (header + payload)
	SessionID  uint32 // Session identifier
	Channels   uint8  // Interleaved channels in audio packets, 0 otherwise
}

// StartPayload represents the 32-byte start packet payload
// Layout: [InputLanguage:16][OutputLanguage:16]
type StartPayload struct {
	InputLanguage  [LanguageSize]byte // Null-padded language code
	OutputLanguage [LanguageSize]byte // Null-padded language code
}

// AudioPayload represents the audio packet payload
// Layout: [SampleRate:4][Samples:N*2 little-endian int16]
type AudioPayload struct {
	SampleRate uint32
	Samples    []int16
}

// ParsedPacket represents a fully parsed packet
type ParsedPacket struct {
	Header *Header
	Start  *StartPayload // Only set for start packets
	Audio  *AudioPayload // Only set for audio packets
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		SessionID:  binary.BigEndian.Uint32(data[3:7]),
		Channels:   data[7],
	}

	return header, nil
}

// ParseStartPayload parses the 32-byte start packet payload
func ParseStartPayload(data []byte) (*StartPayload, error) {
	if len(data) < StartPayloadSize {
		return nil, fmt.Errorf("start payload too short: expected %d bytes, got %d",
			StartPayloadSize, len(data))
	}

	payload := &StartPayload{}
	copy(payload.InputLanguage[:], data[0:LanguageSize])
	copy(payload.OutputLanguage[:], data[LanguageSize:2*LanguageSize])

	return payload, nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sample rate + samples)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	pcm := data[AudioPayloadHeaderSize:]
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio payload has odd PCM byte count %d", len(pcm))
	}

	payload := &AudioPayload{
		SampleRate: binary.BigEndian.Uint32(data[0:4]),
		Samples:    make([]int16, len(pcm)/2),
	}

	for i := range payload.Samples {
		payload.Samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// Validate packet length matches actual data
	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeStart:
		payload, err := ParseStartPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start payload: %w", err)
		}
		packet.Start = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		if len(payload.Samples)%int(header.Channels) != 0 {
			return nil, fmt.Errorf("audio sample count %d is not a multiple of %d channels",
				len(payload.Samples), header.Channels)
		}
		packet.Audio = payload

	case PacketTypeStop, PacketTypeCancel:
		// no payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	expectedPayloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeStart:
		if expectedPayloadSize != StartPayloadSize {
			return fmt.Errorf("start packet payload size mismatch: expected %d, got %d",
				StartPayloadSize, expectedPayloadSize)
		}
	case PacketTypeAudio:
		if expectedPayloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, expectedPayloadSize)
		}
		if header.Channels < 1 || header.Channels > MaxChannels {
			return fmt.Errorf("invalid channel count: %d (allowed 1-%d)", header.Channels, MaxChannels)
		}
	case PacketTypeStop, PacketTypeCancel:
		if expectedPayloadSize != 0 {
			return fmt.Errorf("control packet must have no payload, got %d bytes", expectedPayloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype >= PacketTypeStart && ptype <= PacketTypeCancel
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetInputLanguage extracts the input language code
func (s *StartPayload) GetInputLanguage() stage.Language {
	return stage.Language(ExtractString(s.InputLanguage[:]))
}

// GetOutputLanguage extracts the output language code
func (s *StartPayload) GetOutputLanguage() stage.Language {
	return stage.Language(ExtractString(s.OutputLanguage[:]))
}

// Frame converts an audio packet into a capture frame
func (p *ParsedPacket) Frame() (audio.Frame, error) {
	if p.Audio == nil {
		return audio.Frame{}, fmt.Errorf("packet type 0x%02x carries no audio", p.Header.PacketType)
	}

	return audio.Frame{
		Samples:    p.Audio.Samples,
		SampleRate: int(p.Audio.SampleRate),
		Channels:   int(p.Header.Channels),
	}, nil
}

// BuildStart encodes a start packet
func BuildStart(sessionID uint32, input, output stage.Language) ([]byte, error) {
	if len(input) > LanguageSize || len(output) > LanguageSize {
		return nil, fmt.Errorf("language code longer than %d bytes", LanguageSize)
	}

	data := make([]byte, HeaderSize+StartPayloadSize)
	putHeader(data, PacketTypeStart, sessionID, 0)
	copy(data[HeaderSize:], input)
	copy(data[HeaderSize+LanguageSize:], output)

	return data, nil
}

// BuildAudio encodes a frame as an audio packet
func BuildAudio(sessionID uint32, frame audio.Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	if frame.Channels > MaxChannels {
		return nil, fmt.Errorf("invalid channel count: %d (allowed 1-%d)", frame.Channels, MaxChannels)
	}

	size := HeaderSize + AudioPayloadHeaderSize + len(frame.Samples)*2
	if size > MaxPacketSize {
		return nil, fmt.Errorf("frame too large for one packet: %d bytes (maximum %d)", size, MaxPacketSize)
	}

	data := make([]byte, size)
	putHeader(data, PacketTypeAudio, sessionID, uint8(frame.Channels))
	binary.BigEndian.PutUint32(data[HeaderSize:], uint32(frame.SampleRate))

	pcm := data[HeaderSize+AudioPayloadHeaderSize:]
	for i, s := range frame.Samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	return data, nil
}

// BuildStop encodes a stop packet
func BuildStop(sessionID uint32) []byte {
	data := make([]byte, HeaderSize)
	putHeader(data, PacketTypeStop, sessionID, 0)
	return data
}

// BuildCancel encodes a cancel packet
func BuildCancel(sessionID uint32) []byte {
	data := make([]byte, HeaderSize)
	putHeader(data, PacketTypeCancel, sessionID, 0)
	return data
}

func putHeader(data []byte, ptype uint8, sessionID uint32, channels uint8) {
	data[0] = ptype
	binary.BigEndian.PutUint16(data[1:3], uint16(len(data)))
	binary.BigEndian.PutUint32(data[3:7], sessionID)
	data[7] = channels
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	return fmt.Sprintf("Header{Type:%s, Len:%d, SessionID:%d, Channels:%d}",
		PacketTypeName(h.PacketType), h.PacketLen, h.SessionID, h.Channels)
}

// PacketTypeName returns the packet type label used in logs and metrics
func PacketTypeName(ptype uint8) string {
	switch ptype {
	case PacketTypeStart:
		return "Start"
	case PacketTypeAudio:
		return "Audio"
	case PacketTypeStop:
		return "Stop"
	case PacketTypeCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", ptype)
	}
}

// String returns a human-readable representation of the start payload
func (s *StartPayload) String() string {
	return fmt.Sprintf("StartPayload{InputLanguage:%q, OutputLanguage:%q}",
		s.GetInputLanguage(), s.GetOutputLanguage())
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{SampleRate:%d, Samples:%d}", a.SampleRate, len(a.Samples))
}
