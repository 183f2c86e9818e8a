package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"flag"
	"math"
	"os"
	"path/filepath"
	"testing"
)

var updateGolden = flag.Bool("update", false, "update golden files")

func TestEncodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 16kHz
	sampleRate := 16000
	numSamples := sampleRate / 10
	samples := make([]int16, numSamples)
	for i := range samples {
		ts := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440.0*ts))
	}

	wavData, err := EncodeWAV(NewBuffer(samples, sampleRate))
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := WAVHeaderSize + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}
	if info.DataSize != uint32(numSamples*2) {
		t.Errorf("Expected data size %d, got %d", numSamples*2, info.DataSize)
	}
	if math.Abs(info.Duration-0.1) > 0.001 {
		t.Errorf("Expected duration 0.100, got %.3f", info.Duration)
	}
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	wavData, err := EncodeWAV(NewBuffer([]int16{-1, 0, 1}, 22050))
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	le := binary.LittleEndian
	checks := []struct {
		name     string
		got      uint32
		expected uint32
	}{
		{"chunk size", le.Uint32(wavData[4:8]), 36 + 6},
		{"fmt size", le.Uint32(wavData[16:20]), 16},
		{"audio format", uint32(le.Uint16(wavData[20:22])), 1},
		{"channels", uint32(le.Uint16(wavData[22:24])), 1},
		{"sample rate", le.Uint32(wavData[24:28]), 22050},
		{"byte rate", le.Uint32(wavData[28:32]), 44100},
		{"block align", uint32(le.Uint16(wavData[32:34])), 2},
		{"bits per sample", uint32(le.Uint16(wavData[34:36])), 16},
		{"data size", le.Uint32(wavData[40:44]), 6},
	}
	for _, c := range checks {
		if c.got != c.expected {
			t.Errorf("%s: expected %d, got %d", c.name, c.expected, c.got)
		}
	}

	// Samples are signed little-endian
	if !bytes.Equal(wavData[44:], []byte{0xFF, 0xFF, 0x00, 0x00, 0x01, 0x00}) {
		t.Errorf("Unexpected sample bytes: % x", wavData[44:])
	}
}

func TestEncodeWAVGolden(t *testing.T) {
	capture := NewCapture()
	for _, samples := range [][]int16{{1, 2}, {3, 4}, {5}} {
		if err := capture.Append(Frame{Samples: samples, SampleRate: 16000, Channels: 1}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	buffer, err := capture.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	got, err := EncodeWAV(buffer)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	golden := filepath.Join("testdata", "five_samples_16k.golden")
	if *updateGolden {
		if err := os.WriteFile(golden, got, 0644); err != nil {
			t.Fatalf("Failed to update golden file: %v", err)
		}
	}

	expected, err := os.ReadFile(golden)
	if err != nil {
		t.Fatalf("Failed to read golden file: %v", err)
	}

	if !bytes.Equal(got, expected) {
		t.Errorf("Encoded WAV differs from golden file\ngot:  % x\nwant: % x", got, expected)
	}
}

func TestEncodeWAVDeterministic(t *testing.T) {
	samples := make([]int16, 4096)
	for i := range samples {
		samples[i] = int16((i * 7919) % 65536)
	}
	buffer := NewBuffer(samples, 44100)

	first, err := EncodeWAV(buffer)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	second, err := EncodeWAV(buffer)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("Encoding the same buffer twice produced different bytes")
	}
}

func TestDecodeWAV(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500}

	wavData, err := EncodeWAV(NewBuffer(originalSamples, 8000))
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decoded.SampleRate() != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", decoded.SampleRate())
	}

	samples := decoded.Samples()
	if len(samples) != len(originalSamples) {
		t.Fatalf("Expected %d samples, got %d", len(originalSamples), len(samples))
	}
	for i, original := range originalSamples {
		if samples[i] != original {
			t.Errorf("Sample %d: expected %d, got %d", i, original, samples[i])
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	tests := []struct {
		name   string
		buffer *Buffer
	}{
		{name: "nil buffer", buffer: nil},
		{name: "empty buffer", buffer: NewBuffer(nil, 8000)},
		{name: "zero sample rate", buffer: NewBuffer([]int16{1, 2, 3}, 0)},
		{name: "negative sample rate", buffer: NewBuffer([]int16{1, 2, 3}, -1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeWAV(tt.buffer)
			var encodeErr *EncodeError
			if !errors.As(err, &encodeErr) {
				t.Errorf("Expected EncodeError, got %v", err)
			}
		})
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}

func TestGetWAVDuration(t *testing.T) {
	samples := make([]int16, 8000) // 1 second
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	wavData, err := EncodeWAV(NewBuffer(samples, 8000))
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", duration)
	}
}
