package audio

import (
	"fmt"
	"time"
)

// Frame is one chunk of interleaved PCM-16 samples delivered by a capture device.
type Frame struct {
	Samples    []int16 // Interleaved when Channels > 1
	SampleRate int     // Hz
	Channels   int     // 1 = mono, 2 = stereo, ...
}

// Validate checks the frame's structural fields.
func (f Frame) Validate() error {
	if f.Channels < 1 {
		return &InvalidFrameError{Reason: fmt.Sprintf("channel count must be at least 1, got %d", f.Channels)}
	}

	if f.SampleRate <= 0 {
		return &InvalidFrameError{Reason: fmt.Sprintf("sample rate must be positive, got %d", f.SampleRate)}
	}

	if len(f.Samples)%f.Channels != 0 {
		return &InvalidFrameError{Reason: fmt.Sprintf("%d samples is not a multiple of %d channels",
			len(f.Samples), f.Channels)}
	}

	return nil
}

// SampleCount returns the number of per-channel sample slots in the frame.
func (f Frame) SampleCount() int {
	if f.Channels < 1 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Mono returns the frame reduced to a single channel. Each output sample is
// the integer mean of the interleaved channel samples at that slot,
// truncated toward zero. Mono frames are returned as a copy.
func (f Frame) Mono() []int16 {
	if f.Channels <= 1 {
		out := make([]int16, len(f.Samples))
		copy(out, f.Samples)
		return out
	}

	out := make([]int16, len(f.Samples)/f.Channels)
	for i := range out {
		var sum int32
		base := i * f.Channels
		for ch := 0; ch < f.Channels; ch++ {
			sum += int32(f.Samples[base+ch])
		}
		out[i] = int16(sum / int32(f.Channels))
	}
	return out
}

// Buffer is a finalized single-channel sample buffer with a fixed sample rate.
// It is immutable: accessors never expose the backing slice.
type Buffer struct {
	samples    []int16
	sampleRate int
}

// NewBuffer creates a buffer holding a copy of samples.
func NewBuffer(samples []int16, sampleRate int) *Buffer {
	owned := make([]int16, len(samples))
	copy(owned, samples)

	return &Buffer{
		samples:    owned,
		sampleRate: sampleRate,
	}
}

// Samples returns a copy of the buffered samples in arrival order.
func (b *Buffer) Samples() []int16 {
	out := make([]int16, len(b.samples))
	copy(out, b.samples)
	return out
}

// SampleRate returns the buffer sample rate in Hz.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// Len returns the number of samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Samples    int     `json:"samples"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration_seconds"`
}

// GetStats returns the buffer statistics
func (b *Buffer) GetStats() BufferStats {
	return BufferStats{
		Samples:    len(b.samples),
		SampleRate: b.sampleRate,
		Duration:   b.Duration().Seconds(),
	}
}
