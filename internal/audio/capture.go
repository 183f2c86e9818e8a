package audio

import (
	"sync"
	"time"
)

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithMaxDuration limits how much audio a capture session accepts.
// A zero or negative duration means no limit.
func WithMaxDuration(d time.Duration) CaptureOption {
	return func(c *Capture) {
		c.maxDuration = d
	}
}

// Capture accumulates frames from a single producer into one mono buffer.
// Append and Finalize may be called from different goroutines.
type Capture struct {
	maxDuration time.Duration

	// Accumulated mono samples in arrival order
	samples    []int16
	sampleRate int // fixed by the first frame
	frames     int

	closed     bool
	startTime  time.Time
	lastAppend time.Time

	mu sync.Mutex
}

// CaptureStats represents capture statistics for monitoring
type CaptureStats struct {
	Frames     int       `json:"frames"`
	Samples    int       `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	Closed     bool      `json:"closed"`
	StartTime  time.Time `json:"start_time"`
	LastAppend time.Time `json:"last_append,omitempty"`
}

// NewCapture creates an open capture session
func NewCapture(opts ...CaptureOption) *Capture {
	c := &Capture{
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append adds one frame to the session. Frames must arrive in order.
func (c *Capture) Append(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosedSession
	}

	if err := frame.Validate(); err != nil {
		return err
	}

	if c.frames == 0 {
		c.sampleRate = frame.SampleRate
	} else if frame.SampleRate != c.sampleRate {
		return &SampleRateMismatchError{Expected: c.sampleRate, Got: frame.SampleRate}
	}

	if c.maxDuration > 0 {
		limit := int(c.maxDuration.Seconds() * float64(c.sampleRate))
		if len(c.samples)+frame.SampleCount() > limit {
			return ErrCaptureLimit
		}
	}

	c.samples = append(c.samples, frame.Mono()...)
	c.frames++
	c.lastAppend = time.Now()

	return nil
}

// Finalize closes the session and returns the accumulated buffer.
// The session is terminal afterwards, even when no frame was captured.
func (c *Capture) Finalize() (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosedSession
	}
	c.closed = true

	if c.frames == 0 {
		return nil, ErrEmptyBuffer
	}

	buf := &Buffer{
		samples:    c.samples,
		sampleRate: c.sampleRate,
	}
	c.samples = nil

	return buf, nil
}

// Close terminates the session without producing a buffer
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.samples = nil
}

// GetStats returns current capture statistics
func (c *Capture) GetStats() CaptureStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CaptureStats{
		Frames:     c.frames,
		Samples:    len(c.samples),
		SampleRate: c.sampleRate,
		Closed:     c.closed,
		StartTime:  c.startTime,
		LastAppend: c.lastAppend,
	}
}
