package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// StagedAudio is encoded audio held for the transcription call.
type StagedAudio interface {
	// Bytes returns the staged payload verbatim.
	Bytes() ([]byte, error)
	// Release discards the staged payload.
	Release() error
}

// Stager stages encoded audio for the transcription call.
type Stager interface {
	Stage(data []byte) (StagedAudio, error)
}

// FileStager spools encoded audio into a temporary WAV file.
type FileStager struct {
	Dir string // empty means os.TempDir()
}

// Stage writes data to a new temporary file
func (s FileStager) Stage(data []byte) (StagedAudio, error) {
	f, err := os.CreateTemp(s.Dir, "capture-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write spool file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close spool file: %w", err)
	}

	return &spoolFile{path: f.Name()}, nil
}

// spoolFile is a staged payload on disk
type spoolFile struct {
	path string
}

func (f *spoolFile) Bytes() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f *spoolFile) Release() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spool file %s: %w", f.path, err)
	}
	return nil
}

// Path returns the spool file location
func (f *spoolFile) Path() string {
	return f.path
}

// MemoryStager keeps encoded audio in memory.
type MemoryStager struct{}

// Stage copies data into memory
func (MemoryStager) Stage(data []byte) (StagedAudio, error) {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &memoryAudio{data: owned}, nil
}

type memoryAudio struct {
	data []byte
	mu   sync.Mutex
}

func (m *memoryAudio) Bytes() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, fmt.Errorf("staged audio already released")
	}
	return m.data, nil
}

func (m *memoryAudio) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// releaseOnce returns a func that releases staged exactly once
func releaseOnce(staged StagedAudio, logger *slog.Logger) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := staged.Release(); err != nil {
				logger.Warn("Failed to release staged audio", slog.String("error", err.Error()))
			}
		})
	}
}
