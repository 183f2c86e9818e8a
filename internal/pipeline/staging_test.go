package pipeline

import (
	"bytes"
	"os"
	"testing"
)

func TestFileStager(t *testing.T) {
	dir := t.TempDir()
	stager := FileStager{Dir: dir}

	payload := []byte("RIFF....WAVE")
	staged, err := stager.Stage(payload)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	path := staged.(*spoolFile).Path()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected spool file to exist: %v", err)
	}

	data, err := staged.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Expected %q, got %q", payload, data)
	}

	if err := staged.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected spool file to be removed, stat returned %v", err)
	}

	// Releasing twice is harmless
	if err := staged.Release(); err != nil {
		t.Errorf("Second release failed: %v", err)
	}
}

func TestFileStagerBadDir(t *testing.T) {
	stager := FileStager{Dir: t.TempDir() + "/missing"}
	if _, err := stager.Stage([]byte{1}); err == nil {
		t.Error("Expected error for missing spool directory")
	}
}

func TestMemoryStager(t *testing.T) {
	payload := []byte{1, 2, 3}
	staged, err := MemoryStager{}.Stage(payload)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	payload[0] = 9
	data, err := staged.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if data[0] != 1 {
		t.Errorf("Expected staged copy to be independent of caller, got %v", data)
	}

	if err := staged.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := staged.Bytes(); err == nil {
		t.Error("Expected error reading released audio")
	}
}
