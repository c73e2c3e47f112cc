package stt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestFixedSpeechToText(t *testing.T) {
	dir := t.TempDir()
	s := NewFixedSpeechToText("", zaptest.NewLogger(t))

	full := filepath.Join(dir, "full.wav")
	os.WriteFile(full, []byte("RIFF"), 0o644)
	text, err := s.TranscribeFile(context.Background(), full)
	if err != nil || text != "Hello, can you hear me?" {
		t.Errorf("Unexpected result %q, %v", text, err)
	}

	empty := filepath.Join(dir, "empty.wav")
	os.WriteFile(empty, nil, 0o644)
	if _, err := s.TranscribeFile(context.Background(), empty); err == nil {
		t.Error("Expected error for empty recording")
	}
}
