package stt

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

// FixedSpeechToText is an offline transcriber. It returns a canned
// transcript for any non-empty recording.
type FixedSpeechToText struct {
	transcript string
	logger     *zap.Logger
}

var _ repositories.SpeechToText = (*FixedSpeechToText)(nil)

// NewFixedSpeechToText creates an offline transcriber
func NewFixedSpeechToText(transcript string, logger *zap.Logger) *FixedSpeechToText {
	if transcript == "" {
		transcript = "Hello, can you hear me?"
	}
	return &FixedSpeechToText{transcript: transcript, logger: logger}
}

// TranscribeFile implements SpeechToText
func (s *FixedSpeechToText) TranscribeFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read recording: %w", err)
	}

	s.logger.Info("Processing offline speech-to-text", zap.Int64("audioSize", info.Size()))
	if info.Size() == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	return s.transcript, nil
}
