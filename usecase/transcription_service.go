package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/repositories"
	"github.com/satriahrh/jumpgpt/internal/audio"
)

// TranscriptionService turns finished recordings into text
type TranscriptionService struct {
	stt    repositories.SpeechToText
	logger *zap.Logger
}

// NewTranscriptionService creates a new transcription service
func NewTranscriptionService(stt repositories.SpeechToText, logger *zap.Logger) *TranscriptionService {
	return &TranscriptionService{stt: stt, logger: logger}
}

// Transcribe returns the text spoken in artifact. The recording is deleted
// whether or not transcription succeeds. Errors wrap
// domain.ErrTranscriptionFailed.
func (s *TranscriptionService) Transcribe(ctx context.Context, artifact audio.Artifact) (string, error) {
	defer func() {
		if err := artifact.Remove(); err != nil {
			s.logger.Warn("Failed to delete recording", zap.String("path", artifact.Path), zap.Error(err))
		}
	}()

	if err := artifact.Validate(); err != nil {
		return "", err
	}

	text, err := s.stt.TranscribeFile(ctx, artifact.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTranscriptionFailed, err)
	}

	s.logger.Info("Transcription completed", zap.Int("length", len(text)))
	return text, nil
}
