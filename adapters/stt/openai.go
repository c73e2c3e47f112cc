package stt

import (
	"context"
	"errors"
	"fmt"
	"os"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

// OpenAIConfig holds configuration for Whisper transcription
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Model defaults to whisper-1
	Model string
	// Language is an optional ISO-639-1 hint
	Language string
}

// OpenAISpeechToText implements SpeechToText with the audio transcription API
type OpenAISpeechToText struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	logger   *zap.Logger
}

var _ repositories.SpeechToText = (*OpenAISpeechToText)(nil)

// NewOpenAISpeechToText creates a new Whisper transcription adapter
func NewOpenAISpeechToText(config OpenAIConfig, logger *zap.Logger) (*OpenAISpeechToText, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	model := oai.AudioModel(config.Model)
	if model == "" {
		model = oai.AudioModelWhisper1
		logger.Info("Using default transcription model", zap.String("model", string(model)))
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAISpeechToText{
		client:   oai.NewClient(opts...),
		model:    model,
		language: config.Language,
		logger:   logger,
	}, nil
}

// TranscribeFile implements SpeechToText
func (o *OpenAISpeechToText) TranscribeFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open recording: %w", err)
	}
	defer file.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  file,
		Model: o.model,
	}
	if o.language != "" {
		params.Language = param.NewOpt(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	o.logger.Debug("Whisper transcription completed", zap.Int("length", len(resp.Text)))
	return resp.Text, nil
}
