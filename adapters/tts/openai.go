package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

// OpenAIConfig holds configuration for the OpenAI speech adapter
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Model defaults to tts-1
	Model string `yaml:"model"`
	// Voice defaults to alloy
	Voice string `yaml:"voice"`
}

// OpenAITTS implements TextToSpeech with the audio speech endpoint
type OpenAITTS struct {
	client oai.Client
	model  oai.SpeechModel
	voice  oai.AudioSpeechNewParamsVoice
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*OpenAITTS)(nil)

// NewOpenAITTS creates a new OpenAI speech adapter
func NewOpenAITTS(config OpenAIConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	model := oai.SpeechModel(config.Model)
	if model == "" {
		model = oai.SpeechModelTTS1
		logger.Info("Using default speech model", zap.String("model", string(model)))
	}
	voice := oai.AudioSpeechNewParamsVoice(config.Voice)
	if voice == "" {
		voice = oai.AudioSpeechNewParamsVoiceAlloy
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: defaultTimeout}),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAITTS{
		client: oai.NewClient(opts...),
		model:  model,
		voice:  voice,
		logger: logger,
	}, nil
}

// ConvertTextToSpeech implements TextToSpeech
func (o *OpenAITTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan repositories.AudioChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	resp, err := o.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          o.model,
		Voice:          o.voice,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	o.logger.Debug("Streaming OpenAI speech", zap.String("contentType", resp.Header.Get("Content-Type")))
	return streamBody(ctx, resp.Body, defaultChunkSize, o.logger), nil
}
