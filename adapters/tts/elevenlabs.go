package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM" // Rachel voice
	defaultOutputFormat = "mp3_44100_128"
	defaultModelID      = "eleven_multilingual_v2"
	defaultStability    = 0.5
	defaultClarity      = 0.75
	defaultTimeout      = 60 * time.Second
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter.
// Only APIKey is required. OutputFormat must be an mp3 format because
// the cache stores .mp3 files.
type ElevenLabsConfig struct {
	APIKey       string  `yaml:"api_key"`
	APIBaseURL   string  `yaml:"api_base_url"`
	VoiceID      string  `yaml:"voice_id"`
	ModelID      string  `yaml:"model_id"`
	OutputFormat string  `yaml:"output_format"`
	ChunkSize    int     `yaml:"chunk_size"`
	Stability    float64 `yaml:"stability"`
	Clarity      float64 `yaml:"clarity"`
}

// ElevenLabsTTS implements TextToSpeech using the Eleven Labs streaming API
type ElevenLabsTTS struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	outputFormat string
	chunkSize    int
	stability    float64
	clarity      float64
	client       *http.Client
	logger       *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	VoiceSettings          elevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability < 0 || config.Stability > 1 {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity < 0 || config.Clarity > 1 {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.OutputFormat != "" && !strings.HasPrefix(config.OutputFormat, "mp3") {
		return fmt.Errorf("output format must be mp3, got %s", config.OutputFormat)
	}
	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.VoiceID == "" {
		config.VoiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", config.VoiceID))
	}
	if config.ModelID == "" {
		config.ModelID = defaultModelID
		logger.Info("Using default model ID", zap.String("modelID", config.ModelID))
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultOutputFormat
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.Stability == 0 {
		config.Stability = defaultStability
	}
	if config.Clarity == 0 {
		config.Clarity = defaultClarity
	}

	return &ElevenLabsTTS{
		apiKey:       config.APIKey,
		apiBaseURL:   strings.TrimSuffix(config.APIBaseURL, "/"),
		voiceID:      config.VoiceID,
		modelID:      config.ModelID,
		outputFormat: config.OutputFormat,
		chunkSize:    config.ChunkSize,
		stability:    config.Stability,
		clarity:      config.Clarity,
		client:       &http.Client{Timeout: defaultTimeout},
		logger:       logger,
	}, nil
}

// ConvertTextToSpeech implements TextToSpeech. Non-200 responses fail
// before the stream is returned.
func (e *ElevenLabsTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan repositories.AudioChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	e.logger.Info("Converting text to speech",
		zap.Int("length", len(text)),
		zap.String("voiceID", e.voiceID),
		zap.String("modelID", e.modelID))

	requestBody, err := json.Marshal(elevenLabsRequest{
		Text:                   text,
		ModelID:                e.modelID,
		ApplyTextNormalization: "auto",
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.apiBaseURL, e.voiceID, e.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		e.logger.Error("Eleven Labs API returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return nil, fmt.Errorf("eleven labs API returned status %d", resp.StatusCode)
	}

	return streamBody(ctx, resp.Body, e.chunkSize, e.logger), nil
}
