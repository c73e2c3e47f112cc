package stt

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
	defaultEncoding   = "LINEAR16"
)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleSpeechToText implements SpeechToText with Google Cloud synchronous
// recognition. Credentials come from the environment
// (GOOGLE_APPLICATION_CREDENTIALS).
type GoogleSpeechToText struct {
	client    *speech.Client
	recognize recognizeFunc
	config    repositories.AudioConfig
	logger    *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Cloud Speech client for recordings in the
// given format.
func NewGoogleSpeechToText(ctx context.Context, config repositories.AudioConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	g, err := newGoogleSpeechToText(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}, config, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.client = client
	return g, nil
}

func newGoogleSpeechToText(recognize recognizeFunc, config repositories.AudioConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	if config.Language == "" {
		config.Language = defaultLanguage
		logger.Info("Using default language", zap.String("language", config.Language))
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultSampleRate
		logger.Info("Using default sample rate", zap.Int("sampleRate", config.SampleRate))
	}
	if config.Encoding == "" {
		config.Encoding = defaultEncoding
	}
	if _, err := getAudioEncoding(config.Encoding); err != nil {
		return nil, err
	}

	return &GoogleSpeechToText{
		recognize: recognize,
		config:    config,
		logger:    logger,
	}, nil
}

// TranscribeFile implements SpeechToText
func (g *GoogleSpeechToText) TranscribeFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read recording: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	encoding, _ := getAudioEncoding(g.config.Encoding)
	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(g.config.SampleRate),
			LanguageCode:    g.config.Language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to recognize speech: %w", err)
	}

	// Take the best alternative of every result
	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}

	transcript := strings.Join(parts, " ")
	g.logger.Debug("Google transcription completed", zap.Int("results", len(parts)))
	return transcript, nil
}

// Close releases the underlying client
func (g *GoogleSpeechToText) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
