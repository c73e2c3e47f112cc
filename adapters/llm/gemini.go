package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultTimeoutSeconds = 30
	defaultRetries        = 3
)

// GeminiConfig holds configuration for the Gemini adapter
type GeminiConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint
	BaseURL        string
	Model          string
	TopP           float32
	TopK           float32
	TimeoutSeconds int
	// Attempts is the number of tries per completion
	Attempts int
	// RetryBackoff is multiplied by the attempt number between tries
	RetryBackoff time.Duration
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	// Validate topP is in the valid range
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}

	// Validate topK is positive if specified
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}

	// Validate timeout is reasonable if specified
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	if config.Attempts < 0 {
		return fmt.Errorf("attempts must be positive, got %d", config.Attempts)
	}

	return nil
}

// Gemini implements LargeLanguageModel using Google's Gemini API
type Gemini struct {
	client         *genai.Client
	logger         *zap.Logger
	model          string
	topP           float32
	topK           float32
	timeoutSeconds int
	attempts       int
	backoff        time.Duration
}

var _ repositories.LargeLanguageModel = (*Gemini)(nil)

// NewGemini creates a new Gemini adapter
func NewGemini(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Apply defaults where needed
	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	topP := config.TopP
	if topP == 0 {
		topP = float32(defaultTopP)
		logger.Info("Using default topP", zap.Float32("topP", topP))
	}

	topK := config.TopK
	if topK == 0 {
		topK = float32(defaultTopK)
		logger.Info("Using default topK", zap.Float32("topK", topK))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", timeoutSeconds))
	}

	attempts := config.Attempts
	if attempts == 0 {
		attempts = defaultRetries
	}
	backoff := config.RetryBackoff
	if backoff == 0 {
		backoff = time.Second
	}

	return &Gemini{
		client:         client,
		logger:         logger,
		model:          model,
		topP:           topP,
		topK:           topK,
		timeoutSeconds: timeoutSeconds,
		attempts:       attempts,
		backoff:        backoff,
	}, nil
}

// Complete implements LargeLanguageModel. System messages become the
// system instruction; the rest is sent in order.
func (g *Gemini) Complete(ctx context.Context, history []repositories.ChatMessage, params repositories.CompletionParams) (repositories.ChatMessage, error) {
	model := params.Model
	if model == "" || !strings.HasPrefix(model, "gemini") {
		model = g.model
	}

	system, contents := convertToGeminiFormat(history)
	if len(contents) == 0 {
		return repositories.ChatMessage{}, errors.New("no messages to complete")
	}

	config := &genai.GenerateContentConfig{
		TopP: genai.Ptr(g.topP),
		TopK: genai.Ptr(g.topK),
	}
	if system != nil {
		config.SystemInstruction = system
	}
	if params.Temperature != 0 {
		config.Temperature = genai.Ptr(float32(params.Temperature))
	}
	if params.MaxTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxTokens)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < g.attempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < g.attempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * g.backoff):
			case <-ctx.Done():
				return repositories.ChatMessage{}, fmt.Errorf("failed to generate content: %w", ctx.Err())
			}
		}
	}
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return repositories.ChatMessage{}, errors.New("no content generated")
	}

	// Extract text from the response
	var responseText string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			responseText += part.Text
		}
	}
	if responseText == "" {
		return repositories.ChatMessage{}, errors.New("empty response")
	}

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: responseText,
	}, nil
}

// convertToGeminiFormat splits system instructions from the conversation
func convertToGeminiFormat(messages []repositories.ChatMessage) (*genai.Content, []*genai.Content) {
	var system []string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case repositories.SystemRole:
			system = append(system, msg.Content)
		case repositories.AssistantRole:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}
