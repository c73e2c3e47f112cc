package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const (
	defaultOpenAIModel = "gpt-3.5-turbo"
	defaultTimeout     = 60 * time.Second
)

// OpenAIConfig holds configuration for the OpenAI chat completion adapter
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Model is used when a request does not name one
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// ValidateOpenAIConfig validates the OpenAIConfig
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return errors.New("OpenAI API key is required")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", config.MaxRetries)
	}
	return nil
}

// OpenAI implements LargeLanguageModel with the chat completions API
type OpenAI struct {
	client oai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*OpenAI)(nil)

// NewOpenAI creates a new OpenAI completion adapter
func NewOpenAI(config OpenAIConfig, logger *zap.Logger) (*OpenAI, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", model))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
		logger.Info("Using default timeout", zap.Duration("timeout", timeout))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAI{
		client: oai.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

// Complete implements LargeLanguageModel
func (o *OpenAI) Complete(ctx context.Context, history []repositories.ChatMessage, params repositories.CompletionParams) (repositories.ChatMessage, error) {
	model := params.Model
	if model == "" {
		model = o.model
	}

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case repositories.SystemRole:
			messages = append(messages, oai.SystemMessage(m.Content))
		case repositories.AssistantRole:
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	req := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if params.Temperature != 0 {
		req.Temperature = param.NewOpt(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = param.NewOpt(int64(params.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return repositories.ChatMessage{}, errors.New("no choices in chat completion")
	}

	content := resp.Choices[0].Message.Content
	o.logger.Debug("Chat completion received",
		zap.String("model", model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: content,
	}, nil
}
