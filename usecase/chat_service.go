package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/domain/repositories"
	"github.com/satriahrh/jumpgpt/internal/observe"
)

const (
	titleSystemPrompt = "You are a helpful assistant that generates short, descriptive titles for conversations. Keep titles under 50 characters and do not use any quotation marks."
	titlePrompt       = "Generate a short, descriptive title (max 50 characters) for this conversation based on the following messages. Do not use any quotation marks in the title:\n\n"
	maxTitleLength    = 50
)

// SendRequest is one user turn. An empty ConversationID starts a new
// conversation.
type SendRequest struct {
	ConversationID string
	Text           string
	Voice          bool
}

// SendResult carries the stored user message and the assistant reply
type SendResult struct {
	ConversationID string
	UserMessage    entities.Message
	Reply          entities.Message
}

// ChatConfig holds completion settings for chat turns
type ChatConfig struct {
	Model string
	// Params overrides the completion defaults when non-zero
	Params repositories.CompletionParams
}

// ChatService appends user turns to a conversation and fetches replies
type ChatService struct {
	conversations *ConversationService
	llm           repositories.LargeLanguageModel
	params        repositories.CompletionParams
	metrics       *observe.Metrics
	logger        *zap.Logger

	titles sync.WaitGroup
}

// NewChatService creates a new chat service
func NewChatService(cfg ChatConfig, conversations *ConversationService, llm repositories.LargeLanguageModel, metrics *observe.Metrics, logger *zap.Logger) *ChatService {
	params := cfg.Params
	defaults := repositories.DefaultCompletionParams()
	if params.Temperature == 0 {
		params.Temperature = defaults.Temperature
	}
	if params.MaxTokens == 0 {
		params.MaxTokens = defaults.MaxTokens
	}
	if cfg.Model != "" {
		params.Model = cfg.Model
	}

	return &ChatService{
		conversations: conversations,
		llm:           llm,
		params:        params,
		metrics:       metrics,
		logger:        logger,
	}
}

// Send stores the user message with a pending reply, asks for a completion
// over the conversation history and replaces the pending reply with the
// result. On failure the pending reply becomes an error message and the
// returned error wraps domain.ErrCompletionFailed.
func (s *ChatService) Send(ctx context.Context, req SendRequest) (result SendResult, err error) {
	defer func() { s.metrics.RecordMessage(ctx, req.Voice, err) }()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return SendResult{}, errors.New("message text is required")
	}

	convID := req.ConversationID
	if convID == "" {
		conv, err := s.conversations.Create(ctx)
		if err != nil {
			return SendResult{}, err
		}
		convID = conv.ID
	}
	result.ConversationID = convID

	var (
		pending entities.Message
		history []repositories.ChatMessage
	)
	_, err = s.conversations.Modify(ctx, convID, func(c *entities.Conversation, now time.Time) error {
		result.UserMessage = entities.NewMessage(entities.MessageRoleUser, text, now)
		result.UserMessage.IsVoice = req.Voice
		c.AddMessage(result.UserMessage, now)

		history = toChatHistory(c.FinalizedMessages())

		pending = entities.NewPendingMessage(now)
		c.AddMessage(pending, now)
		return nil
	})
	if err != nil {
		return result, err
	}

	s.logger.Info("Requesting completion",
		zap.String("conversation_id", convID),
		zap.Int("history", len(history)),
		zap.Bool("voice", req.Voice))

	reply, err := s.llm.Complete(ctx, history, s.params)
	if err == nil && strings.TrimSpace(reply.Content) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		s.logger.Error("Completion failed", zap.String("conversation_id", convID), zap.Error(err))
		s.replacePending(context.WithoutCancel(ctx), convID, pending.ID, func(m *entities.Message) {
			m.Content = "Error: " + err.Error()
			m.IsError = true
		})
		return result, fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)
	}

	conv, err := s.replacePending(ctx, convID, pending.ID, func(m *entities.Message) {
		m.Content = reply.Content
		m.IsVoice = req.Voice
	})
	if err != nil {
		return result, err
	}
	result.Reply, _ = conv.FindMessage(pending.ID)

	if conv.NeedsTitle() {
		s.titles.Add(1)
		go func() {
			defer s.titles.Done()
			s.generateTitle(context.WithoutCancel(ctx), conv.ID, conv.FinalizedMessages())
		}()
	}

	return result, nil
}

func (s *ChatService) replacePending(ctx context.Context, convID, id string, fill func(m *entities.Message)) (*entities.Conversation, error) {
	conv, err := s.conversations.Modify(ctx, convID, func(c *entities.Conversation, now time.Time) error {
		m, ok := c.FindMessage(id)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrMessageNotFound, id)
		}
		m.IsPending = false
		m.IsStreaming = false
		m.CreatedAt = now
		fill(&m)
		c.ReplaceMessage(m, now)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to store reply", zap.String("conversation_id", convID), zap.Error(err))
	}
	return conv, err
}

// generateTitle asks for a short title and stores it. Failures keep the
// default title.
func (s *ChatService) generateTitle(ctx context.Context, convID string, messages []entities.Message) {
	var sb strings.Builder
	sb.WriteString(titlePrompt)
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s", m.Role, m.Content)
	}

	reply, err := s.llm.Complete(ctx, []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: titleSystemPrompt},
		{Role: repositories.UserRole, Content: sb.String()},
	}, repositories.CompletionParams{
		Model:       s.params.Model,
		Temperature: s.params.Temperature,
		MaxTokens:   s.params.MaxTokens,
	})
	title := entities.DefaultTitle
	if err != nil {
		s.logger.Warn("Failed to generate title", zap.String("conversation_id", convID), zap.Error(err))
	} else {
		title = CleanTitle(reply.Content)
	}
	if title == entities.DefaultTitle {
		return
	}

	_, err = s.conversations.Modify(ctx, convID, func(c *entities.Conversation, _ time.Time) error {
		if c.Title == entities.DefaultTitle {
			c.Title = title
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to store title", zap.String("conversation_id", convID), zap.Error(err))
		return
	}
	s.logger.Info("Conversation titled", zap.String("conversation_id", convID), zap.String("title", title))
}

// WaitTitles blocks until background title generation is done
func (s *ChatService) WaitTitles() {
	s.titles.Wait()
}

// CleanTitle strips quotes and whitespace and caps the length. An empty
// result yields the default title.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(strings.NewReplacer(`"`, "", "“", "", "”", "").Replace(raw))
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = strings.TrimSpace(string(runes[:maxTitleLength]))
	}
	if title == "" {
		return entities.DefaultTitle
	}
	return title
}

func toChatHistory(messages []entities.Message) []repositories.ChatMessage {
	out := make([]repositories.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, repositories.ChatMessage{
			Role:    repositories.Role(m.Role),
			Content: m.Content,
		})
	}
	return out
}
