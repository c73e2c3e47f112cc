package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/domain/repositories"
	"github.com/satriahrh/jumpgpt/internal/stateflow"
)

// ConversationSummary is one row of the conversation list
type ConversationSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	LastMessage   string    `json:"last_message"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	MessageCount  int       `json:"message_count"`
}

func summarize(c *entities.Conversation) ConversationSummary {
	return ConversationSummary{
		ID:            c.ID,
		Title:         c.Title,
		LastMessage:   c.LastMessage,
		LastUpdatedAt: c.LastUpdatedAt,
		MessageCount:  len(c.Messages),
	}
}

// ConversationService owns conversation persistence and publishes the
// conversation list whenever it changes.
type ConversationService struct {
	repo   repositories.ConversationRepository
	clock  clock.Clock
	logger *zap.Logger

	// serializes writes and the list refresh that follows each of them
	mu   sync.Mutex
	list *stateflow.Value[[]ConversationSummary]
}

// NewConversationService creates a new conversation service
func NewConversationService(repo repositories.ConversationRepository, clk clock.Clock, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		repo:   repo,
		clock:  clk,
		logger: logger,
		list:   stateflow.New([]ConversationSummary{}),
	}
}

// Create stores a new empty conversation
func (s *ConversationService) Create(ctx context.Context) (*entities.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := entities.NewConversation(s.clock.Now())
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.Info("Conversation created", zap.String("conversation_id", conv.ID))
	s.publish(ctx)
	return conv, nil
}

// Get returns a conversation with its messages
func (s *ConversationService) Get(ctx context.Context, id string) (*entities.Conversation, error) {
	return s.repo.GetByID(ctx, id)
}

// Modify loads a conversation, applies fn and stores the result. Calls are
// serialized so concurrent updates to one conversation are not lost.
func (s *ConversationService) Modify(ctx context.Context, id string, fn func(c *entities.Conversation, now time.Time) error) (*entities.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(conv, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := conv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversation: %w", err)
	}
	if err := s.repo.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	s.publish(ctx)
	return conv, nil
}

// Delete removes a conversation
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Conversation deleted", zap.String("conversation_id", id))
	s.publish(ctx)
	return nil
}

// List returns every conversation, most recently updated first
func (s *ConversationService) List(ctx context.Context) ([]ConversationSummary, error) {
	convs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summarizeAll(convs), nil
}

// Search returns the conversations whose title contains query, most
// recently updated first
func (s *ConversationService) Search(ctx context.Context, query string) ([]ConversationSummary, error) {
	convs, err := s.repo.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("failed to search conversations: %w", err)
	}
	return summarizeAll(convs), nil
}

func summarizeAll(convs []*entities.Conversation) []ConversationSummary {
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, summarize(c))
	}
	return out
}

// Refresh reloads the published list from the repository
func (s *ConversationService) Refresh(ctx context.Context) error {
	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	s.list.Set(list)
	return nil
}

// Summaries returns the last published list
func (s *ConversationService) Summaries() []ConversationSummary {
	return s.list.Get()
}

// Watch streams the conversation list until ctx is done
func (s *ConversationService) Watch(ctx context.Context) <-chan []ConversationSummary {
	return s.list.Watch(ctx)
}

func (s *ConversationService) publish(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Failed to refresh conversation list", zap.Error(err))
	}
}
