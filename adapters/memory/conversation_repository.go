package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/domain/repositories"
)

// ConversationRepository keeps conversations in process memory. It is the
// store used by tests and by `STORE=memory`.
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates an empty in-memory repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[string]*entities.Conversation),
	}
}

// Create implements ConversationRepository interface
func (m *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversation.ID]; exists {
		return errors.New("conversation with this id already exists")
	}
	m.conversations[conversation.ID] = clone(conversation)
	return nil
}

// GetByID implements ConversationRepository interface
func (m *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	conversation, exists := m.conversations[id]
	if !exists {
		return nil, domain.ErrConversationNotFound
	}

	// Return a copy to prevent external modifications
	return clone(conversation), nil
}

// Update implements ConversationRepository interface
func (m *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversation.ID]; !exists {
		return domain.ErrConversationNotFound
	}
	m.conversations[conversation.ID] = clone(conversation)
	return nil
}

// Delete implements ConversationRepository interface
func (m *ConversationRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[id]; !exists {
		return domain.ErrConversationNotFound
	}
	delete(m.conversations, id)
	return nil
}

// List implements ConversationRepository interface
func (m *ConversationRepository) List(ctx context.Context) ([]*entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*entities.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		result = append(result, clone(c))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastUpdatedAt.After(result[j].LastUpdatedAt)
	})
	return result, nil
}

// Search implements ConversationRepository interface
func (m *ConversationRepository) Search(ctx context.Context, query string) ([]*entities.Conversation, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	result := make([]*entities.Conversation, 0, len(all))
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Title), needle) {
			result = append(result, c)
		}
	}
	return result, nil
}

func clone(c *entities.Conversation) *entities.Conversation {
	out := *c
	out.Messages = append([]entities.Message(nil), c.Messages...)
	if out.Messages == nil {
		out.Messages = []entities.Message{}
	}
	return &out
}
