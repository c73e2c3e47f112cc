package repositories

import (
	"context"

	"github.com/satriahrh/jumpgpt/domain/entities"
)

// ConversationRepository defines data access methods for conversations.
// GetByID returns domain.ErrConversationNotFound for unknown ids.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id string) (*entities.Conversation, error)
	// Update replaces the message list and summary fields
	Update(ctx context.Context, conversation *entities.Conversation) error
	Delete(ctx context.Context, id string) error
	// List returns every conversation, most recently updated first
	List(ctx context.Context) ([]*entities.Conversation, error)
	// Search returns the conversations whose title contains query, ignoring
	// case, most recently updated first. An empty query matches everything.
	Search(ctx context.Context, query string) ([]*entities.Conversation, error)
}
