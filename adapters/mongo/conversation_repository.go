package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const conversationsCollection = "conversations"

type ConversationRepository struct {
	collection *mongo.Collection
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a MongoDB conversation repository and
// ensures the list index exists.
func NewConversationRepository(ctx context.Context, db *mongo.Database) (*ConversationRepository, error) {
	collection := db.Collection(conversationsCollection)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "last_updated_at", Value: -1}},
		Options: options.Index().SetName("last_updated_at_desc"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation index: %w", err)
	}

	return &ConversationRepository{collection: collection}, nil
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("conversation %s already exists", conversation.ID)
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetByID implements repositories.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	normalize(&conversation)
	return &conversation, nil
}

// Update implements repositories.ConversationRepository
func (r *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"title":           conversation.Title,
			"last_message":    conversation.LastMessage,
			"last_updated_at": conversation.LastUpdatedAt,
			"messages":        conversation.Messages,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": conversation.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// Delete implements repositories.ConversationRepository
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// List implements repositories.ConversationRepository
func (r *ConversationRepository) List(ctx context.Context) ([]*entities.Conversation, error) {
	return r.find(ctx, bson.M{})
}

// Search implements repositories.ConversationRepository
func (r *ConversationRepository) Search(ctx context.Context, query string) ([]*entities.Conversation, error) {
	if query == "" {
		return r.find(ctx, bson.M{})
	}
	return r.find(ctx, bson.M{"title": bson.M{
		"$regex":   regexp.QuoteMeta(query),
		"$options": "i",
	}})
}

func (r *ConversationRepository) find(ctx context.Context, filter bson.M) ([]*entities.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_updated_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]*entities.Conversation, 0)
	for cursor.Next(ctx) {
		var conversation entities.Conversation
		if err := cursor.Decode(&conversation); err != nil {
			return nil, fmt.Errorf("failed to decode conversation: %w", err)
		}
		normalize(&conversation)
		result = append(result, &conversation)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return result, nil
}

// normalize keeps an empty message list non-nil
func normalize(c *entities.Conversation) {
	if c.Messages == nil {
		c.Messages = []entities.Message{}
	}
}
