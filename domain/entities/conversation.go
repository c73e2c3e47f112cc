package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the title a conversation carries until one is generated.
const DefaultTitle = "New Conversation"

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message represents a single turn within a conversation
type Message struct {
	ID        string      `json:"id" bson:"id"`
	Content   string      `json:"content" bson:"content"`
	Role      MessageRole `json:"role" bson:"role"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
	IsVoice   bool        `json:"is_voice" bson:"is_voice"`
	IsPending bool        `json:"is_pending" bson:"is_pending"`
	// IsStreaming marks a reply whose content is still arriving. Completions
	// here are not streamed, but stores may hold partial replies written by
	// streaming clients; those are treated like pending messages.
	IsStreaming bool `json:"is_streaming" bson:"is_streaming"`
	IsError     bool `json:"is_error" bson:"is_error"`
}

// Complete reports whether the message content is final
func (m Message) Complete() bool {
	return !m.IsPending && !m.IsStreaming
}

// NewMessage creates a finalized message with a fresh id
func NewMessage(role MessageRole, content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      role,
		CreatedAt: now,
	}
}

// NewPendingMessage creates the assistant placeholder shown while a completion is in flight
func NewPendingMessage(now time.Time) Message {
	m := NewMessage(MessageRoleAssistant, "", now)
	m.IsPending = true
	return m
}

// Conversation is an ordered exchange of messages with a title and summary
type Conversation struct {
	ID            string    `json:"id" bson:"_id"`
	Title         string    `json:"title" bson:"title"`
	LastMessage   string    `json:"last_message" bson:"last_message"`
	LastUpdatedAt time.Time `json:"last_updated_at" bson:"last_updated_at"`
	Messages      []Message `json:"messages" bson:"messages"`
}

// NewConversation creates an empty conversation
func NewConversation(now time.Time) *Conversation {
	return &Conversation{
		ID:            uuid.NewString(),
		Title:         DefaultTitle,
		LastUpdatedAt: now,
		Messages:      make([]Message, 0),
	}
}

// AddMessage appends a message and refreshes the summary fields.
// Messages are kept in insertion order, which is chronological.
func (c *Conversation) AddMessage(m Message, now time.Time) {
	c.Messages = append(c.Messages, m)
	c.touch(now)
}

// ReplaceMessage swaps the message with the same id in place.
// It returns false when no such message exists.
func (c *Conversation) ReplaceMessage(m Message, now time.Time) bool {
	for i := range c.Messages {
		if c.Messages[i].ID == m.ID {
			c.Messages[i] = m
			c.touch(now)
			return true
		}
	}
	return false
}

// FindMessage returns the message with the given id
func (c *Conversation) FindMessage(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// NeedsTitle reports whether the conversation reached its second message
// exchange while still carrying the default title.
func (c *Conversation) NeedsTitle() bool {
	return c.Title == DefaultTitle && len(c.FinalizedMessages()) >= 2
}

// FinalizedMessages returns the complete messages that are not errors.
// This is the history sent to the completion collaborator.
func (c *Conversation) FinalizedMessages() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if !m.Complete() || m.IsError {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *Conversation) touch(now time.Time) {
	c.LastUpdatedAt = now
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Complete() {
			c.LastMessage = c.Messages[i].Content
			return
		}
	}
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.Title == "" {
		return errors.New("title is required")
	}
	for _, m := range c.Messages {
		if m.ID == "" {
			return errors.New("message id is required")
		}
		switch m.Role {
		case MessageRoleSystem, MessageRoleUser, MessageRoleAssistant:
		default:
			return errors.New("invalid message role")
		}
	}
	return nil
}
