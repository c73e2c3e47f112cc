package api

import (
	"time"

	"github.com/satriahrh/jumpgpt/domain/entities"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ConversationItem is one row of the conversation list
type ConversationItem struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	LastMessage     string    `json:"last_message"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
	LastUpdatedText string    `json:"last_updated_text"`
	MessageCount    int       `json:"message_count"`
}

// ConversationListResponse wraps the conversation list
type ConversationListResponse struct {
	Conversations []ConversationItem `json:"conversations"`
}

// SendMessageRequest is the payload of a typed chat turn
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessageResponse returns both turns of an exchange
type SendMessageResponse struct {
	ConversationID string           `json:"conversation_id"`
	UserMessage    entities.Message `json:"user_message"`
	Reply          entities.Message `json:"reply"`
}

// SpeakResponse reports whether the message is playing after a toggle
type SpeakResponse struct {
	Playing bool `json:"playing"`
}

// SetConversationRequest selects the conversation voice turns go to. An
// empty id lets the next transcript start a new one.
type SetConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}
