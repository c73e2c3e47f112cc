package repositories

import "context"

// LargeLanguageModel abstracts any chat completion provider
type LargeLanguageModel interface {
	// Complete sends the ordered history and returns a single finished assistant message
	Complete(ctx context.Context, history []ChatMessage, params CompletionParams) (ChatMessage, error)
}

// CompletionParams are the request fields of a completion call.
// An empty Model selects the provider default.
type CompletionParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultCompletionParams returns the fixed request defaults
func DefaultCompletionParams() CompletionParams {
	return CompletionParams{
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
