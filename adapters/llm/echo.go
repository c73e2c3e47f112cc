package llm

import (
	"context"
	"fmt"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

// Echo is an offline completion provider. It answers by repeating the last
// user message, which keeps the voice loop usable without credentials.
type Echo struct{}

var _ repositories.LargeLanguageModel = (*Echo)(nil)

// NewEcho creates a new offline provider
func NewEcho() *Echo {
	return &Echo{}
}

// Complete implements LargeLanguageModel
func (e *Echo) Complete(ctx context.Context, history []repositories.ChatMessage, params repositories.CompletionParams) (repositories.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return repositories.ChatMessage{}, err
	}

	var system, last string
	for _, m := range history {
		switch m.Role {
		case repositories.SystemRole:
			system = m.Content
		case repositories.UserRole:
			last = m.Content
		}
	}

	// title requests carry a system prompt
	var response string
	switch {
	case system != "":
		response = "Offline conversation"
	case len(last) > 0:
		response = fmt.Sprintf("You said: %s", last)
	default:
		response = "Hello! I am running offline. What would you like to talk about?"
	}

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: response,
	}, nil
}
