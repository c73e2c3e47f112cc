package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/jumpgpt/adapters/memory"
	"github.com/satriahrh/jumpgpt/domain/repositories"
)

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	title    string
	err      error
	titleErr error
	calls    [][]repositories.ChatMessage
	params   []repositories.CompletionParams
}

func (f *fakeLLM) Complete(ctx context.Context, history []repositories.ChatMessage, params repositories.CompletionParams) (repositories.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]repositories.ChatMessage(nil), history...))
	f.params = append(f.params, params)

	if len(history) > 0 && history[0].Role == repositories.SystemRole {
		if f.titleErr != nil {
			return repositories.ChatMessage{}, f.titleErr
		}
		return repositories.ChatMessage{Role: repositories.AssistantRole, Content: f.title}, nil
	}
	if f.err != nil {
		return repositories.ChatMessage{}, f.err
	}
	return repositories.ChatMessage{Role: repositories.AssistantRole, Content: f.reply}, nil
}

func (f *fakeLLM) history(i int) []repositories.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTTS struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	// streamErr is sent after the chunks
	streamErr error
	calls     int
	release   chan struct{}
}

func (f *fakeTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan repositories.AudioChunk, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	out := make(chan repositories.AudioChunk)
	go func() {
		defer close(out)
		if f.release != nil {
			<-f.release
		}
		for _, c := range f.chunks {
			out <- repositories.AudioChunk{Data: c}
		}
		if f.streamErr != nil {
			out <- repositories.AudioChunk{Err: f.streamErr}
		}
	}()
	return out, nil
}

func (f *fakeTTS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSTT struct {
	text string
	err  error
	path string
}

func (f *fakeSTT) TranscribeFile(ctx context.Context, path string) (string, error) {
	f.path = path
	return f.text, f.err
}

var errUpstream = errors.New("upstream unavailable")

func newConversations(t *testing.T) (*ConversationService, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	return NewConversationService(memory.NewConversationRepository(), clk, zaptest.NewLogger(t)), clk
}
