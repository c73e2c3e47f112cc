package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/domain/repositories"
)

func newChat(t *testing.T, llm *fakeLLM) (*ChatService, *ConversationService) {
	t.Helper()
	conversations, _ := newConversations(t)
	chat := NewChatService(ChatConfig{Model: "gpt-3.5-turbo"}, conversations, llm, nil, zaptest.NewLogger(t))
	t.Cleanup(chat.WaitTitles)
	return chat, conversations
}

func TestChatService_SendCreatesConversation(t *testing.T) {
	llm := &fakeLLM{reply: "Hi! How can I help?", title: `"Friendly greeting"`}
	chat, conversations := newChat(t, llm)
	ctx := context.Background()

	result, err := chat.Send(ctx, SendRequest{Text: "  hello  ", Voice: true})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	chat.WaitTitles()
	if result.ConversationID == "" {
		t.Fatal("Expected a conversation to be created")
	}
	if result.UserMessage.Content != "hello" || !result.UserMessage.IsVoice {
		t.Errorf("Unexpected user message: %+v", result.UserMessage)
	}
	if result.Reply.Content != "Hi! How can I help?" || result.Reply.IsPending {
		t.Errorf("Unexpected reply: %+v", result.Reply)
	}

	conv, err := conversations.Get(ctx, result.ConversationID)
	if err != nil {
		t.Fatalf("Failed to load conversation: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != entities.MessageRoleUser || conv.Messages[1].ID != result.Reply.ID {
		t.Errorf("Expected user message then reply, got %+v", conv.Messages)
	}
	if conv.LastMessage != "Hi! How can I help?" {
		t.Errorf("Expected summary to be the reply, got %q", conv.LastMessage)
	}

	params := llm.params[0]
	if params.Model != "gpt-3.5-turbo" || params.Temperature != 0.7 || params.MaxTokens != 1000 {
		t.Errorf("Unexpected completion params: %+v", params)
	}
	history := llm.history(0)
	if len(history) != 1 || history[0].Role != repositories.UserRole || history[0].Content != "hello" {
		t.Errorf("Expected history with only the user turn, got %+v", history)
	}

	conv, _ = conversations.Get(ctx, result.ConversationID)
	if conv.Title != "Friendly greeting" {
		t.Errorf("Expected generated title without quotes, got %q", conv.Title)
	}
}

func TestChatService_SendSendsFullHistory(t *testing.T) {
	llm := &fakeLLM{reply: "first", title: "Topic"}
	chat, _ := newChat(t, llm)
	ctx := context.Background()

	first, err := chat.Send(ctx, SendRequest{Text: "one"})
	if err != nil {
		t.Fatal(err)
	}
	chat.WaitTitles()

	llm.reply = "second"
	if _, err := chat.Send(ctx, SendRequest{ConversationID: first.ConversationID, Text: "two"}); err != nil {
		t.Fatal(err)
	}

	// calls: reply one, title, reply two
	history := llm.history(2)
	want := []string{"one", "first", "two"}
	if len(history) != len(want) {
		t.Fatalf("Expected %d history messages, got %+v", len(want), history)
	}
	for i, content := range want {
		if history[i].Content != content {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, content)
		}
	}
}

func TestChatService_SendFailureStoresErrorMessage(t *testing.T) {
	llm := &fakeLLM{err: errUpstream}
	chat, conversations := newChat(t, llm)
	ctx := context.Background()

	result, err := chat.Send(ctx, SendRequest{Text: "hello"})
	if !errors.Is(err, domain.ErrCompletionFailed) {
		t.Fatalf("Expected ErrCompletionFailed, got %v", err)
	}
	if !errors.Is(err, errUpstream) {
		t.Errorf("Expected cause to be kept, got %v", err)
	}

	conv, err := conversations.Get(ctx, result.ConversationID)
	if err != nil {
		t.Fatalf("Failed to load conversation: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("Expected user message and error message, got %d", len(conv.Messages))
	}
	last := conv.Messages[1]
	if !last.IsError || last.IsPending || !strings.HasPrefix(last.Content, "Error: ") {
		t.Errorf("Expected error message replacing the placeholder, got %+v", last)
	}
	if conv.NeedsTitle() {
		t.Error("Error messages do not count towards titling")
	}
}

func TestChatService_SendUnknownConversation(t *testing.T) {
	chat, _ := newChat(t, &fakeLLM{reply: "x"})
	_, err := chat.Send(context.Background(), SendRequest{ConversationID: "missing", Text: "hi"})
	if !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("Expected ErrConversationNotFound, got %v", err)
	}
}

func TestChatService_SendEmptyText(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	chat, _ := newChat(t, llm)
	if _, err := chat.Send(context.Background(), SendRequest{Text: " "}); err == nil {
		t.Error("Expected error for empty text")
	}
	if llm.callCount() != 0 {
		t.Error("Expected no completion call")
	}
}

func TestChatService_TitleFailureKeepsDefault(t *testing.T) {
	llm := &fakeLLM{reply: "answer", titleErr: errUpstream}
	chat, conversations := newChat(t, llm)
	ctx := context.Background()

	result, err := chat.Send(ctx, SendRequest{Text: "question"})
	if err != nil {
		t.Fatal(err)
	}
	chat.WaitTitles()

	conv, _ := conversations.Get(ctx, result.ConversationID)
	if conv.Title != entities.DefaultTitle {
		t.Errorf("Expected default title, got %q", conv.Title)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"Weekend plans"`, "Weekend plans"},
		{"  Trip to Bandung \n", "Trip to Bandung"},
		{"“Curly quotes”", "Curly quotes"},
		{"", entities.DefaultTitle},
		{`""`, entities.DefaultTitle},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		if got := CleanTitle(tt.raw); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestConversationService_WatchPublishesList(t *testing.T) {
	conversations, clk := newConversations(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := conversations.Watch(ctx)
	<-updates // initial empty list

	older, err := conversations.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	clk.Add(time.Minute)
	newer, err := conversations.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var list []ConversationSummary
	deadline := time.After(time.Second)
	for len(list) != 2 {
		select {
		case list = <-updates:
		case <-deadline:
			t.Fatalf("Expected list with two conversations, got %+v", list)
		}
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("Expected most recent first, got %+v", list)
	}

	clk.Add(time.Minute)
	if _, err := conversations.Modify(ctx, older.ID, func(c *entities.Conversation, now time.Time) error {
		c.AddMessage(entities.NewMessage(entities.MessageRoleUser, "bump", now), now)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if got := conversations.Summaries(); got[0].ID != older.ID || got[0].LastMessage != "bump" {
		t.Errorf("Expected updated conversation first, got %+v", got)
	}

	if err := conversations.Delete(ctx, newer.ID); err != nil {
		t.Fatal(err)
	}
	if got := conversations.Summaries(); len(got) != 1 {
		t.Errorf("Expected one conversation after delete, got %d", len(got))
	}
}
