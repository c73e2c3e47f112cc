package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/internal/audio"
	"github.com/satriahrh/jumpgpt/internal/audio/mock"
)

func TestPlaybackService_Toggle(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	conversations, _ := newConversations(t)
	speech, _, _ := newSpeech(t, &fakeTTS{chunks: [][]byte{[]byte("ID3")}})
	backend := mock.NewBackend()
	player := audio.NewPlayer(backend, logger)
	svc := NewPlaybackService(conversations, speech, player, logger)

	conv, _ := conversations.Create(ctx)
	reply := entities.NewMessage(entities.MessageRoleAssistant, "spoken words", time.Now())
	pending := entities.NewPendingMessage(time.Now())
	partial := entities.NewMessage(entities.MessageRoleAssistant, "half a sen", time.Now())
	partial.IsStreaming = true
	conversations.Modify(ctx, conv.ID, func(c *entities.Conversation, now time.Time) error {
		c.AddMessage(reply, now)
		c.AddMessage(pending, now)
		c.AddMessage(partial, now)
		return nil
	})

	playing, err := svc.Toggle(ctx, conv.ID, reply.ID)
	if err != nil || !playing {
		t.Fatalf("Expected playback to start, got %v, %v", playing, err)
	}
	if svc.State().MessageID != reply.ID {
		t.Errorf("Expected %s playing, got %+v", reply.ID, svc.State())
	}

	pb := <-backend.Started()
	playing, err = svc.Toggle(ctx, conv.ID, reply.ID)
	if err != nil || playing {
		t.Fatalf("Expected toggle to stop, got %v, %v", playing, err)
	}
	if !pb.Stopped() || player.IsPlaying() {
		t.Error("Expected playback stopped")
	}

	if _, err := svc.Toggle(ctx, conv.ID, "missing"); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("Expected ErrMessageNotFound, got %v", err)
	}
	if _, err := svc.Toggle(ctx, conv.ID, pending.ID); !errors.Is(err, domain.ErrNothingToSpeak) {
		t.Error("Expected pending message to be rejected")
	}
	if _, err := svc.Toggle(ctx, conv.ID, partial.ID); !errors.Is(err, domain.ErrNothingToSpeak) {
		t.Error("Expected incomplete streamed message to be rejected")
	}
}
