package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/internal/audio"
)

// PlaybackService speaks stored messages on request
type PlaybackService struct {
	conversations *ConversationService
	speech        *SpeechService
	player        *audio.Player
	logger        *zap.Logger
}

// NewPlaybackService creates a new playback service
func NewPlaybackService(conversations *ConversationService, speech *SpeechService, player *audio.Player, logger *zap.Logger) *PlaybackService {
	return &PlaybackService{
		conversations: conversations,
		speech:        speech,
		player:        player,
		logger:        logger,
	}
}

// Toggle plays a message, or stops it when it is the one already playing.
// It reports whether the message is playing afterwards.
func (s *PlaybackService) Toggle(ctx context.Context, conversationID, messageID string) (bool, error) {
	if s.player.CurrentID() == messageID {
		s.player.Stop()
		return false, nil
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return false, err
	}
	msg, ok := conv.FindMessage(messageID)
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	if !msg.Complete() || msg.IsError {
		return false, fmt.Errorf("%w: %s", domain.ErrNothingToSpeak, messageID)
	}

	path, err := s.speech.Speak(ctx, msg.Content, msg.ID)
	if err != nil {
		return false, err
	}

	if _, err := s.player.Play(path, msg.ID); err != nil {
		return false, err
	}
	s.logger.Info("Speaking message", zap.String("message_id", msg.ID))
	return true, nil
}

// Stop ends any playback
func (s *PlaybackService) Stop() {
	s.player.Stop()
}

// State returns the current playback state
func (s *PlaybackService) State() audio.PlayerState {
	return s.player.State()
}

// Watch streams playback state changes until ctx is done
func (s *PlaybackService) Watch(ctx context.Context) <-chan audio.PlayerState {
	return s.player.Watch(ctx)
}
