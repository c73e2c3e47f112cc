package tts

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

// MPEG-1 Layer III, 128 kbps, 44.1 kHz, no padding. A frame whose side
// info and main data are zero decodes to silence.
var silentFrameHeader = []byte{0xFF, 0xFB, 0x90, 0x00}

const (
	silentFrameSize = 417 // 144 * 128000 / 44100
	minSilentFrames = 10
	maxSilentFrames = 400
)

// SilentTTS is an offline synthesizer producing a silent MP3 whose length
// grows with the text. It keeps the voice loop runnable without network
// access.
type SilentTTS struct {
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*SilentTTS)(nil)

func NewSilentTTS(logger *zap.Logger) *SilentTTS {
	return &SilentTTS{logger: logger}
}

// ConvertTextToSpeech implements TextToSpeech
func (s *SilentTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan repositories.AudioChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	frames := utf8.RuneCountInString(text) * 2
	frames = max(minSilentFrames, min(frames, maxSilentFrames))
	s.logger.Info("Processing offline text-to-speech", zap.Int("frames", frames))

	out := make(chan repositories.AudioChunk, 1)
	go func() {
		defer close(out)
		for i := 0; i < frames; i++ {
			frame := make([]byte, silentFrameSize)
			copy(frame, silentFrameHeader)
			select {
			case out <- repositories.AudioChunk{Data: frame}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
