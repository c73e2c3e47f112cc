package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"go.uber.org/zap/zaptest"
)

func TestStreamBody_ChunksAndCloses(t *testing.T) {
	body := io.NopCloser(bytes.NewReader(bytes.Repeat([]byte{1}, 2500)))
	ch := streamBody(context.Background(), body, 1000, zaptest.NewLogger(t))

	var sizes []int
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("Unexpected error %v", chunk.Err)
		}
		sizes = append(sizes, len(chunk.Data))
	}
	total := 0
	for _, s := range sizes {
		if s > 1000 {
			t.Errorf("Chunk larger than chunk size: %d", s)
		}
		total += s
	}
	if total != 2500 {
		t.Errorf("Expected 2500 bytes, got %d", total)
	}
}

func TestStreamBody_ReadErrorIsLastChunk(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.NopCloser(iotest.ErrReader(boom))
	ch := streamBody(context.Background(), body, 16, zaptest.NewLogger(t))

	_, err := collect(t, ch)
	if !errors.Is(err, boom) {
		t.Errorf("Expected read error, got %v", err)
	}
}

func TestStreamBody_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := io.NopCloser(bytes.NewReader([]byte("data")))
	for range streamBody(ctx, body, 16, zaptest.NewLogger(t)) {
	}
}

func TestSilentTTS(t *testing.T) {
	s := NewSilentTTS(zaptest.NewLogger(t))

	ch, err := s.ConvertTextToSpeech(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := collect(t, ch)
	if len(data) != minSilentFrames*silentFrameSize {
		t.Errorf("Expected %d bytes, got %d", minSilentFrames*silentFrameSize, len(data))
	}
	if !bytes.HasPrefix(data, silentFrameHeader) {
		t.Error("Expected MPEG frame header")
	}

	if _, err := s.ConvertTextToSpeech(context.Background(), ""); err == nil {
		t.Error("Expected error for empty text")
	}
}
