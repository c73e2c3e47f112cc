package repositories

import "context"

// AudioChunk is one piece of a synthesized stream. A chunk with a non-nil
// Err is the last one sent.
type AudioChunk struct {
	Data []byte
	Err  error
}

type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan AudioChunk, error)
}
