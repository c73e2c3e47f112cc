package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const defaultChunkSize = 1024

// streamBody copies body into chunks of chunkSize until EOF. A read
// failure or cancellation is delivered as the final chunk.
func streamBody(ctx context.Context, body io.ReadCloser, chunkSize int, logger *zap.Logger) <-chan repositories.AudioChunk {
	audioChan := make(chan repositories.AudioChunk, 10)

	go func() {
		defer close(audioChan)
		defer body.Close()

		send := func(chunk repositories.AudioChunk) bool {
			select {
			case audioChan <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		buffer := make([]byte, chunkSize)
		totalBytes := 0
		chunkCount := 0

		for {
			if err := ctx.Err(); err != nil {
				logger.Warn("Context cancelled while streaming audio data")
				send(repositories.AudioChunk{Err: err})
				return
			}

			n, err := body.Read(buffer)
			if n > 0 {
				totalBytes += n
				chunkCount++

				chunk := make([]byte, n)
				copy(chunk, buffer[:n])
				if !send(repositories.AudioChunk{Data: chunk}) {
					logger.Warn("Context cancelled while sending audio chunk")
					return
				}
			}

			if errors.Is(err, io.EOF) {
				logger.Debug("Finished streaming audio data",
					zap.Int("totalChunks", chunkCount),
					zap.Int("totalBytes", totalBytes))
				return
			}
			if err != nil {
				logger.Error("Error reading response body", zap.Error(err))
				send(repositories.AudioChunk{Err: fmt.Errorf("failed to read audio stream: %w", err)})
				return
			}
		}
	}()

	return audioChan
}
