package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain sentinel", ErrTranscriptionFailed, "transcription_failed"},
		{"wrapped sentinel", fmt.Errorf("failed to transcribe: %w", ErrTranscriptionFailed), "transcription_failed"},
		{"double wrapped", fmt.Errorf("stage: %w", fmt.Errorf("inner: %w", ErrPlaybackInit)), "playback_init"},
		{"joined takes first match", errors.Join(ErrRecorderInit, ErrMicrophoneBusy), "recorder_init"},
		{"unknown", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
