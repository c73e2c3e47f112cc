package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/satriahrh/jumpgpt/domain"
)

// Artifact references a finished recording on disk
type Artifact struct {
	Path string
}

// Validate returns domain.ErrNoAudioCaptured when the file is missing or empty
func (a Artifact) Validate() error {
	info, err := os.Stat(a.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNoAudioCaptured, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", domain.ErrNoAudioCaptured, a.Path)
	}
	return nil
}

// Remove deletes the recording. A missing file is not an error.
func (a Artifact) Remove() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove recording: %w", err)
	}
	return nil
}
