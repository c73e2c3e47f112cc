package voice

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config tunes voice activation and recording. Amplitudes are on the
// 0..32767 scale reported by audio.Recording.
type Config struct {
	ActivationThreshold int           `yaml:"activation_threshold"`
	SampleInterval      time.Duration `yaml:"sample_interval"`
	MinActivation       time.Duration `yaml:"min_activation"`
	MinRecording        time.Duration `yaml:"min_recording"`
	SilenceWindow       time.Duration `yaml:"silence_window"`
	MaxRecording        time.Duration `yaml:"max_recording"`
	// MaxFalseStarts is how many consecutive false starts are tolerated
	// before the cycle fails with no audio captured.
	MaxFalseStarts int    `yaml:"max_false_starts"`
	RecordingDir   string `yaml:"recording_dir"`
}

// DefaultConfig returns the reference tuning
func DefaultConfig() Config {
	return Config{
		ActivationThreshold: 2000,
		SampleInterval:      100 * time.Millisecond,
		MinActivation:       300 * time.Millisecond,
		MinRecording:        time.Second,
		SilenceWindow:       2 * time.Second,
		MaxRecording:        30 * time.Second,
		MaxFalseStarts:      20,
		RecordingDir:        os.TempDir(),
	}
}

// Validate reports every inconsistent value
func (c Config) Validate() error {
	var errs []error
	if c.ActivationThreshold <= 0 || c.ActivationThreshold > 32767 {
		errs = append(errs, fmt.Errorf("activation_threshold must be within 1..32767, got %d", c.ActivationThreshold))
	}
	if c.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sample_interval must be positive, got %s", c.SampleInterval))
	}
	if c.MinActivation < 0 {
		errs = append(errs, fmt.Errorf("min_activation must not be negative, got %s", c.MinActivation))
	}
	if c.SilenceWindow <= 0 {
		errs = append(errs, fmt.Errorf("silence_window must be positive, got %s", c.SilenceWindow))
	}
	if c.MaxRecording <= c.MinRecording {
		errs = append(errs, fmt.Errorf("max_recording (%s) must exceed min_recording (%s)", c.MaxRecording, c.MinRecording))
	}
	if c.MaxFalseStarts < 0 {
		errs = append(errs, fmt.Errorf("max_false_starts must not be negative, got %d", c.MaxFalseStarts))
	}
	if c.RecordingDir == "" {
		errs = append(errs, errors.New("recording_dir is required"))
	}
	return errors.Join(errs...)
}
