package voice

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero threshold", func(c *Config) { c.ActivationThreshold = 0 }, true},
		{"threshold above pcm range", func(c *Config) { c.ActivationThreshold = 40000 }, true},
		{"zero interval", func(c *Config) { c.SampleInterval = 0 }, true},
		{"zero activation is allowed", func(c *Config) { c.MinActivation = 0 }, false},
		{"max below min", func(c *Config) { c.MaxRecording = c.MinRecording }, true},
		{"no silence window", func(c *Config) { c.SilenceWindow = 0 }, true},
		{"negative false starts", func(c *Config) { c.MaxFalseStarts = -1 }, true},
		{"no recording dir", func(c *Config) { c.RecordingDir = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ActivationThreshold != 2000 {
		t.Errorf("Expected threshold 2000, got %d", cfg.ActivationThreshold)
	}
	if cfg.SilenceWindow != 2*time.Second || cfg.MaxRecording != 30*time.Second {
		t.Errorf("Unexpected windows: silence %s max %s", cfg.SilenceWindow, cfg.MaxRecording)
	}
	if cfg.SampleInterval != 100*time.Millisecond || cfg.MinActivation != 300*time.Millisecond {
		t.Errorf("Unexpected sampling: interval %s activation %s", cfg.SampleInterval, cfg.MinActivation)
	}
}
