package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const speechExt = ".mp3"

// SpeechConfig configures the synthesized speech cache
type SpeechConfig struct {
	CacheDir string
	// MaxAge is how long a cached file is kept. Default: 24h.
	MaxAge time.Duration
}

// SpeechService synthesizes message audio into a per-message file cache
type SpeechService struct {
	cfg    SpeechConfig
	tts    repositories.TextToSpeech
	clock  clock.Clock
	logger *zap.Logger
	group  singleflight.Group
}

// NewSpeechService creates the cache directory if needed
func NewSpeechService(cfg SpeechConfig, tts repositories.TextToSpeech, clk clock.Clock, logger *zap.Logger) (*SpeechService, error) {
	if cfg.CacheDir == "" {
		return nil, errors.New("speech cache directory is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
		logger.Info("Using default speech cache max age", zap.Duration("max_age", cfg.MaxAge))
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create speech cache: %w", err)
	}

	return &SpeechService{
		cfg:    cfg,
		tts:    tts,
		clock:  clk,
		logger: logger,
	}, nil
}

// CachePath returns where the audio for a message is stored
func (s *SpeechService) CachePath(messageID string) string {
	return filepath.Join(s.cfg.CacheDir, messageID+speechExt)
}

// Speak returns a playable file for text, synthesizing it on a cache miss.
// Concurrent calls for one message share a single synthesis. Errors wrap
// domain.ErrSynthesisFailed.
func (s *SpeechService) Speak(ctx context.Context, text, messageID string) (string, error) {
	if messageID == "" || strings.ContainsAny(messageID, `/\`) {
		return "", fmt.Errorf("%w: invalid message id %q", domain.ErrSynthesisFailed, messageID)
	}

	path := s.CachePath(messageID)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		s.logger.Debug("Speech cache hit", zap.String("message_id", messageID))
		return path, nil
	}

	_, err, _ := s.group.Do(messageID, func() (interface{}, error) {
		return nil, s.synthesize(ctx, text, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (s *SpeechService) synthesize(ctx context.Context, text, path string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: nothing to say", domain.ErrSynthesisFailed)
	}

	chunks, err := s.tts.ConvertTextToSpeech(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, err)
	}

	tmp, err := os.CreateTemp(s.cfg.CacheDir, filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, err)
	}
	defer os.Remove(tmp.Name())

	written := 0
	var streamErr error
	for chunk := range chunks {
		if chunk.Err != nil {
			streamErr = chunk.Err
			continue
		}
		if streamErr != nil {
			continue
		}
		n, err := tmp.Write(chunk.Data)
		written += n
		if err != nil {
			streamErr = err
		}
	}
	if err := tmp.Close(); err != nil && streamErr == nil {
		streamErr = err
	}
	if streamErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, streamErr)
	}
	if written == 0 {
		return fmt.Errorf("%w: empty audio", domain.ErrSynthesisFailed)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, err)
	}

	s.logger.Info("Speech synthesized", zap.String("path", path), zap.Int("bytes", written))
	return nil
}

// Cleanup removes cached files older than the configured max age and
// returns how many were removed.
func (s *SpeechService) Cleanup() (int, error) {
	entries, err := os.ReadDir(s.cfg.CacheDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read speech cache: %w", err)
	}

	cutoff := s.clock.Now().Add(-s.cfg.MaxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.CacheDir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Removed stale speech files", zap.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}

// MaxAge returns how long cached files are kept
func (s *SpeechService) MaxAge() time.Duration {
	return s.cfg.MaxAge
}
