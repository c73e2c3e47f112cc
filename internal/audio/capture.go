package audio

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
)

// Recorder opens hardware recordings that write to a file
type Recorder interface {
	Open(target string) (Recording, error)
}

// Recording is one open capture handle
type Recording interface {
	// MaxAmplitude returns the peak absolute sample (0..32767) seen since
	// the previous call.
	MaxAmplitude() int
	// Close stops capturing and finalizes the file
	Close() error
}

// Capture owns microphone recording sessions
type Capture struct {
	mic      *Microphone
	recorder Recorder
	owner    string
	logger   *zap.Logger

	mu     sync.Mutex
	lease  *Lease
	rec    Recording
	target string
}

// NewCapture creates a capture that claims mic as owner for each recording
func NewCapture(mic *Microphone, recorder Recorder, owner string, logger *zap.Logger) *Capture {
	return &Capture{
		mic:      mic,
		recorder: recorder,
		owner:    owner,
		logger:   logger,
	}
}

// Start begins writing a recording to target. A recording left open by a
// previous Start is released first. The error wraps domain.ErrRecorderInit.
func (c *Capture) Start(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec != nil {
		c.logger.Warn("Releasing previous recording before start", zap.String("target", c.target))
		c.closeLocked()
	}

	lease, err := c.mic.Acquire(c.owner)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRecorderInit, err)
	}

	rec, err := c.recorder.Open(target)
	if err != nil {
		lease.Release()
		return fmt.Errorf("%w: %w", domain.ErrRecorderInit, err)
	}

	c.lease = lease
	c.rec = rec
	c.target = target

	c.logger.Debug("Recording started", zap.String("target", target))
	return nil
}

// Amplitude returns the latest amplitude sample. ok is false when no
// recording is active.
func (c *Capture) Amplitude() (amplitude int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return 0, false
	}
	return c.rec.MaxAmplitude(), true
}

// Active reports whether a recording is open
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil
}

// Stop finalizes the active recording and releases the microphone. The file
// is flushed and closed when Stop returns without error.
func (c *Capture) Stop() (Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return Artifact{}, domain.ErrRecorderStop
	}

	target := c.target
	if err := c.closeLocked(); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", domain.ErrRecorderStop, err)
	}

	c.logger.Debug("Recording stopped", zap.String("target", target))
	return Artifact{Path: target}, nil
}

// Abort closes any active recording and deletes its file
func (c *Capture) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return
	}
	target := c.target
	if err := c.closeLocked(); err != nil {
		c.logger.Warn("Failed to close aborted recording", zap.Error(err))
	}
	if err := (Artifact{Path: target}).Remove(); err != nil {
		c.logger.Warn("Failed to remove aborted recording", zap.Error(err))
	}
}

// closeLocked must be called with mu held
func (c *Capture) closeLocked() error {
	err := c.rec.Close()
	c.lease.Release()
	c.rec = nil
	c.lease = nil
	c.target = ""
	return err
}
