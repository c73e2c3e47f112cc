package voice

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/satriahrh/jumpgpt/internal/audio"
)

// StopReason says why a recording ended
type StopReason string

const (
	StopNone        StopReason = ""
	StopSilence     StopReason = "silence"
	StopMaxDuration StopReason = "max_duration"
	StopManual      StopReason = "manual"
)

// RecordingSession bounds one recording attempt with a duration cap and a
// silence timeout. It is not safe for concurrent use; the coordinator owns it.
type RecordingSession struct {
	capture *audio.Capture
	cfg     Config

	startedAt    time.Time
	silenceSince time.Time
	cap          *clock.Timer
	stopped      bool
	reason       StopReason
}

// NewRecordingSession wraps the active capture that started at startedAt
func NewRecordingSession(capture *audio.Capture, cfg Config, startedAt time.Time) *RecordingSession {
	return &RecordingSession{
		capture:   capture,
		cfg:       cfg,
		startedAt: startedAt,
	}
}

// Arm starts the duration cap timer. onCap runs on the timer's goroutine.
func (s *RecordingSession) Arm(clk clock.Clock, now time.Time, onCap func()) {
	remaining := s.cfg.MaxRecording - now.Sub(s.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	s.cap = clk.AfterFunc(remaining, onCap)
}

// Disarm cancels the duration cap timer
func (s *RecordingSession) Disarm() {
	if s.cap != nil {
		s.cap.Stop()
		s.cap = nil
	}
}

// Observe feeds one amplitude sample and returns the reason to stop, or
// StopNone to keep recording.
func (s *RecordingSession) Observe(amplitude int, now time.Time) StopReason {
	if s.stopped {
		return StopNone
	}

	elapsed := now.Sub(s.startedAt)
	if elapsed >= s.cfg.MaxRecording {
		return StopMaxDuration
	}
	if elapsed < s.cfg.MinRecording {
		return StopNone
	}

	if amplitude >= s.cfg.ActivationThreshold {
		s.silenceSince = time.Time{}
		return StopNone
	}
	if s.silenceSince.IsZero() {
		s.silenceSince = now
		return StopNone
	}
	if now.Sub(s.silenceSince) >= s.cfg.SilenceWindow {
		return StopSilence
	}
	return StopNone
}

// Elapsed returns the recording length at now
func (s *RecordingSession) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.startedAt)
}

// Stopped reports whether Stop already ran
func (s *RecordingSession) Stopped() bool {
	return s.stopped
}

// Reason returns why the session stopped
func (s *RecordingSession) Reason() StopReason {
	return s.reason
}

// Stop finalizes the recording and hands over the artifact. Only the first
// call does anything; later calls return a nil artifact and no error. An
// empty or missing file yields domain.ErrNoAudioCaptured and is removed.
func (s *RecordingSession) Stop(reason StopReason) (*audio.Artifact, error) {
	if s.stopped {
		return nil, nil
	}
	s.stopped = true
	s.reason = reason
	s.Disarm()

	artifact, err := s.capture.Stop()
	if err != nil {
		return nil, err
	}
	if err := artifact.Validate(); err != nil {
		artifact.Remove()
		return nil, err
	}
	return &artifact, nil
}
