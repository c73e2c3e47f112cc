package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/internal/audio"
	"github.com/satriahrh/jumpgpt/internal/audio/mock"
	"github.com/satriahrh/jumpgpt/usecase"
)

type fakeTranscriber struct {
	mu        sync.Mutex
	text      string
	err       error
	artifacts []audio.Artifact
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, artifact audio.Artifact) (string, error) {
	defer artifact.Remove()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, artifact)
	return f.text, f.err
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artifacts)
}

type fakeChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []usecase.SendRequest
}

func (f *fakeChat) Send(ctx context.Context, req usecase.SendRequest) (usecase.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	convID := req.ConversationID
	if convID == "" {
		convID = "conv-1"
	}
	result := usecase.SendResult{
		ConversationID: convID,
		UserMessage:    entities.NewMessage(entities.MessageRoleUser, req.Text, time.Now()),
	}
	if f.err != nil {
		return result, f.err
	}
	result.Reply = entities.NewMessage(entities.MessageRoleAssistant, f.reply, time.Now())
	return result, nil
}

func (f *fakeChat) sent() []usecase.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecase.SendRequest(nil), f.requests...)
}

type fakeSpeech struct {
	dir   string
	err   error
	mu    sync.Mutex
	texts []string
}

func (f *fakeSpeech) Speak(ctx context.Context, text, messageID string) (string, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, messageID+".mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type harness struct {
	t           *testing.T
	clock       *clock.Mock
	recorder    *mock.Recorder
	backend     *mock.Backend
	mic         *audio.Microphone
	transcriber *fakeTranscriber
	chat        *fakeChat
	speech      *fakeSpeech
	coordinator *Coordinator
	// capture start of the current listening attempt, in mock time
	origin time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	cfg.RecordingDir = dir

	h := &harness{
		t:           t,
		clock:       clock.NewMock(),
		recorder:    mock.NewRecorder([]byte("RIFF....WAVEfmt ")),
		backend:     mock.NewBackend(),
		mic:         audio.NewMicrophone(),
		transcriber: &fakeTranscriber{text: "hello"},
		chat:        &fakeChat{reply: "hi there"},
		speech:      &fakeSpeech{dir: dir},
	}
	h.origin = h.clock.Now()

	h.coordinator = NewCoordinator(cfg, Dependencies{
		Capture:     audio.NewCapture(h.mic, h.recorder, "voice", logger),
		Player:      audio.NewPlayer(h.backend, logger),
		Transcriber: h.transcriber,
		Chat:        h.chat,
		Speech:      h.speech,
		Clock:       h.clock,
		Logger:      logger,
	})
	t.Cleanup(h.coordinator.Shutdown)
	return h
}

// step advances the clock by one sample interval and waits until the
// coordinator has taken the sample.
func (h *harness) step(interval time.Duration) {
	h.t.Helper()
	h.clock.Add(interval)
	want := h.clock.Now().Sub(h.origin)
	h.waitFor("sample at "+want.String(), func(s entities.VoiceSessionState) bool {
		listening := s.Phase == entities.VoicePhaseActivationListening || s.Phase == entities.VoicePhaseRecording
		return !listening || s.RecordingElapsed == want
	})
}

func (h *harness) waitFor(what string, cond func(entities.VoiceSessionState) bool) entities.VoiceSessionState {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.coordinator.State()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("Timed out waiting for %s, state %+v", what, s)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitPhase(p entities.VoicePhase) entities.VoiceSessionState {
	h.t.Helper()
	return h.waitFor(string(p), func(s entities.VoiceSessionState) bool { return s.Phase == p })
}

func (h *harness) start() {
	h.t.Helper()
	h.origin = h.clock.Now()
	if err := h.coordinator.Start(); err != nil {
		h.t.Fatalf("Failed to start: %v", err)
	}
	h.waitPhase(entities.VoicePhaseActivationListening)
}

func TestCoordinator_FullCycle(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, cfg)

	h.recorder.SetAmplitude(6000)
	h.start()

	for i := 0; i < 2; i++ {
		h.step(cfg.SampleInterval)
	}
	if p := h.coordinator.State().Phase; p != entities.VoicePhaseActivationListening {
		t.Fatalf("Expected still listening at 200ms, got %s", p)
	}

	h.step(cfg.SampleInterval)
	h.waitPhase(entities.VoicePhaseRecording)

	// speak until 4300ms, then stay quiet
	for h.clock.Now().Sub(h.origin) < 4300*time.Millisecond {
		h.step(cfg.SampleInterval)
	}
	h.recorder.SetAmplitude(0)

	for h.coordinator.State().Phase == entities.VoicePhaseRecording {
		if h.clock.Now().Sub(h.origin) > 10*time.Second {
			t.Fatal("Recording did not stop on silence")
		}
		h.step(cfg.SampleInterval)
	}

	stoppedAt := h.clock.Now().Sub(h.origin)
	if stoppedAt != 6400*time.Millisecond {
		t.Errorf("Expected silence stop at 6400ms, got %s", stoppedAt)
	}

	var pb *mock.Playback
	select {
	case pb = <-h.backend.Started():
	case <-time.After(2 * time.Second):
		t.Fatalf("Playback never started, state %+v", h.coordinator.State())
	}

	state := h.waitPhase(entities.VoicePhasePlayingResponse)
	if state.LastTranscript != "hello" {
		t.Errorf("Expected transcript hello, got %q", state.LastTranscript)
	}
	if state.ConversationID != "conv-1" {
		t.Errorf("Expected conversation conv-1, got %q", state.ConversationID)
	}
	if state.ResponseID == "" || filepath.Base(pb.Path) != state.ResponseID+".mp3" {
		t.Errorf("Expected playback of response %q, got %s", state.ResponseID, pb.Path)
	}

	sent := h.chat.sent()
	if len(sent) != 1 || sent[0].Text != "hello" || !sent[0].Voice {
		t.Errorf("Unexpected chat requests: %+v", sent)
	}
	if h.speech.texts[0] != "hi there" {
		t.Errorf("Expected reply to be spoken, got %q", h.speech.texts[0])
	}

	h.origin = h.clock.Now()
	pb.Finish(nil)
	h.waitPhase(entities.VoicePhaseActivationListening)

	if h.mic.Holder() != "voice" {
		t.Errorf("Expected microphone held for the next turn, got %q", h.mic.Holder())
	}

	// recording artifact is consumed by transcription
	if _, err := os.Stat(h.transcriber.artifacts[0].Path); !os.IsNotExist(err) {
		t.Errorf("Expected recording to be deleted, stat returned %v", err)
	}
}

func TestCoordinator_EmptyTranscriptFails(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, cfg)
	h.transcriber.text = "   "

	h.recorder.SetAmplitude(6000)
	h.start()
	for i := 0; i < 3; i++ {
		h.step(cfg.SampleInterval)
	}
	h.waitPhase(entities.VoicePhaseRecording)

	if err := h.coordinator.StopRecording(); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}

	state := h.waitPhase(entities.VoicePhaseError)
	if state.ErrorKind != "transcription_failed" {
		t.Errorf("Expected transcription_failed, got %q", state.ErrorKind)
	}
	if state.LastError == "" {
		t.Error("Expected a user facing error message")
	}
	if len(h.chat.sent()) != 0 {
		t.Error("Expected no message to be sent for an empty transcript")
	}
	if h.mic.Holder() != "" {
		t.Errorf("Expected microphone to be released, held by %q", h.mic.Holder())
	}

	// Start only works from Idle
	h.coordinator.Start()
	if p := h.coordinator.State().Phase; p != entities.VoicePhaseError {
		t.Errorf("Expected Start to be ignored in Error, got %s", p)
	}

	h.transcriber.text = "hello"
	h.origin = h.clock.Now()
	if err := h.coordinator.Retry(); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	state = h.waitPhase(entities.VoicePhaseActivationListening)
	if state.LastError != "" || state.ErrorKind != "" {
		t.Errorf("Expected error cleared on retry, got %+v", state)
	}
}

func TestCoordinator_StageFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		kind  string
	}{
		{
			name:  "transcription error",
			setup: func(h *harness) { h.transcriber.err = errors.New("upstream 500") },
			kind:  "transcription_failed",
		},
		{
			name:  "completion error",
			setup: func(h *harness) { h.chat.err = errors.New("rate limited") },
			kind:  "completion_failed",
		},
		{
			name:  "synthesis error",
			setup: func(h *harness) { h.speech.err = errors.New("voice unavailable") },
			kind:  "synthesis_failed",
		},
		{
			name:  "playback error",
			setup: func(h *harness) { h.backend.FailOpen(errors.New("no device")) },
			kind:  "playback_init",
		},
		{
			name:  "no audio",
			setup: func(h *harness) { h.recorder.SetPayload(nil) },
			kind:  "no_audio_captured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			h := newHarness(t, cfg)
			tt.setup(h)

			h.recorder.SetAmplitude(6000)
			h.start()
			for i := 0; i < 3; i++ {
				h.step(cfg.SampleInterval)
			}
			h.waitPhase(entities.VoicePhaseRecording)
			h.coordinator.StopRecording()

			state := h.waitPhase(entities.VoicePhaseError)
			if state.ErrorKind != tt.kind {
				t.Errorf("Expected kind %q, got %q (%s)", tt.kind, state.ErrorKind, state.LastError)
			}
			if h.recorder.OpenRecordings() != 0 {
				t.Errorf("Expected no open recordings, got %d", h.recorder.OpenRecordings())
			}
		})
	}
}

func TestCoordinator_CompletionErrorKeepsConversation(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, cfg)
	h.chat.err = errors.New("rate limited")

	h.recorder.SetAmplitude(6000)
	h.start()
	for i := 0; i < 3; i++ {
		h.step(cfg.SampleInterval)
	}
	h.waitPhase(entities.VoicePhaseRecording)
	h.coordinator.StopRecording()

	state := h.waitPhase(entities.VoicePhaseError)
	if state.ConversationID != "conv-1" {
		t.Errorf("Expected conversation created by the failed turn to be kept, got %q", state.ConversationID)
	}
}

func TestCoordinator_CloseDuringRecordingThenStart(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, cfg)

	h.recorder.SetAmplitude(6000)
	h.start()
	for i := 0; i < 3; i++ {
		h.step(cfg.SampleInterval)
	}
	h.waitPhase(entities.VoicePhaseRecording)

	if err := h.coordinator.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if p := h.coordinator.State().Phase; p != entities.VoicePhaseIdle {
		t.Fatalf("Expected Idle after close, got %s", p)
	}
	if h.mic.Holder() != "" {
		t.Fatalf("Expected microphone released after close, held by %q", h.mic.Holder())
	}
	if _, err := os.Stat(h.recorder.Targets()[0]); !os.IsNotExist(err) {
		t.Errorf("Expected aborted recording to be removed, stat returned %v", err)
	}

	h.recorder.SetAmplitude(0)
	h.start()
	if h.recorder.Opened() != 2 {
		t.Errorf("Expected a second recording, got %d opened", h.recorder.Opened())
	}

	// the cap of the closed session must not end the new one
	h.clock.Add(cfg.MaxRecording)
	time.Sleep(10 * time.Millisecond)
	if p := h.coordinator.State().Phase; p == entities.VoicePhaseTranscribing {
		t.Errorf("Stale duration cap stopped the new session")
	}
	if h.transcriber.calls() != 0 {
		t.Errorf("Expected no transcription, got %d", h.transcriber.calls())
	}
}

func TestCoordinator_MaxDurationStopsRecording(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRecording = 3 * time.Second
	h := newHarness(t, cfg)

	h.recorder.SetAmplitude(6000)
	h.start()
	for {
		p := h.coordinator.State().Phase
		if p != entities.VoicePhaseActivationListening && p != entities.VoicePhaseRecording {
			break
		}
		if h.clock.Now().Sub(h.origin) > cfg.MaxRecording+time.Second {
			t.Fatalf("Recording ran past the cap, state %+v", h.coordinator.State())
		}
		h.step(cfg.SampleInterval)
	}

	if stopped := h.clock.Now().Sub(h.origin); stopped != cfg.MaxRecording {
		t.Errorf("Expected stop at %s, got %s", cfg.MaxRecording, stopped)
	}

	select {
	case pb := <-h.backend.Started():
		pb.Finish(nil)
	case <-time.After(2 * time.Second):
		t.Fatal("Playback never started")
	}
}

func TestCoordinator_FalseStartsAreBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFalseStarts = 2
	h := newHarness(t, cfg)

	h.start()
	for attempt := 1; attempt <= 3; attempt++ {
		h.recorder.SetAmplitude(6000)
		h.step(cfg.SampleInterval)

		h.recorder.SetAmplitude(0)
		h.clock.Add(cfg.SampleInterval)
		if attempt <= cfg.MaxFalseStarts {
			h.origin = h.clock.Now()
			h.waitFor("false start", func(s entities.VoiceSessionState) bool {
				return s.FalseStarts == attempt && s.RecordingElapsed == 0
			})
		}
	}

	state := h.waitPhase(entities.VoicePhaseError)
	if state.ErrorKind != "no_audio_captured" {
		t.Errorf("Expected no_audio_captured, got %q", state.ErrorKind)
	}
	if state.FalseStarts != 3 {
		t.Errorf("Expected 3 false starts, got %d", state.FalseStarts)
	}
	if h.recorder.OpenRecordings() != 0 {
		t.Errorf("Expected no open recordings, got %d", h.recorder.OpenRecordings())
	}
}

func TestCoordinator_StopPlaybackContinuesListening(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, cfg)

	h.recorder.SetAmplitude(6000)
	h.start()
	for i := 0; i < 3; i++ {
		h.step(cfg.SampleInterval)
	}
	h.waitPhase(entities.VoicePhaseRecording)
	h.coordinator.StopRecording()

	var pb *mock.Playback
	select {
	case pb = <-h.backend.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("Playback never started")
	}
	h.waitPhase(entities.VoicePhasePlayingResponse)

	if err := h.coordinator.StopPlayback(); err != nil {
		t.Fatalf("StopPlayback failed: %v", err)
	}
	h.waitPhase(entities.VoicePhaseActivationListening)
	if !pb.Stopped() {
		t.Error("Expected backend playback to be stopped")
	}
}

func TestCoordinator_SetConversation(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, cfg)

	if err := h.coordinator.SetConversation("existing"); err != nil {
		t.Fatalf("SetConversation failed: %v", err)
	}

	h.recorder.SetAmplitude(6000)
	h.start()
	for i := 0; i < 3; i++ {
		h.step(cfg.SampleInterval)
	}
	h.waitPhase(entities.VoicePhaseRecording)
	h.coordinator.StopRecording()
	h.waitPhase(entities.VoicePhasePlayingResponse)

	sent := h.chat.sent()
	if len(sent) != 1 || sent[0].ConversationID != "existing" {
		t.Errorf("Expected turn in conversation existing, got %+v", sent)
	}
}

func TestCoordinator_MicrophoneBusy(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	lease, err := h.mic.Acquire("phone call")
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	h.coordinator.Start()
	state := h.waitPhase(entities.VoicePhaseError)
	if state.ErrorKind != "recorder_init" {
		t.Errorf("Expected recorder_init, got %q", state.ErrorKind)
	}
	if state.LastError != "The microphone is in use by another application" {
		t.Errorf("Unexpected error message %q", state.LastError)
	}
}

func TestCoordinator_ShutdownRejectsCommands(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.coordinator.Shutdown()

	if err := h.coordinator.Start(); !errors.Is(err, ErrShutdown) {
		t.Errorf("Expected ErrShutdown, got %v", err)
	}
}
