// Package voice runs the hands-free conversation loop: listen for speech,
// record until silence, transcribe, ask for a reply, speak it, listen again.
//
// All state transitions happen on one goroutine. Timer ticks, collaborator
// results and caller commands are delivered to it as events, so no two
// stages ever mutate the session state at the same time.
package voice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/internal/audio"
	"github.com/satriahrh/jumpgpt/internal/observe"
	"github.com/satriahrh/jumpgpt/internal/stateflow"
	"github.com/satriahrh/jumpgpt/usecase"
)

// ErrShutdown is returned by commands sent after Shutdown
var ErrShutdown = errors.New("voice coordinator is shut down")

// Transcriber turns a recording into text and consumes the artifact
type Transcriber interface {
	Transcribe(ctx context.Context, artifact audio.Artifact) (string, error)
}

// Chat appends a user turn and returns the assistant reply
type Chat interface {
	Send(ctx context.Context, req usecase.SendRequest) (usecase.SendResult, error)
}

// Synthesizer returns an audio file speaking text for a message id
type Synthesizer interface {
	Speak(ctx context.Context, text, messageID string) (string, error)
}

// Dependencies are the collaborators of a Coordinator
type Dependencies struct {
	Capture     *audio.Capture
	Player      *audio.Player
	Transcriber Transcriber
	Chat        Chat
	Speech      Synthesizer
	Clock       clock.Clock
	Metrics     *observe.Metrics
	Logger      *zap.Logger
}

type eventKind int

const (
	eventMaxDuration eventKind = iota
	eventTranscribed
	eventCompleted
	eventSynthesized
	eventPlaybackDone
)

type event struct {
	kind       eventKind
	gen        uint64
	text       string
	result     usecase.SendResult
	path       string
	completion audio.Completion
	err        error
}

// Coordinator is the voice conversation state machine
type Coordinator struct {
	cfg         Config
	capture     *audio.Capture
	player      *audio.Player
	transcriber Transcriber
	chat        Chat
	speech      Synthesizer
	clock       clock.Clock
	metrics     *observe.Metrics
	logger      *zap.Logger

	state    *stateflow.Value[entities.VoiceSessionState]
	commands chan func()
	events   chan event
	quit     chan struct{}
	stopped  chan struct{}
	shutdown sync.Once

	// owned by the run goroutine
	gen            uint64
	cycleCtx       context.Context
	cancelCycle    context.CancelFunc
	inflight       sync.WaitGroup
	ticker         *clock.Ticker
	tick           <-chan time.Time
	detector       *Detector
	session        *RecordingSession
	captureStarted time.Time
	falseStarts    int
}

// NewCoordinator creates an idle coordinator and starts its event loop
func NewCoordinator(cfg Config, deps Dependencies) *Coordinator {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	c := &Coordinator{
		cfg:         cfg,
		capture:     deps.Capture,
		player:      deps.Player,
		transcriber: deps.Transcriber,
		chat:        deps.Chat,
		speech:      deps.Speech,
		clock:       clk,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		state:       stateflow.New(entities.NewVoiceSessionState()),
		commands:    make(chan func()),
		events:      make(chan event, 64),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		detector:    NewDetector(cfg.ActivationThreshold, cfg.MinActivation),
	}
	c.cycleCtx, c.cancelCycle = context.WithCancel(context.Background())

	go c.run()
	return c
}

// State returns the current session state
func (c *Coordinator) State() entities.VoiceSessionState {
	return c.state.Get()
}

// Watch streams session state changes until ctx is done
func (c *Coordinator) Watch(ctx context.Context) <-chan entities.VoiceSessionState {
	return c.state.Watch(ctx)
}

// Start begins activation listening. It is a no-op unless the coordinator
// is idle.
func (c *Coordinator) Start() error {
	return c.do(c.start)
}

// StopRecording ends the current recording as if silence was detected
func (c *Coordinator) StopRecording() error {
	return c.do(func() {
		if c.phase() == entities.VoicePhaseRecording {
			c.finishRecording(StopManual)
		}
	})
}

// Retry clears an error and listens again. It is a no-op outside Error.
func (c *Coordinator) Retry() error {
	return c.do(func() {
		if c.phase() != entities.VoicePhaseError {
			return
		}
		c.newCycle()
		c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
			s.LastError = ""
			s.ErrorKind = ""
			s.FalseStarts = 0
			return s
		})
		c.falseStarts = 0
		c.beginListening()
	})
}

// StopPlayback cuts the spoken response short. The loop continues with
// activation listening.
func (c *Coordinator) StopPlayback() error {
	return c.do(func() {
		if c.phase() == entities.VoicePhasePlayingResponse {
			c.player.Stop()
		}
	})
}

// SetConversation selects the conversation that voice turns are added to.
// An empty id makes the next turn start a new conversation.
func (c *Coordinator) SetConversation(id string) error {
	return c.do(func() {
		c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
			s.ConversationID = id
			return s
		})
	})
}

// Close cancels timers and in-flight work, releases the microphone and the
// player, and returns to Idle. When Close returns, Start is safe to call.
func (c *Coordinator) Close() error {
	return c.do(c.teardown)
}

// Shutdown closes the coordinator and stops its event loop
func (c *Coordinator) Shutdown() {
	c.shutdown.Do(func() {
		c.Close()
		close(c.quit)
		<-c.stopped
	})
}

func (c *Coordinator) do(fn func()) error {
	done := make(chan struct{})
	select {
	case c.commands <- func() { fn(); close(done) }:
	case <-c.quit:
		return ErrShutdown
	}
	<-done
	return nil
}

func (c *Coordinator) run() {
	defer close(c.stopped)

	for {
		select {
		case cmd := <-c.commands:
			cmd()
		case now := <-c.tick:
			c.sample(now)
		case ev := <-c.events:
			if ev.gen != c.gen {
				continue
			}
			c.handle(ev)
		case <-c.quit:
			return
		}
	}
}

func (c *Coordinator) phase() entities.VoicePhase {
	return c.state.Get().Phase
}

func (c *Coordinator) setPhase(p entities.VoicePhase) {
	c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
		s.Phase = p
		return s
	})
	c.logger.Debug("Voice phase changed", zap.String("phase", string(p)))
}

func (c *Coordinator) start() {
	if c.phase() != entities.VoicePhaseIdle {
		c.logger.Debug("Ignoring start", zap.String("phase", string(c.phase())))
		return
	}
	c.newCycle()
	c.falseStarts = 0
	c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
		return entities.VoiceSessionState{
			Phase:          entities.VoicePhaseIdle,
			ConversationID: s.ConversationID,
		}
	})
	c.beginListening()
}

// newCycle invalidates events of the previous cycle
func (c *Coordinator) newCycle() {
	c.cancelCycle()
	c.gen++
	c.cycleCtx, c.cancelCycle = context.WithCancel(context.Background())
}

func (c *Coordinator) beginListening() {
	target := filepath.Join(c.cfg.RecordingDir, fmt.Sprintf("voice_record_%s.wav", uuid.NewString()))
	if err := c.capture.Start(target); err != nil {
		c.fail(err)
		return
	}

	now := c.clock.Now()
	c.captureStarted = now
	c.detector.Reset()
	c.session = nil
	c.startTicker()

	c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
		s.Phase = entities.VoicePhaseActivationListening
		s.RecordingElapsed = 0
		s.Amplitude = 0
		s.FalseStarts = c.falseStarts
		return s
	})

	c.sample(now)
}

func (c *Coordinator) startTicker() {
	if c.ticker != nil {
		return
	}
	c.ticker = c.clock.Ticker(c.cfg.SampleInterval)
	c.tick = c.ticker.C
}

func (c *Coordinator) stopTicker() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
	c.tick = nil
}

func (c *Coordinator) sample(now time.Time) {
	phase := c.phase()
	if phase != entities.VoicePhaseActivationListening && phase != entities.VoicePhaseRecording {
		return
	}

	amplitude, ok := c.capture.Amplitude()
	if !ok {
		return
	}

	elapsed := now.Sub(c.captureStarted)
	c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
		s.Amplitude = amplitude
		s.RecordingElapsed = elapsed
		return s
	})

	if phase == entities.VoicePhaseRecording {
		if reason := c.session.Observe(amplitude, now); reason != StopNone {
			c.finishRecording(reason)
		}
		return
	}

	switch c.detector.Observe(amplitude, now) {
	case SignalConfirmed:
		c.falseStarts = 0
		c.session = NewRecordingSession(c.capture, c.cfg, c.captureStarted)
		gen := c.gen
		c.session.Arm(c.clock, now, func() {
			c.post(event{kind: eventMaxDuration, gen: gen})
		})
		c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
			s.Phase = entities.VoicePhaseRecording
			s.FalseStarts = 0
			return s
		})
		c.logger.Info("Voice detected, recording", zap.Duration("after", elapsed))

	case SignalFalseStart:
		c.falseStarts++
		c.metrics.RecordFalseStart(c.cycleCtx)
		if c.falseStarts > c.cfg.MaxFalseStarts {
			c.fail(fmt.Errorf("%w: %d consecutive false starts", domain.ErrNoAudioCaptured, c.falseStarts))
			return
		}
		c.logger.Debug("False start, restarting capture", zap.Int("false_starts", c.falseStarts))
		c.capture.Abort()
		c.beginListening()

	default:
		if elapsed >= c.cfg.MaxRecording {
			// nobody spoke; rotate the file so it does not grow unbounded
			c.capture.Abort()
			c.beginListening()
		}
	}
}

func (c *Coordinator) finishRecording(reason StopReason) {
	if c.session == nil {
		return
	}
	c.stopTicker()

	now := c.clock.Now()
	elapsed := c.session.Elapsed(now)
	artifact, err := c.session.Stop(reason)
	if err != nil {
		c.fail(err)
		return
	}
	if artifact == nil {
		return
	}

	c.logger.Info("Recording finished",
		zap.String("reason", string(reason)),
		zap.Duration("elapsed", elapsed))

	c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
		s.Phase = entities.VoicePhaseTranscribing
		s.RecordingElapsed = elapsed
		s.Amplitude = 0
		return s
	})

	art := *artifact
	c.launch("transcription", func(ctx context.Context) event {
		text, err := c.transcriber.Transcribe(ctx, art)
		return event{kind: eventTranscribed, text: text, err: err}
	})
}

// launch runs one network stage off the loop and posts its result
func (c *Coordinator) launch(stage string, fn func(ctx context.Context) event) {
	ctx := c.cycleCtx
	gen := c.gen
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		started := c.clock.Now()
		ev := fn(ctx)
		c.metrics.RecordStage(ctx, stage, c.clock.Since(started), ev.err)
		ev.gen = gen
		select {
		case c.events <- ev:
		case <-ctx.Done():
		}
	}()
}

func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

func (c *Coordinator) handle(ev event) {
	switch ev.kind {
	case eventMaxDuration:
		if c.phase() == entities.VoicePhaseRecording {
			c.finishRecording(StopMaxDuration)
		}

	case eventTranscribed:
		if c.phase() != entities.VoicePhaseTranscribing {
			return
		}
		if ev.err != nil {
			c.fail(wrapStage(domain.ErrTranscriptionFailed, ev.err))
			return
		}
		text := strings.TrimSpace(ev.text)
		if text == "" {
			c.fail(fmt.Errorf("%w: empty transcript", domain.ErrTranscriptionFailed))
			return
		}

		conversationID := ""
		c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
			s.Phase = entities.VoicePhaseSending
			s.LastTranscript = text
			conversationID = s.ConversationID
			return s
		})

		c.launch("completion", func(ctx context.Context) event {
			result, err := c.chat.Send(ctx, usecase.SendRequest{
				ConversationID: conversationID,
				Text:           text,
				Voice:          true,
			})
			return event{kind: eventCompleted, result: result, err: err}
		})

	case eventCompleted:
		if c.phase() != entities.VoicePhaseSending {
			return
		}
		if ev.result.ConversationID != "" {
			c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
				s.ConversationID = ev.result.ConversationID
				return s
			})
		}
		if ev.err != nil {
			c.fail(wrapStage(domain.ErrCompletionFailed, ev.err))
			return
		}

		reply := ev.result.Reply
		c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
			s.Phase = entities.VoicePhaseSynthesizing
			s.ResponseID = reply.ID
			return s
		})

		c.launch("synthesis", func(ctx context.Context) event {
			path, err := c.speech.Speak(ctx, reply.Content, reply.ID)
			return event{kind: eventSynthesized, path: path, err: err}
		})

	case eventSynthesized:
		if c.phase() != entities.VoicePhaseSynthesizing {
			return
		}
		if ev.err != nil {
			c.fail(wrapStage(domain.ErrSynthesisFailed, ev.err))
			return
		}

		id := c.state.Get().ResponseID
		done, err := c.player.Play(ev.path, id)
		if err != nil {
			c.fail(err)
			return
		}
		c.setPhase(entities.VoicePhasePlayingResponse)

		ctx := c.cycleCtx
		gen := c.gen
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			select {
			case completion := <-done:
				select {
				case c.events <- event{kind: eventPlaybackDone, gen: gen, completion: completion}:
				case <-ctx.Done():
				}
			case <-ctx.Done():
			}
		}()

	case eventPlaybackDone:
		if c.phase() != entities.VoicePhasePlayingResponse {
			return
		}
		c.metrics.RecordCycle(c.cycleCtx)
		c.logger.Info("Response played, listening again",
			zap.String("message_id", ev.completion.MessageID),
			zap.Bool("stopped", ev.completion.Stopped))
		c.beginListening()
	}
}

func wrapStage(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// fail moves to Error, releasing the microphone and dropping the recording
func (c *Coordinator) fail(err error) {
	c.stopTicker()
	if c.session != nil {
		c.session.Disarm()
		c.session = nil
	}
	c.capture.Abort()
	c.cancelCycle()

	kind := domain.ErrorKind(err)
	c.metrics.RecordVoiceError(context.Background(), kind)
	c.logger.Error("Voice cycle failed", zap.String("kind", kind), zap.Error(err))

	c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
		s.Phase = entities.VoicePhaseError
		s.LastError = userMessage(err)
		s.ErrorKind = kind
		s.RecordingElapsed = 0
		s.Amplitude = 0
		s.FalseStarts = c.falseStarts
		return s
	})
}

func (c *Coordinator) teardown() {
	c.gen++
	c.cancelCycle()
	c.stopTicker()
	if c.session != nil {
		c.session.Disarm()
		c.session = nil
	}
	c.capture.Abort()
	c.player.Stop()
	c.inflight.Wait()
	c.cycleCtx, c.cancelCycle = context.WithCancel(context.Background())
	c.falseStarts = 0

	c.state.Update(func(s entities.VoiceSessionState) entities.VoiceSessionState {
		return entities.VoiceSessionState{
			Phase:          entities.VoicePhaseIdle,
			ConversationID: s.ConversationID,
		}
	})
	c.logger.Info("Voice session closed")
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMicrophoneBusy):
		return "The microphone is in use by another application"
	case errors.Is(err, domain.ErrRecorderInit):
		return "Could not start recording"
	case errors.Is(err, domain.ErrRecorderStop):
		return "Recording could not be finished"
	case errors.Is(err, domain.ErrNoAudioCaptured):
		return "No audio was recorded"
	case errors.Is(err, domain.ErrTranscriptionFailed):
		return "Could not transcribe audio"
	case errors.Is(err, domain.ErrCompletionFailed):
		return "Failed to get a response"
	case errors.Is(err, domain.ErrSynthesisFailed):
		return "Failed to generate speech from response"
	case errors.Is(err, domain.ErrPlaybackInit):
		return "Failed to play response"
	}
	return "Something went wrong"
}
