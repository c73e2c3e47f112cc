package audio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/internal/stateflow"
)

// Backend starts playback of an audio file
type Backend interface {
	Open(path string) (Playback, error)
}

// Playback is one playing file. Done yields exactly one value when playback
// ends, nil on natural completion.
type Playback interface {
	Done() <-chan error
	Stop()
}

// PlayerState is the observable playback state
type PlayerState struct {
	Playing   bool   `json:"playing"`
	MessageID string `json:"message_id,omitempty"`
}

// Completion reports the end of one playback
type Completion struct {
	MessageID string
	// Stopped is set when playback ended through Stop or a newer Play
	Stopped bool
	Err     error
}

// Player plays one synthesized response at a time
type Player struct {
	backend Backend
	logger  *zap.Logger
	state   *stateflow.Value[PlayerState]

	// playMu serializes Play so stopping the previous playback, opening the
	// next one and installing it happen as one step
	playMu sync.Mutex

	mu         sync.Mutex
	current    Playback
	currentID  string
	notify     chan Completion
	generation uint64
}

// NewPlayer creates an idle player
func NewPlayer(backend Backend, logger *zap.Logger) *Player {
	return &Player{
		backend: backend,
		logger:  logger,
		state:   stateflow.New(PlayerState{}),
	}
}

// Play starts playing path as message id, stopping whatever was playing.
// The returned channel receives a single Completion. Errors wrap
// domain.ErrPlaybackInit.
func (p *Player) Play(path, id string) (<-chan Completion, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPlaybackInit, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrPlaybackInit, path)
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.Stop()

	pb, err := p.backend.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPlaybackInit, err)
	}

	notify := make(chan Completion, 1)

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.current = pb
	p.currentID = id
	p.notify = notify
	p.mu.Unlock()

	p.state.Set(PlayerState{Playing: true, MessageID: id})
	p.logger.Debug("Playback started", zap.String("message_id", id))

	go func() {
		err := <-pb.Done()
		p.finish(gen, Completion{MessageID: id, Err: err})
	}()

	return notify, nil
}

// Stop ends the current playback. It is a no-op when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	pb := p.current
	id := p.currentID
	gen := p.generation
	p.mu.Unlock()

	if pb == nil {
		return
	}
	if p.finish(gen, Completion{MessageID: id, Stopped: true}) {
		pb.Stop()
	}
}

// finish resets to idle and notifies once per generation
func (p *Player) finish(gen uint64, c Completion) bool {
	p.mu.Lock()
	if gen != p.generation || p.current == nil {
		p.mu.Unlock()
		return false
	}
	notify := p.notify
	p.current = nil
	p.currentID = ""
	p.notify = nil
	p.mu.Unlock()

	p.state.Set(PlayerState{})
	if c.Err != nil {
		p.logger.Warn("Playback ended with error", zap.String("message_id", c.MessageID), zap.Error(c.Err))
	}

	notify <- c
	return true
}

// IsPlaying reports whether a file is playing
func (p *Player) IsPlaying() bool {
	return p.state.Get().Playing
}

// CurrentID returns the id of the playing message, or ""
func (p *Player) CurrentID() string {
	return p.state.Get().MessageID
}

// State returns the current playback state
func (p *Player) State() PlayerState {
	return p.state.Get()
}

// Watch streams playback state changes until ctx is done
func (p *Player) Watch(ctx context.Context) <-chan PlayerState {
	return p.state.Watch(ctx)
}
