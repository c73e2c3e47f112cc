// Package mock provides scriptable audio hardware for tests and for running
// without sound devices.
package mock

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/satriahrh/jumpgpt/internal/audio"
)

// Recorder is a fake microphone whose amplitude is set by the caller.
// Recordings write Payload to the target file on Close.
type Recorder struct {
	mu        sync.Mutex
	amplitude int
	payload   []byte
	openErr   error
	opened    int
	closed    int
	targets   []string
}

var _ audio.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder that writes payload into each recording
func NewRecorder(payload []byte) *Recorder {
	return &Recorder{payload: payload}
}

// SetAmplitude sets the level every open recording reports
func (r *Recorder) SetAmplitude(amplitude int) {
	r.mu.Lock()
	r.amplitude = amplitude
	r.mu.Unlock()
}

// SetPayload sets the bytes written by later recordings
func (r *Recorder) SetPayload(payload []byte) {
	r.mu.Lock()
	r.payload = payload
	r.mu.Unlock()
}

// FailOpen makes the next Open calls fail with err
func (r *Recorder) FailOpen(err error) {
	r.mu.Lock()
	r.openErr = err
	r.mu.Unlock()
}

// Opened returns how many recordings were opened
func (r *Recorder) Opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

// OpenRecordings returns how many recordings are open right now
func (r *Recorder) OpenRecordings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened - r.closed
}

// Targets returns every path passed to Open
func (r *Recorder) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

func (r *Recorder) Open(target string) (audio.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.openErr != nil {
		return nil, r.openErr
	}
	f, err := os.Create(target)
	if err != nil {
		return nil, err
	}
	r.opened++
	r.targets = append(r.targets, target)
	return &recording{recorder: r, file: f}, nil
}

type recording struct {
	recorder *Recorder
	file     *os.File
	once     sync.Once
	err      error
}

func (c *recording) MaxAmplitude() int {
	c.recorder.mu.Lock()
	defer c.recorder.mu.Unlock()
	return c.recorder.amplitude
}

func (c *recording) Close() error {
	c.once.Do(func() {
		c.recorder.mu.Lock()
		payload := c.recorder.payload
		c.recorder.closed++
		c.recorder.mu.Unlock()

		_, werr := c.file.Write(payload)
		c.err = errors.Join(werr, c.file.Close())
	})
	return c.err
}

// Backend is a fake output device. Playbacks run until Finish or Stop.
type Backend struct {
	mu        sync.Mutex
	openErr   error
	openDelay time.Duration
	played    []string
	active    []*Playback
	started   chan *Playback
}

var _ audio.Backend = (*Backend)(nil)

// NewBackend creates a fake output device
func NewBackend() *Backend {
	return &Backend{started: make(chan *Playback, 16)}
}

// FailOpen makes later Open calls fail with err
func (b *Backend) FailOpen(err error) {
	b.mu.Lock()
	b.openErr = err
	b.mu.Unlock()
}

// SlowOpen makes later Open calls take d before the playback starts
func (b *Backend) SlowOpen(d time.Duration) {
	b.mu.Lock()
	b.openDelay = d
	b.mu.Unlock()
}

// Active returns every playback opened so far
func (b *Backend) Active() []*Playback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Playback(nil), b.active...)
}

// Started yields every playback as it begins
func (b *Backend) Started() <-chan *Playback {
	return b.started
}

// Played returns every path opened so far
func (b *Backend) Played() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.played...)
}

func (b *Backend) Open(path string) (audio.Playback, error) {
	b.mu.Lock()
	delay := b.openDelay
	b.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openErr != nil {
		return nil, b.openErr
	}
	pb := &Playback{Path: path, done: make(chan error, 1)}
	b.played = append(b.played, path)
	b.active = append(b.active, pb)
	select {
	case b.started <- pb:
	default:
	}
	return pb, nil
}

// Playback is a fake playing file
type Playback struct {
	Path    string
	done    chan error
	once    sync.Once
	stopped bool
	mu      sync.Mutex
}

// Finish ends playback as if the file played through
func (p *Playback) Finish(err error) {
	p.once.Do(func() { p.done <- err })
}

// Stopped reports whether Stop was called
func (p *Playback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Playback) Done() <-chan error {
	return p.done
}

func (p *Playback) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.Finish(nil)
}
