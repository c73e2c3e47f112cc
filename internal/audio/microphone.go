// Package audio owns the audio hardware: microphone capture into recording
// files and playback of synthesized speech.
package audio

import (
	"fmt"
	"sync"

	"github.com/satriahrh/jumpgpt/domain"
)

// Microphone is the token for the single audio input device. Only one Lease
// may be outstanding at a time.
type Microphone struct {
	mu     sync.Mutex
	holder string
}

// NewMicrophone creates an unheld microphone token
func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Acquire claims the microphone for owner. It never waits: when the device is
// already held it fails with domain.ErrMicrophoneBusy.
func (m *Microphone) Acquire(owner string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder != "" {
		return nil, fmt.Errorf("%w: held by %s", domain.ErrMicrophoneBusy, m.holder)
	}
	m.holder = owner
	return &Lease{mic: m, owner: owner}, nil
}

// Holder returns the current owner, or "" when the microphone is free
func (m *Microphone) Holder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

// Lease is a claim on the microphone
type Lease struct {
	mic   *Microphone
	owner string
	once  sync.Once
}

// Release gives the microphone back. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.mic.mu.Lock()
		if l.mic.holder == l.owner {
			l.mic.holder = ""
		}
		l.mic.mu.Unlock()
	})
}
