// Package stateflow holds a value that can be observed for changes.
//
// Watchers always see the latest value; intermediate values are dropped when
// a watcher falls behind.
package stateflow

import (
	"context"
	"sync"
)

// Value is a concurrency safe observable value
type Value[T any] struct {
	mu       sync.Mutex
	current  T
	watchers map[chan T]struct{}
}

// New creates a value holding initial
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		current:  initial,
		watchers: make(map[chan T]struct{}),
	}
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and notifies watchers
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = next
	v.publish(next)
}

// Update applies fn to the current value atomically and returns the result
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = fn(v.current)
	v.publish(v.current)
	return v.current
}

// Watch returns a channel that first yields the current value and then every
// later one. The channel is closed once ctx is done.
func (v *Value[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	ch <- v.current
	v.watchers[ch] = struct{}{}
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.watchers, ch)
		close(ch)
		v.mu.Unlock()
	}()

	return ch
}

// publish must be called with mu held
func (v *Value[T]) publish(next T) {
	for ch := range v.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
