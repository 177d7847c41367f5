package measure

import (
	"context"
	"sync"
)

// Signal is a level-triggered binary flag that goroutines can block on.
type Signal struct {
	mu  sync.Mutex
	set bool
	// ch is closed while the signal is set and replaced when it is cleared.
	ch chan struct{}
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set asserts the signal and wakes every waiter.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		s.set = true
		close(s.ch)
	}
}

// Clear deasserts the signal.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

// IsSet reports the current level.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.set
}

// C returns a channel that is closed at the next assertion, or already closed if
// the signal is set. A channel obtained before a Set/Clear pair stays closed, so
// a waiter that subscribed early cannot miss a short pulse.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ch
}

// Wait blocks until the signal is set or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
