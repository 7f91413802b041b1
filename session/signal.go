// Package session orchestrates the OAuth packages into a small sign-in state
// machine and broadcasts a live signed-in signal to any number of observers.
package session

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-uuid"
)

// Signal is a broadcast value cell with replay-latest semantics: a new
// subscriber immediately receives the current value, and every subsequent
// change is delivered to all subscribers. Delivery conflates to the latest
// value, so a slow subscriber observes the newest state rather than a
// backlog of stale transitions. Setting the current value again is a no-op.
//
// A Signal is safe for concurrent use by any number of setters and
// subscribers.
type Signal[T comparable] struct {
	mu      sync.Mutex
	current T
	subs    map[string]chan T
}

// NewSignal creates a Signal holding the initial value.
func NewSignal[T comparable](initial T) *Signal[T] {
	return &Signal[T]{
		current: initial,
		subs:    make(map[string]chan T),
	}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set updates the current value and broadcasts it to all subscribers when it
// changed.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == s.current {
		return
	}
	s.current = v
	for _, ch := range s.subs {
		deliverLatest(ch, v)
	}
}

// Subscribe registers a new observer and returns its subscription id and
// channel. The channel is primed with the current value. The caller must
// Unsubscribe with the returned id when done.
func (s *Signal[T]) Subscribe() (string, <-chan T, error) {
	const op = "session.Signal.Subscribe"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", nil, fmt.Errorf("%s: unable to generate subscription id: %w", op, err)
	}
	ch := make(chan T, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch <- s.current
	s.subs[id] = ch
	return id, ch, nil
}

// Unsubscribe removes the observer and closes its channel. Unknown ids are
// ignored.
func (s *Signal[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// deliverLatest replaces any undelivered value with v, so a subscriber who
// hasn't drained its channel still sees the newest state.
func deliverLatest[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
