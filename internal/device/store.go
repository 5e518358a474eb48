package device

import (
	"context"
	"sync"
)

// Store owns the single live State. Mutations go through Update, which
// publishes the new state to subscribers in mutation order. The state lock is
// never held while publishing.
type Store struct {
	// publishMu serializes update-and-publish steps so subscribers see
	// states in the order they were produced.
	publishMu sync.Mutex

	mu    sync.Mutex
	state State

	subsMu sync.Mutex
	subs   map[*subscriber]struct{}
}

type subscriber struct {
	ctx context.Context
	ch  chan State
}

// NewStore returns a Store holding the zero State (disconnected, nothing known).
func NewStore() *Store {
	return &Store{subs: make(map[*subscriber]struct{})}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update runs fn against the state under the lock. If fn reports a change,
// the resulting state is published. Update blocks until every subscriber has
// accepted the state or gone away.
func (s *Store) Update(fn func(*State) bool) (State, bool) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	changed := fn(&s.state)
	snap := s.state
	s.mu.Unlock()

	if changed {
		s.publish(snap)
	}
	return snap, changed
}

// SetConnected updates the connected flag and always publishes, so observers
// see every connect and disconnect transition.
func (s *Store) SetConnected(connected bool) State {
	snap, _ := s.Update(func(st *State) bool {
		st.Connected = connected
		return true
	})
	return snap
}

// Subscribe returns a channel receiving every published state until ctx is
// done, after which the channel is closed. buffer sets how many states may be
// queued before publishing blocks.
func (s *Store) Subscribe(ctx context.Context, buffer int) <-chan State {
	if buffer < 0 {
		buffer = 0
	}
	sub := &subscriber{ctx: ctx, ch: make(chan State, buffer)}

	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		s.removeLocked(sub)
		s.subsMu.Unlock()
	}()
	return sub.ch
}

func (s *Store) publish(st State) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- st:
		case <-sub.ctx.Done():
			s.removeLocked(sub)
		}
	}
}

// removeLocked drops sub and closes its channel. Caller must hold subsMu.
func (s *Store) removeLocked(sub *subscriber) {
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
}
