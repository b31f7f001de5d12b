// Package store holds the single in-memory ChatState of a session.
//
// Every write builds a new snapshot from the current one and swaps it in
// under one lock, so readers see the state either before or after a
// mutation and never in between. Slices and maps inside a published
// snapshot are never modified again; writers copy what they change.
package store

import (
	"sort"
	"sync"

	"majlis-chat/internal/domain"
)

type Observer func(domain.ChatState)

// Store is either the session's store or a view of it returned by Pin.
// Both share one state; a view refuses writes once the store was reset
// after the view was taken.
type Store struct {
	*core
	pin uint64
}

type core struct {
	mu         sync.Mutex
	state      domain.ChatState
	observers  map[int]Observer
	nextID     int
	queue      []domain.ChatState
	delivering bool
	generation uint64
}

func New() *Store {
	return &Store{core: &core{state: domain.EmptyState(), observers: map[int]Observer{}, generation: 1}}
}

// Pin returns a view whose writes are dropped after the next Reset. Calls
// that outlive a teardown use it to keep late results out of the new state.
func (s *Store) Pin() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Store{core: s.core, pin: s.generation}
}

// Stale reports whether the store was reset since this view was pinned.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale()
}

func (s *Store) stale() bool {
	return s.pin != 0 && s.pin != s.generation
}

func (s *Store) Snapshot() domain.ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every snapshot published after a mutation, in
// mutation order. Observers may call back into the store.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// update runs fn against a shallow copy of the state and publishes it when
// fn reports a change.
func (s *Store) update(fn func(next *domain.ChatState) bool) bool {
	s.mu.Lock()
	if s.stale() {
		s.mu.Unlock()
		return false
	}
	next := s.state
	if !fn(&next) {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.queue = append(s.queue, next)
	if s.delivering {
		s.mu.Unlock()
		return true
	}
	s.delivering = true
	for len(s.queue) > 0 {
		batch := s.queue
		s.queue = nil
		observers := make([]Observer, 0, len(s.observers))
		ids := make([]int, 0, len(s.observers))
		for id := range s.observers {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			observers = append(observers, s.observers[id])
		}
		s.mu.Unlock()
		for _, snap := range batch {
			for _, o := range observers {
				o(snap)
			}
		}
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
	return true
}

func (s *Store) Rooms() []domain.Room {
	return s.Snapshot().Rooms
}

func (s *Store) Messages(roomID int64) []domain.Message {
	return s.Snapshot().Messages[roomID]
}

func (s *Store) TypingUsers(roomID int64) []domain.User {
	return s.Snapshot().TypingUsers[roomID]
}

func (s *Store) CurrentRoom() *domain.Room {
	return s.Snapshot().CurrentRoom
}

// Reset empties the state and invalidates every pinned view.
func (s *Store) Reset() {
	s.update(func(next *domain.ChatState) bool {
		s.generation++
		*next = domain.EmptyState()
		return true
	})
}

// Restore seeds rooms and messages from a cached snapshot. Live state that
// already exists wins over cached entries.
func (s *Store) Restore(rooms []domain.Room, messages map[int64][]domain.Message) {
	s.update(func(next *domain.ChatState) bool {
		changed := false
		if len(next.Rooms) == 0 && len(rooms) > 0 {
			next.Rooms = append([]domain.Room(nil), rooms...)
			changed = true
		}
		merged := cloneMessages(next.Messages)
		for roomID, list := range messages {
			if len(merged[roomID]) > 0 || len(list) == 0 {
				continue
			}
			merged[roomID] = append([]domain.Message(nil), list...)
			changed = true
		}
		if changed {
			next.Messages = merged
		}
		return changed
	})
}

func cloneMessages(m map[int64][]domain.Message) map[int64][]domain.Message {
	out := make(map[int64][]domain.Message, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTyping(m map[int64][]domain.User) map[int64][]domain.User {
	out := make(map[int64][]domain.User, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
