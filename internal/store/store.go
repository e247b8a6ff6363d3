package store

import (
	"sync"
	"time"
)

// User is a room member.
type User struct {
	ID       string
	Username string
}

// Message is an immutable chat message.
type Message struct {
	ID         string
	Text       string
	AuthorID   string
	AuthorName string
	SentAt     time.Time
}

// Snapshot is a read-only view of the room. Slices are copies owned by the caller.
type Snapshot struct {
	Users    []User
	Messages []Message
	SelfID   string
}

// IsOwn reports whether m was sent by this client.
func (s Snapshot) IsOwn(m Message) bool {
	return s.SelfID != "" && m.AuthorID == s.SelfID
}

// Store holds the client-side view of room membership and history.
// It never fails: inputs are validated by the room adapter.
type Store struct {
	mu       sync.RWMutex
	users    []User
	messages []Message
	seen     map[string]struct{}
	selfID   string

	subMu     sync.Mutex
	listeners map[int]func(Snapshot)
	nextSub   int
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		seen:      make(map[string]struct{}),
		listeners: make(map[int]func(Snapshot)),
	}
}

// ApplyFullResync replaces membership, history and self id wholesale.
func (s *Store) ApplyFullResync(users []User, messages []Message, selfID string) {
	s.mu.Lock()
	s.users = uniqueUsers(users)
	s.seen = make(map[string]struct{}, len(messages))
	s.messages = make([]Message, 0, len(messages))
	for _, m := range messages {
		if _, dup := s.seen[m.ID]; dup {
			continue
		}
		s.seen[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
	s.selfID = selfID
	s.mu.Unlock()

	s.notify()
}

// ApplyUserJoined replaces membership with the list carried by the event.
func (s *Store) ApplyUserJoined(users []User) {
	s.replaceUsers(users)
}

// ApplyUserLeft replaces membership with the list carried by the event.
func (s *Store) ApplyUserLeft(users []User) {
	s.replaceUsers(users)
}

// ApplyMessage appends m unless a message with the same id was already applied.
// Returns true if the message was appended.
func (s *Store) ApplyMessage(m Message) bool {
	s.mu.Lock()
	if _, dup := s.seen[m.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.seen[m.ID] = struct{}{}
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	s.notify()
	return true
}

// Reset drops all state. Used when the local user leaves the room.
func (s *Store) Reset() {
	s.mu.Lock()
	s.users = nil
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.selfID = ""
	s.mu.Unlock()

	s.notify()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with a fresh snapshot after every change.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

func (s *Store) replaceUsers(users []User) {
	s.mu.Lock()
	s.users = uniqueUsers(users)
	s.mu.Unlock()

	s.notify()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{SelfID: s.selfID}
	if len(s.users) > 0 {
		snap.Users = append([]User(nil), s.users...)
	}
	if len(s.messages) > 0 {
		snap.Messages = append([]Message(nil), s.messages...)
	}
	return snap
}

func (s *Store) notify() {
	s.subMu.Lock()
	if len(s.listeners) == 0 {
		s.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// uniqueUsers copies users dropping repeated ids; the first occurrence wins.
func uniqueUsers(users []User) []User {
	if len(users) == 0 {
		return nil
	}
	out := make([]User, 0, len(users))
	ids := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, dup := ids[u.ID]; dup {
			continue
		}
		ids[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}
