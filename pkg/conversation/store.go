package conversation

import (
	"sync"
)

type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeAppended ChangeKind = "appended"
	ChangeCleared  ChangeKind = "cleared"
	ChangeSending  ChangeKind = "sending"
	ChangeDraft    ChangeKind = "draft"
)

// Snapshot is an immutable view of the store. Its Messages slice is never
// written after the snapshot was taken; callers must not write to it either.
type Snapshot struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	Sending        bool      `json:"sending"`
	Draft          string    `json:"draft"`
	Version        uint64    `json:"version"`
}

func (s Snapshot) Len() int {
	return len(s.Messages)
}

// Idle reports the empty-state condition: nothing to show and nothing pending.
func (s Snapshot) Idle() bool {
	return len(s.Messages) == 0 && !s.Sending
}

func (s Snapshot) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

type Change struct {
	Kind     ChangeKind
	Snapshot Snapshot
}

// Listener is called synchronously after every mutation, in mutation order.
// A listener may read the store but must not mutate it from within the call.
type Listener func(Change)

type listenerEntry struct {
	id int
	fn Listener
}

// Store holds the ordered messages of one conversation plus the transient
// session state (sending flag, draft text).
//
// Messages are only ever appended or truncated as a whole. Every mutation
// installs a fresh slice, so snapshots handed out earlier stay valid.
type Store struct {
	conversationID string

	mu        sync.Mutex
	messages  []Message
	sending   bool
	draft     string
	version   uint64
	closed    bool
	listeners []listenerEntry
	nextID    int

	// serializes listener delivery so changes arrive in version order
	notifyMu sync.Mutex
}

func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		messages:       []Message{},
	}
}

func (s *Store) ConversationID() string {
	return s.conversationID
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		ConversationID: s.conversationID,
		Messages:       s.messages,
		Sending:        s.sending,
		Draft:          s.draft,
		Version:        s.version,
	}
}

// Subscribe registers l and returns a function that removes it again.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || l == nil {
		return func() {}
	}

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// ReplaceAll overwrites the sequence. Session state is left alone.
func (s *Store) ReplaceAll(messages []Message) {
	s.update(func() []Change {
		next := make([]Message, len(messages))
		copy(next, messages)
		s.messages = next
		return s.changeLocked(ChangeReplaced)
	})
}

func (s *Store) Append(message Message) {
	s.update(func() []Change {
		s.appendLocked(message)
		return s.changeLocked(ChangeAppended)
	})
}

func (s *Store) Clear() {
	s.update(func() []Change {
		s.messages = []Message{}
		return s.changeLocked(ChangeCleared)
	})
}

func (s *Store) SetSending(sending bool) {
	s.update(func() []Change {
		if s.sending == sending {
			return nil
		}
		s.sending = sending
		return s.changeLocked(ChangeSending)
	})
}

func (s *Store) SetDraft(draft string) {
	s.update(func() []Change {
		if s.draft == draft {
			return nil
		}
		s.draft = draft
		return s.changeLocked(ChangeDraft)
	})
}

func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// BeginTurn starts a send round trip. If one is already outstanding it
// returns false and changes nothing. Otherwise it clears the draft, appends
// message and raises the sending flag, in that order, as three changes.
func (s *Store) BeginTurn(message Message) bool {
	started := false
	s.update(func() []Change {
		if s.sending {
			return nil
		}
		started = true

		changes := make([]Change, 0, 3)

		s.draft = ""
		changes = append(changes, s.changeLocked(ChangeDraft)...)

		s.appendLocked(message)
		changes = append(changes, s.changeLocked(ChangeAppended)...)

		s.sending = true
		changes = append(changes, s.changeLocked(ChangeSending)...)

		return changes
	})
	return started
}

// Close discards every later mutation and drops all listeners.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = nil
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) appendLocked(message Message) {
	next := make([]Message, len(s.messages), len(s.messages)+1)
	copy(next, s.messages)
	s.messages = append(next, message)
}

func (s *Store) changeLocked(kind ChangeKind) []Change {
	s.version++
	return []Change{{Kind: kind, Snapshot: s.snapshotLocked()}}
}

// update applies mutate under mu and hands the resulting changes to the
// listeners after mu is released. notifyMu is always taken before mu and held
// through delivery, so changes arrive in version order and listeners are free
// to read the store.
func (s *Store) update(mutate func() []Change) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changes := mutate()
	listeners := make([]Listener, len(s.listeners))
	for i, e := range s.listeners {
		listeners[i] = e.fn
	}
	s.mu.Unlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}
