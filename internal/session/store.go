package session

import (
	"errors"
	"sync"
)

var (
	// ErrBusy is returned when a reply is still loading. Nothing may be
	// appended until the placeholder settles.
	ErrBusy = errors.New("a reply is still loading")
	// ErrInvalidBatch is returned for a batch whose loading message is not last
	// or that carries more than one loading message.
	ErrInvalidBatch = errors.New("only the last message of a batch may be loading")
)

// Snapshot is an immutable copy of the store state.
type Snapshot struct {
	Version        uint64
	Messages       []Message
	Projects       []Project
	CurrentProject *Project
	Files          []string
}

// Loading reports whether the last message is waiting for its reply.
func (s Snapshot) Loading() bool {
	return len(s.Messages) > 0 && s.Messages[len(s.Messages)-1].Loading()
}

// LastMessage returns the last transcript entry, if any.
func (s Snapshot) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Version: s.Version}
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	out.Projects = append([]Project{}, s.Projects...)
	out.Files = append([]string{}, s.Files...)
	if s.CurrentProject != nil {
		p := *s.CurrentProject
		out.CurrentProject = &p
	}
	return out
}

// Store is the single source of truth for the chat screen. All mutations go
// through its methods; subscribers are told about every change in the
// order the changes were made.
//
// Subscribers run synchronously on the mutating goroutine and must not call
// back into the store's mutators.
type Store struct {
	notifyMu sync.Mutex // serializes mutate+notify so subscribers see ordered versions
	mu       sync.RWMutex
	state    Snapshot
	subs     map[int]func(Snapshot)
	nextSub  int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Snapshot))}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Loading reports whether a reply is outstanding.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading()
}

// CurrentProject returns the selected project or nil.
func (s *Store) CurrentProject() *Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.CurrentProject == nil {
		return nil
	}
	p := *s.state.CurrentProject
	return &p
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// mutate applies fn under the write lock and, when fn reports a change,
// bumps the version and notifies subscribers.
func (s *Store) mutate(fn func(st *Snapshot) (bool, error)) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed, err := fn(&s.state)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	s.state.Version++
	snap := s.state.clone()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return nil
}

// AppendMessages appends a batch in order. It refuses (ErrBusy) while the
// last message is loading, and a batch may only end with a loading message.
func (s *Store) AppendMessages(batch ...Message) error {
	for i, m := range batch {
		if m.Loading() && i != len(batch)-1 {
			return ErrInvalidBatch
		}
	}
	return s.mutate(func(st *Snapshot) (bool, error) {
		if len(batch) == 0 {
			return false, nil
		}
		if st.Loading() {
			return false, ErrBusy
		}
		for _, m := range batch {
			st.Messages = append(st.Messages, m.clone())
		}
		return true, nil
	})
}

// BeginExchange appends a user message followed by a loading placeholder.
// It fails with ErrBusy when another reply is still outstanding.
func (s *Store) BeginExchange(user Message) (Message, error) {
	placeholder := Placeholder()
	if err := s.AppendMessages(user, placeholder); err != nil {
		return Message{}, err
	}
	return placeholder, nil
}

// UpdateLastMessage applies p to the last message. It reports false when
// the transcript is empty.
func (s *Store) UpdateLastMessage(p Patch) bool {
	updated := false
	_ = s.mutate(func(st *Snapshot) (bool, error) {
		if len(st.Messages) == 0 {
			return false, nil
		}
		p.apply(&st.Messages[len(st.Messages)-1])
		updated = true
		return true, nil
	})
	return updated
}

// UpdateMessage applies p to the message with the given ID. It reports
// false when no such message is in the transcript, for example after a
// clear.
func (s *Store) UpdateMessage(id string, p Patch) bool {
	updated := false
	_ = s.mutate(func(st *Snapshot) (bool, error) {
		for i := len(st.Messages) - 1; i >= 0; i-- {
			if st.Messages[i].ID == id {
				p.apply(&st.Messages[i])
				updated = true
				return true, nil
			}
		}
		return false, nil
	})
	return updated
}

// ClearMessages empties the transcript unless a reply is outstanding.
func (s *Store) ClearMessages() error {
	return s.mutate(func(st *Snapshot) (bool, error) {
		if st.Loading() {
			return false, ErrBusy
		}
		if len(st.Messages) == 0 {
			return false, nil
		}
		st.Messages = nil
		return true, nil
	})
}

// SetProjects replaces the project list.
func (s *Store) SetProjects(projects []Project) {
	_ = s.mutate(func(st *Snapshot) (bool, error) {
		st.Projects = append([]Project{}, projects...)
		return true, nil
	})
}

// AddProject appends p unless a project with the same value exists. It
// reports whether the list changed.
func (s *Store) AddProject(p Project) bool {
	added := false
	_ = s.mutate(func(st *Snapshot) (bool, error) {
		for _, existing := range st.Projects {
			if existing.Value == p.Value {
				return false, nil
			}
		}
		st.Projects = append(st.Projects, p)
		added = true
		return true, nil
	})
	return added
}

// SetCurrentProject selects p (nil clears the selection). It reports false
// when the selection did not change.
func (s *Store) SetCurrentProject(p *Project) bool {
	changed := false
	_ = s.mutate(func(st *Snapshot) (bool, error) {
		if sameProject(st.CurrentProject, p) {
			return false, nil
		}
		if p == nil {
			st.CurrentProject = nil
		} else {
			cp := *p
			st.CurrentProject = &cp
		}
		changed = true
		return true, nil
	})
	return changed
}

// SetFiles replaces the file list.
func (s *Store) SetFiles(files []string) {
	_ = s.mutate(func(st *Snapshot) (bool, error) {
		st.Files = append([]string{}, files...)
		return true, nil
	})
}

func sameProject(a, b *Project) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Value == b.Value
}
