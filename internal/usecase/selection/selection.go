// Package selection tracks which single record, if any, is open in the detail view.
package selection

import (
	"sync"

	"gallery-feed/internal/domain/entity"
)

// Change describes one transition of a State.
// Previous and Current are record IDs; an empty ID means nothing is selected.
type Change struct {
	Previous string
	Current  string
}

// Opened reports whether the detail view is open after the change.
func (c Change) Opened() bool {
	return c.Current != ""
}

// State holds at most one selected record ID. The detail view is open exactly
// when a record is selected. The zero value is not usable; call New.
type State struct {
	mu        sync.Mutex
	selected  string
	listeners map[int]func(Change)
	nextID    int
}

// New returns a State with nothing selected.
func New() *State {
	return &State{listeners: make(map[int]func(Change))}
}

// Select makes id the selection and opens the detail view, replacing any
// previous selection in one step. It returns false, and does nothing, when id
// is empty or already selected.
func (s *State) Select(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	if s.selected == id {
		s.mu.Unlock()
		return false
	}
	ch := Change{Previous: s.selected, Current: id}
	s.selected = id
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, ch)
	return true
}

// Clear unsets the selection and closes the detail view.
// It returns false when nothing was selected.
func (s *State) Clear() bool {
	s.mu.Lock()
	if s.selected == "" {
		s.mu.Unlock()
		return false
	}
	ch := Change{Previous: s.selected}
	s.selected = ""
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, ch)
	return true
}

// Selected returns the selected record ID.
func (s *State) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != ""
}

// IsOpen reports whether the detail view is open.
func (s *State) IsOpen() bool {
	_, ok := s.Selected()
	return ok
}

// Resolve finds the selected record in records.
func (s *State) Resolve(records []entity.Record) (entity.Record, bool) {
	id, ok := s.Selected()
	if !ok {
		return entity.Record{}, false
	}
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return entity.Record{}, false
}

// Subscribe registers fn for every change and returns a function removing it.
func (s *State) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *State) listenersLocked() []func(Change) {
	out := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(Change), ch Change) {
	for _, fn := range listeners {
		fn(ch)
	}
}
