package mission

import (
	"sync"
)

// Slot owns at most one mission on behalf of a driver.
//
// Cancellation is replacement: Replace drops the current mission
// without asking it to finish.  Step holds the Slot's lock only for
// the duration of one mission step, so a Slot can be shared between
// goroutines.
type Slot[W any] struct {
	sync.Mutex

	m    Mission[W, interface{}]
	last Result[interface{}]
}

func NewSlot[W any]() *Slot[W] {
	return &Slot[W]{}
}

// Replace installs m (which can be nil) and returns the previous
// mission, if any.
func (s *Slot[W]) Replace(m Mission[W, interface{}]) Mission[W, interface{}] {
	s.Lock()
	defer s.Unlock()
	old := s.m
	s.m = m
	s.last = Result[interface{}]{}
	return old
}

// Take removes and returns the current mission.
func (s *Slot[W]) Take() Mission[W, interface{}] {
	return s.Replace(nil)
}

// Busy reports whether the Slot holds a mission.
func (s *Slot[W]) Busy() bool {
	s.Lock()
	defer s.Unlock()
	return s.m != nil
}

// Peek calls f with the current mission, which can be nil, while
// holding the Slot's lock.
func (s *Slot[W]) Peek(f func(m Mission[W, interface{}])) {
	s.Lock()
	defer s.Unlock()
	f(s.m)
}

// Last returns the result of the most recent Step.
func (s *Slot[W]) Last() Result[interface{}] {
	s.Lock()
	defer s.Unlock()
	return s.last
}

// Step steps the current mission once.
//
// A mission that reports a terminal status is discarded.  An empty
// Slot reports Outdated and ok is false.
func (s *Slot[W]) Step(w W, out *Outbox) (r Result[interface{}], ok bool) {
	s.Lock()
	defer s.Unlock()
	if s.m == nil {
		return Stale[interface{}](), false
	}
	r = s.m.Step(w, out)
	s.last = r
	if r.Status.Terminal() {
		s.m = nil
	}
	return r, true
}
