// Package connectivity tells the sync layer whether the remote is reachable
// and when that changes.
package connectivity

import (
	"sync"
)

// Observer reports the current connectivity and notifies subscribers on
// every transition.
type Observer interface {
	Online() bool
	// Subscribe registers fn and returns a function that unregisters it.
	// Subscribers run in registration order on the goroutine that observed
	// the transition.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type subscriber struct {
	id int
	fn func(bool)
}

// subscribers is the listener list shared by the observers in this package.
type subscribers struct {
	mu   sync.Mutex
	seq  int
	list []subscriber
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	s.seq++
	id := s.seq
	s.list = append(s.list, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.list {
				if sub.id == id {
					s.list = append(s.list[:i:i], s.list[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *subscribers) notify(online bool) {
	s.mu.Lock()
	list := make([]subscriber, len(s.list))
	copy(list, s.list)
	s.mu.Unlock()

	for _, sub := range list {
		sub.fn(online)
	}
}

// Manual is an Observer whose state is set by hand: in tests and when the
// user forces offline mode.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   subscribers
}

var _ Observer = (*Manual)(nil)

func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set changes the state and notifies subscribers when it actually changed.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.subs.notify(online)
	}
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}
