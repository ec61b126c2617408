package syncer

import (
	"sync"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
)

// Status is the state of the sync engine.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// Event is delivered to status listeners.
//
// A pass emits syncing, then idle on success or error followed by idle on
// failure. While syncing, an event carrying Dropped reports a queued change
// that was discarded after exhausting its retries; Err is its last replay
// error.
type Event struct {
	Status  Status
	Err     error
	Dropped *models.PendingChange
}

type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

type listeners struct {
	mu   sync.Mutex
	seq  int
	list []listenerEntry
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	l.seq++
	id := l.seq
	l.list = append(l.list, listenerEntry{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, e := range l.list {
				if e.id == id {
					l.list = append(l.list[:i:i], l.list[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	list := make([]listenerEntry, len(l.list))
	copy(list, l.list)
	l.mu.Unlock()

	for _, e := range list {
		e.fn(ev)
	}
}
