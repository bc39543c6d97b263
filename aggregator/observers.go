package aggregator

import (
	"sync"

	"cognitive_backend/signals"
)

// SignalEvent is published to observers for every captured signal and for
// every idle transition found by the sweep.
type SignalEvent struct {
	SubjectID string         `json:"subject_id"`
	SessionID string         `json:"session_id"`
	Signal    signals.Signal `json:"signal"`
	State     CurrentState   `json:"state"`
}

type subscription struct {
	ch   chan SignalEvent
	once sync.Once
}

// Subscribe registers an observer. Events are delivered on the returned
// channel; when it is full the event is dropped for that observer and
// counted in DroppedEvents, so a slow observer never blocks ingestion.
//
// The returned cancel function unregisters the observer and closes the
// channel. It is safe to call more than once.
func (a *Aggregator) Subscribe(buffer int) (<-chan SignalEvent, func()) {
	if buffer <= 0 {
		buffer = a.Config().ObserverBuffer
	}
	sub := &subscription{ch: make(chan SignalEvent, buffer)}

	a.obsMu.Lock()
	id := a.nextObsID
	a.nextObsID++
	a.observers[id] = sub
	a.obsMu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			a.obsMu.Lock()
			delete(a.observers, id)
			a.obsMu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// DroppedEvents returns how many events were dropped because an observer's
// channel was full.
func (a *Aggregator) DroppedEvents() int64 {
	return a.dropped.Load()
}

// ObserverCount returns the number of registered observers.
func (a *Aggregator) ObserverCount() int {
	a.obsMu.RLock()
	defer a.obsMu.RUnlock()
	return len(a.observers)
}

func (a *Aggregator) publish(ev SignalEvent) {
	a.obsMu.RLock()
	defer a.obsMu.RUnlock()

	for _, sub := range a.observers {
		select {
		case sub.ch <- ev:
		default:
			a.dropped.Add(1)
		}
	}
}
