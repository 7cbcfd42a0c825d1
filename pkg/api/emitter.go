package api

import "sync"

// Event names emitted during an Api's life.
type Event string

const (
	EventClone      Event = "clone"
	EventHookAppend Event = "hookAppend"
	EventHookRemove Event = "hookRemove"
	EventRequest    Event = "request"
	EventResponse   Event = "response"
	EventFetchStart Event = "fetchStart"
	EventFetchEnd   Event = "fetchEnd"
)

type listener struct {
	id uint64
	fn func(any)
}

// Emitter dispatches events to listeners. Every clone of an Api shares
// the emitter of the instance it was cloned from.
//
// Listeners run synchronously, in registration order, on the emitting
// goroutine. A listener must not block.
type Emitter struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[Event][]listener
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[Event][]listener)}
}

// On registers fn for ev and returns a function that removes it.
func (e *Emitter) On(ev Event, fn func(any)) (off func()) {
	e.mu.Lock()
	e.seq++
	id := e.seq
	e.listeners[ev] = append(e.listeners[ev], listener{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(ev, id) })
	}
}

// Emit calls every listener of ev with arg. It is a no-op on a nil emitter.
func (e *Emitter) Emit(ev Event, arg any) {
	if e == nil {
		return
	}

	e.mu.RLock()
	ls := make([]listener, len(e.listeners[ev]))
	copy(ls, e.listeners[ev])
	e.mu.RUnlock()

	for _, l := range ls {
		l.fn(arg)
	}
}

// ListenerCount returns the number of listeners registered for ev.
func (e *Emitter) ListenerCount(ev Event) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[ev])
}

func (e *Emitter) remove(ev Event, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[ev]
	for i, l := range ls {
		if l.id == id {
			e.listeners[ev] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(e.listeners[ev]) == 0 {
		delete(e.listeners, ev)
	}
}
