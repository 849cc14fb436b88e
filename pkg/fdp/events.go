package fdp

import (
	"sort"
	"sync"
	"time"

	"fdp/pkg/types"
)

// EventType names a Layer 1 event exposed to the UI.
type EventType string

const (
	EventFocus               EventType = "focus"
	EventBlur                EventType = "blur"
	EventAnnouncementStart   EventType = "announcement-start"
	EventAnnouncementEnd     EventType = "announcement-end"
	EventWarning             EventType = "warning"
	EventSessionConnected    EventType = "session-connected"
	EventSessionDisconnected EventType = "session-disconnected"
)

type Event struct {
	Type     EventType
	At       time.Time
	Case     *CaseContext
	Duration time.Duration
	Warning  *types.SessionWarning
	Err      error
}

type Handler func(Event)

// Emitter fans events out to subscribers synchronously, in subscription
// order, on the emitting goroutine. No event is dropped.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType]map[int]Handler
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType]map[int]Handler)}
}

// On subscribes h to events of type t and returns the unsubscribe function.
func (e *Emitter) On(t EventType, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	if e.handlers[t] == nil {
		e.handlers[t] = make(map[int]Handler)
	}
	e.handlers[t][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers[t], id)
		})
	}
}

// Emit calls every handler for ev.Type. Handlers may subscribe or
// unsubscribe while running.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	ids := make([]int, 0, len(e.handlers[ev.Type]))
	for id := range e.handlers[ev.Type] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, e.handlers[ev.Type][id])
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
