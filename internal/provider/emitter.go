package provider

import "sync"

// Emitter is a listener registry that Instance implementations can embed.
type Emitter struct {
	mu       sync.Mutex
	nextID   int
	handlers map[EventType]map[int]Handler
}

// AddEventListener implements Instance.AddEventListener.
func (e *Emitter) AddEventListener(t EventType, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[EventType]map[int]Handler)
	}
	if e.handlers[t] == nil {
		e.handlers[t] = make(map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[t][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.handlers[t], id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers ev to every current listener of ev.Type. Handlers run
// outside the registry lock so they may unsubscribe themselves.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	hs := make([]Handler, 0, len(e.handlers[ev.Type]))
	for _, h := range e.handlers[ev.Type] {
		hs = append(hs, h)
	}
	e.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// ListenerCount returns the number of active listeners across all types.
func (e *Emitter) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, hs := range e.handlers {
		n += len(hs)
	}
	return n
}
