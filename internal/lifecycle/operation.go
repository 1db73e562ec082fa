package lifecycle

import (
	"sync"

	"github.com/patrickwarner/adshell/internal/provider"
)

// operation is one load or show attempt against a provider instance. It owns
// every listener registered for the attempt and releases all of them on the
// first terminal event. Events that arrive after that are dropped.
type operation struct {
	mu     sync.Mutex
	done   bool
	unsubs []func()
}

func newOperation() *operation {
	return &operation{}
}

// listen subscribes h to t on inst for the lifetime of the operation.
func (o *operation) listen(inst provider.Instance, t provider.EventType, h provider.Handler) {
	unsub := inst.AddEventListener(t, func(ev provider.Event) {
		if o.finished() {
			return
		}
		h(ev)
	})
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		unsub()
		return
	}
	o.unsubs = append(o.unsubs, unsub)
	o.mu.Unlock()
}

// finish completes the operation: it unsubscribes every listener, then runs
// fn. Only the first call has any effect; it reports whether it won.
func (o *operation) finish(fn func()) bool {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return false
	}
	o.done = true
	unsubs := o.unsubs
	o.unsubs = nil
	o.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if fn != nil {
		fn()
	}
	return true
}

func (o *operation) finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}
