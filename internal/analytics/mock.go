package analytics

import (
	"context"
	"sync"
)

var _ Recorder = (*MockRecorder)(nil)

// MockRecorder is an in-memory Recorder for testing.
type MockRecorder struct {
	mu     sync.Mutex
	events []AdEvent
	// Err, when set, is returned from every RecordAdEvent call.
	Err error
}

// NewMockRecorder creates a new mock recorder.
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{}
}

// RecordAdEvent stores the event (mock implementation).
func (m *MockRecorder) RecordAdEvent(ctx context.Context, ev AdEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockRecorder) Events() []AdEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AdEvent(nil), m.events...)
}

// Count returns the number of recorded events of the given type.
func (m *MockRecorder) Count(eventType string) int {
	n := 0
	for _, ev := range m.Events() {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}
