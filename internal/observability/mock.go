package observability

import (
	"sync"
	"time"
)

var _ MetricsRegistry = (*MockMetricsRegistry)(nil)

// MockMetricsRegistry counts calls so tests can assert on recorded metrics.
type MockMetricsRegistry struct {
	mu                  sync.Mutex
	Loads               map[string]int // "kind/outcome"
	Shows               map[string]int // "kind/outcome"
	Retries             map[string]int
	Ready               map[string]float64
	AnalyticsErrorCount int
}

// NewMockMetricsRegistry returns an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Loads:   make(map[string]int),
		Shows:   make(map[string]int),
		Retries: make(map[string]int),
		Ready:   make(map[string]float64),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) RecordAdLoadLatency(kind string, duration time.Duration)              {}

func (m *MockMetricsRegistry) IncrementAdLoads(kind, outcome string) {
	m.mu.Lock()
	m.Loads[kind+"/"+outcome]++
	m.mu.Unlock()
}

func (m *MockMetricsRegistry) IncrementAdShows(kind, outcome string) {
	m.mu.Lock()
	m.Shows[kind+"/"+outcome]++
	m.mu.Unlock()
}

func (m *MockMetricsRegistry) IncrementAdRetries(kind string) {
	m.mu.Lock()
	m.Retries[kind]++
	m.mu.Unlock()
}

func (m *MockMetricsRegistry) AddSlotsReady(kind string, delta float64) {
	m.mu.Lock()
	m.Ready[kind] += delta
	m.mu.Unlock()
}

func (m *MockMetricsRegistry) IncrementAnalyticsErrors() {
	m.mu.Lock()
	m.AnalyticsErrorCount++
	m.mu.Unlock()
}

// ShowCount returns the recorded show count for kind/outcome.
func (m *MockMetricsRegistry) ShowCount(kind, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Shows[kind+"/"+outcome]
}

// RetryCount returns the recorded retry count for kind.
func (m *MockMetricsRegistry) RetryCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Retries[kind]
}

// ReadyCount returns the current slot-ready gauge value for kind.
func (m *MockMetricsRegistry) ReadyCount(kind string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Ready[kind]
}
