package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components never touch the global Prometheus vectors directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Ad lifecycle metrics
	IncrementAdLoads(kind, outcome string)
	RecordAdLoadLatency(kind string, duration time.Duration)
	IncrementAdShows(kind, outcome string)
	IncrementAdRetries(kind string)
	AddSlotsReady(kind string, delta float64)

	// Analytics metrics
	IncrementAnalyticsErrors()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementAdLoads(kind, outcome string) {
	AdLoadCount.WithLabelValues(kind, outcome).Inc()
}

func (r *PrometheusRegistry) RecordAdLoadLatency(kind string, duration time.Duration) {
	AdLoadLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementAdShows(kind, outcome string) {
	AdShowCount.WithLabelValues(kind, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAdRetries(kind string) {
	AdRetryCount.WithLabelValues(kind).Inc()
}

func (r *PrometheusRegistry) AddSlotsReady(kind string, delta float64) {
	AdSlotsReady.WithLabelValues(kind).Add(delta)
}

func (r *PrometheusRegistry) IncrementAnalyticsErrors() {
	AnalyticsErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementAdLoads(kind, outcome string)                                {}
func (r *NoOpRegistry) RecordAdLoadLatency(kind string, duration time.Duration)              {}
func (r *NoOpRegistry) IncrementAdShows(kind, outcome string)                                {}
func (r *NoOpRegistry) IncrementAdRetries(kind string)                                       {}
func (r *NoOpRegistry) AddSlotsReady(kind string, delta float64)                             {}
func (r *NoOpRegistry) IncrementAnalyticsErrors()                                            {}
