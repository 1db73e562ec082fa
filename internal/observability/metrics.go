package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total control API requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adshell_requests_total",
			Help: "Total control API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adshell_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// ad load attempts labelled by kind and outcome (loaded, error, skipped)
	AdLoadCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adshell_ad_loads_total",
			Help: "Total ad load attempts",
		},
		[]string{"kind", "outcome"},
	)

	// ad show attempts labelled by kind and outcome
	AdShowCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adshell_ad_shows_total",
			Help: "Total ad show attempts",
		},
		[]string{"kind", "outcome"},
	)

	// retry preloads scheduled after a load or show failure
	AdRetryCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adshell_ad_retries_total",
			Help: "Total preload retries scheduled",
		},
		[]string{"kind"},
	)

	// number of preload slots currently holding a ready ad
	AdSlotsReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adshell_ad_slots_ready",
			Help: "Preload slots holding a ready ad",
		},
		[]string{"kind"},
	)

	// time from load request to loaded/error
	AdLoadLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adshell_ad_load_duration_seconds",
			Help:    "Histogram of ad load latencies",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	// analytics events dropped because the sink failed
	AnalyticsErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adshell_analytics_errors_total",
			Help: "Total analytics events that failed to record",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		AdLoadCount,
		AdShowCount,
		AdRetryCount,
		AdSlotsReady,
		AdLoadLatency,
		AnalyticsErrors,
	)
}
