// Package api exposes the ad lifecycle manager over a small HTTP control
// surface used by the host shell and for local diagnostics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickwarner/adshell/internal/lifecycle"
	"github.com/patrickwarner/adshell/internal/middleware"
	"github.com/patrickwarner/adshell/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger  *zap.Logger
	Manager *lifecycle.Manager
	Metrics observability.MetricsRegistry
	// Ping checks backing stores for /health. Nil skips the check.
	Ping func(context.Context) error
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, manager *lifecycle.Manager, metrics observability.MetricsRegistry) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{Logger: logger, Manager: manager, Metrics: metrics}
}

// Routes builds the router with request logging and tracing applied.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(s.Logger))

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	ads := r.PathPrefix("/ads").Subrouter()
	ads.HandleFunc("/state", s.StateHandler).Methods(http.MethodGet)
	ads.HandleFunc("/preload", s.PreloadHandler).Methods(http.MethodPost)
	ads.HandleFunc("/interstitial/can-show", s.CanShowInterstitialHandler).Methods(http.MethodGet)
	ads.HandleFunc("/interstitial/{surface}/show", s.ShowInterstitialHandler).Methods(http.MethodPost)
	ads.HandleFunc("/rewarded/show", s.ShowRewardedHandler).Methods(http.MethodPost)
	ads.HandleFunc("/app-open/show", s.ShowAppOpenHandler).Methods(http.MethodPost)

	return otelhttp.NewHandler(r, "adshell")
}

func (s *Server) observe(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}
