package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickwarner/adshell/internal/lifecycle"
	"github.com/patrickwarner/adshell/internal/middleware"
	"github.com/patrickwarner/adshell/internal/models"
	"go.uber.org/zap"
)

// showResponse is the body of every show endpoint.
type showResponse struct {
	Outcome models.Outcome `json:"outcome"`
	Surface string         `json:"surface,omitempty"`
	UnitID  string         `json:"unit_id,omitempty"`
	Reward  *models.Reward `json:"reward,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// preferPreload reads the preload query parameter, defaulting to true.
func preferPreload(r *http.Request) bool {
	v := r.URL.Query().Get("preload")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// showStatus maps a show error to an HTTP status.
func showStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, lifecycle.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, lifecycle.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// StateHandler returns the manager snapshot.
func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, s.Manager.Snapshot())
	s.observe("ads_state", "GET", http.StatusOK, start)
}

// PreloadHandler warms every preload slot.
func (s *Server) PreloadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.Manager.PreloadAll()
	writeJSON(w, http.StatusAccepted, map[string]bool{"mock_mode": s.Manager.MockMode()})
	s.observe("ads_preload", "POST", http.StatusAccepted, start)
}

// CanShowInterstitialHandler reports whether the interstitial cooldown has
// elapsed.
func (s *Server) CanShowInterstitialHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"can_show":         s.Manager.CanShowInterstitial(),
		"cooldown_seconds": s.Manager.InterstitialCooldown().Seconds(),
	})
	s.observe("ads_can_show", "GET", http.StatusOK, start)
}

// ShowInterstitialHandler handles POST /ads/interstitial/{surface}/show. It
// returns once the show decision is made; close and error callbacks are
// logged.
func (s *Server) ShowInterstitialHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ads_interstitial_show"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	surface := mux.Vars(r)["surface"]
	unit, err := s.Manager.Units().Resolve(surface)
	if err != nil {
		logger.Warn("unknown surface", zap.String("surface", surface), zap.Error(err))
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown surface"})
		s.observe(endpoint, method, http.StatusNotFound, start)
		return
	}
	if unit.Kind != models.AdKindInterstitial {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "surface is not an interstitial"})
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}

	out, err := s.Manager.ShowInterstitial(unit.UnitID,
		func() { logger.Debug("interstitial closed", zap.String("surface", surface)) },
		func(err error) { logger.Warn("interstitial failed", zap.String("surface", surface), zap.Error(err)) },
		preferPreload(r))

	status := showStatus(err)
	resp := showResponse{Outcome: out, Surface: surface, UnitID: unit.UnitID}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
	s.observe(endpoint, method, status, start)
}

// ShowRewardedHandler handles POST /ads/rewarded/show. It blocks until the
// ad resolves or the request is cancelled.
func (s *Server) ShowRewardedHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ads_rewarded_show"
	const method = "POST"

	res, err := s.Manager.ShowRewarded(r.Context(), preferPreload(r))
	status := showStatus(err)
	resp := showResponse{Outcome: res.Outcome, Reward: res.Reward}
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("rewarded show failed", zap.Error(err))
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
	s.observe(endpoint, method, status, start)
}

// ShowAppOpenHandler handles POST /ads/app-open/show.
func (s *Server) ShowAppOpenHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ads_app_open_show"
	const method = "POST"

	out, err := s.Manager.ShowAppOpen(r.Context(), preferPreload(r))
	status := showStatus(err)
	resp := showResponse{Outcome: out}
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("app open show failed", zap.Error(err))
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
	s.observe(endpoint, method, status, start)
}
