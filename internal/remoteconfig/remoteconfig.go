// Package remoteconfig exposes the remote-config parameters read by the ad
// lifecycle manager.
package remoteconfig

import (
	"strconv"
	"sync"

	"github.com/patrickwarner/adshell/internal/db"
	"go.uber.org/zap"
)

// Parameter keys.
const (
	KeyAnalyticsEnabled               = "is_analytics_enabled"
	KeyDistanceTimeToShowInterstitial = "distance_time_to_show_interstitial"
)

// RemoteConfig is the read-only view of remote parameters. Values are read
// fresh on every call; implementations may cache internally.
type RemoteConfig interface {
	IsAnalyticsEnabled() bool
	// DistanceTimeToShowInterstitial returns the interstitial cooldown as a
	// numeric string in seconds, or "" when unset.
	DistanceTimeToShowInterstitial() string
}

// Static is an in-process RemoteConfig, used when no remote source is
// configured and in tests.
type Static struct {
	mu        sync.RWMutex
	analytics bool
	distance  string
}

// NewStatic returns a Static config.
func NewStatic(analyticsEnabled bool, distance string) *Static {
	return &Static{analytics: analyticsEnabled, distance: distance}
}

func (s *Static) IsAnalyticsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analytics
}

func (s *Static) DistanceTimeToShowInterstitial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distance
}

// SetDistance replaces the cooldown value.
func (s *Static) SetDistance(v string) {
	s.mu.Lock()
	s.distance = v
	s.mu.Unlock()
}

// SetAnalyticsEnabled replaces the analytics flag.
func (s *Static) SetAnalyticsEnabled(v bool) {
	s.mu.Lock()
	s.analytics = v
	s.mu.Unlock()
}

// Redis reads parameters from the remote_config hash. Lookup failures fall
// back to the defaults so a Redis outage never blocks ad decisions.
type Redis struct {
	store    *db.RedisStore
	defaults *Static
	logger   *zap.Logger
}

// NewRedis returns a Redis-backed RemoteConfig.
func NewRedis(store *db.RedisStore, defaults *Static, logger *zap.Logger) *Redis {
	if defaults == nil {
		defaults = NewStatic(false, "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{store: store, defaults: defaults, logger: logger}
}

func (r *Redis) IsAnalyticsEnabled() bool {
	v, ok := r.lookup(KeyAnalyticsEnabled)
	if !ok {
		return r.defaults.IsAnalyticsEnabled()
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.logger.Warn("invalid remote config value", zap.String("key", KeyAnalyticsEnabled), zap.String("value", v))
		return r.defaults.IsAnalyticsEnabled()
	}
	return b
}

func (r *Redis) DistanceTimeToShowInterstitial() string {
	v, ok := r.lookup(KeyDistanceTimeToShowInterstitial)
	if !ok {
		return r.defaults.DistanceTimeToShowInterstitial()
	}
	return v
}

func (r *Redis) lookup(key string) (string, bool) {
	v, ok, err := r.store.RemoteConfigValue(key)
	if err != nil {
		r.logger.Warn("remote config lookup failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}
