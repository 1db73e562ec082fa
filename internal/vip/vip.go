// Package vip exposes the user's ad-free entitlement.
package vip

import (
	"sync/atomic"

	"github.com/patrickwarner/adshell/internal/db"
	"go.uber.org/zap"
)

// Status reports whether the current user is exempt from ads.
type Status interface {
	CheckVipStatus() bool
}

// Static is a settable in-process Status.
type Static struct {
	vip atomic.Bool
}

// NewStatic returns a Static status.
func NewStatic(vip bool) *Static {
	s := &Static{}
	s.vip.Store(vip)
	return s
}

func (s *Static) CheckVipStatus() bool { return s.vip.Load() }

// Set updates the status, e.g. after a purchase is restored.
func (s *Static) Set(vip bool) { s.vip.Store(vip) }

// Redis reads the entitlement for a single user from Redis. Errors are
// treated as "not VIP": a paying user may briefly see an ad during an
// outage, but ad delivery never stalls.
type Redis struct {
	store  *db.RedisStore
	userID string
	logger *zap.Logger
}

// NewRedis returns a Redis-backed Status for userID.
func NewRedis(store *db.RedisStore, userID string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{store: store, userID: userID, logger: logger}
}

func (r *Redis) CheckVipStatus() bool {
	vip, err := r.store.IsVIP(r.userID)
	if err != nil {
		r.logger.Warn("vip lookup failed", zap.String("user_id", r.userID), zap.Error(err))
		return false
	}
	return vip
}
