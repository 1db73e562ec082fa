package lifecycle

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickwarner/adshell/internal/db"
	"github.com/patrickwarner/adshell/internal/models"
	"go.uber.org/zap"
)

// CooldownStore records the last successful show per ad kind.
type CooldownStore interface {
	LastShow(kind models.AdKind) (time.Time, bool)
	MarkShown(kind models.AdKind, at time.Time)
}

// ParseCooldown converts a remote-config cooldown, expressed in seconds, to a
// duration. Empty, non-numeric, negative and non-finite values yield def.
// Values too large for a Duration saturate at the longest one.
func ParseCooldown(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return def
	}
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}

// cooldownElapsed reports whether now-last >= cooldown. A kind that was
// never shown is always allowed.
func cooldownElapsed(store CooldownStore, kind models.AdKind, now time.Time, cooldown time.Duration) bool {
	last, ok := store.LastShow(kind)
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}

// MemoryCooldownStore keeps timestamps in process memory.
type MemoryCooldownStore struct {
	mu   sync.RWMutex
	last map[models.AdKind]time.Time
}

// NewMemoryCooldownStore returns an empty store.
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{last: make(map[models.AdKind]time.Time)}
}

func (s *MemoryCooldownStore) LastShow(kind models.AdKind) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[kind]
	return t, ok
}

func (s *MemoryCooldownStore) MarkShown(kind models.AdKind, at time.Time) {
	s.mu.Lock()
	s.last[kind] = at
	s.mu.Unlock()
}

// RedisCooldownStore persists timestamps to Redis so a cooldown survives a
// process restart. Writes go to memory first; Redis errors are logged and
// the in-memory value keeps the cooldown enforced.
type RedisCooldownStore struct {
	local  *MemoryCooldownStore
	store  *db.RedisStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCooldownStore returns a write-through store. ttl bounds how long
// timestamps are kept in Redis and should exceed the longest cooldown.
func NewRedisCooldownStore(store *db.RedisStore, ttl time.Duration, logger *zap.Logger) *RedisCooldownStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCooldownStore{local: NewMemoryCooldownStore(), store: store, ttl: ttl, logger: logger}
}

func (s *RedisCooldownStore) LastShow(kind models.AdKind) (time.Time, bool) {
	if t, ok := s.local.LastShow(kind); ok {
		return t, true
	}
	t, ok, err := s.store.LastShow(string(kind))
	if err != nil {
		s.logger.Warn("cooldown lookup failed", zap.String("kind", string(kind)), zap.Error(err))
		return time.Time{}, false
	}
	if ok {
		s.local.MarkShown(kind, t)
	}
	return t, ok
}

func (s *RedisCooldownStore) MarkShown(kind models.AdKind, at time.Time) {
	s.local.MarkShown(kind, at)
	if err := s.store.SetLastShow(string(kind), at, s.ttl); err != nil {
		s.logger.Warn("cooldown persist failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
