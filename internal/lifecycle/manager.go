// Package lifecycle implements the ad lifecycle manager: per-slot preloading,
// cooldowns, show orchestration and the mock-ad fallback used when no ad
// provider is available.
//
// All state is owned by one Manager. Provider callbacks may arrive on any
// goroutine; state changes happen under the manager's mutex and caller
// callbacks always run with no lock held.
package lifecycle

import (
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickwarner/adshell/internal/analytics"
	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/observability"
	"github.com/patrickwarner/adshell/internal/provider"
	"github.com/patrickwarner/adshell/internal/remoteconfig"
	"github.com/patrickwarner/adshell/internal/vip"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options wires a Manager to its collaborators. Only Provider is allowed to
// be nil at runtime, which selects mock-ad mode; every other nil field gets
// an inert default.
type Options struct {
	// Provider must be a true nil interface (not a typed nil pointer) to
	// select mock mode.
	Provider     provider.Provider
	RemoteConfig remoteconfig.RemoteConfig
	VIP          vip.Status
	Analytics    analytics.Service
	Units        *models.UnitTable
	Metrics      observability.MetricsRegistry
	Logger       *zap.Logger
	Clock        Clock
	Cooldowns    CooldownStore
	Policy       Policy
}

type slotKey string

func keyFor(unit models.AdUnit) slotKey {
	if unit.Kind == models.AdKindInterstitial {
		return slotKey(string(unit.Kind) + ":" + unit.UnitID)
	}
	return slotKey(unit.Kind)
}

// slot is a PreloadSlot plus its loading flag and retry state.
type slot struct {
	unit         models.AdUnit
	loading      bool
	ready        provider.Instance
	loadStarted  time.Time
	retryPending bool
	backoff      backoff.BackOff
}

// Manager owns every preload slot, cooldown timestamp and loading flag.
type Manager struct {
	provider  provider.Provider
	remote    remoteconfig.RemoteConfig
	vip       vip.Status
	analytics analytics.Service
	units     *models.UnitTable
	metrics   observability.MetricsRegistry
	logger    *zap.Logger
	clock     Clock
	cooldowns CooldownStore
	policy    Policy
	tracer    trace.Tracer

	mu          sync.Mutex
	initialized bool
	closed      bool
	slots       map[slotKey]*slot
	appOpenBusy bool

	timerMu   sync.Mutex
	timers    map[uint64]pendingTimer
	nextTimer uint64
	stopped   bool
}

// pendingTimer is an armed timer plus the hook to run if Close cancels it.
type pendingTimer struct {
	timer  Timer
	onStop func()
}

// NewManager constructs a Manager. The decision between the real provider
// and mock mode is made here, once.
func NewManager(opts Options) *Manager {
	m := &Manager{
		provider:  opts.Provider,
		remote:    opts.RemoteConfig,
		vip:       opts.VIP,
		analytics: opts.Analytics,
		units:     opts.Units,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		clock:     opts.Clock,
		cooldowns: opts.Cooldowns,
		policy:    opts.Policy.withDefaults(),
		tracer:    otel.Tracer("adshell/lifecycle"),
		slots:     make(map[slotKey]*slot),
		timers:    make(map[uint64]pendingTimer),
	}
	if m.remote == nil {
		m.remote = remoteconfig.NewStatic(false, "")
	}
	if m.vip == nil {
		m.vip = vip.NewStatic(false)
	}
	if m.analytics == nil {
		m.analytics = analytics.Nop{}
	}
	if m.units == nil {
		m.units = models.NewUnitTable(models.EnvironmentTest)
	}
	if m.metrics == nil {
		m.metrics = observability.NewNoOpRegistry()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.clock == nil {
		m.clock = RealClock{}
	}
	if m.cooldowns == nil {
		m.cooldowns = NewMemoryCooldownStore()
	}
	return m
}

// Initialize marks the manager ready. With a provider it warms every preload
// slot in the background; without one it reports ready in mock mode. It
// never fails: ads are not allowed to block application startup.
func (m *Manager) Initialize() bool {
	m.mu.Lock()
	already := m.initialized
	m.initialized = true
	m.mu.Unlock()
	if already {
		return true
	}

	if m.provider == nil {
		m.logger.Info("ad provider unavailable, serving mock ads")
		return true
	}
	m.logger.Info("ad manager initialized", zap.String("environment", string(m.units.Environment())))
	go m.PreloadAll()
	return true
}

// MockMode reports whether the manager runs without an ad provider.
func (m *Manager) MockMode() bool {
	return m.provider == nil
}

// Units returns the unit table the manager resolves surfaces against.
func (m *Manager) Units() *models.UnitTable {
	return m.units
}

// Close stops pending retries and mock timers, drops ready instances and
// ignores every provider callback that arrives afterwards. Mock shows cut
// short by Close still complete their caller callbacks.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, s := range m.slots {
		if s.ready != nil {
			m.metrics.AddSlotsReady(string(s.unit.Kind), -1)
			s.ready = nil
		}
	}
	m.mu.Unlock()

	m.timerMu.Lock()
	m.stopped = true
	var hooks []func()
	for id, pt := range m.timers {
		pt.timer.Stop()
		if pt.onStop != nil {
			hooks = append(hooks, pt.onStop)
		}
		delete(m.timers, id)
	}
	m.timerMu.Unlock()

	for _, h := range hooks {
		h()
	}
}

// schedule runs fn after d. If the manager is closed first, fn never runs
// and onStop, when non-nil, runs instead; exactly one of them runs.
func (m *Manager) schedule(d time.Duration, fn, onStop func()) {
	m.timerMu.Lock()
	if m.stopped {
		m.timerMu.Unlock()
		if onStop != nil {
			onStop()
		}
		return
	}
	id := m.nextTimer
	m.nextTimer++
	t := m.clock.AfterFunc(d, func() {
		m.timerMu.Lock()
		_, live := m.timers[id]
		delete(m.timers, id)
		m.timerMu.Unlock()
		if live {
			fn()
		}
	})
	m.timers[id] = pendingTimer{timer: t, onStop: onStop}
	m.timerMu.Unlock()
}

func (m *Manager) isVIP() bool {
	return m.vip.CheckVipStatus()
}

func (m *Manager) isInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized && !m.closed
}

// slotLocked returns the slot for unit, creating it on first use. m.mu must
// be held.
func (m *Manager) slotLocked(unit models.AdUnit) *slot {
	key := keyFor(unit)
	s, ok := m.slots[key]
	if !ok {
		s = &slot{unit: unit, backoff: m.policy.newBackOff(unit.Kind)}
		m.slots[key] = s
	}
	return s
}

// interstitialUnit resolves a unit id to its table entry, or builds an ad
// hoc unit for ids not in the table.
func (m *Manager) interstitialUnit(unitID string) models.AdUnit {
	if u, ok := m.units.ByUnitID(models.AdKindInterstitial, unitID); ok {
		return u
	}
	return models.AdUnit{Kind: models.AdKindInterstitial, UnitID: unitID, Environment: m.units.Environment()}
}

// SlotState is the diagnostic view of one preload slot.
type SlotState struct {
	Key          string        `json:"key"`
	Kind         models.AdKind `json:"kind"`
	UnitID       string        `json:"unit_id"`
	Surface      string        `json:"surface,omitempty"`
	State        string        `json:"state"`
	RetryPending bool          `json:"retry_pending"`
}

// Snapshot is a point-in-time copy of manager state.
type Snapshot struct {
	Initialized         bool                        `json:"initialized"`
	MockMode            bool                        `json:"mock_mode"`
	Closed              bool                        `json:"closed"`
	AppOpenInProgress   bool                        `json:"app_open_in_progress"`
	CanShowInterstitial bool                        `json:"can_show_interstitial"`
	LastShown           map[models.AdKind]time.Time `json:"last_shown"`
	Slots               []SlotState                 `json:"slots"`
}

// Snapshot returns the current state for diagnostics.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{
		MockMode:            m.MockMode(),
		CanShowInterstitial: m.CanShowInterstitial(),
		LastShown:           make(map[models.AdKind]time.Time),
	}
	for _, k := range []models.AdKind{models.AdKindInterstitial, models.AdKindRewarded, models.AdKindAppOpen} {
		if t, ok := m.cooldowns.LastShow(k); ok {
			snap.LastShown[k] = t
		}
	}

	m.mu.Lock()
	snap.Initialized = m.initialized
	snap.Closed = m.closed
	snap.AppOpenInProgress = m.appOpenBusy
	for key, s := range m.slots {
		state := "empty"
		switch {
		case s.ready != nil:
			state = "ready"
		case s.loading:
			state = "loading"
		}
		snap.Slots = append(snap.Slots, SlotState{
			Key:          string(key),
			Kind:         s.unit.Kind,
			UnitID:       s.unit.UnitID,
			Surface:      s.unit.Surface,
			State:        state,
			RetryPending: s.retryPending,
		})
	}
	m.mu.Unlock()

	sort.Slice(snap.Slots, func(i, j int) bool { return snap.Slots[i].Key < snap.Slots[j].Key })
	return snap
}
