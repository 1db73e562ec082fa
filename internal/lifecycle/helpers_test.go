package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/patrickwarner/adshell/internal/analytics"
	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/observability"
	"github.com/patrickwarner/adshell/internal/provider"
	"github.com/patrickwarner/adshell/internal/remoteconfig"
	"github.com/patrickwarner/adshell/internal/vip"
	"go.uber.org/zap/zaptest"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order. Timers armed by
// fired callbacks also fire if they fall inside the window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.fn()
	}
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

const (
	unitX       = "unit-x"
	unitY       = "unit-y"
	rewardedID  = "rewarded-1"
	appOpenID   = "app-open-1"
	waitTimeout = time.Second
	waitTick    = 5 * time.Millisecond
)

func testUnits() *models.UnitTable {
	return models.NewCustomUnitTable(models.EnvironmentTest, []models.AdUnit{
		{Surface: models.SurfaceInterstitialExportTrim, Kind: models.AdKindInterstitial, UnitID: unitX},
		{Surface: models.SurfaceInterstitialSaveVideo, Kind: models.AdKindInterstitial, UnitID: unitY},
		{Surface: models.SurfaceRewardedUnlock, Kind: models.AdKindRewarded, UnitID: rewardedID},
		{Surface: models.SurfaceAppOpenResume, Kind: models.AdKindAppOpen, UnitID: appOpenID},
	})
}

type harness struct {
	m         *Manager
	clock     *fakeClock
	provider  *provider.FakeProvider
	vip       *vip.Static
	remote    *remoteconfig.Static
	metrics   *observability.MockMetricsRegistry
	analytics *analytics.MockRecorder
	events    *analytics.Logger
}

type harnessOption func(*Options)

func withoutProvider() harnessOption {
	return func(o *Options) { o.Provider = nil }
}

func withPolicy(p Policy) harnessOption {
	return func(o *Options) { o.Policy = p }
}

// newHarness builds an initialized manager without the background warm-up so
// tests control every provider call.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(),
		provider:  provider.NewFakeProvider(),
		vip:       vip.NewStatic(false),
		remote:    remoteconfig.NewStatic(true, "60"),
		metrics:   observability.NewMockMetricsRegistry(),
		analytics: analytics.NewMockRecorder(),
	}
	logger := zaptest.NewLogger(t)
	h.events = analytics.NewLogger(h.analytics, h.remote.IsAnalyticsEnabled, logger, h.metrics)
	o := Options{
		Provider:     h.provider,
		RemoteConfig: h.remote,
		VIP:          h.vip,
		Analytics:    h.events,
		Units:        testUnits(),
		Metrics:      h.metrics,
		Logger:       logger,
		Clock:        h.clock,
	}
	for _, fn := range opts {
		fn(&o)
	}
	h.m = NewManager(o)
	h.m.mu.Lock()
	h.m.initialized = true
	h.m.mu.Unlock()
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) slot(t *testing.T, key string) SlotState {
	t.Helper()
	for _, s := range h.m.Snapshot().Slots {
		if s.Key == key {
			return s
		}
	}
	return SlotState{Key: key, State: "empty"}
}

// preloadReady fills the slot for unit id on kind.
func (h *harness) preloadReady(t *testing.T, kind models.AdKind, unitID string) *provider.FakeInstance {
	t.Helper()
	switch kind {
	case models.AdKindInterstitial:
		h.m.PreloadInterstitial(unitID)
	case models.AdKindRewarded:
		h.m.PreloadRewarded()
	case models.AdKindAppOpen:
		h.m.PreloadAppOpen()
	}
	inst := h.provider.Last(unitID)
	if inst == nil {
		t.Fatalf("no instance created for %s", unitID)
	}
	inst.Emit(provider.Event{Type: provider.EventLoaded})
	return inst
}
