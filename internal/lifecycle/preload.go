package lifecycle

import (
	"github.com/cenkalti/backoff/v4"
	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/provider"
	"go.uber.org/zap"
)

// PreloadInterstitial warms the interstitial slot for unitID.
func (m *Manager) PreloadInterstitial(unitID string) {
	m.preload(m.interstitialUnit(unitID))
}

// PreloadRewarded warms the rewarded slot.
func (m *Manager) PreloadRewarded() {
	m.preloadKind(models.AdKindRewarded)
}

// PreloadAppOpen warms the app-open slot.
func (m *Manager) PreloadAppOpen() {
	m.preloadKind(models.AdKindAppOpen)
}

// PreloadAll warms every interstitial unit plus the rewarded and app-open
// slots.
func (m *Manager) PreloadAll() {
	for _, id := range m.units.DistinctUnitIDs(models.AdKindInterstitial) {
		m.PreloadInterstitial(id)
	}
	m.PreloadRewarded()
	m.PreloadAppOpen()
}

func (m *Manager) preloadKind(kind models.AdKind) {
	unit, ok := m.units.First(kind)
	if !ok {
		m.logger.Warn("no ad unit configured", zap.String("kind", string(kind)))
		return
	}
	m.preload(unit)
}

// preload requests a new instance for the unit's slot. It is a no-op for VIP
// users, while a load is in flight, when the slot is already ready, in mock
// mode, and after Close.
func (m *Manager) preload(unit models.AdUnit) {
	kind := string(unit.Kind)
	if m.provider == nil {
		return
	}
	if m.isVIP() {
		m.logger.Debug("skip preload for vip user", zap.Stringer("unit", unit))
		m.metrics.IncrementAdLoads(kind, "skipped")
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s := m.slotLocked(unit)
	if s.loading {
		m.mu.Unlock()
		m.logger.Debug("preload already in flight", zap.Stringer("unit", unit))
		m.metrics.IncrementAdLoads(kind, "skipped")
		return
	}
	if s.ready != nil {
		m.mu.Unlock()
		m.logger.Debug("preload slot already filled", zap.Stringer("unit", unit))
		m.metrics.IncrementAdLoads(kind, "skipped")
		return
	}
	s.loading = true
	s.loadStarted = m.clock.Now()
	m.mu.Unlock()

	var inst provider.Instance
	err := safeCall(func() error {
		var err error
		inst, err = m.provider.CreateForAdRequest(unit)
		return err
	})
	if err != nil {
		m.loadFailed(unit, err)
		return
	}

	op := newOperation()
	op.listen(inst, provider.EventLoaded, func(provider.Event) {
		op.finish(func() { m.loadSucceeded(unit, inst) })
	})
	op.listen(inst, provider.EventError, func(ev provider.Event) {
		op.finish(func() { m.loadFailed(unit, ev.Err) })
	})
	if err := safeCall(inst.Load); err != nil {
		op.finish(func() { m.loadFailed(unit, err) })
	}
}

func (m *Manager) loadSucceeded(unit models.AdUnit, inst provider.Instance) {
	kind := string(unit.Kind)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s := m.slotLocked(unit)
	s.loading = false
	s.ready = inst
	s.backoff.Reset()
	elapsed := m.clock.Now().Sub(s.loadStarted)
	m.mu.Unlock()

	m.metrics.IncrementAdLoads(kind, "loaded")
	m.metrics.RecordAdLoadLatency(kind, elapsed)
	m.metrics.AddSlotsReady(kind, 1)
	m.logLoad(unit, true)
	m.logger.Debug("ad preloaded", zap.Stringer("unit", unit), zap.String("instance", inst.ID()), zap.Duration("elapsed", elapsed))
}

func (m *Manager) loadFailed(unit models.AdUnit, cause error) {
	kind := string(unit.Kind)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s := m.slotLocked(unit)
	s.loading = false
	elapsed := m.clock.Now().Sub(s.loadStarted)
	m.mu.Unlock()

	m.metrics.IncrementAdLoads(kind, "error")
	m.metrics.RecordAdLoadLatency(kind, elapsed)
	m.logLoad(unit, false)
	m.logger.Warn("ad load failed", zap.Stringer("unit", unit), zap.Error(loadError(cause)))

	m.scheduleRetry(unit)
}

// scheduleRetry arms the slot's next backoff retry. At most one retry is
// pending per slot; the policy may also give up.
func (m *Manager) scheduleRetry(unit models.AdUnit) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s := m.slotLocked(unit)
	if s.retryPending {
		m.mu.Unlock()
		return
	}
	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop {
		m.mu.Unlock()
		m.logger.Warn("giving up ad preload retries", zap.Stringer("unit", unit))
		return
	}
	s.retryPending = true
	m.mu.Unlock()

	m.metrics.IncrementAdRetries(string(unit.Kind))
	m.logger.Info("ad preload retry scheduled", zap.Stringer("unit", unit), zap.Duration("delay", delay))
	m.schedule(delay, func() {
		m.mu.Lock()
		s.retryPending = false
		m.mu.Unlock()
		m.preload(unit)
	}, nil)
}

// takeReady consumes the ready instance of the unit's slot, if any.
func (m *Manager) takeReady(unit models.AdUnit) provider.Instance {
	m.mu.Lock()
	s, ok := m.slots[keyFor(unit)]
	if !ok || s.ready == nil {
		m.mu.Unlock()
		return nil
	}
	inst := s.ready
	s.ready = nil
	m.mu.Unlock()

	m.metrics.AddSlotsReady(string(unit.Kind), -1)
	return inst
}

func (m *Manager) logLoad(unit models.AdUnit, success bool) {
	if unit.Kind == models.AdKindAppOpen {
		m.analytics.LogAppOpenAdsLoad(unit, success)
		return
	}
	m.analytics.LogAdLoad(unit, success)
}
