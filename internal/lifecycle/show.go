package lifecycle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/provider"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// showHooks receives the progress of a single show attempt. onClosed and
// onError are terminal and mutually exclusive.
type showHooks struct {
	onOpened func()
	onReward func(models.Reward)
	onClosed func()
	onError  func(error)
}

// CanShowInterstitial reports whether the interstitial cooldown has elapsed.
func (m *Manager) CanShowInterstitial() bool {
	return cooldownElapsed(m.cooldowns, models.AdKindInterstitial, m.clock.Now(), m.InterstitialCooldown())
}

// InterstitialCooldown returns the cooldown currently in force: the remote
// value in seconds, or the policy default.
func (m *Manager) InterstitialCooldown() time.Duration {
	return ParseCooldown(m.remote.DistanceTimeToShowInterstitial(), m.policy.InterstitialCooldown)
}

func (m *Manager) canShowAppOpen() bool {
	return cooldownElapsed(m.cooldowns, models.AdKindAppOpen, m.clock.Now(), m.policy.AppOpenCooldown)
}

func (m *Manager) markShown(kind models.AdKind) {
	m.cooldowns.MarkShown(kind, m.clock.Now())
}

func (m *Manager) refuse(unit models.AdUnit, reason models.Reason) models.Outcome {
	out := models.NotShown(reason)
	m.metrics.IncrementAdShows(string(unit.Kind), out.Label())
	m.analytics.LogAdShow(unit, out)
	m.logger.Debug("ad not shown", zap.Stringer("unit", unit), zap.String("reason", string(reason)))
	return out
}

// ShowInterstitial shows an interstitial for unitID. onClosed always runs
// when the ad flow is over, including for VIP users and during cooldown, so
// callers can continue their navigation unconditionally. onError runs instead
// of onClosed when the provider fails after the attempt started.
//
// The returned outcome describes the decision; ErrNotInitialized is the only
// error.
func (m *Manager) ShowInterstitial(unitID string, onClosed func(), onError func(error), preferPreload bool) (models.Outcome, error) {
	if onClosed == nil {
		onClosed = func() {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	unit := m.interstitialUnit(unitID)

	_, span := m.tracer.Start(context.Background(), "ShowInterstitial",
		trace.WithAttributes(attribute.String("ad.unit_id", unitID), attribute.Bool("ad.prefer_preload", preferPreload)))
	defer span.End()

	if m.isVIP() {
		out := m.refuse(unit, models.ReasonVIPExempt)
		span.SetAttributes(attribute.String("ad.outcome", out.Label()))
		onClosed()
		return out, nil
	}
	if !m.CanShowInterstitial() {
		out := m.refuse(unit, models.ReasonCooldownActive)
		span.SetAttributes(attribute.String("ad.outcome", out.Label()))
		onClosed()
		return out, nil
	}
	if !m.isInitialized() {
		span.SetStatus(codes.Error, ErrNotInitialized.Error())
		m.logger.Error("show interstitial before initialize", zap.String("unit_id", unitID))
		return models.NotShown(models.ReasonFailed), ErrNotInitialized
	}

	if m.provider == nil {
		m.markShown(models.AdKindInterstitial)
		out := models.Outcome{Shown: true, Mock: true}
		m.metrics.IncrementAdShows(string(unit.Kind), out.Label())
		m.analytics.LogAdShow(unit, out)
		span.SetAttributes(attribute.String("ad.outcome", out.Label()))
		m.schedule(m.policy.MockInterstitialDelay, onClosed, onClosed)
		return out, nil
	}

	m.present(unit, preferPreload, showHooks{
		onOpened: func() { m.markShown(models.AdKindInterstitial) },
		onClosed: onClosed,
		onError:  onError,
	})
	span.SetAttributes(attribute.String("ad.outcome", "started"))
	return models.Shown(), nil
}

// ShowRewarded shows a rewarded ad and blocks until it is closed, fails, or
// ctx is done. Rewarded ads are opt-in, so VIP users are not exempt. The
// result carries the reward when the user earned it.
func (m *Manager) ShowRewarded(ctx context.Context, preferPreload bool) (models.RewardResult, error) {
	ctx, span := m.tracer.Start(ctx, "ShowRewarded", trace.WithAttributes(attribute.Bool("ad.prefer_preload", preferPreload)))
	defer span.End()

	if !m.isInitialized() {
		span.SetStatus(codes.Error, ErrNotInitialized.Error())
		return models.RewardResult{Outcome: models.NotShown(models.ReasonFailed)}, ErrNotInitialized
	}
	unit, ok := m.units.First(models.AdKindRewarded)
	if !ok {
		return models.RewardResult{Outcome: models.NotShown(models.ReasonFailed)}, ErrUnknownUnit
	}

	if m.provider == nil {
		return m.mockRewarded(ctx, unit)
	}

	type result struct {
		reward *models.Reward
		err    error
	}
	done := make(chan result, 1)
	var earned atomic.Pointer[models.Reward]
	cancel := m.present(unit, preferPreload, showHooks{
		onOpened: func() { m.markShown(models.AdKindRewarded) },
		onReward: func(r models.Reward) {
			earned.Store(&r)
			m.analytics.LogRewardEarned(unit, r)
		},
		onClosed: func() { done <- result{reward: earned.Load()} },
		onError:  func(err error) { done <- result{err: err} },
	})

	settle := func(r result) (models.RewardResult, error) {
		if r.err != nil {
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
			return models.RewardResult{Outcome: models.NotShown(models.ReasonFailed)}, r.err
		}
		span.SetAttributes(attribute.Bool("ad.rewarded", r.reward != nil))
		return models.RewardResult{Outcome: models.Shown(), Reward: r.reward}, nil
	}

	select {
	case r := <-done:
		return settle(r)
	case <-ctx.Done():
		if !cancel() {
			// The ad finished first; report what actually happened.
			return settle(<-done)
		}
		span.SetStatus(codes.Error, ctx.Err().Error())
		return models.RewardResult{Outcome: models.NotShown(models.ReasonFailed)}, ctx.Err()
	}
}

func (m *Manager) mockRewarded(ctx context.Context, unit models.AdUnit) (models.RewardResult, error) {
	done := make(chan bool, 1)
	m.schedule(m.policy.MockRewardedDelay, func() { done <- true }, func() { done <- false })
	select {
	case completed := <-done:
		if !completed {
			return models.RewardResult{Outcome: models.NotShown(models.ReasonFailed)}, ErrClosed
		}
	case <-ctx.Done():
		return models.RewardResult{Outcome: models.NotShown(models.ReasonFailed)}, ctx.Err()
	}
	reward := m.policy.MockReward
	out := models.Outcome{Shown: true, Mock: true}
	m.markShown(models.AdKindRewarded)
	m.metrics.IncrementAdShows(string(unit.Kind), out.Label())
	m.analytics.LogAdShow(unit, out)
	m.analytics.LogRewardEarned(unit, reward)
	return models.RewardResult{Outcome: out, Reward: &reward}, nil
}

// ShowAppOpen shows the app-open ad and blocks until it closes, fails, or
// ctx is done. It is gated by VIP status, a fixed app-open cooldown and a
// reentrancy guard. There is no mock fallback: without a provider it reports
// not shown.
func (m *Manager) ShowAppOpen(ctx context.Context, preferPreload bool) (models.Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "ShowAppOpen", trace.WithAttributes(attribute.Bool("ad.prefer_preload", preferPreload)))
	defer span.End()

	unit, ok := m.units.First(models.AdKindAppOpen)
	if !ok {
		return models.NotShown(models.ReasonFailed), ErrUnknownUnit
	}
	if m.isVIP() {
		return m.refuse(unit, models.ReasonVIPExempt), nil
	}
	if !m.canShowAppOpen() {
		return m.refuse(unit, models.ReasonCooldownActive), nil
	}
	if !m.isInitialized() {
		span.SetStatus(codes.Error, ErrNotInitialized.Error())
		return models.NotShown(models.ReasonFailed), ErrNotInitialized
	}
	if m.provider == nil {
		return m.refuse(unit, models.ReasonProviderUnavailable), nil
	}

	m.mu.Lock()
	if m.appOpenBusy {
		m.mu.Unlock()
		return m.refuse(unit, models.ReasonInProgress), nil
	}
	m.appOpenBusy = true
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		m.appOpenBusy = false
		m.mu.Unlock()
	}
	done := make(chan error, 1)
	cancel := m.present(unit, preferPreload, showHooks{
		onOpened: func() { m.markShown(models.AdKindAppOpen) },
		onClosed: func() {
			release()
			done <- nil
		},
		onError: func(err error) {
			release()
			done <- err
		},
	})

	settle := func(err error) (models.Outcome, error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return models.NotShown(models.ReasonFailed), err
		}
		return models.Shown(), nil
	}

	select {
	case err := <-done:
		return settle(err)
	case <-ctx.Done():
		if !cancel() {
			return settle(<-done)
		}
		release()
		span.SetStatus(codes.Error, ctx.Err().Error())
		return models.NotShown(models.ReasonFailed), ctx.Err()
	}
}

// present runs one show attempt: a preloaded instance when preferred and
// available, otherwise a fresh load followed by show. Every listener it
// registers is released on the first terminal event. Closing preloads the
// next instance for the unit; failing schedules one backoff retry.
//
// The returned cancel abandons the attempt: its listeners are released, no
// hook runs afterwards and a pending load never reaches Show. It reports
// false when the attempt had already finished, in which case onClosed or
// onError has run or is running.
func (m *Manager) present(unit models.AdUnit, preferPreload bool, hooks showHooks) (cancel func() bool) {
	kind := string(unit.Kind)

	var inst provider.Instance
	if preferPreload {
		inst = m.takeReady(unit)
	}
	fromCache := inst != nil

	fail := func(err error) {
		err = showError(err)
		m.metrics.IncrementAdShows(kind, "error")
		m.analytics.LogAdShow(unit, models.NotShown(models.ReasonFailed))
		m.logger.Warn("ad show failed", zap.Stringer("unit", unit), zap.Bool("from_preload", fromCache), zap.Error(err))
		hooks.onError(err)
		m.scheduleRetry(unit)
	}

	if inst == nil {
		err := safeCall(func() error {
			var err error
			inst, err = m.provider.CreateForAdRequest(unit)
			return err
		})
		if err != nil {
			fail(err)
			return func() bool { return false }
		}
	}

	op := newOperation()
	cancel = func() bool {
		if !op.finish(nil) {
			return false
		}
		m.logger.Debug("ad show abandoned", zap.Stringer("unit", unit), zap.String("instance", inst.ID()))
		m.metrics.IncrementAdShows(kind, "cancelled")
		m.preload(unit)
		return true
	}
	op.listen(inst, provider.EventOpened, func(provider.Event) {
		m.metrics.IncrementAdShows(kind, "shown")
		m.analytics.LogAdShow(unit, models.Shown())
		if hooks.onOpened != nil {
			hooks.onOpened()
		}
	})
	if hooks.onReward != nil {
		op.listen(inst, provider.EventEarnedReward, func(ev provider.Event) {
			if ev.Reward != nil {
				hooks.onReward(*ev.Reward)
			}
		})
	}
	op.listen(inst, provider.EventClosed, func(provider.Event) {
		op.finish(func() {
			hooks.onClosed()
			m.preload(unit)
		})
	})
	op.listen(inst, provider.EventError, func(ev provider.Event) {
		op.finish(func() { fail(ev.Err) })
	})

	show := func() {
		if op.finished() {
			return
		}
		if err := safeCall(inst.Show); err != nil {
			op.finish(func() { fail(err) })
		}
	}

	if fromCache {
		m.logger.Debug("showing preloaded ad", zap.Stringer("unit", unit), zap.String("instance", inst.ID()))
		show()
		return cancel
	}

	m.logger.Debug("no preloaded ad, loading", zap.Stringer("unit", unit))
	loadedAt := m.clock.Now()
	op.listen(inst, provider.EventLoaded, func(provider.Event) {
		m.metrics.RecordAdLoadLatency(kind, m.clock.Now().Sub(loadedAt))
		m.logLoad(unit, true)
		show()
	})
	if err := safeCall(inst.Load); err != nil {
		op.finish(func() { fail(err) })
	}
	return cancel
}
