package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_MockMode(t *testing.T) {
	m := NewManager(Options{})
	defer m.Close()
	assert.True(t, m.MockMode())
	assert.True(t, m.Initialize())
	assert.True(t, m.Initialize(), "second call is a no-op")
	assert.True(t, m.Snapshot().Initialized)
}

func TestInitialize_WarmsEverySlot(t *testing.T) {
	p := provider.NewFakeProvider()
	m := NewManager(Options{Provider: p, Units: testUnits()})
	defer m.Close()
	require.True(t, m.Initialize())

	for _, id := range []string{unitX, unitY, rewardedID, appOpenID} {
		require.Eventually(t, func() bool { return p.CreatedFor(id) == 1 }, waitTimeout, waitTick, id)
	}
}

func TestPreload_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.m.PreloadInterstitial(unitX)
	h.m.PreloadInterstitial(unitX)
	assert.Equal(t, 1, h.provider.CreatedFor(unitX))
	assert.Equal(t, "loading", h.slot(t, "interstitial:"+unitX).State)

	h.provider.Last(unitX).Emit(provider.Event{Type: provider.EventLoaded})
	h.m.PreloadInterstitial(unitX)
	assert.Equal(t, 1, h.provider.CreatedFor(unitX), "ready slot is not reloaded")
	assert.Equal(t, "ready", h.slot(t, "interstitial:"+unitX).State)
}

func TestPreload_ConcurrentCallsCreateOnce(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); h.m.PreloadInterstitial(unitY) }()
		go func() { defer wg.Done(); h.m.PreloadRewarded() }()
		go func() { defer wg.Done(); h.m.PreloadAppOpen() }()
	}
	wg.Wait()
	assert.Equal(t, 1, h.provider.CreatedFor(unitY))
	assert.Equal(t, 1, h.provider.CreatedFor(rewardedID))
	assert.Equal(t, 1, h.provider.CreatedFor(appOpenID))
}

func TestPreload_SlotsAreIndependentPerUnit(t *testing.T) {
	h := newHarness(t)
	h.preloadReady(t, models.AdKindInterstitial, unitX)
	h.m.PreloadInterstitial(unitY)
	assert.Equal(t, "ready", h.slot(t, "interstitial:"+unitX).State)
	assert.Equal(t, "loading", h.slot(t, "interstitial:"+unitY).State)
}

func TestPreload_SkippedForVIP(t *testing.T) {
	h := newHarness(t)
	h.vip.Set(true)
	h.m.PreloadAll()
	assert.Empty(t, h.provider.Instances())
}

func TestPreload_ErrorRetriesAfterBackOff(t *testing.T) {
	cases := []struct {
		name    string
		kind    models.AdKind
		unitID  string
		key     string
		backoff time.Duration
	}{
		{"interstitial", models.AdKindInterstitial, unitX, "interstitial:" + unitX, 30 * time.Second},
		{"rewarded", models.AdKindRewarded, rewardedID, "rewarded", 30 * time.Second},
		{"app open", models.AdKindAppOpen, appOpenID, "app_open", 60 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			switch tc.kind {
			case models.AdKindInterstitial:
				h.m.PreloadInterstitial(tc.unitID)
			case models.AdKindRewarded:
				h.m.PreloadRewarded()
			case models.AdKindAppOpen:
				h.m.PreloadAppOpen()
			}
			inst := h.provider.Last(tc.unitID)
			inst.Emit(provider.Event{Type: provider.EventError, Err: errors.New("no fill")})

			s := h.slot(t, tc.key)
			assert.Equal(t, "empty", s.State)
			assert.True(t, s.RetryPending)
			assert.Equal(t, 0, inst.ListenerCount())

			h.clock.Advance(tc.backoff - time.Millisecond)
			assert.Equal(t, 1, h.provider.CreatedFor(tc.unitID))
			h.clock.Advance(time.Millisecond)
			assert.Equal(t, 2, h.provider.CreatedFor(tc.unitID))
			assert.Equal(t, 1, h.metrics.RetryCount(string(tc.kind)))
		})
	}
}

func TestPreload_CreateFailureRetries(t *testing.T) {
	h := newHarness(t)
	h.provider.CreateErr = errors.New("sdk not ready")
	h.m.PreloadRewarded()
	assert.Empty(t, h.provider.Instances())
	assert.True(t, h.slot(t, "rewarded").RetryPending)

	h.provider.CreateErr = nil
	h.clock.Advance(30 * time.Second)
	assert.Equal(t, 1, h.provider.CreatedFor(rewardedID))
}

func TestPreload_RetriesStopAtMaxAttempts(t *testing.T) {
	h := newHarness(t, withPolicy(Policy{RetryMaxAttempts: 2}))
	h.provider.CreateErr = errors.New("sdk not ready")
	h.m.PreloadAppOpen()
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Minute)
	}
	assert.Equal(t, 2, h.metrics.RetryCount(string(models.AdKindAppOpen)))
	assert.Equal(t, 0, h.clock.Pending())
}

func TestShowInterstitial_VIPNeverTouchesProvider(t *testing.T) {
	h := newHarness(t)
	h.vip.Set(true)
	closed := 0
	out, err := h.m.ShowInterstitial(unitX, func() { closed++ }, nil, true)
	require.NoError(t, err)
	assert.Equal(t, models.NotShown(models.ReasonVIPExempt), out)
	assert.Equal(t, 1, closed)
	assert.Empty(t, h.provider.Instances())
}

func TestShowInterstitial_NotInitialized(t *testing.T) {
	m := NewManager(Options{Provider: provider.NewFakeProvider(), Units: testUnits()})
	defer m.Close()
	closed := false
	_, err := m.ShowInterstitial(unitX, func() { closed = true }, nil, true)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, closed)
}

func TestShowInterstitial_UsesPreloadedInstance(t *testing.T) {
	h := newHarness(t)
	inst := h.preloadReady(t, models.AdKindInterstitial, unitX)

	closed := 0
	out, err := h.m.ShowInterstitial(unitX, func() { closed++ }, func(error) { t.Fatal("unexpected error") }, true)
	require.NoError(t, err)
	assert.True(t, out.Shown)
	assert.Equal(t, 1, inst.ShowCalls())
	assert.Equal(t, 1, h.provider.CreatedFor(unitX), "no new request before close")
	assert.Equal(t, "empty", h.slot(t, "interstitial:"+unitX).State)

	inst.Emit(provider.Event{Type: provider.EventOpened})
	assert.False(t, h.m.CanShowInterstitial(), "cooldown starts on open")

	inst.Emit(provider.Event{Type: provider.EventClosed})
	assert.Equal(t, 1, closed)
	assert.Equal(t, 2, h.provider.CreatedFor(unitX), "close preloads the next ad")
	assert.Equal(t, 0, inst.ListenerCount())

	inst.Emit(provider.Event{Type: provider.EventClosed})
	assert.Equal(t, 1, closed, "late events are ignored")
}

func TestShowInterstitial_FallbackLoadsThenShows(t *testing.T) {
	h := newHarness(t)
	closed := 0
	_, err := h.m.ShowInterstitial(unitY, func() { closed++ }, nil, true)
	require.NoError(t, err)

	inst := h.provider.Last(unitY)
	require.NotNil(t, inst)
	assert.Equal(t, 1, inst.LoadCalls())
	assert.Equal(t, 0, inst.ShowCalls())

	inst.Emit(provider.Event{Type: provider.EventLoaded})
	assert.Equal(t, 1, inst.ShowCalls())
	inst.Emit(provider.Event{Type: provider.EventOpened})
	inst.Emit(provider.Event{Type: provider.EventClosed})
	assert.Equal(t, 1, closed)
}

func TestShowInterstitial_SkipsPreloadWhenNotPreferred(t *testing.T) {
	h := newHarness(t)
	cached := h.preloadReady(t, models.AdKindInterstitial, unitX)
	_, err := h.m.ShowInterstitial(unitX, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, cached.ShowCalls())
	assert.Equal(t, 2, h.provider.CreatedFor(unitX))
	assert.Equal(t, "ready", h.slot(t, "interstitial:"+unitX).State)
}

func TestShowInterstitial_Cooldown(t *testing.T) {
	h := newHarness(t)
	h.remote.SetDistance("15")
	h.provider.AutoLoad = true
	h.provider.AutoShow = true

	_, err := h.m.ShowInterstitial(unitX, nil, nil, true)
	require.NoError(t, err)

	closed := 0
	out, err := h.m.ShowInterstitial(unitX, func() { closed++ }, nil, true)
	require.NoError(t, err)
	assert.Equal(t, models.NotShown(models.ReasonCooldownActive), out)
	assert.Equal(t, 1, closed)

	h.clock.Advance(15*time.Second - time.Millisecond)
	assert.False(t, h.m.CanShowInterstitial())
	h.clock.Advance(time.Millisecond)
	assert.True(t, h.m.CanShowInterstitial())
}

func TestShowInterstitial_InvalidRemoteCooldownUsesDefault(t *testing.T) {
	h := newHarness(t)
	h.remote.SetDistance("soon")
	assert.Equal(t, DefaultInterstitialCooldown, h.m.InterstitialCooldown())
}

func TestShowInterstitial_ShowErrorSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	inst := h.preloadReady(t, models.AdKindInterstitial, unitX)

	var gotErr error
	closed := false
	_, err := h.m.ShowInterstitial(unitX, func() { closed = true }, func(err error) { gotErr = err }, true)
	require.NoError(t, err)

	inst.Emit(provider.Event{Type: provider.EventError, Err: errors.New("render failed")})
	inst.Emit(provider.Event{Type: provider.EventClosed})
	assert.ErrorIs(t, gotErr, ErrShowFailed)
	assert.False(t, closed, "close after error is ignored")
	assert.Equal(t, 1, h.metrics.RetryCount(string(models.AdKindInterstitial)))
	assert.True(t, h.m.CanShowInterstitial(), "failed show does not start cooldown")

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, 2, h.provider.CreatedFor(unitX))
}

func TestShowInterstitial_ProviderPanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.preloadReady(t, models.AdKindInterstitial, unitX)
	h.provider.PanicOnShow = true

	var gotErr error
	assert.NotPanics(t, func() {
		_, err := h.m.ShowInterstitial(unitX, nil, func(err error) { gotErr = err }, true)
		require.NoError(t, err)
	})
	assert.ErrorIs(t, gotErr, ErrShowFailed)
	assert.ErrorIs(t, gotErr, ErrProviderPanic)
	assert.True(t, h.slot(t, "interstitial:"+unitX).RetryPending)
}

func TestShowInterstitial_MockClosesAfterDelay(t *testing.T) {
	h := newHarness(t, withoutProvider())
	closed := 0
	out, err := h.m.ShowInterstitial(unitX, func() { closed++ }, nil, true)
	require.NoError(t, err)
	assert.True(t, out.Shown)
	assert.True(t, out.Mock)
	assert.False(t, h.m.CanShowInterstitial())

	h.clock.Advance(2*time.Second - time.Millisecond)
	assert.Equal(t, 0, closed)
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, 1, closed)
}

func TestShowRewarded_MockResolvesAfterDelay(t *testing.T) {
	h := newHarness(t, withoutProvider())

	type res struct {
		r   models.RewardResult
		err error
	}
	done := make(chan res, 1)
	go func() {
		r, err := h.m.ShowRewarded(context.Background(), true)
		done <- res{r, err}
	}()

	require.Eventually(t, func() bool { return h.clock.Pending() == 1 }, waitTimeout, waitTick)
	h.clock.Advance(3*time.Second - time.Millisecond)
	select {
	case <-done:
		t.Fatal("resolved before the mock delay")
	default:
	}
	h.clock.Advance(time.Millisecond)

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.True(t, got.r.Outcome.Shown)
		assert.True(t, got.r.Outcome.Mock)
		require.NotNil(t, got.r.Reward)
		assert.Equal(t, models.Reward{Amount: 50, Type: "bullets"}, *got.r.Reward)
	case <-time.After(waitTimeout):
		t.Fatal("rewarded ad never resolved")
	}
	assert.Empty(t, h.provider.Instances())
}

func TestShowRewarded_GrantsReward(t *testing.T) {
	h := newHarness(t)
	h.provider.AutoLoad = true
	h.provider.AutoShow = true
	h.provider.AutoReward = models.Reward{Amount: 10, Type: "coins"}

	got, err := h.m.ShowRewarded(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, got.Outcome.Shown)
	require.NotNil(t, got.Reward)
	assert.Equal(t, 10, got.Reward.Amount)
	assert.Equal(t, 2, h.provider.CreatedFor(rewardedID), "next rewarded ad is preloaded")
}

func TestShowRewarded_VIPStillShows(t *testing.T) {
	h := newHarness(t)
	h.vip.Set(true)
	h.provider.AutoLoad = true
	h.provider.AutoShow = true

	got, err := h.m.ShowRewarded(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, got.Outcome.Shown)
}

func TestShowRewarded_ClosedWithoutReward(t *testing.T) {
	h := newHarness(t)
	inst := h.preloadReady(t, models.AdKindRewarded, rewardedID)

	go func() {
		if !assert.Eventually(t, func() bool { return inst.ShowCalls() == 1 }, waitTimeout, waitTick) {
			return
		}
		inst.Emit(provider.Event{Type: provider.EventOpened})
		inst.Emit(provider.Event{Type: provider.EventClosed})
	}()
	got, err := h.m.ShowRewarded(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, got.Outcome.Shown)
	assert.Nil(t, got.Reward)
}

func TestShowRewarded_ContextCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.m.ShowRewarded(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShowAppOpen_ReentrancyAndCooldown(t *testing.T) {
	h := newHarness(t)
	inst := h.preloadReady(t, models.AdKindAppOpen, appOpenID)

	done := make(chan models.Outcome, 1)
	go func() {
		out, err := h.m.ShowAppOpen(context.Background(), true)
		assert.NoError(t, err)
		done <- out
	}()
	require.Eventually(t, func() bool { return inst.ShowCalls() == 1 }, waitTimeout, waitTick)

	out, err := h.m.ShowAppOpen(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, models.NotShown(models.ReasonInProgress), out)
	assert.True(t, h.m.Snapshot().AppOpenInProgress)

	inst.Emit(provider.Event{Type: provider.EventOpened})
	inst.Emit(provider.Event{Type: provider.EventClosed})
	assert.Equal(t, models.Shown(), <-done)
	assert.False(t, h.m.Snapshot().AppOpenInProgress)

	out, err = h.m.ShowAppOpen(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, models.NotShown(models.ReasonCooldownActive), out)

	h.clock.Advance(30 * time.Second)
	h.provider.Last(appOpenID).Emit(provider.Event{Type: provider.EventLoaded})
	h.provider.AutoShow = true
	out, err = h.m.ShowAppOpen(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, out.Shown)
}

func TestShowAppOpen_ErrorReleasesGuard(t *testing.T) {
	h := newHarness(t)
	h.provider.CreateErr = errors.New("sdk not ready")
	_, err := h.m.ShowAppOpen(context.Background(), false)
	assert.ErrorIs(t, err, ErrShowFailed)
	assert.False(t, h.m.Snapshot().AppOpenInProgress)
	assert.True(t, h.m.canShowAppOpen(), "failed show does not start cooldown")
}

func TestShowAppOpen_Gates(t *testing.T) {
	t.Run("vip", func(t *testing.T) {
		h := newHarness(t)
		h.vip.Set(true)
		out, err := h.m.ShowAppOpen(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, models.NotShown(models.ReasonVIPExempt), out)
		assert.Empty(t, h.provider.Instances())
	})
	t.Run("no provider", func(t *testing.T) {
		h := newHarness(t, withoutProvider())
		out, err := h.m.ShowAppOpen(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, models.NotShown(models.ReasonProviderUnavailable), out)
	})
	t.Run("not initialized", func(t *testing.T) {
		m := NewManager(Options{Provider: provider.NewFakeProvider(), Units: testUnits()})
		defer m.Close()
		_, err := m.ShowAppOpen(context.Background(), true)
		assert.ErrorIs(t, err, ErrNotInitialized)
	})
}

func TestShowAppOpen_CancelWhileLoading(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	type result struct {
		out models.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.m.ShowAppOpen(ctx, false)
		done <- result{out, err}
	}()
	require.Eventually(t, func() bool { return h.provider.CreatedFor(appOpenID) == 1 }, waitTimeout, waitTick)
	abandoned := h.provider.Last(appOpenID)

	cancel()
	r := <-done
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, models.NotShown(models.ReasonFailed), r.out)
	assert.False(t, h.m.Snapshot().AppOpenInProgress)
	assert.Equal(t, 0, abandoned.ListenerCount())

	abandoned.Emit(provider.Event{Type: provider.EventLoaded})
	assert.Equal(t, 0, abandoned.ShowCalls(), "abandoned ad is never shown")
	assert.True(t, h.m.canShowAppOpen())

	require.Equal(t, 2, h.provider.CreatedFor(appOpenID), "slot refilled after cancel")
	h.provider.Last(appOpenID).Emit(provider.Event{Type: provider.EventLoaded})
	h.provider.AutoShow = true
	out, err := h.m.ShowAppOpen(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, models.Shown(), out)
}

func TestShowRewarded_CancelWhileLoading(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, err := h.m.ShowRewarded(ctx, false)
		errs <- err
	}()
	require.Eventually(t, func() bool { return h.provider.CreatedFor(rewardedID) == 1 }, waitTimeout, waitTick)
	abandoned := h.provider.Last(rewardedID)

	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)
	abandoned.Emit(provider.Event{Type: provider.EventLoaded})
	assert.Equal(t, 0, abandoned.ShowCalls())
	assert.Equal(t, 0, abandoned.ListenerCount())
}

func TestClose_IgnoresLateCallbacks(t *testing.T) {
	h := newHarness(t)
	h.m.PreloadInterstitial(unitX)
	inst := h.provider.Last(unitX)

	h.m.Close()
	inst.Emit(provider.Event{Type: provider.EventLoaded})
	snap := h.m.Snapshot()
	assert.True(t, snap.Closed)
	for _, s := range snap.Slots {
		assert.NotEqual(t, "ready", s.State)
	}

	h.m.PreloadRewarded()
	assert.Equal(t, 0, h.provider.CreatedFor(rewardedID))
}

func TestClose_StopsPendingTimers(t *testing.T) {
	h := newHarness(t)
	h.provider.CreateErr = errors.New("sdk not ready")
	h.m.PreloadRewarded()
	require.Equal(t, 1, h.clock.Pending())

	h.m.Close()
	assert.Equal(t, 0, h.clock.Pending())
	h.provider.CreateErr = nil
	h.clock.Advance(time.Hour)
	assert.Empty(t, h.provider.Instances())
}

func TestClose_CompletesPendingMockShows(t *testing.T) {
	h := newHarness(t, withoutProvider())

	closed := make(chan struct{})
	out, err := h.m.ShowInterstitial(unitX, func() { close(closed) }, nil, true)
	require.NoError(t, err)
	assert.True(t, out.Mock)

	errs := make(chan error, 1)
	go func() {
		_, err := h.m.ShowRewarded(context.Background(), true)
		errs <- err
	}()
	require.Eventually(t, func() bool { return h.clock.Pending() == 2 }, waitTimeout, waitTick)

	h.m.Close()
	select {
	case <-closed:
	default:
		t.Fatal("onClosed did not run for the mock interstitial")
	}
	assert.ErrorIs(t, <-errs, ErrClosed)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestAnalyticsRecordsShows(t *testing.T) {
	h := newHarness(t)
	h.provider.AutoLoad = true
	h.provider.AutoShow = true
	_, err := h.m.ShowInterstitial(unitX, nil, nil, true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.events.Wait(ctx))
	assert.Equal(t, 1, h.analytics.Count("ad_show"))
	assert.Equal(t, 1, h.metrics.ShowCount(string(models.AdKindInterstitial), "shown"))
}
