// Package analytics logs ad lifecycle events. Logging is fire-and-forget:
// a failing sink is counted and logged, never surfaced to the ad flow.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/observability"
	"go.uber.org/zap"
)

// Event types.
const (
	EventAppOpenAdsLoad = "app_open_ads_load"
	EventAdLoad         = "ad_load"
	EventAdShow         = "ad_show"
	EventRewardEarned   = "reward_earned"
)

// AdEvent is one analytics row.
type AdEvent struct {
	Timestamp    time.Time     `json:"timestamp"`
	Type         string        `json:"event_type"`
	Unit         models.AdUnit `json:"unit"`
	Success      bool          `json:"success"`
	Reason       string        `json:"reason,omitempty"`
	RewardAmount int           `json:"reward_amount,omitempty"`
	RewardType   string        `json:"reward_type,omitempty"`
}

// Service is the analytics capability used by the lifecycle manager.
type Service interface {
	LogAppOpenAdsLoad(unit models.AdUnit, success bool)
	LogAdLoad(unit models.AdUnit, success bool)
	LogAdShow(unit models.AdUnit, outcome models.Outcome)
	LogRewardEarned(unit models.AdUnit, reward models.Reward)
}

// EnabledFunc reports whether analytics collection is currently enabled.
// It is consulted on every event, off the caller's goroutine, so a remote
// kill switch applies immediately and a slow lookup never stalls the caller.
type EnabledFunc func() bool

// Logger dispatches events to a Recorder on background goroutines.
type Logger struct {
	recorder Recorder
	enabled  EnabledFunc
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
	timeout  time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

// NewLogger returns a Logger. enabled may be nil, meaning always enabled.
func NewLogger(recorder Recorder, enabled EnabledFunc, logger *zap.Logger, metrics observability.MetricsRegistry) *Logger {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Logger{
		recorder: recorder,
		enabled:  enabled,
		logger:   logger,
		metrics:  metrics,
		timeout:  3 * time.Second,
		now:      time.Now,
	}
}

func (l *Logger) LogAppOpenAdsLoad(unit models.AdUnit, success bool) {
	l.dispatch(AdEvent{Type: EventAppOpenAdsLoad, Unit: unit, Success: success})
}

func (l *Logger) LogAdLoad(unit models.AdUnit, success bool) {
	l.dispatch(AdEvent{Type: EventAdLoad, Unit: unit, Success: success})
}

func (l *Logger) LogAdShow(unit models.AdUnit, outcome models.Outcome) {
	l.dispatch(AdEvent{Type: EventAdShow, Unit: unit, Success: outcome.Shown, Reason: outcome.Label()})
}

func (l *Logger) LogRewardEarned(unit models.AdUnit, reward models.Reward) {
	l.dispatch(AdEvent{Type: EventRewardEarned, Unit: unit, Success: true, RewardAmount: reward.Amount, RewardType: reward.Type})
}

func (l *Logger) dispatch(ev AdEvent) {
	if l == nil || l.recorder == nil {
		return
	}
	ev.Timestamp = l.now()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.metrics.IncrementAnalyticsErrors()
				l.logger.Error("analytics recorder panicked", zap.String("event_type", ev.Type), zap.Any("panic", r))
			}
		}()
		if !l.enabled() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.recorder.RecordAdEvent(ctx, ev); err != nil {
			l.metrics.IncrementAnalyticsErrors()
			l.logger.Warn("analytics record", zap.String("event_type", ev.Type), zap.Error(err))
		}
	}()
}

// Wait blocks until every dispatched event has been recorded or dropped,
// or ctx is done.
func (l *Logger) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analytics drain: %w", ctx.Err())
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogAppOpenAdsLoad(models.AdUnit, bool)        {}
func (Nop) LogAdLoad(models.AdUnit, bool)                {}
func (Nop) LogAdShow(models.AdUnit, models.Outcome)      {}
func (Nop) LogRewardEarned(models.AdUnit, models.Reward) {}
