package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testUnit = models.AdUnit{
	Surface:     models.SurfaceAppOpenResume,
	Kind:        models.AdKindAppOpen,
	UnitID:      "app-open-unit",
	Environment: models.EnvironmentTest,
}

func drain(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
}

func TestLogger_RecordsEvents(t *testing.T) {
	rec := NewMockRecorder()
	l := NewLogger(rec, nil, zaptest.NewLogger(t), observability.NewNoOpRegistry())

	l.LogAppOpenAdsLoad(testUnit, true)
	l.LogAdShow(testUnit, models.NotShown(models.ReasonCooldownActive))
	l.LogRewardEarned(testUnit, models.Reward{Amount: 50, Type: "bullets"})
	drain(t, l)

	assert.Equal(t, 1, rec.Count(EventAppOpenAdsLoad))
	assert.Equal(t, 1, rec.Count(EventAdShow))
	assert.Equal(t, 1, rec.Count(EventRewardEarned))
	for _, ev := range rec.Events() {
		assert.False(t, ev.Timestamp.IsZero())
		if ev.Type == EventAdShow {
			assert.False(t, ev.Success)
			assert.Equal(t, "cooldown_active", ev.Reason)
		}
		if ev.Type == EventRewardEarned {
			assert.Equal(t, 50, ev.RewardAmount)
		}
	}
}

func TestLogger_DisabledDropsEvents(t *testing.T) {
	rec := NewMockRecorder()
	enabled := false
	l := NewLogger(rec, func() bool { return enabled }, zaptest.NewLogger(t), nil)

	l.LogAdLoad(testUnit, true)
	drain(t, l)
	assert.Empty(t, rec.Events())

	enabled = true
	l.LogAdLoad(testUnit, true)
	drain(t, l)
	assert.Len(t, rec.Events(), 1)
}

func TestLogger_SlowEnabledCheckDoesNotBlockCaller(t *testing.T) {
	rec := NewMockRecorder()
	release := make(chan struct{})
	l := NewLogger(rec, func() bool {
		<-release
		return true
	}, zaptest.NewLogger(t), nil)

	returned := make(chan struct{})
	go func() {
		l.LogAdShow(testUnit, models.Shown())
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("LogAdShow blocked on the enabled check")
	}

	close(release)
	drain(t, l)
	assert.Len(t, rec.Events(), 1)
}

func TestLogger_FailuresAreCountedNotPropagated(t *testing.T) {
	rec := NewMockRecorder()
	rec.Err = errors.New("clickhouse down")
	metrics := observability.NewMockMetricsRegistry()
	l := NewLogger(rec, nil, zaptest.NewLogger(t), metrics)

	l.LogAdLoad(testUnit, false)
	l.LogAdLoad(testUnit, false)
	drain(t, l)
	assert.Equal(t, 2, metrics.AnalyticsErrorCount)
}

type panickingRecorder struct{}

func (panickingRecorder) RecordAdEvent(context.Context, AdEvent) error { panic("boom") }

func TestLogger_RecorderPanicIsContained(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	l := NewLogger(panickingRecorder{}, nil, zaptest.NewLogger(t), metrics)
	l.LogAdShow(testUnit, models.Shown())
	drain(t, l)
	assert.Equal(t, 1, metrics.AnalyticsErrorCount)
}

func TestLogger_NilIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.LogAdLoad(testUnit, true) })
	assert.NotPanics(t, func() { NewLogger(nil, nil, nil, nil).LogAdLoad(testUnit, true) })
}

func TestClickHouse_Unavailable(t *testing.T) {
	var ch *ClickHouse
	err := ch.RecordAdEvent(context.Background(), AdEvent{Type: EventAdLoad})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, ch.Close())
}

func TestBuildEventQuery(t *testing.T) {
	q, args := buildEventQuery(EventFilter{})
	assert.NotContains(t, q, "WHERE")
	assert.Contains(t, q, "LIMIT 100")
	assert.Empty(t, args)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args = buildEventQuery(EventFilter{Type: EventAdShow, UnitID: "unit-x", Since: since, Limit: 5})
	assert.Contains(t, q, "WHERE event_type = ? AND unit_id = ? AND timestamp >= ?")
	assert.Contains(t, q, "ORDER BY timestamp DESC LIMIT 5")
	assert.Equal(t, []interface{}{EventAdShow, "unit-x", since}, args)
}

func TestClickHouse_QueryUnavailable(t *testing.T) {
	var ch *ClickHouse
	_, err := ch.QueryEvents(context.Background(), EventFilter{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
