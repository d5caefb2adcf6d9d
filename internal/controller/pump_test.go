package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/gateway"
	"github.com/joltersapp/homecontrol/internal/trigger"
)

func pumpConfig() config.PumpConfig {
	cfg := config.Config{}
	cfg.ApplyDefaults()
	return cfg.Pump
}

func newTestPump(t *testing.T, gw Gateway) *Pump {
	sched := trigger.New(time.UTC)
	t.Cleanup(sched.Stop)
	return NewPump(pumpConfig(), sched, gw, newTestStore(t), nil)
}

func TestComputeDutyHours(t *testing.T) {
	tests := []struct {
		temp float64
		want float64
	}{
		{30, 4},    // below minimum, clamped up
		{40, 4},    // exactly the floor
		{62, 6},    // 6.2 rounds down to the half hour
		{63, 6.5},  // 6.3 rounds up to the half hour
		{85, 8.5},
		{100, 10},  // exactly the cap
		{115, 10},  // above maximum, clamped down
	}
	for _, tt := range tests {
		got := ComputeDutyHours(tt.temp, 4, 10)
		assert.Equal(t, tt.want, got, "temp %.0f", tt.temp)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	gw := &mockGateway{
		TemperatureFunc: func(ctx context.Context, entityID string, min, max, fallback float64) float64 {
			return 80
		},
	}
	p := newTestPump(t, gw)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background())) // second Start is a no-op

	p.Stop()
	p.Stop() // second Stop is a no-op
	assert.False(t, p.Status().Enabled)
}

func TestRecalculatePersistsSchedule(t *testing.T) {
	gw := &mockGateway{
		TemperatureFunc: func(ctx context.Context, entityID string, min, max, fallback float64) float64 {
			return 85
		},
	}
	p := newTestPump(t, gw)

	sched, err := p.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8.5, sched.Hours)
	assert.Equal(t, 8.5, sched.TotalHours)
	assert.Contains(t, sched.Reason, "85°F")

	var saved PumpSchedule
	found, err := p.store.GetSchedule(context.Background(), DevicePump, &saved)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 8.5, saved.Hours)
}

func TestRecoverExpiredJob(t *testing.T) {
	gw := &mockGateway{}
	p := newTestPump(t, gw)
	ctx := context.Background()

	start := time.Now().Add(-10 * time.Hour)
	jobID, err := p.store.CreateJob(ctx, DevicePump, "Daily Peak Sun", start, nil)
	require.NoError(t, err)
	require.NoError(t, p.store.UpsertSchedule(ctx, pumpActiveDevice, pumpActiveState{
		JobID:     jobID,
		EndTime:   start.Add(8 * time.Hour),
		StartedAt: start,
	}))

	p.recoverActiveJob(ctx)

	// The pump is forced off exactly once and the marker is removed.
	assert.Equal(t, []string{p.cfg.OffScript}, gw.scriptCalls())

	var state pumpActiveState
	found, err := p.store.GetSchedule(ctx, pumpActiveDevice, &state)
	require.NoError(t, err)
	assert.False(t, found)

	job, err := p.store.ActiveJob(ctx, DevicePump)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, PumpIdle, p.Status().State)

	// A second recovery pass finds nothing to do.
	p.recoverActiveJob(ctx)
	assert.Equal(t, []string{p.cfg.OffScript}, gw.scriptCalls())
}

func TestRecoverLiveJob(t *testing.T) {
	gw := &mockGateway{}
	p := newTestPump(t, gw)
	ctx := context.Background()

	start := time.Now().Add(-2 * time.Hour)
	jobID, err := p.store.CreateJob(ctx, DevicePump, "Daily Peak Sun", start, nil)
	require.NoError(t, err)
	require.NoError(t, p.store.UpsertSchedule(ctx, pumpActiveDevice, pumpActiveState{
		JobID:     jobID,
		EndTime:   start.Add(8 * time.Hour),
		StartedAt: start,
	}))

	p.recoverActiveJob(ctx)

	// The session resumes, no off command is sent.
	assert.Empty(t, gw.scriptCalls())
	status := p.Status()
	assert.True(t, status.IsRunning)
	assert.Equal(t, jobID, status.CurrentJobID)
	assert.Equal(t, PumpRunning, status.State)
}

func TestSessionStartAndStop(t *testing.T) {
	gw := &mockGateway{
		TemperatureFunc: func(ctx context.Context, entityID string, min, max, fallback float64) float64 {
			return 80
		},
	}
	p := newTestPump(t, gw)
	ctx := context.Background()

	_, err := p.Recalculate(ctx)
	require.NoError(t, err)
	p.startSession(ctx)

	status := p.Status()
	assert.True(t, status.IsRunning)
	assert.Equal(t, []string{p.cfg.OnScript}, gw.scriptCalls())

	var state pumpActiveState
	found, err := p.store.GetSchedule(ctx, pumpActiveDevice, &state)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, status.CurrentJobID, state.JobID)

	p.stopSession(ctx)

	assert.False(t, p.Status().IsRunning)
	assert.Equal(t, []string{p.cfg.OnScript, p.cfg.OffScript}, gw.scriptCalls())

	found, err = p.store.GetSchedule(ctx, pumpActiveDevice, &state)
	require.NoError(t, err)
	assert.False(t, found)

	jobs, err := p.store.JobsByDevice(ctx, DevicePump, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.NotNil(t, jobs[0].EndTime)
}

func TestRainExtensionAppliesOnce(t *testing.T) {
	gw := &mockGateway{
		TemperatureFunc: func(ctx context.Context, entityID string, min, max, fallback float64) float64 {
			return 80
		},
		WeatherFunc: func(ctx context.Context) gateway.Weather {
			return gateway.Weather{Temperature: 78, Humidity: 90, Forecast: "Rain showers"}
		},
	}
	p := newTestPump(t, gw)
	ctx := context.Background()

	_, err := p.Recalculate(ctx)
	require.NoError(t, err)
	p.startSession(ctx)

	before := p.Status()
	p.checkRainAndExtend(ctx)

	status := p.Status()
	assert.True(t, status.RainExtensionApplied)
	assert.Equal(t, before.Schedule.TotalHours+p.cfg.RainExtensionHours, status.Schedule.TotalHours)
	assert.Contains(t, status.Schedule.Reason, "rain extension")

	// The persisted end instant moves with the extension.
	var state pumpActiveState
	found, err := p.store.GetSchedule(ctx, pumpActiveDevice, &state)
	require.NoError(t, err)
	require.True(t, found)
	assert.WithinDuration(t, p.endTime, state.EndTime, time.Second)

	// The second detection on the same day is a no-op.
	p.checkRainAndExtend(ctx)
	assert.Equal(t, status.Schedule.TotalHours, p.Status().Schedule.TotalHours)
}

func TestRainCheckIgnoredWhileIdle(t *testing.T) {
	gw := &mockGateway{
		WeatherFunc: func(ctx context.Context) gateway.Weather {
			return gateway.Weather{Forecast: "Thunderstorm"}
		},
	}
	p := newTestPump(t, gw)

	p.checkRainAndExtend(context.Background())
	assert.False(t, p.Status().RainExtensionApplied)
}
