package controller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/gateway"
	"github.com/joltersapp/homecontrol/internal/store"
	"github.com/joltersapp/homecontrol/internal/trigger"
)

func climateConfig() config.ClimateConfig {
	cfg := config.Config{}
	cfg.ApplyDefaults()
	return cfg.Climate
}

func newTestClimate(t *testing.T, gw Gateway) *Climate {
	sched := trigger.New(time.UTC)
	t.Cleanup(sched.Stop)
	return NewClimate(climateConfig(), sched, gw, newTestStore(t), nil)
}

// climateGateway builds a mock whose thermostat and room sensor return
// fixed values.
func climateGateway(roomTemp, setpoint float64, action string) *mockGateway {
	return &mockGateway{
		TemperatureFunc: func(ctx context.Context, entityID string, min, max, fallback float64) float64 {
			return roomTemp
		},
		ReadClimateFunc: func(ctx context.Context, entityID string) (*gateway.ClimateState, error) {
			return &gateway.ClimateState{
				Setpoint:    setpoint,
				CurrentTemp: roomTemp,
				Mode:        "cool",
				Action:      action,
			}, nil
		},
	}
}

func TestClimateStartStopLifecycle(t *testing.T) {
	gw := climateGateway(73.2, 73, "idle")
	c := newTestClimate(t, gw)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background())) // second Start is a no-op

	c.Stop()
	c.Stop() // second Stop is a no-op
	assert.False(t, c.Status().Enabled)
}

func TestPollInBandDoesNotAdjust(t *testing.T) {
	gw := climateGateway(73.2, 73, "idle")
	c := newTestClimate(t, gw)
	ctx := context.Background()

	c.poll(ctx)

	assert.Empty(t, gw.actionCalls())

	// The in-band snapshot lands in the job log.
	jobs, err := c.store.JobsByDevice(ctx, DeviceClimate, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Monitoring", jobs[0].Session)
}

func TestPollTooWarmLowersSetpoint(t *testing.T) {
	gw := climateGateway(75, 74.5, "idle")
	c := newTestClimate(t, gw)
	ctx := context.Background()

	c.poll(ctx)

	calls := gw.actionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "climate.set_temperature climate.walkway 73.5", calls[0])

	jobs, err := c.store.JobsByDevice(ctx, DeviceClimate, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Setpoint Adjustment", jobs[0].Session)

	// Delta is target minus room, negative when too warm.
	_, raw, err := store.DecodeConditions(jobs[0].Conditions)
	require.NoError(t, err)
	var cond store.AdjustmentConditions
	require.NoError(t, json.Unmarshal(raw, &cond))
	assert.Equal(t, -2.0, cond.Delta)
}

func TestPollAdjustsAtExactThreshold(t *testing.T) {
	// A drift of exactly the threshold is out of band.
	gw := climateGateway(73.5, 74.5, "idle")
	c := newTestClimate(t, gw)

	c.poll(context.Background())

	calls := gw.actionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "climate.set_temperature climate.walkway 73.5", calls[0])
}

func TestPollTooColdRaisesSetpoint(t *testing.T) {
	gw := climateGateway(71, 72, "idle")
	c := newTestClimate(t, gw)

	c.poll(context.Background())

	calls := gw.actionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "climate.set_temperature climate.walkway 73", calls[0])
}

func TestDecreaseNeverDropsBelowTarget(t *testing.T) {
	// Room warm but setpoint already at the target. Cooling harder than
	// the target would overshoot.
	gw := climateGateway(75, 73, "cooling")
	c := newTestClimate(t, gw)

	c.poll(context.Background())
	assert.Empty(t, gw.actionCalls())
}

func TestIncreaseStopsAtMaxSetpoint(t *testing.T) {
	gw := climateGateway(70, 78, "idle")
	c := newTestClimate(t, gw)

	c.poll(context.Background())
	assert.Empty(t, gw.actionCalls())
}

func TestCooldownBlocksSecondAdjustment(t *testing.T) {
	gw := climateGateway(75, 75, "idle")
	c := newTestClimate(t, gw)
	ctx := context.Background()

	c.poll(ctx)
	c.poll(ctx)

	assert.Len(t, gw.actionCalls(), 1)
}

func TestCooldownSkipsSamplingAndMonitoring(t *testing.T) {
	gw := climateGateway(75, 75, "idle")
	c := newTestClimate(t, gw)
	ctx := context.Background()

	c.poll(ctx)
	require.Len(t, gw.actionCalls(), 1)
	require.Equal(t, 1, c.Status().Samples)

	// The room settles back in band while the cooldown is still active.
	// The poll bails before sampling or writing a monitoring row.
	gw.TemperatureFunc = func(ctx context.Context, entityID string, min, max, fallback float64) float64 {
		return 73.2
	}
	c.poll(ctx)

	assert.Equal(t, 1, c.Status().Samples)
	jobs, err := c.store.JobsByDevice(ctx, DeviceClimate, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Setpoint Adjustment", jobs[0].Session)
}

func TestSetTargetResetsCooldown(t *testing.T) {
	gw := climateGateway(75, 75, "idle")
	c := newTestClimate(t, gw)
	ctx := context.Background()

	c.poll(ctx)
	require.Len(t, gw.actionCalls(), 1)

	require.NoError(t, c.SetTarget(70))
	c.poll(ctx)

	assert.Len(t, gw.actionCalls(), 2)
}

func TestSetTargetValidation(t *testing.T) {
	c := newTestClimate(t, climateGateway(73, 73, "idle"))

	assert.ErrorIs(t, c.SetTarget(64), ErrTargetOutOfRange)
	assert.ErrorIs(t, c.SetTarget(81), ErrTargetOutOfRange)
	assert.NoError(t, c.SetTarget(65))
	assert.NoError(t, c.SetTarget(80))
	assert.Equal(t, 80.0, c.Status().TargetTemp)
}

func TestHVACTransitionRecordedDuringCooldown(t *testing.T) {
	gw := climateGateway(75, 75, "idle")
	c := newTestClimate(t, gw)
	ctx := context.Background()

	c.poll(ctx)
	require.Len(t, gw.actionCalls(), 1)

	// The thermostat starts cooling while the cooldown is active.
	gw.ReadClimateFunc = func(ctx context.Context, entityID string) (*gateway.ClimateState, error) {
		return &gateway.ClimateState{Setpoint: 74, CurrentTemp: 75, Mode: "cool", Action: "cooling"}, nil
	}
	c.poll(ctx)

	// No second adjustment, but the transition is on record.
	assert.Len(t, gw.actionCalls(), 1)
	jobs, err := c.store.JobsByDevice(ctx, DeviceClimate, 10)
	require.NoError(t, err)

	var sessions []string
	for _, j := range jobs {
		sessions = append(sessions, j.Session)
	}
	assert.Contains(t, sessions, "HVAC Transition")
}

func TestTrendWidensStep(t *testing.T) {
	gw := climateGateway(73, 73, "idle")
	gw.HistoryValuesFunc = func(ctx context.Context, entityID string, hours int) ([]float64, error) {
		return []float64{69, 71, 75, 74, 70}, nil // 6°F swing
	}
	c := newTestClimate(t, gw)

	c.analyzeTrend(context.Background())
	assert.Equal(t, c.cfg.WideStep, c.Status().AdjustmentStep)

	// A calm window restores the default step.
	gw.HistoryValuesFunc = func(ctx context.Context, entityID string, hours int) ([]float64, error) {
		return []float64{72.5, 73, 73.4, 72.8}, nil
	}
	c.analyzeTrend(context.Background())
	assert.Equal(t, c.cfg.AdjustmentStep, c.Status().AdjustmentStep)
}

func TestSubmitFeedback(t *testing.T) {
	gw := climateGateway(74, 73, "cooling")
	c := newTestClimate(t, gw)
	ctx := context.Background()

	assert.ErrorIs(t, c.SubmitFeedback(ctx, "freezing"), ErrInvalidFeedback)

	c.poll(ctx)
	require.NoError(t, c.SubmitFeedback(ctx, "too_hot"))
}
