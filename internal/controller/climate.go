package controller

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/model"
	"github.com/joltersapp/homecontrol/internal/rate"
	"github.com/joltersapp/homecontrol/internal/store"
	"github.com/joltersapp/homecontrol/internal/trigger"
)

// ClimateStatus is the externally visible climate controller state.
type ClimateStatus struct {
	Enabled        bool          `json:"enabled"`
	TargetTemp     float64       `json:"targetTemp"`
	AdjustmentStep float64       `json:"adjustmentStep"`
	RoomTemp       float64       `json:"roomTemp"`
	Setpoint       float64       `json:"setpoint"`
	HVACAction     string        `json:"hvacAction"`
	Rate15Min      rate.Reading  `json:"rate15min"`
	Rate30Min      rate.Reading  `json:"rate30min"`
	Samples        int           `json:"samples"`
	LastAdjustment *time.Time    `json:"lastAdjustment"`
	Cooldown       time.Duration `json:"-"`
}

// Climate keeps a room at a target temperature by nudging the thermostat
// setpoint one step at a time, with a cooldown between adjustments and a
// periodic trend analysis that widens the step in unstable hours.
type Climate struct {
	cfg     config.ClimateConfig
	sched   *trigger.Scheduler
	gw      Gateway
	store   store.Store
	notify  Notifier
	tracker *rate.Tracker
	now     func() time.Time

	mu             sync.Mutex
	enabled        bool
	target         float64
	step           float64
	lastAdjustment time.Time
	lastMonitorLog time.Time
	lastHVACAction string
	lastRoomTemp   float64
	lastSetpoint   float64
	handles        []trigger.Handle
}

// NewClimate creates the climate controller.
func NewClimate(cfg config.ClimateConfig, sched *trigger.Scheduler, gw Gateway, st store.Store, notify Notifier) *Climate {
	if notify == nil {
		notify = NoopNotifier()
	}
	return &Climate{
		cfg:     cfg,
		sched:   sched,
		gw:      gw,
		store:   st,
		notify:  notify,
		tracker: rate.NewTracker(cfg.MaxSamples),
		now:     time.Now,
		target:  cfg.TargetTemp,
		step:    cfg.AdjustmentStep,
	}
}

// Start registers the poll and trend triggers and runs an immediate poll.
// Calling Start on a started controller is a no-op.
func (c *Climate) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.enabled {
		c.mu.Unlock()
		log.Println("[TempController] Already running")
		return nil
	}
	c.enabled = true
	c.handles = append(c.handles,
		c.sched.Recurring("climate-poll", trigger.Every(c.cfg.PollInterval), func(ctx context.Context) {
			c.poll(ctx)
		}),
		c.sched.Recurring("climate-trend", trigger.HourlyAt(0), func(ctx context.Context) {
			c.analyzeTrend(ctx)
		}),
	)
	c.mu.Unlock()

	log.Printf("[TempController] Started - target %.1f°F, polling every %s", c.target, c.cfg.PollInterval)
	c.poll(ctx)
	return nil
}

// Stop cancels the controller's triggers. The sample buffer is kept.
func (c *Climate) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.enabled = false
	for _, h := range c.handles {
		c.sched.Cancel(h)
	}
	c.handles = nil
	log.Println("[TempController] Stopped")
}

// poll reads the room and thermostat, logs HVAC transitions, and once the
// cooldown has elapsed records a sample and adjusts the setpoint when the
// room has drifted past the threshold.
func (c *Climate) poll(ctx context.Context) {
	state, err := c.gw.ReadClimate(ctx, c.cfg.Thermostat)
	if err != nil {
		log.Printf("[TempController] Error reading thermostat: %v", err)
		return
	}
	roomTemp := c.gw.Temperature(ctx, c.cfg.Sensor, 40, 100, state.CurrentTemp)

	c.mu.Lock()
	target := c.target
	step := c.step
	prevAction := c.lastHVACAction
	c.lastHVACAction = state.Action
	c.lastRoomTemp = roomTemp
	c.lastSetpoint = state.Setpoint
	c.mu.Unlock()

	// Transitions are recorded before the cooldown gate so the audit
	// trail never misses a heating/cooling flip. The first observation
	// after startup is not a transition.
	if prevAction != "" && state.Action != prevAction && state.Action != "" {
		log.Printf("[TempController] HVAC action: %s -> %s", prevAction, state.Action)
		err := c.store.RecordEvent(ctx, DeviceClimate, "HVAC Transition", c.now(), store.HVACEventConditions{
			HVACAction: state.Action,
			RoomTemp:   roomTemp,
			Setpoint:   state.Setpoint,
			TargetTemp: target,
		})
		if err != nil {
			log.Printf("[TempController] Error recording HVAC transition: %v", err)
		}
	}

	// The HVAC needs time to stabilize after a setpoint change, so the
	// rest of the poll waits out the cooldown.
	c.mu.Lock()
	inCooldown := c.now().Sub(c.lastAdjustment) < c.cfg.Cooldown
	c.mu.Unlock()
	if inCooldown {
		return
	}

	c.tracker.Record(roomTemp, state.Setpoint, state.Mode)

	delta := target - roomTemp
	r15 := c.tracker.RateOver(15 * time.Minute)
	r30 := c.tracker.RateOver(30 * time.Minute)

	if math.Abs(delta) < c.cfg.Threshold {
		c.logMonitoring(ctx, roomTemp, target, delta, state.Setpoint, r15, r30)
		return
	}

	var newSetpoint float64
	var action string
	if delta < 0 {
		// Room too warm, lower the setpoint but never below the
		// target or the absolute floor.
		floor := math.Max(target, c.cfg.MinSetpoint)
		newSetpoint = math.Max(state.Setpoint-step, floor)
		action = "decrease"
	} else {
		newSetpoint = math.Min(state.Setpoint+step, c.cfg.MaxSetpoint)
		action = "increase"
	}
	if newSetpoint == state.Setpoint {
		log.Printf("[TempController] Room %.1f°F off target but setpoint already at bound (%.1f°F)", roomTemp, state.Setpoint)
		return
	}

	err = c.gw.CallAction(ctx, "climate", "set_temperature", c.cfg.Thermostat, map[string]any{
		"temperature": newSetpoint,
	})
	if err != nil {
		log.Printf("[TempController] Error setting thermostat: %v", err)
		return
	}

	c.mu.Lock()
	c.lastAdjustment = c.now()
	c.mu.Unlock()

	log.Printf("[TempController] Room %.1f°F (target %.1f°F), setpoint %.1f -> %.1f°F (%s)",
		roomTemp, target, state.Setpoint, newSetpoint, action)

	err = c.store.RecordEvent(ctx, DeviceClimate, "Setpoint Adjustment", c.now(), store.AdjustmentConditions{
		RoomTemp:    roomTemp,
		TargetTemp:  target,
		Delta:       delta,
		OldSetpoint: state.Setpoint,
		NewSetpoint: newSetpoint,
		Action:      action,
		Rate15Min:   snapshot(r15),
		Rate30Min:   snapshot(r30),
	})
	if err != nil {
		log.Printf("[TempController] Error recording adjustment: %v", err)
	}
	c.notify.Event(DeviceClimate, fmt.Sprintf("Setpoint %s to %.1f°F (room %.1f°F)", action, newSetpoint, roomTemp))
}

// logMonitoring records an in-band snapshot, throttled so steady-state
// polling does not flood the job log.
func (c *Climate) logMonitoring(ctx context.Context, roomTemp, target, delta, setpoint float64, r15, r30 rate.Reading) {
	c.mu.Lock()
	due := c.now().Sub(c.lastMonitorLog) >= c.cfg.MonitorLogInterval
	if due {
		c.lastMonitorLog = c.now()
	}
	c.mu.Unlock()
	if !due {
		return
	}

	log.Printf("[TempController] In band: room %.1f°F, target %.1f°F, rate15 %.3f°F/min (%s)",
		roomTemp, target, r15.Rate, r15.Confidence)
	err := c.store.RecordEvent(ctx, DeviceClimate, "Monitoring", c.now(), store.MonitoringConditions{
		RoomTemp:   roomTemp,
		TargetTemp: target,
		Delta:      delta,
		Setpoint:   setpoint,
		Rate15Min:  snapshot(r15),
		Rate30Min:  snapshot(r30),
	})
	if err != nil {
		log.Printf("[TempController] Error recording monitoring snapshot: %v", err)
	}
}

// analyzeTrend inspects the trailing temperature history and widens the
// adjustment step when the room has been swinging. Half of an unstable
// window spent above and below target means the single step is chasing the
// room rather than settling it.
func (c *Climate) analyzeTrend(ctx context.Context) {
	values, err := c.gw.HistoryValues(ctx, c.cfg.Sensor, c.cfg.TrendWindowHours)
	if err != nil {
		log.Printf("[TempController] Error fetching trend history: %v", err)
		return
	}
	if len(values) < 2 {
		return
	}

	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	variance := maxV - minV

	step := c.cfg.AdjustmentStep
	if variance > c.cfg.VarianceThreshold {
		step = c.cfg.WideStep
		log.Printf("[TempController] Trend: %.1f°F swing over %dh, widening step to %.1f°F",
			variance, c.cfg.TrendWindowHours, step)
	} else {
		log.Printf("[TempController] Trend: %.1f°F swing over %dh, step %.1f°F",
			variance, c.cfg.TrendWindowHours, step)
	}

	c.mu.Lock()
	c.step = step
	c.mu.Unlock()
}

// SetTarget changes the target temperature. The cooldown resets so the
// next poll can act on the new target right away.
func (c *Climate) SetTarget(target float64) error {
	if target < 65 || target > 80 {
		return ErrTargetOutOfRange
	}
	c.mu.Lock()
	old := c.target
	c.target = target
	c.lastAdjustment = time.Time{}
	c.mu.Unlock()
	log.Printf("[TempController] Target changed: %.1f -> %.1f°F", old, target)
	return nil
}

// SubmitFeedback records a user comfort report alongside the controller's
// current view of the room.
func (c *Climate) SubmitFeedback(ctx context.Context, feedbackType string) error {
	switch feedbackType {
	case "too_cold", "too_hot", "comfortable":
	default:
		return ErrInvalidFeedback
	}

	c.mu.Lock()
	roomTemp := c.lastRoomTemp
	setpoint := c.lastSetpoint
	mode := c.lastHVACAction
	c.mu.Unlock()

	fb := &model.UserFeedback{
		FeedbackType:       feedbackType,
		RoomTemp:           roomTemp,
		ThermostatSetpoint: setpoint,
		HVACMode:           mode,
		CreatedAt:          c.now(),
	}
	if r := c.tracker.RateOver(15 * time.Minute); r.Confidence != rate.ConfidenceInsufficient {
		fb.Rate15Min = &r.Rate
	}
	if r := c.tracker.RateOver(30 * time.Minute); r.Confidence != rate.ConfidenceInsufficient {
		fb.Rate30Min = &r.Rate
	}

	log.Printf("[TempController] Feedback: %s at %.1f°F", feedbackType, roomTemp)
	return c.store.SaveFeedback(ctx, fb)
}

// Status returns the current controller state.
func (c *Climate) Status() ClimateStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := ClimateStatus{
		Enabled:        c.enabled,
		TargetTemp:     c.target,
		AdjustmentStep: c.step,
		RoomTemp:       c.lastRoomTemp,
		Setpoint:       c.lastSetpoint,
		HVACAction:     c.lastHVACAction,
		Rate15Min:      c.tracker.RateOver(15 * time.Minute),
		Rate30Min:      c.tracker.RateOver(30 * time.Minute),
		Samples:        c.tracker.Len(),
	}
	if !c.lastAdjustment.IsZero() {
		t := c.lastAdjustment
		status.LastAdjustment = &t
	}
	return status
}

func snapshot(r rate.Reading) store.RateSnapshot {
	return store.RateSnapshot{
		Rate:       r.Rate,
		Samples:    r.SampleCount,
		Confidence: string(r.Confidence),
	}
}
