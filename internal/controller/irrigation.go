package controller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/advisory"
	"github.com/joltersapp/homecontrol/internal/model"
	"github.com/joltersapp/homecontrol/internal/store"
	"github.com/joltersapp/homecontrol/internal/trigger"
)

// IrrigationStatus is the externally visible irrigation controller state.
type IrrigationStatus struct {
	Enabled      bool              `json:"enabled"`
	Running      bool              `json:"running"`
	Zones        int               `json:"zones"`
	NextWatering *time.Time        `json:"nextWatering"`
	WindowReason string            `json:"windowReason"`
	Decision     *model.AIDecision `json:"todayDecision"`
}

// Irrigation waters a multi-zone sprinkler system sequentially once per
// day, inside an advisor-chosen pre-sunrise window, using a per-zone
// duration decided shortly before the run from weather and watering
// history.
type Irrigation struct {
	cfg     config.IrrigationConfig
	sched   *trigger.Scheduler
	gw      Gateway
	store   store.Store
	advisor advisory.Advisor
	notify  Notifier
	now     func() time.Time

	mu           sync.Mutex
	enabled      bool
	running      bool
	nextWatering time.Time
	windowReason string
	handles      []trigger.Handle
}

// NewIrrigation creates the irrigation controller.
func NewIrrigation(cfg config.IrrigationConfig, sched *trigger.Scheduler, gw Gateway, st store.Store, adv advisory.Advisor, notify Notifier) *Irrigation {
	if notify == nil {
		notify = NoopNotifier()
	}
	return &Irrigation{
		cfg:     cfg,
		sched:   sched,
		gw:      gw,
		store:   st,
		advisor: adv,
		notify:  notify,
		now:     time.Now,
	}
}

// Start schedules the next watering window. Calling Start on a started
// controller is a no-op.
func (i *Irrigation) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.enabled {
		i.mu.Unlock()
		log.Println("[Sprinkler] Already running")
		return nil
	}
	i.enabled = true
	i.mu.Unlock()

	log.Printf("[Sprinkler] Started - %d zones, %dmin breaks", i.cfg.Zones, i.cfg.BreakMinutes)
	i.scheduleNext(ctx)
	return nil
}

// Stop cancels pending triggers. A cycle already in flight finishes its
// current zone sequence under its own context.
func (i *Irrigation) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.enabled {
		return
	}
	i.enabled = false
	for _, h := range i.handles {
		i.sched.Cancel(h)
	}
	i.handles = nil
	log.Println("[Sprinkler] Stopped")
}

// scheduleNext asks the advisor for tomorrow's watering window and arms
// two one-shots: the decision calculation shortly before the window, and
// the watering run itself. The run callback chains the next day's
// scheduling, so the controller stays armed indefinitely.
func (i *Irrigation) scheduleNext(ctx context.Context) {
	i.mu.Lock()
	if !i.enabled {
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()

	loc := i.sched.Location()
	tomorrow := i.now().In(loc).AddDate(0, 0, 1)
	date := tomorrow.Format("2006-01-02")

	window, err := i.advisor.WateringWindow(ctx, i.cfg.Location, date)
	if err != nil {
		log.Printf("[Sprinkler] Error getting watering window, retrying in %s: %v", i.cfg.RetryBackoff, err)
		i.mu.Lock()
		i.handles = append(i.handles, i.sched.Once("sprinkler-window-retry", i.now().Add(i.cfg.RetryBackoff), func(ctx context.Context) {
			i.scheduleNext(ctx)
		}))
		i.mu.Unlock()
		return
	}

	wateringAt := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), window.Hour, window.Minute, 0, 0, loc)
	calcAt := wateringAt.Add(-i.cfg.CalcLead)

	i.mu.Lock()
	i.nextWatering = wateringAt
	i.windowReason = window.Reasoning
	i.handles = append(i.handles,
		i.sched.Once("sprinkler-calc", calcAt, func(ctx context.Context) {
			i.CalculateDecision(ctx)
		}),
		i.sched.Once("sprinkler-water", wateringAt, func(ctx context.Context) {
			i.RunAuto(ctx)
			i.scheduleNext(ctx)
		}),
	)
	i.mu.Unlock()

	log.Printf("[Sprinkler] Next watering %s (%s), decision calc %s",
		wateringAt.Format("Mon 15:04"), window.Reasoning, calcAt.Format("15:04"))
}

// CalculateDecision gathers weather and watering history, asks the
// advisor for a plan, and persists the decision for today's date. A hard
// failure still leaves a usable fallback decision so the watering trigger
// never fires into a void.
func (i *Irrigation) CalculateDecision(ctx context.Context) (*model.AIDecision, error) {
	loc := i.sched.Location()
	date := localDate(i.now(), loc)

	weather := i.gw.CurrentWeather(ctx)
	history, err := i.store.WateringSummary(ctx, DeviceSprinkler, i.cfg.HistoryDays, i.now())
	if err != nil {
		log.Printf("[Sprinkler] Error loading watering history: %v", err)
		return i.persistFallback(ctx, date, "Fallback due to error loading history")
	}

	plan, err := i.advisor.WateringPlan(ctx, weather, history)
	if err != nil {
		log.Printf("[Sprinkler] Error getting watering plan: %v", err)
		return i.persistFallback(ctx, date, "Fallback due to advisory error")
	}

	decision := &model.AIDecision{
		Device:      DeviceSprinkler,
		Date:        date,
		Duration:    plan.Duration,
		Temperature: &weather.Temperature,
		Humidity:    &weather.Humidity,
		Forecast:    weather.Forecast,
		Reasoning:   plan.Reasoning,
		ShouldAct:   plan.ShouldWater,
	}
	if err := i.store.UpsertDecision(ctx, decision); err != nil {
		log.Printf("[Sprinkler] Error saving decision: %v", err)
		return decision, err
	}

	if plan.ShouldWater {
		log.Printf("[Sprinkler] Decision for %s: water %dmin/zone (%s)", date, plan.Duration, plan.Reasoning)
	} else {
		log.Printf("[Sprinkler] Decision for %s: skip (%s)", date, plan.Reasoning)
	}
	return decision, nil
}

// persistFallback stores the always-water safety decision used when the
// inputs to a real decision cannot be gathered.
func (i *Irrigation) persistFallback(ctx context.Context, date, reason string) (*model.AIDecision, error) {
	decision := &model.AIDecision{
		Device:    DeviceSprinkler,
		Date:      date,
		Duration:  i.cfg.FallbackDuration,
		Reasoning: reason,
		ShouldAct: true,
	}
	if err := i.store.UpsertDecision(ctx, decision); err != nil {
		log.Printf("[Sprinkler] Error saving fallback decision: %v", err)
		return decision, err
	}
	return decision, nil
}

// RunAuto executes today's stored decision. With no stored decision the
// run is skipped; a skip decision is recorded in the job log so the
// history shows the day was considered.
func (i *Irrigation) RunAuto(ctx context.Context) {
	loc := i.sched.Location()
	date := localDate(i.now(), loc)

	decision, err := i.store.DecisionForDate(ctx, DeviceSprinkler, date)
	if err != nil {
		log.Printf("[Sprinkler] Error loading decision: %v", err)
		return
	}
	if decision == nil {
		log.Printf("[Sprinkler] No decision stored for %s, skipping watering", date)
		return
	}
	if !decision.ShouldAct {
		log.Printf("[Sprinkler] Skipping watering: %s", decision.Reasoning)
		err := i.store.RecordEvent(ctx, DeviceSprinkler, "Skipped", i.now(), store.IrrigationConditions{
			Reasoning:     decision.Reasoning,
			AutoTriggered: true,
			Zones:         i.cfg.Zones,
		})
		if err != nil {
			log.Printf("[Sprinkler] Error recording skip: %v", err)
		}
		return
	}

	zoneDur := time.Duration(decision.Duration) * time.Minute
	breakDur := time.Duration(i.cfg.BreakMinutes) * time.Minute
	err = i.RunCycle(ctx, zoneDur, breakDur, store.IrrigationConditions{
		Reasoning:     decision.Reasoning,
		AutoTriggered: true,
		ZoneMinutes:   zoneDur.Minutes(),
		BreakMinutes:  breakDur.Minutes(),
		Zones:         i.cfg.Zones,
	})
	if err != nil {
		log.Printf("[Sprinkler] Watering cycle failed: %v", err)
	}
}

// RunCycle waters each zone in order for zoneDur with breakDur pauses
// between zones. A single valve feeds every zone and rotates during the
// break, so the same on/off scripts fire for each zone. The job row is
// closed on every exit path, including cancellation mid-cycle.
func (i *Irrigation) RunCycle(ctx context.Context, zoneDur, breakDur time.Duration, cond store.IrrigationConditions) error {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return fmt.Errorf("watering cycle already in progress")
	}
	i.running = true
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.running = false
		i.mu.Unlock()
	}()

	jobID, err := i.store.CreateJob(ctx, DeviceSprinkler, "Watering Cycle", i.now(), cond)
	if err != nil {
		log.Printf("[Sprinkler] Error starting job tracking: %v", err)
	}
	defer func() {
		if jobID != 0 {
			if minutes, err := i.store.CloseJob(context.WithoutCancel(ctx), jobID, i.now()); err != nil {
				log.Printf("[Sprinkler] Error ending job tracking: %v", err)
			} else {
				log.Printf("[Sprinkler] Cycle complete - %dmin total", minutes)
			}
		}
	}()

	log.Printf("[Sprinkler] Starting cycle: %d zones x %.0fmin", i.cfg.Zones, zoneDur.Minutes())
	i.notify.Event(DeviceSprinkler, fmt.Sprintf("Watering started, %d zones x %.0fmin", i.cfg.Zones, zoneDur.Minutes()))

	for zone := 1; zone <= i.cfg.Zones; zone++ {
		if err := i.gw.RunScript(ctx, i.cfg.OnScript); err != nil {
			return fmt.Errorf("start zone %d: %w", zone, err)
		}
		log.Printf("[Sprinkler] Zone %d on for %.0fmin", zone, zoneDur.Minutes())

		waitErr := wait(ctx, zoneDur)

		// Turn the zone off even when the wait was cancelled.
		if err := i.gw.RunScript(context.WithoutCancel(ctx), i.cfg.OffScript); err != nil {
			return fmt.Errorf("stop zone %d: %w", zone, err)
		}
		if waitErr != nil {
			return fmt.Errorf("cycle cancelled at zone %d: %w", zone, waitErr)
		}

		if zone < i.cfg.Zones {
			if err := wait(ctx, breakDur); err != nil {
				return fmt.Errorf("cycle cancelled during break after zone %d: %w", zone, err)
			}
		}
	}

	i.notify.Event(DeviceSprinkler, "Watering cycle complete")
	return nil
}

// Simulate runs a manual cycle with caller-chosen per-zone duration and
// break, bypassing the stored decision. A breakMinutes of zero uses the
// configured break.
func (i *Irrigation) Simulate(ctx context.Context, zoneMinutes, breakMinutes int) error {
	if zoneMinutes < 1 || zoneMinutes > 60 {
		return fmt.Errorf("zone duration must be between 1 and 60 minutes")
	}
	if breakMinutes < 0 || breakMinutes > 60 {
		return fmt.Errorf("break must be between 0 and 60 minutes")
	}
	if breakMinutes == 0 {
		breakMinutes = i.cfg.BreakMinutes
	}
	zoneDur := time.Duration(zoneMinutes) * time.Minute
	breakDur := time.Duration(breakMinutes) * time.Minute
	return i.RunCycle(ctx, zoneDur, breakDur, store.IrrigationConditions{
		Reasoning:     "Manual simulation",
		AutoTriggered: false,
		ZoneMinutes:   zoneDur.Minutes(),
		BreakMinutes:  breakDur.Minutes(),
		Zones:         i.cfg.Zones,
	})
}

// Status returns the current controller state including today's decision,
// if one has been calculated.
func (i *Irrigation) Status(ctx context.Context) IrrigationStatus {
	i.mu.Lock()
	status := IrrigationStatus{
		Enabled:      i.enabled,
		Running:      i.running,
		Zones:        i.cfg.Zones,
		WindowReason: i.windowReason,
	}
	if !i.nextWatering.IsZero() {
		t := i.nextWatering
		status.NextWatering = &t
	}
	i.mu.Unlock()

	date := localDate(i.now(), i.sched.Location())
	if decision, err := i.store.DecisionForDate(ctx, DeviceSprinkler, date); err == nil {
		status.Decision = decision
	}
	return status
}
