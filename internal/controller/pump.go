package controller

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/gateway"
	"github.com/joltersapp/homecontrol/internal/store"
	"github.com/joltersapp/homecontrol/internal/trigger"
)

// PumpState is the pump controller's lifecycle state.
type PumpState string

const (
	PumpIdle      PumpState = "idle"
	PumpScheduled PumpState = "scheduled"
	PumpRunning   PumpState = "running"
)

// PumpSchedule is the persisted schedule document for the pump.
type PumpSchedule struct {
	Hours      float64    `json:"hours"`
	TotalHours float64    `json:"totalHours"`
	Reason     string     `json:"reason"`
	StartTime  string     `json:"startTime"`
	NextStart  *time.Time `json:"nextStart"`
	NextEnd    *time.Time `json:"nextEnd"`
}

// pumpActiveState is the persisted crash-recovery marker for an in-flight
// pump session.
type pumpActiveState struct {
	JobID     int64     `json:"jobId"`
	EndTime   time.Time `json:"endTime"`
	StartedAt time.Time `json:"startedAt"`
}

// PumpStatus is the externally visible controller state.
type PumpStatus struct {
	Enabled              bool         `json:"enabled"`
	State                PumpState    `json:"state"`
	Schedule             PumpSchedule `json:"schedule"`
	IsRunning            bool         `json:"isRunning"`
	CurrentJobID         int64        `json:"currentJobId"`
	RainExtensionApplied bool         `json:"rainExtensionApplied"`
}

// Pump runs a device for a temperature-derived number of hours once per
// day, extending the run when rain is detected, and recovers in-flight
// sessions across restarts.
type Pump struct {
	cfg    config.PumpConfig
	sched  *trigger.Scheduler
	gw     Gateway
	store  store.Store
	notify Notifier
	now    func() time.Time

	mu           sync.Mutex
	enabled      bool
	state        PumpState
	schedule     PumpSchedule
	currentJobID int64
	endTime      time.Time
	rainExtended bool
	stopHandle   trigger.Handle
	hasStop      bool
	handles      []trigger.Handle
}

// NewPump creates the pump controller.
func NewPump(cfg config.PumpConfig, sched *trigger.Scheduler, gw Gateway, st store.Store, notify Notifier) *Pump {
	if notify == nil {
		notify = NoopNotifier()
	}
	return &Pump{
		cfg:    cfg,
		sched:  sched,
		gw:     gw,
		store:  st,
		notify: notify,
		now:    time.Now,
		state:  PumpIdle,
		schedule: PumpSchedule{
			Hours:      8,
			TotalHours: 8,
			Reason:     "Not calculated yet",
			StartTime:  fmt.Sprintf("%02d:00", cfg.StartHour),
		},
	}
}

// Start loads the persisted schedule, registers the daily triggers, runs an
// initial calculation and recovers any in-flight session. Calling Start on
// a started controller is a no-op.
func (p *Pump) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.enabled {
		p.mu.Unlock()
		log.Println("[PumpScheduler] Already running")
		return nil
	}
	p.enabled = true
	p.mu.Unlock()

	if found, err := p.loadSchedule(ctx); err != nil {
		log.Printf("[PumpScheduler] Error loading schedule: %v", err)
	} else if found {
		log.Printf("[PumpScheduler] Loaded saved schedule: %.1f hours (%s)", p.schedule.Hours, p.schedule.Reason)
	}

	p.mu.Lock()
	p.handles = append(p.handles,
		p.sched.Recurring("pump-daily-calc", trigger.DailyAt(p.cfg.CalcHour, 0), func(ctx context.Context) {
			log.Printf("[PumpScheduler] %02d:00 - Running daily schedule recalculation", p.cfg.CalcHour)
			if _, err := p.Recalculate(ctx); err != nil {
				log.Printf("[PumpScheduler] Error calculating schedule: %v", err)
			}
			p.mu.Lock()
			p.rainExtended = false
			p.mu.Unlock()
		}),
		p.sched.Recurring("pump-start", trigger.DailyAt(p.cfg.StartHour, 0), func(ctx context.Context) {
			log.Printf("[PumpScheduler] %02d:00 - Starting pump session", p.cfg.StartHour)
			p.startSession(ctx)
		}),
		p.sched.Recurring("pump-rain-check", trigger.HourlyAt(0), func(ctx context.Context) {
			p.checkRainAndExtend(ctx)
		}),
	)
	p.mu.Unlock()

	if _, err := p.Recalculate(ctx); err != nil {
		log.Printf("[PumpScheduler] Initial calculation failed: %v", err)
	}
	p.recoverActiveJob(ctx)

	log.Println("[PumpScheduler] Started")
	return nil
}

// Stop cancels the controller's triggers, including any armed stop
// trigger. An in-flight session keeps its persisted marker so a later
// Start can recover it. Stopping a stopped controller is a no-op.
func (p *Pump) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	p.enabled = false
	for _, h := range p.handles {
		p.sched.Cancel(h)
	}
	p.handles = nil
	if p.hasStop {
		p.sched.Cancel(p.stopHandle)
		p.hasStop = false
	}
	log.Println("[PumpScheduler] Stopped")
}

// ComputeDutyHours derives the daily run duration from temperature:
// 1 hour per 10°F, clamped to [minHours, maxHours] and rounded to the
// nearest half hour.
func ComputeDutyHours(temp, minHours, maxHours float64) float64 {
	hours := temp / 10
	if hours < minHours {
		hours = minHours
	}
	if hours > maxHours {
		hours = maxHours
	}
	return math.Round(hours*2) / 2
}

// Recalculate recomputes today's run duration from the current temperature
// reading and persists the schedule.
func (p *Pump) Recalculate(ctx context.Context) (PumpSchedule, error) {
	temp := p.gw.Temperature(ctx, p.cfg.TemperatureSensor, 30, 120, 80)
	log.Printf("[PumpScheduler] Current temperature: %.1f°F", temp)

	hours := ComputeDutyHours(temp, p.cfg.MinHours, p.cfg.MaxHours)

	reason := fmt.Sprintf("%.0f°F = %.1fhrs (1hr per 10°F)", temp, hours)
	if temp/10 < p.cfg.MinHours {
		reason += fmt.Sprintf(" - minimum %.0fhrs for circulation", p.cfg.MinHours)
	}
	if temp/10 > p.cfg.MaxHours {
		reason += fmt.Sprintf(" - capped at %.0fhrs maximum", p.cfg.MaxHours)
	}

	now := p.now().In(p.sched.Location())
	nextStart := time.Date(now.Year(), now.Month(), now.Day(), p.cfg.StartHour, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	nextEnd := nextStart.Add(time.Duration(hours * float64(time.Hour)))

	sched := PumpSchedule{
		Hours:      hours,
		TotalHours: hours,
		Reason:     reason,
		StartTime:  fmt.Sprintf("%02d:00", p.cfg.StartHour),
		NextStart:  &nextStart,
		NextEnd:    &nextEnd,
	}

	p.mu.Lock()
	p.schedule = sched
	if p.state == PumpIdle {
		p.state = PumpScheduled
	}
	p.mu.Unlock()

	if err := p.store.UpsertSchedule(ctx, DevicePump, sched); err != nil {
		return sched, err
	}
	log.Printf("[PumpScheduler] Schedule calculated: %.1f hours (%s)", hours, reason)
	return sched, nil
}

// startSession turns the pump on, opens a job, persists the recovery
// marker and arms the stop trigger.
func (p *Pump) startSession(ctx context.Context) {
	if err := p.gw.RunScript(ctx, p.cfg.OnScript); err != nil {
		log.Printf("[PumpScheduler] Error starting pump: %v", err)
		return
	}

	p.mu.Lock()
	hours := p.schedule.Hours
	reason := p.schedule.Reason
	p.mu.Unlock()

	now := p.now()
	temp := p.gw.Temperature(ctx, p.cfg.TemperatureSensor, 30, 120, 80)
	jobID, err := p.store.CreateJob(ctx, DevicePump, "Daily Peak Sun", now, store.DutyConditions{
		Temperature:   temp,
		Reason:        reason,
		StartTime:     fmt.Sprintf("%02d:00", p.cfg.StartHour),
		ExpectedHours: hours,
	})
	if err != nil {
		log.Printf("[PumpScheduler] Error starting job tracking: %v", err)
	}

	endTime := now.Add(time.Duration(hours * float64(time.Hour)))
	if err := p.store.UpsertSchedule(ctx, pumpActiveDevice, pumpActiveState{
		JobID:     jobID,
		EndTime:   endTime,
		StartedAt: now,
	}); err != nil {
		log.Printf("[PumpScheduler] Error saving active job state: %v", err)
	}

	p.mu.Lock()
	p.state = PumpRunning
	p.currentJobID = jobID
	p.endTime = endTime
	p.armStopLocked(endTime)
	p.mu.Unlock()

	log.Printf("[PumpScheduler] Pump started - will run until %s (%.1fhrs)", endTime.Format(time.Kitchen), hours)
	p.notify.Event(DevicePump, fmt.Sprintf("Pump started, running %.1f hours", hours))
}

// stopSession turns the pump off, closes the job and clears the recovery
// marker.
func (p *Pump) stopSession(ctx context.Context) {
	if err := p.gw.RunScript(ctx, p.cfg.OffScript); err != nil {
		log.Printf("[PumpScheduler] Error stopping pump: %v", err)
	}

	p.mu.Lock()
	jobID := p.currentJobID
	p.currentJobID = 0
	p.state = PumpIdle
	if p.hasStop {
		p.sched.Cancel(p.stopHandle)
		p.hasStop = false
	}
	p.mu.Unlock()

	if jobID != 0 {
		if _, err := p.store.CloseJob(ctx, jobID, p.now()); err != nil {
			log.Printf("[PumpScheduler] Error ending job tracking: %v", err)
		}
	}
	if err := p.store.DeleteSchedule(ctx, pumpActiveDevice); err != nil {
		log.Printf("[PumpScheduler] Error clearing active job state: %v", err)
	}

	log.Println("[PumpScheduler] Pump session stopped")
	p.notify.Event(DevicePump, "Pump session stopped")
}

// armStopLocked replaces the one-shot stop trigger. Callers hold p.mu.
func (p *Pump) armStopLocked(at time.Time) {
	if p.hasStop {
		p.sched.Cancel(p.stopHandle)
	}
	p.stopHandle = p.sched.Once("pump-stop", at, func(ctx context.Context) {
		log.Println("[PumpScheduler] Session complete")
		p.stopSession(ctx)
	})
	p.hasStop = true
}

// checkRainAndExtend extends a running session once per day when rain is
// detected. Post-storm circulation deals with debris and pH swings.
func (p *Pump) checkRainAndExtend(ctx context.Context) {
	p.mu.Lock()
	running := p.currentJobID != 0
	extended := p.rainExtended
	p.mu.Unlock()
	if !running || extended {
		return
	}

	weather := p.gw.CurrentWeather(ctx)
	if !gateway.IsRaining(weather.Forecast) {
		return
	}

	ext := time.Duration(p.cfg.RainExtensionHours * float64(time.Hour))
	log.Printf("[PumpScheduler] Rain detected! Extending pump time by %.0f hours", p.cfg.RainExtensionHours)

	p.mu.Lock()
	p.endTime = p.endTime.Add(ext)
	newEnd := p.endTime
	jobID := p.currentJobID
	p.armStopLocked(newEnd)
	p.schedule.TotalHours += p.cfg.RainExtensionHours
	p.schedule.Reason += fmt.Sprintf(" + %.0fhrs rain extension", p.cfg.RainExtensionHours)
	sched := p.schedule
	p.rainExtended = true
	p.mu.Unlock()

	if err := p.store.UpsertSchedule(ctx, DevicePump, sched); err != nil {
		log.Printf("[PumpScheduler] Error saving schedule: %v", err)
	}
	// Keep the recovery marker in step with the new end instant.
	if err := p.store.UpsertSchedule(ctx, pumpActiveDevice, pumpActiveState{
		JobID:     jobID,
		EndTime:   newEnd,
		StartedAt: p.now(),
	}); err != nil {
		log.Printf("[PumpScheduler] Error saving active job state: %v", err)
	}

	log.Printf("[PumpScheduler] Extended to %.1f total hours", sched.TotalHours)
	p.notify.Event(DevicePump, fmt.Sprintf("Rain detected, pump run extended %.0f hours", p.cfg.RainExtensionHours))
}

// recoverActiveJob restores or settles an in-flight session found after a
// restart. An already-expired session is forced off and closed; a live one
// gets its stop trigger re-armed for the remaining time.
func (p *Pump) recoverActiveJob(ctx context.Context) {
	var state pumpActiveState
	found, err := p.store.GetSchedule(ctx, pumpActiveDevice, &state)
	if err != nil {
		log.Printf("[PumpScheduler] Error recovering active job: %v", err)
		return
	}
	if !found {
		log.Println("[PumpScheduler] No active job to recover")
		return
	}

	now := p.now()
	if !now.Before(state.EndTime) {
		log.Printf("[PumpScheduler] Job expired %s ago, forcing pump off", now.Sub(state.EndTime).Round(time.Minute))
		if err := p.gw.RunScript(ctx, p.cfg.OffScript); err != nil {
			log.Printf("[PumpScheduler] Error turning off pump: %v", err)
		}
		if state.JobID != 0 {
			if _, err := p.store.CloseJob(ctx, state.JobID, now); err != nil {
				log.Printf("[PumpScheduler] Error ending job tracking: %v", err)
			}
		}
		if err := p.store.DeleteSchedule(ctx, pumpActiveDevice); err != nil {
			log.Printf("[PumpScheduler] Error clearing active job state: %v", err)
		}
		p.notify.Event(DevicePump, "Recovered expired pump session, pump forced off")
		return
	}

	remaining := state.EndTime.Sub(now)
	log.Printf("[PumpScheduler] Recovering job - %s remaining", remaining.Round(time.Minute))

	p.mu.Lock()
	p.currentJobID = state.JobID
	p.endTime = state.EndTime
	p.state = PumpRunning
	p.armStopLocked(state.EndTime)
	p.mu.Unlock()
}

// loadSchedule restores the persisted schedule document, if any.
func (p *Pump) loadSchedule(ctx context.Context) (bool, error) {
	var sched PumpSchedule
	found, err := p.store.GetSchedule(ctx, DevicePump, &sched)
	if err != nil || !found {
		return found, err
	}
	p.mu.Lock()
	p.schedule = sched
	p.mu.Unlock()
	return true, nil
}

// Status returns the current controller state.
func (p *Pump) Status() PumpStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PumpStatus{
		Enabled:              p.enabled,
		State:                p.state,
		Schedule:             p.schedule,
		IsRunning:            p.currentJobID != 0,
		CurrentJobID:         p.currentJobID,
		RainExtensionApplied: p.rainExtended,
	}
}

// ForceRecalculate recomputes the schedule on demand.
func (p *Pump) ForceRecalculate(ctx context.Context) (PumpSchedule, error) {
	log.Println("[PumpScheduler] Manual recalculation requested")
	return p.Recalculate(ctx)
}
