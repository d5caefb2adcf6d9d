// Package trigger fires controller callbacks at wall-clock times. Each
// registered trigger owns its own goroutine and runs its callback inline
// before re-arming, so two firings of the same trigger can never overlap;
// triggers are otherwise independent of each other.
package trigger

import (
	"context"
	"log"
	"sync"
	"time"
)

// Func is a trigger callback. The context is cancelled when the scheduler
// stops. Callbacks are expected to handle their own errors; a panic is
// recovered and logged without unregistering the trigger.
type Func func(ctx context.Context)

// Spec describes when a recurring trigger fires.
type Spec interface {
	// Next returns the first firing instant strictly after now.
	Next(now time.Time) time.Time
}

type dailySpec struct {
	hour, minute int
}

func (d dailySpec) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// DailyAt fires once per day at the given local time.
func DailyAt(hour, minute int) Spec { return dailySpec{hour: hour, minute: minute} }

type hourlySpec struct {
	minute int
}

func (h hourlySpec) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), h.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

// HourlyAt fires every hour at the given minute.
func HourlyAt(minute int) Spec { return hourlySpec{minute: minute} }

type everySpec struct {
	interval time.Duration
}

func (e everySpec) Next(now time.Time) time.Time { return now.Add(e.interval) }

// Every fires at a fixed interval, measured from the end of the previous
// callback.
func Every(interval time.Duration) Spec { return everySpec{interval: interval} }

// Handle identifies a registered trigger for cancellation.
type Handle struct {
	id uint64
}

type trigger struct {
	name       string
	cancel     chan struct{}
	cancelOnce sync.Once
}

func (t *trigger) stop() {
	t.cancelOnce.Do(func() { close(t.cancel) })
}

// Scheduler owns a set of independent time triggers.
type Scheduler struct {
	loc  *time.Location
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	triggers map[uint64]*trigger
	nextID   uint64
	stopped  bool
}

// New creates a scheduler whose recurring triggers resolve fire times in
// the given location.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		loc:      loc,
		ctx:      ctx,
		stop:     cancel,
		triggers: make(map[uint64]*trigger),
	}
}

// Location returns the scheduler's timezone.
func (s *Scheduler) Location() *time.Location { return s.loc }

func (s *Scheduler) register(name string) (*trigger, Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, Handle{}, false
	}
	s.nextID++
	t := &trigger{name: name, cancel: make(chan struct{})}
	s.triggers[s.nextID] = t
	return t, Handle{id: s.nextID}, true
}

func (s *Scheduler) unregister(h Handle) {
	s.mu.Lock()
	delete(s.triggers, h.id)
	s.mu.Unlock()
}

// Recurring registers a trigger that fires repeatedly per spec until
// cancelled. The returned handle cancels it.
func (s *Scheduler) Recurring(name string, spec Spec, fn Func) Handle {
	t, h, ok := s.register(name)
	if !ok {
		return Handle{}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			next := spec.Next(time.Now().In(s.loc))
			timer := time.NewTimer(time.Until(next))
			select {
			case <-t.cancel:
				timer.Stop()
				return
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.fire(t, fn)
			}
		}
	}()
	return h
}

// Once registers a trigger that fires a single time at the given instant
// and then expires. An instant in the past fires immediately.
func (s *Scheduler) Once(name string, at time.Time, fn Func) Handle {
	t, h, ok := s.register(name)
	if !ok {
		return Handle{}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(h)
		timer := time.NewTimer(time.Until(at))
		select {
		case <-t.cancel:
			timer.Stop()
			return
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(t, fn)
		}
	}()
	return h
}

// Cancel stops a trigger before its next firing. An in-flight callback runs
// to completion. Cancelling an expired or already-cancelled handle is a
// no-op.
func (s *Scheduler) Cancel(h Handle) {
	s.mu.Lock()
	t, ok := s.triggers[h.id]
	if ok {
		delete(s.triggers, h.id)
	}
	s.mu.Unlock()
	if ok {
		t.stop()
	}
}

// Stop cancels every trigger and waits for in-flight callbacks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	triggers := make([]*trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		triggers = append(triggers, t)
	}
	s.triggers = make(map[uint64]*trigger)
	s.mu.Unlock()

	for _, t := range triggers {
		t.stop()
	}
	s.stop()
	s.wg.Wait()
}

// fire runs a callback inline, containing panics so a bad firing never
// kills the trigger.
func (s *Scheduler) fire(t *trigger, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Trigger] %s: recovered from panic: %v", t.name, r)
		}
	}()
	fn(s.ctx)
}
