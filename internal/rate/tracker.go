// Package rate estimates a sensor value's rate of change over a trailing
// window from a bounded in-memory sample buffer.
package rate

import (
	"math"
	"sync"
	"time"
)

// Confidence grades a reading by how many samples backed it.
type Confidence string

const (
	ConfidenceHigh         Confidence = "high"   // >= 10 samples in window
	ConfidenceMedium       Confidence = "medium" // >= 5 samples in window
	ConfidenceLow          Confidence = "low"
	ConfidenceInsufficient Confidence = "insufficient_data"
)

// Sample is one buffered observation.
type Sample struct {
	Timestamp time.Time
	Value     float64
	Setpoint  float64
	Mode      string
}

// Reading is the rate of change over a trailing window.
type Reading struct {
	Rate        float64    // units per minute
	SampleCount int        // samples inside the window
	Confidence  Confidence
	Window      time.Duration
}

// Tracker keeps a bounded, time-ordered sample buffer. The oldest sample is
// evicted once the buffer is full. Not persisted; a restart starts empty.
type Tracker struct {
	mu      sync.Mutex
	samples []Sample
	max     int
	now     func() time.Time
}

// NewTracker creates a tracker holding at most max samples.
func NewTracker(max int) *Tracker {
	if max < 2 {
		max = 2
	}
	return &Tracker{max: max, now: time.Now}
}

// Record appends a sample stamped with the current time.
func (t *Tracker) Record(value, setpoint float64, mode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, Sample{
		Timestamp: t.now(),
		Value:     value,
		Setpoint:  setpoint,
		Mode:      mode,
	})
	if len(t.samples) > t.max {
		t.samples = t.samples[1:]
	}
}

// Len returns the number of buffered samples.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// RateOver computes the average rate of change over the trailing window by
// comparing the newest sample against the buffered sample closest to
// now-window.
func (t *Tracker) RateOver(window time.Duration) Reading {
	t.mu.Lock()
	defer t.mu.Unlock()

	reading := Reading{Window: window, Confidence: ConfidenceInsufficient}
	if len(t.samples) < 2 {
		return reading
	}

	now := t.now()
	target := now.Add(-window)

	var anchor Sample
	minDiff := time.Duration(math.MaxInt64)
	for _, s := range t.samples {
		diff := s.Timestamp.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			anchor = s
		}
	}

	latest := t.samples[len(t.samples)-1]
	elapsed := latest.Timestamp.Sub(anchor.Timestamp).Minutes()
	if elapsed > 0 {
		reading.Rate = (latest.Value - anchor.Value) / elapsed
	}

	for _, s := range t.samples {
		if !s.Timestamp.Before(target) {
			reading.SampleCount++
		}
	}
	switch {
	case reading.SampleCount >= 10:
		reading.Confidence = ConfidenceHigh
	case reading.SampleCount >= 5:
		reading.Confidence = ConfidenceMedium
	default:
		reading.Confidence = ConfidenceLow
	}
	return reading
}
