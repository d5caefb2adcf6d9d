package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock advances a fixed instant under test control.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(max int) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(max)
	tr.now = clock.now
	return tr, clock
}

func TestRateOver_WarmingRoom(t *testing.T) {
	tr, clock := newTestTracker(720)

	// 70°F rising to 72°F over 15 minutes, sampled every 3 minutes.
	temps := []float64{70, 70.4, 70.8, 71.2, 71.6, 72}
	for i, temp := range temps {
		if i > 0 {
			clock.advance(3 * time.Minute)
		}
		tr.Record(temp, 72, "cool")
	}

	reading := tr.RateOver(15 * time.Minute)
	assert.InDelta(t, 2.0/15.0, reading.Rate, 0.001)
	assert.Equal(t, 6, reading.SampleCount)
	assert.Equal(t, ConfidenceMedium, reading.Confidence)
}

func TestRateOver_InsufficientData(t *testing.T) {
	tr, _ := newTestTracker(720)

	reading := tr.RateOver(15 * time.Minute)
	assert.Equal(t, ConfidenceInsufficient, reading.Confidence)
	assert.Zero(t, reading.Rate)

	tr.Record(70, 72, "cool")
	reading = tr.RateOver(15 * time.Minute)
	assert.Equal(t, ConfidenceInsufficient, reading.Confidence)
}

func TestRateOver_ConfidenceHigh(t *testing.T) {
	tr, clock := newTestTracker(720)

	for i := 0; i < 12; i++ {
		tr.Record(70+float64(i)*0.1, 72, "cool")
		clock.advance(time.Minute)
	}

	reading := tr.RateOver(30 * time.Minute)
	assert.Equal(t, ConfidenceHigh, reading.Confidence)
}

func TestRateOver_StableRoomIsZero(t *testing.T) {
	tr, clock := newTestTracker(720)

	for i := 0; i < 6; i++ {
		tr.Record(72, 72, "idle")
		clock.advance(3 * time.Minute)
	}

	reading := tr.RateOver(15 * time.Minute)
	assert.Zero(t, reading.Rate)
}

func TestRecord_EvictsOldestAtCapacity(t *testing.T) {
	tr, clock := newTestTracker(5)

	for i := 0; i < 8; i++ {
		tr.Record(float64(i), 72, "cool")
		clock.advance(time.Minute)
	}

	assert.Equal(t, 5, tr.Len())

	// The surviving window starts at the sixth sample.
	reading := tr.RateOver(4 * time.Minute)
	assert.InDelta(t, 1.0, reading.Rate, 0.001)
}
