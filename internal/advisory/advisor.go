// Package advisory asks an external AI service for irrigation
// recommendations and falls back to deterministic local rules whenever the
// service is unconfigured, unreachable, or answers with something
// unparseable.
package advisory

import (
	"context"
	"fmt"

	"github.com/joltersapp/homecontrol/internal/gateway"
	"github.com/joltersapp/homecontrol/internal/store"
)

// Duration bounds for a single zone, in minutes. Recommendations outside
// the range are clamped.
const (
	MinZoneMinutes = 10
	MaxZoneMinutes = 25
)

// Plan is a watering recommendation for one day.
type Plan struct {
	ShouldWater bool   `json:"shouldWater"`
	Duration    int    `json:"duration"` // minutes per zone
	Reasoning   string `json:"reasoning"`
}

// Window is a recommended watering start time relative to sunrise.
type Window struct {
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
	Sunrise   string `json:"sunrise"`
	Reasoning string `json:"reasoning"`
}

// Advisor produces watering recommendations.
type Advisor interface {
	// WateringPlan decides whether to water today and for how long per
	// zone. It never fails on connectivity or malformed responses; those
	// degrade to FallbackPlan.
	WateringPlan(ctx context.Context, weather gateway.Weather, history store.WateringSummary) (Plan, error)
	// WateringWindow returns the optimal start time for the given date.
	// A connectivity or parse failure is returned to the caller so the
	// timing cycle can retry with backoff.
	WateringWindow(ctx context.Context, location, date string) (Window, error)
}

// DefaultWindow is the pre-dawn start used when no recommendation is
// available.
func DefaultWindow(reason string) Window {
	return Window{Hour: 5, Minute: 0, Sunrise: "Unknown", Reasoning: reason}
}

// FallbackPlan applies the deterministic local watering rules used when the
// advisory service cannot be consulted.
func FallbackPlan(weather gateway.Weather) Plan {
	if weather.Temperature < 65 {
		return Plan{
			ShouldWater: false,
			Reasoning:   fmt.Sprintf("Skipping: temperature too low (%.0f°F)", weather.Temperature),
		}
	}
	if weather.Humidity > 80 {
		return Plan{
			ShouldWater: false,
			Reasoning:   fmt.Sprintf("Skipping: humidity too high (%.0f%%)", weather.Humidity),
		}
	}
	if gateway.IsRaining(weather.Forecast) {
		return Plan{
			ShouldWater: false,
			Reasoning:   fmt.Sprintf("Skipping: rain in forecast (%s)", weather.Forecast),
		}
	}

	duration := 15
	if weather.Temperature > 85 {
		duration += 5
	} else if weather.Temperature < 70 {
		duration -= 3
	}
	if weather.Humidity < 30 {
		duration += 3
	} else if weather.Humidity > 70 {
		duration -= 3
	}

	return Plan{
		ShouldWater: true,
		Duration:    clampDuration(duration),
		Reasoning:   fmt.Sprintf("Fallback calculation: temp %.0f°F, humidity %.0f%%", weather.Temperature, weather.Humidity),
	}
}

func clampDuration(minutes int) int {
	if minutes < MinZoneMinutes {
		return MinZoneMinutes
	}
	if minutes > MaxZoneMinutes {
		return MaxZoneMinutes
	}
	return minutes
}
