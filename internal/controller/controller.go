// Package controller implements the three device schedulers: the cyclic
// duty controller for the recirculation pump, the irrigation controller for
// the multi-zone sprinkler, and the closed-loop climate controller for the
// thermostat.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/joltersapp/homecontrol/internal/gateway"
)

// Device names used as store keys.
const (
	DevicePump      = "Pool Pump"
	DeviceSprinkler = "Sprinkler"
	DeviceClimate   = "Office Temperature"

	// pumpActiveDevice is the distinguished schedule key holding the
	// pump's in-flight session marker for crash recovery.
	pumpActiveDevice = DevicePump + " Active Job"
)

// ErrTargetOutOfRange is returned when a requested climate target falls
// outside the allowed 65-80°F band.
var ErrTargetOutOfRange = errors.New("target temperature must be between 65-80°F")

// ErrInvalidFeedback is returned for an unrecognized feedback type.
var ErrInvalidFeedback = errors.New("feedback type must be too_cold, too_hot or comfortable")

// Gateway is the slice of the sensor/actuator gateway the controllers use.
// *gateway.Client satisfies it.
type Gateway interface {
	RunScript(ctx context.Context, script string) error
	CallAction(ctx context.Context, domain, action, entityID string, params map[string]any) error
	Temperature(ctx context.Context, entityID string, min, max, fallback float64) float64
	ReadClimate(ctx context.Context, entityID string) (*gateway.ClimateState, error)
	HistoryValues(ctx context.Context, entityID string, hours int) ([]float64, error)
	CurrentWeather(ctx context.Context) gateway.Weather
}

// Notifier delivers device-event alerts. Delivery is best-effort and never
// affects control decisions.
type Notifier interface {
	Event(device, message string)
}

// noopNotifier is used when push notifications are not configured.
type noopNotifier struct{}

func (noopNotifier) Event(string, string) {}

// NoopNotifier returns a Notifier that discards events.
func NoopNotifier() Notifier { return noopNotifier{} }

// localDate formats an instant as YYYY-MM-DD in the given location.
func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// wait blocks for d or until the context is cancelled.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
