package gateway

import (
	"context"
	"log"
	"strconv"
	"strings"
)

// Entity preference lists for installations that don't expose a dedicated
// weather integration.
var (
	temperatureEntities = []string{
		"sensor.outdoor_temperature",
		"sensor.outside_temperature",
		"sensor.temperature",
		"sensor.temperature_outdoor",
		"weather.home",
	}
	humidityEntities = []string{
		"sensor.outdoor_humidity",
		"sensor.outside_humidity",
		"sensor.humidity",
		"sensor.humidity_outdoor",
		"weather.home",
	}
)

// Fallback weather used when the gateway is unreachable.
var defaultWeather = Weather{Temperature: 75, Humidity: 50, Forecast: "Unavailable"}

// CurrentWeather scans all entity states for outdoor temperature, humidity
// and the current condition. Connectivity failures yield a conservative
// default snapshot rather than an error; controllers treat weather as
// advisory input, never a hard dependency.
func (c *Client) CurrentWeather(ctx context.Context) Weather {
	var states []State
	if err := c.do(ctx, "read states", "GET", "/api/states", nil, &states); err != nil {
		log.Printf("[Gateway] error fetching weather: %v, using defaults", err)
		return defaultWeather
	}

	byID := make(map[string]State, len(states))
	for _, st := range states {
		byID[st.EntityID] = st
	}

	return Weather{
		Temperature: findSensorValue(byID, temperatureEntities, "temperature", 75),
		Humidity:    findSensorValue(byID, humidityEntities, "humidity", 50),
		Forecast:    findForecast(states),
	}
}

// IsRaining reports whether a forecast string describes rain.
func IsRaining(forecast string) bool {
	cond := strings.ToLower(forecast)
	return strings.Contains(cond, "rain") ||
		strings.Contains(cond, "storm") ||
		strings.Contains(cond, "shower")
}

func findSensorValue(byID map[string]State, entityIDs []string, attribute string, fallback float64) float64 {
	for _, id := range entityIDs {
		st, ok := byID[id]
		if !ok {
			continue
		}
		if v, ok := attrFloat(st.Attributes, attribute); ok {
			return v
		}
		if st.State != "" && st.State != "unavailable" && st.State != "unknown" {
			if v, err := strconv.ParseFloat(st.State, 64); err == nil {
				return v
			}
		}
	}
	return fallback
}

func findForecast(states []State) string {
	for _, st := range states {
		if strings.HasPrefix(st.EntityID, "weather.") && st.State != "unavailable" && st.State != "" {
			return st.State
		}
	}
	for _, st := range states {
		if strings.Contains(st.EntityID, "forecast") && st.State != "unavailable" && st.State != "" {
			return st.State
		}
	}
	return "Clear"
}
