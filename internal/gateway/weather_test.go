package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joltersapp/homecontrol/config"
)

func TestIsRaining(t *testing.T) {
	raining := []string{"Rain showers", "rainy", "Thunderstorm", "Scattered Showers", "STORM"}
	for _, f := range raining {
		assert.True(t, IsRaining(f), f)
	}

	dry := []string{"Clear", "Sunny", "Partly cloudy", "Fog", ""}
	for _, f := range dry {
		assert.False(t, IsRaining(f), f)
	}
}

func TestCurrentWeatherFromSensors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/states", r.URL.Path)
		fmt.Fprint(w, `[
			{"entity_id": "sensor.outdoor_temperature", "state": "88.3", "attributes": {}},
			{"entity_id": "sensor.outdoor_humidity", "state": "42", "attributes": {}},
			{"entity_id": "weather.home", "state": "sunny", "attributes": {}}
		]`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	weather := c.CurrentWeather(context.Background())
	assert.Equal(t, 88.3, weather.Temperature)
	assert.Equal(t, 42.0, weather.Humidity)
	assert.Equal(t, "sunny", weather.Forecast)
}

func TestCurrentWeatherPrefersDedicatedSensors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"entity_id": "weather.home", "state": "cloudy", "attributes": {"temperature": 70, "humidity": 60}},
			{"entity_id": "sensor.outdoor_temperature", "state": "91", "attributes": {}}
		]`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	weather := c.CurrentWeather(context.Background())
	assert.Equal(t, 91.0, weather.Temperature)
	assert.Equal(t, 60.0, weather.Humidity)
	assert.Equal(t, "cloudy", weather.Forecast)
}

func TestCurrentWeatherDefaultsOnFailure(t *testing.T) {
	c := NewClient(&config.GatewayConfig{URL: "http://127.0.0.1:1", Token: "x", Timeout: 100 * time.Millisecond})
	weather := c.CurrentWeather(context.Background())
	assert.Equal(t, defaultWeather, weather)
}

func TestCurrentWeatherNoMatchingEntities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"entity_id": "light.kitchen", "state": "on", "attributes": {}}]`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	weather := c.CurrentWeather(context.Background())
	assert.Equal(t, 75.0, weather.Temperature)
	assert.Equal(t, 50.0, weather.Humidity)
	assert.Equal(t, "Clear", weather.Forecast)
}
