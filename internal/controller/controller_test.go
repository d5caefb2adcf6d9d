package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/joltersapp/homecontrol/internal/advisory"
	"github.com/joltersapp/homecontrol/internal/gateway"
	"github.com/joltersapp/homecontrol/internal/model"
	"github.com/joltersapp/homecontrol/internal/store"
)

// mockGateway satisfies Gateway with overridable behavior per test. Every
// script call is recorded in order.
type mockGateway struct {
	mu      sync.Mutex
	scripts []string
	actions []string

	RunScriptFunc     func(ctx context.Context, script string) error
	CallActionFunc    func(ctx context.Context, domain, action, entityID string, params map[string]any) error
	TemperatureFunc   func(ctx context.Context, entityID string, min, max, fallback float64) float64
	ReadClimateFunc   func(ctx context.Context, entityID string) (*gateway.ClimateState, error)
	HistoryValuesFunc func(ctx context.Context, entityID string, hours int) ([]float64, error)
	WeatherFunc       func(ctx context.Context) gateway.Weather
}

func (m *mockGateway) RunScript(ctx context.Context, script string) error {
	m.mu.Lock()
	m.scripts = append(m.scripts, script)
	m.mu.Unlock()
	if m.RunScriptFunc != nil {
		return m.RunScriptFunc(ctx, script)
	}
	return nil
}

func (m *mockGateway) CallAction(ctx context.Context, domain, action, entityID string, params map[string]any) error {
	m.mu.Lock()
	m.actions = append(m.actions, fmt.Sprintf("%s.%s %s %v", domain, action, entityID, params["temperature"]))
	m.mu.Unlock()
	if m.CallActionFunc != nil {
		return m.CallActionFunc(ctx, domain, action, entityID, params)
	}
	return nil
}

func (m *mockGateway) Temperature(ctx context.Context, entityID string, min, max, fallback float64) float64 {
	if m.TemperatureFunc != nil {
		return m.TemperatureFunc(ctx, entityID, min, max, fallback)
	}
	return fallback
}

func (m *mockGateway) ReadClimate(ctx context.Context, entityID string) (*gateway.ClimateState, error) {
	if m.ReadClimateFunc != nil {
		return m.ReadClimateFunc(ctx, entityID)
	}
	return &gateway.ClimateState{}, nil
}

func (m *mockGateway) HistoryValues(ctx context.Context, entityID string, hours int) ([]float64, error) {
	if m.HistoryValuesFunc != nil {
		return m.HistoryValuesFunc(ctx, entityID, hours)
	}
	return nil, nil
}

func (m *mockGateway) CurrentWeather(ctx context.Context) gateway.Weather {
	if m.WeatherFunc != nil {
		return m.WeatherFunc(ctx)
	}
	return gateway.Weather{Temperature: 75, Humidity: 50, Forecast: "Clear"}
}

func (m *mockGateway) scriptCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.scripts...)
}

func (m *mockGateway) actionCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}

// mockAdvisor satisfies advisory.Advisor with overridable behavior.
type mockAdvisor struct {
	PlanFunc   func(ctx context.Context, weather gateway.Weather, history store.WateringSummary) (advisory.Plan, error)
	WindowFunc func(ctx context.Context, location, date string) (advisory.Window, error)
}

func (m *mockAdvisor) WateringPlan(ctx context.Context, weather gateway.Weather, history store.WateringSummary) (advisory.Plan, error) {
	if m.PlanFunc != nil {
		return m.PlanFunc(ctx, weather, history)
	}
	return advisory.FallbackPlan(weather), nil
}

func (m *mockAdvisor) WateringWindow(ctx context.Context, location, date string) (advisory.Window, error) {
	if m.WindowFunc != nil {
		return m.WindowFunc(ctx, location, date)
	}
	return advisory.DefaultWindow("test"), nil
}

// newTestStore opens a fresh in-memory database named per test; the pool
// opens several connections and each plain :memory: DSN would get its own
// empty database.
func newTestStore(t *testing.T) store.Store {
	dsn := fmt.Sprintf("file:controller_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.ScheduleRecord{},
		&model.JobRecord{},
		&model.AIDecision{},
		&model.UserFeedback{},
		&model.PushSubscription{},
	))
	return store.NewGormStore(db)
}
