package store

import (
	"encoding/json"
	"fmt"
)

// JobKind tags the shape of a job's condition snapshot.
type JobKind string

const (
	KindDutyCycle         JobKind = "duty_cycle"
	KindIrrigation        JobKind = "irrigation"
	KindClimateAdjustment JobKind = "climate_adjustment"
	KindClimateMonitoring JobKind = "climate_monitoring"
	KindHVACEvent         JobKind = "hvac_event"
)

// Conditions is the condition snapshot attached to a JobRecord. Each job
// kind carries its own typed payload; serialization to JSON happens only
// here, at the persistence boundary.
type Conditions interface {
	Kind() JobKind
}

// DutyConditions captures the inputs behind a daily pump run.
type DutyConditions struct {
	Temperature   float64 `json:"temperature"`
	Reason        string  `json:"reason"`
	StartTime     string  `json:"startTime"`
	ExpectedHours float64 `json:"expectedHours"`
}

func (DutyConditions) Kind() JobKind { return KindDutyCycle }

// IrrigationConditions captures the decision behind a watering run.
type IrrigationConditions struct {
	Reasoning     string  `json:"reasoning"`
	AutoTriggered bool    `json:"autoTriggered"`
	ZoneMinutes   float64 `json:"zoneMinutes"`
	BreakMinutes  float64 `json:"breakMinutes"`
	Zones         int     `json:"zones"`
}

func (IrrigationConditions) Kind() JobKind { return KindIrrigation }

// RateSnapshot is a rate-of-change reading embedded in climate payloads.
type RateSnapshot struct {
	Rate       float64 `json:"rate"`
	Samples    int     `json:"samples"`
	Confidence string  `json:"confidence"`
}

// AdjustmentConditions captures a single setpoint change.
type AdjustmentConditions struct {
	RoomTemp    float64      `json:"roomTemp"`
	TargetTemp  float64      `json:"targetTemp"`
	Delta       float64      `json:"delta"`
	OldSetpoint float64      `json:"oldSetpoint"`
	NewSetpoint float64      `json:"newSetpoint"`
	Action      string       `json:"action"` // increase or decrease
	Rate15Min   RateSnapshot `json:"rate15min"`
	Rate30Min   RateSnapshot `json:"rate30min"`
}

func (AdjustmentConditions) Kind() JobKind { return KindClimateAdjustment }

// MonitoringConditions captures a periodic in-band snapshot.
type MonitoringConditions struct {
	RoomTemp   float64      `json:"roomTemp"`
	TargetTemp float64      `json:"targetTemp"`
	Delta      float64      `json:"delta"`
	Setpoint   float64      `json:"setpoint"`
	Rate15Min  RateSnapshot `json:"rate15min"`
	Rate30Min  RateSnapshot `json:"rate30min"`
}

func (MonitoringConditions) Kind() JobKind { return KindClimateMonitoring }

// HVACEventConditions captures a heating/cooling/idle transition.
type HVACEventConditions struct {
	HVACAction string  `json:"hvacAction"`
	RoomTemp   float64 `json:"roomTemp"`
	Setpoint   float64 `json:"setpoint"`
	TargetTemp float64 `json:"targetTemp"`
}

func (HVACEventConditions) Kind() JobKind { return KindHVACEvent }

type conditionsEnvelope struct {
	Kind JobKind         `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeConditions serializes a condition payload with its kind tag.
func EncodeConditions(c Conditions) (string, error) {
	if c == nil {
		return "", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal %s conditions: %w", c.Kind(), err)
	}
	env, err := json.Marshal(conditionsEnvelope{Kind: c.Kind(), Data: data})
	if err != nil {
		return "", fmt.Errorf("marshal conditions envelope: %w", err)
	}
	return string(env), nil
}

// DecodeConditions returns the kind tag and raw payload of a stored
// condition snapshot. Callers that need typed fields unmarshal the payload
// into the struct matching the kind.
func DecodeConditions(s string) (JobKind, json.RawMessage, error) {
	if s == "" {
		return "", nil, nil
	}
	var env conditionsEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal conditions envelope: %w", err)
	}
	return env.Kind, env.Data, nil
}
