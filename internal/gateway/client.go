// Package gateway wraps the home-automation platform's REST API: entity
// state reads, service calls for actuation, and sensor history.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/joltersapp/homecontrol/config"
)

// ConnectivityError reports that the gateway was unreachable or answered
// with a non-2xx status.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// State is one entity's state and attributes.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// ClimateState is the thermostat view used by the climate controller.
type ClimateState struct {
	Setpoint    float64
	CurrentTemp float64
	Mode        string
	Action      string
}

// Weather is the current outdoor snapshot used for irrigation and rain
// decisions.
type Weather struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Forecast    string  `json:"forecast"`
}

// Client talks to the gateway over authenticated HTTP with a bounded
// per-call timeout.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a gateway client from configuration. A missing token is
// tolerated; calls will fail with a ConnectivityError and controllers fall
// back to their local defaults.
func NewClient(cfg *config.GatewayConfig) *Client {
	if cfg.Token == "" {
		log.Println("[Gateway] token not configured; actuator and sensor calls will fail until one is provided")
	}
	return &Client{
		baseURL: cfg.URL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool { return c.token != "" }

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	if c.token == "" {
		return &ConnectivityError{Op: op, Err: fmt.Errorf("gateway token not configured")}
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ConnectivityError{Op: op, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(text))}
	}

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &ConnectivityError{Op: op, Err: err}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}

// ReadState fetches a single entity's state.
func (c *Client) ReadState(ctx context.Context, entityID string) (*State, error) {
	var st State
	if err := c.do(ctx, "read "+entityID, http.MethodGet, "/api/states/"+entityID, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CallAction invokes a service in the given domain against an entity.
func (c *Client) CallAction(ctx context.Context, domain, action, entityID string, params map[string]any) error {
	body := map[string]any{"entity_id": entityID}
	for k, v := range params {
		body[k] = v
	}
	op := fmt.Sprintf("call %s.%s", domain, action)
	return c.do(ctx, op, http.MethodPost, fmt.Sprintf("/api/services/%s/%s", domain, action), body, nil)
}

// RunScript triggers a script entity. Actuation for the pump and sprinkler
// is modeled as on/off scripts on the platform side.
func (c *Client) RunScript(ctx context.Context, script string) error {
	return c.CallAction(ctx, "script", "turn_on", script, nil)
}

// HistoryValues fetches the numeric state history of an entity over the
// trailing number of hours, oldest first.
func (c *Client) HistoryValues(ctx context.Context, entityID string, hours int) ([]float64, error) {
	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	path := fmt.Sprintf("/api/history/period/%s?filter_entity_id=%s&end_time=%s",
		start.Format(time.RFC3339), entityID, end.Format(time.RFC3339))

	var history [][]State
	if err := c.do(ctx, "history "+entityID, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}

	values := make([]float64, 0, len(history[0]))
	for _, st := range history[0] {
		if v, err := strconv.ParseFloat(st.State, 64); err == nil {
			values = append(values, v)
		}
	}
	return values, nil
}

// Temperature reads a temperature sensor and validates the reading against
// a plausibility window. Out-of-range or unreadable values yield the
// fallback, logged, never an error: a bad sensor must not stop a control
// loop.
func (c *Client) Temperature(ctx context.Context, entityID string, min, max, fallback float64) float64 {
	st, err := c.ReadState(ctx, entityID)
	if err != nil {
		log.Printf("[Gateway] error reading %s: %v, using %.1f fallback", entityID, err, fallback)
		return fallback
	}
	temp, err := strconv.ParseFloat(st.State, 64)
	if err != nil || temp < min || temp > max {
		log.Printf("[Gateway] implausible reading %q from %s, using %.1f fallback", st.State, entityID, fallback)
		return fallback
	}
	return temp
}

// ReadClimate reads a thermostat entity's setpoint, room temperature, mode
// and current action.
func (c *Client) ReadClimate(ctx context.Context, entityID string) (*ClimateState, error) {
	st, err := c.ReadState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	cs := &ClimateState{Mode: st.State, Action: "idle"}
	if v, ok := attrFloat(st.Attributes, "temperature"); ok {
		cs.Setpoint = v
	}
	if v, ok := attrFloat(st.Attributes, "current_temperature"); ok {
		cs.CurrentTemp = v
	}
	if v, ok := st.Attributes["hvac_action"].(string); ok && v != "" {
		cs.Action = v
	}
	return cs, nil
}

func attrFloat(attrs map[string]any, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
