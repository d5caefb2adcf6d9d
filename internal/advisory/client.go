package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/gateway"
	"github.com/joltersapp/homecontrol/internal/store"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com"

// Client is an Advisor backed by a generative-language HTTP API.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewClient builds an advisory client. A missing API key is tolerated: all
// calls then answer with the local fallback rules.
func NewClient(cfg *config.AdvisoryConfig) *Client {
	if cfg.APIKey == "" {
		log.Println("[Advisory] API key not configured; falling back to local rules only")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool { return c.apiKey != "" }

// WateringPlan asks the service whether and how long to water today.
func (c *Client) WateringPlan(ctx context.Context, weather gateway.Weather, history store.WateringSummary) (Plan, error) {
	if c.apiKey == "" {
		return FallbackPlan(weather), nil
	}

	var parsed struct {
		ShouldWater *bool  `json:"shouldWater"`
		Duration    int    `json:"duration"`
		Reasoning   string `json:"reasoning"`
	}
	if err := c.generateJSON(ctx, planPrompt(weather, history), &parsed); err != nil {
		log.Printf("[Advisory] watering plan failed: %v, using fallback rules", err)
		return FallbackPlan(weather), nil
	}

	plan := Plan{
		ShouldWater: true,
		Duration:    clampDuration(parsed.Duration),
		Reasoning:   parsed.Reasoning,
	}
	if parsed.ShouldWater != nil {
		plan.ShouldWater = *parsed.ShouldWater
	}
	if plan.Reasoning == "" {
		plan.Reasoning = "No reasoning provided"
	}
	return plan, nil
}

// WateringWindow asks the service for tomorrow's optimal start time.
func (c *Client) WateringWindow(ctx context.Context, location, date string) (Window, error) {
	if c.apiKey == "" {
		return DefaultWindow("Default time (API key not configured)"), nil
	}

	var parsed struct {
		Sunrise   string `json:"sunrise_time"`
		Hour      int    `json:"optimal_watering_hour"`
		Minute    int    `json:"optimal_watering_minute"`
		Reasoning string `json:"reasoning"`
	}
	if err := c.generateJSON(ctx, windowPrompt(location, date), &parsed); err != nil {
		return Window{}, err
	}
	if parsed.Hour < 0 || parsed.Hour > 23 || parsed.Minute < 0 || parsed.Minute > 59 {
		return Window{}, fmt.Errorf("implausible watering time %d:%d", parsed.Hour, parsed.Minute)
	}

	w := Window{
		Hour:      parsed.Hour,
		Minute:    parsed.Minute,
		Sunrise:   parsed.Sunrise,
		Reasoning: parsed.Reasoning,
	}
	if w.Sunrise == "" {
		w.Sunrise = "Unknown"
	}
	return w, nil
}

// generateJSON sends a prompt and decodes the first JSON object embedded in
// the model's reply.
func (c *Client) generateJSON(ctx context.Context, prompt string, out any) error {
	reqBody := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("advisory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("advisory returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(text))
	}

	var reply struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode advisory response: %w", err)
	}
	if len(reply.Candidates) == 0 || len(reply.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("empty advisory response")
	}

	text := reply.Candidates[0].Content.Parts[0].Text
	doc, err := extractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("unmarshal advisory recommendation: %w", err)
	}
	return nil
}

// extractJSON pulls the outermost JSON object out of free text; models tend
// to wrap their answer in prose or code fences.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in advisory response")
	}
	return text[start : end+1], nil
}

func planPrompt(weather gateway.Weather, history store.WateringSummary) string {
	daily, _ := json.Marshal(history.Daily)
	lastWatered := history.LastWatered
	if lastWatered == "" {
		lastWatered = "Never"
	}
	return fmt.Sprintf(`You are a smart irrigation system AI. Based on the following weather conditions and watering history, determine whether to water today and the optimal duration.

Weather Data:
- Temperature: %.0f°F
- Humidity: %.0f%%
- Forecast: %s

Watering History (Last 7 Days):
- Last Watered: %s
- Days Since Last Watering: %d
- Total Minutes Last 7 Days: %d
- Daily History: %s

Best Practices for Lawn Watering:
- Water 2-3 times per week maximum (not daily)
- Lawns need 1-1.5 inches total per week (roughly 60-90 minutes total across all zones)
- Deep, infrequent watering promotes stronger root development
- Wait at least 1-2 days between waterings unless extreme heat
- Skip if watered within last 24 hours unless temperature is above 95°F

Guidelines:
- Decide if watering is needed at all (shouldWater: true/false)
- Skip watering if: heavy rain forecasted, recent rain, very high humidity (>80%%), temperature below 65°F, watered in last 24 hours
- Duration must be between 10-25 minutes per zone if watering
- Higher temperatures = longer watering time
- Lower humidity = longer watering time
- If total watering last 7 days > 90 minutes, be more conservative

Respond in JSON format:
{"shouldWater": <true or false>, "duration": <number between 10-25>, "reasoning": "<brief explanation>"}`,
		weather.Temperature, weather.Humidity, weather.Forecast,
		lastWatered, history.DaysSinceLastWatering, history.TotalMinutes, daily)
}

func windowPrompt(location, date string) string {
	return fmt.Sprintf(`You are a lawn irrigation timing expert. Calculate the optimal watering time for tomorrow.

Location: %s
Date: %s

Task:
1. Determine sunrise time for this location and date
2. Calculate optimal watering start time (30-60 minutes BEFORE sunrise is ideal)
3. Provide the time in 24-hour format

Best Practices:
- Water 30-60 minutes before sunrise for best absorption
- This ensures grass dries during the day (prevents fungal diseases)
- Minimizes evaporation loss

Respond in JSON format:
{"sunrise_time": "HH:MM", "optimal_watering_hour": <0-23>, "optimal_watering_minute": <0-59>, "reasoning": "<brief explanation>"}`,
		location, date)
}
