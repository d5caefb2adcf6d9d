package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Advisory   AdvisoryConfig   `yaml:"advisory"`
	Pump       PumpConfig       `yaml:"pump"`
	Irrigation IrrigationConfig `yaml:"irrigation"`
	Climate    ClimateConfig    `yaml:"climate"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Timezone   string           `yaml:"timezone"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// GatewayConfig holds the home-automation gateway connection settings.
type GatewayConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// AdvisoryConfig holds the AI advisory service settings.
type AdvisoryConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// PumpConfig holds the recirculation pump controller settings.
type PumpConfig struct {
	Enabled            bool    `yaml:"enabled"`
	TemperatureSensor  string  `yaml:"temperature_sensor"`
	OnScript           string  `yaml:"on_script"`
	OffScript          string  `yaml:"off_script"`
	CalcHour           int     `yaml:"calc_hour"`
	StartHour          int     `yaml:"start_hour"`
	MinHours           float64 `yaml:"min_hours"`
	MaxHours           float64 `yaml:"max_hours"`
	RainExtensionHours float64 `yaml:"rain_extension_hours"`
}

// IrrigationConfig holds the sprinkler controller settings.
type IrrigationConfig struct {
	Enabled             bool          `yaml:"enabled"`
	OnScript            string        `yaml:"on_script"`
	OffScript           string        `yaml:"off_script"`
	Zones               int           `yaml:"zones"`
	BreakMinutes        int           `yaml:"break_minutes"`
	Location            string        `yaml:"location"`
	FallbackDuration    int           `yaml:"fallback_duration_minutes"`
	RetryBackoffMinutes int           `yaml:"retry_backoff_minutes"`
	CalcLeadMinutes     int           `yaml:"calc_lead_minutes"`
	HistoryDays         int           `yaml:"history_days"`
	RetryBackoff        time.Duration `yaml:"-"`
	CalcLead            time.Duration `yaml:"-"`
}

// ClimateConfig holds the thermostat controller settings.
type ClimateConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Sensor             string        `yaml:"sensor"`
	Thermostat         string        `yaml:"thermostat"`
	TargetTemp         float64       `yaml:"target_temp"`
	Threshold          float64       `yaml:"threshold"`
	AdjustmentStep     float64       `yaml:"adjustment_step"`
	WideStep           float64       `yaml:"wide_step"`
	MinSetpoint        float64       `yaml:"min_setpoint"`
	MaxSetpoint        float64       `yaml:"max_setpoint"`
	PollMinutes        int           `yaml:"poll_minutes"`
	CooldownMinutes    int           `yaml:"cooldown_minutes"`
	MonitorLogMinutes  int           `yaml:"monitor_log_minutes"`
	TrendWindowHours   int           `yaml:"trend_window_hours"`
	VarianceThreshold  float64       `yaml:"variance_threshold"`
	MaxSamples         int           `yaml:"max_samples"`
	PollInterval       time.Duration `yaml:"-"`
	Cooldown           time.Duration `yaml:"-"`
	MonitorLogInterval time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in defaults for unset or invalid values.
func (cfg *Config) ApplyDefaults() {
	if cfg.Timezone == "" {
		cfg.Timezone = "America/New_York"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "data/homecontrol.db"
	}

	if cfg.Gateway.TimeoutSeconds <= 0 {
		cfg.Gateway.TimeoutSeconds = 10
	}
	cfg.Gateway.Timeout = time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second

	if cfg.Advisory.TimeoutSeconds <= 0 {
		cfg.Advisory.TimeoutSeconds = 30
	}
	if cfg.Advisory.Model == "" {
		cfg.Advisory.Model = "gemini-2.5-flash"
	}
	cfg.Advisory.Timeout = time.Duration(cfg.Advisory.TimeoutSeconds) * time.Second

	p := &cfg.Pump
	if p.TemperatureSensor == "" {
		p.TemperatureSensor = "sensor.nws_temperature"
	}
	if p.OnScript == "" {
		p.OnScript = "script.turn_on_pool_pump"
	}
	if p.OffScript == "" {
		p.OffScript = "script.turn_off_pool_pump"
	}
	if p.CalcHour <= 0 {
		p.CalcHour = 5
	}
	if p.StartHour <= 0 {
		p.StartHour = 10
	}
	if p.MinHours <= 0 {
		p.MinHours = 4
	}
	if p.MaxHours <= 0 {
		p.MaxHours = 10
	}
	if p.RainExtensionHours <= 0 {
		p.RainExtensionHours = 3
	}

	ir := &cfg.Irrigation
	if ir.OnScript == "" {
		ir.OnScript = "script.turn_on_sprinkler"
	}
	if ir.OffScript == "" {
		ir.OffScript = "script.turn_off_sprinkler"
	}
	if ir.Zones <= 0 {
		ir.Zones = 4
	}
	if ir.BreakMinutes <= 0 {
		ir.BreakMinutes = 3
	}
	if ir.Location == "" {
		ir.Location = "Miami, FL"
	}
	if ir.FallbackDuration <= 0 {
		ir.FallbackDuration = 15
	}
	if ir.RetryBackoffMinutes <= 0 {
		ir.RetryBackoffMinutes = 60
	}
	if ir.CalcLeadMinutes <= 0 {
		ir.CalcLeadMinutes = 30
	}
	if ir.HistoryDays <= 0 {
		ir.HistoryDays = 7
	}
	ir.RetryBackoff = time.Duration(ir.RetryBackoffMinutes) * time.Minute
	ir.CalcLead = time.Duration(ir.CalcLeadMinutes) * time.Minute

	cl := &cfg.Climate
	if cl.Sensor == "" {
		cl.Sensor = "sensor.walkway_temperature"
	}
	if cl.Thermostat == "" {
		cl.Thermostat = "climate.walkway"
	}
	if cl.TargetTemp <= 0 {
		cl.TargetTemp = 73
	}
	if cl.Threshold <= 0 {
		cl.Threshold = 0.5
	}
	if cl.AdjustmentStep <= 0 {
		cl.AdjustmentStep = 1
	}
	if cl.WideStep <= 0 {
		cl.WideStep = 2
	}
	if cl.MinSetpoint <= 0 {
		cl.MinSetpoint = 68
	}
	if cl.MaxSetpoint <= 0 {
		cl.MaxSetpoint = 78
	}
	if cl.PollMinutes <= 0 {
		cl.PollMinutes = 2
	}
	if cl.CooldownMinutes <= 0 {
		cl.CooldownMinutes = 15
	}
	if cl.MonitorLogMinutes <= 0 {
		cl.MonitorLogMinutes = 10
	}
	if cl.TrendWindowHours <= 0 {
		cl.TrendWindowHours = 6
	}
	if cl.VarianceThreshold <= 0 {
		cl.VarianceThreshold = 4
	}
	if cl.MaxSamples <= 0 {
		cl.MaxSamples = 720
	}
	cl.PollInterval = time.Duration(cl.PollMinutes) * time.Minute
	cl.Cooldown = time.Duration(cl.CooldownMinutes) * time.Minute
	cl.MonitorLogInterval = time.Duration(cl.MonitorLogMinutes) * time.Minute

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
