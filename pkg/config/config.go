package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	Broadcast    BroadcastConfig    `yaml:"broadcast"`
	Logger       LoggerConfig       `yaml:"logger"`
	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for write endpoints (optional, empty disables auth)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig durable job queue configuration
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"` // queue processing concurrency
	MaxRetry    int `yaml:"max_retry"`   // maximum retry count
	JobTimeout  int `yaml:"job_timeout"` // job timeout (seconds)
}

// SchedulerConfig scheduler configuration
type SchedulerConfig struct {
	ReoptimizeInterval   int     `yaml:"reoptimize_interval"`    // seconds, default 900
	RetentionHours       int     `yaml:"retention_hours"`        // schedule retention, default 24
	PowerPerJobKWh       float64 `yaml:"power_per_job_kwh"`      // per-job power coefficient
	GenerateAlternatives bool    `yaml:"generate_alternatives"`  // second-best greedy schedule
	WorkStartHour        int     `yaml:"work_start_hour"`        // default working hours
	WorkEndHour          int     `yaml:"work_end_hour"`          // 0 disables the window
	Timezone             string  `yaml:"timezone"`
}

// TelemetryConfig telemetry processor configuration
type TelemetryConfig struct {
	TickInterval          int     `yaml:"tick_interval"`           // seconds
	BufferCapacity        int     `yaml:"buffer_capacity"`         // points per (device, metric)
	TempWindowMinutes     int     `yaml:"temp_window_minutes"`     // temperature lookback
	ProgressWindowMinutes int     `yaml:"progress_window_minutes"` // progress lookback
	VarianceThreshold     float64 `yaml:"variance_threshold"`      // degrees C
	MinProgressRate       float64 `yaml:"min_progress_rate"`       // percent per minute
	MaxProgressRate       float64 `yaml:"max_progress_rate"`       // percent per minute
	HistoryRetentionHours int     `yaml:"history_retention_hours"` // snapshot history
}

// RecoveryConfig error recovery configuration
type RecoveryConfig struct {
	HistoryCap            int `yaml:"history_cap"`             // per-device error history, default 50
	HistoryBlacklistTotal int `yaml:"history_blacklist_total"` // blacklist when total history reaches this
	ConsecutiveThreshold  int `yaml:"consecutive_threshold"`   // errors within the window
	ConsecutiveWindowMin  int `yaml:"consecutive_window_min"`  // minutes, default 5
	BlacklistCooldownMin  int `yaml:"blacklist_cooldown_min"`  // minutes until reinstatement
}

// BroadcastConfig event broadcaster configuration
type BroadcastConfig struct {
	BatchSize         int `yaml:"batch_size"`          // flush at this many buffered events
	BatchWindowMs     int `yaml:"batch_window_ms"`     // or after this long, whichever first
	RateLimitPerSec   int `yaml:"rate_limit_per_sec"`  // per event type
	CompressThreshold int `yaml:"compress_threshold"`  // bytes; larger payloads marked for compression
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // console, file, both
	File   string `yaml:"file"`   // log file path when output includes file
}

// NotificationConfig notification sink configuration
type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"` // empty disables notifications
}

// Init loads configuration from CONFIG_PATH (default config/config.yaml).
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Default returns a configuration with every tunable at its documented default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Mode: "release"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Queue:  QueueConfig{Concurrency: 10, MaxRetry: 3, JobTimeout: 3600},
		Scheduler: SchedulerConfig{
			ReoptimizeInterval: 900,
			RetentionHours:     24,
			PowerPerJobKWh:     0.5,
		},
		Telemetry: TelemetryConfig{
			TickInterval:          30,
			BufferCapacity:        500,
			TempWindowMinutes:     5,
			ProgressWindowMinutes: 15,
			VarianceThreshold:     5.0,
			MinProgressRate:       0.1,
			MaxProgressRate:       10.0,
			HistoryRetentionHours: 24,
		},
		Recovery: RecoveryConfig{
			HistoryCap:            50,
			HistoryBlacklistTotal: 20,
			ConsecutiveThreshold:  5,
			ConsecutiveWindowMin:  5,
			BlacklistCooldownMin:  30,
		},
		Broadcast: BroadcastConfig{
			BatchSize:         10,
			BatchWindowMs:     50,
			RateLimitPerSec:   100,
			CompressThreshold: 16 * 1024,
		},
		Logger: LoggerConfig{Level: "info", Output: "console"},
	}
}

// TickDuration telemetry tick as a duration.
func (c *TelemetryConfig) TickDuration() time.Duration {
	return time.Duration(c.TickInterval) * time.Second
}
