package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"reservation-backend/internal/parse"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Reservations ReservationsConfig `yaml:"reservations"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RequestIPHeader string   `yaml:"request_ip_header"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatabaseConfig holds the database connection configuration.
// A DSN starting with "postgres://", "postgresql://" or "host=" selects
// the postgres driver; anything else is treated as a sqlite file or URI.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// ReservationsConfig describes the serving grid and the check-in rules.
type ReservationsConfig struct {
	GridStart         string         `yaml:"grid_start"`
	GridEnd           string         `yaml:"grid_end"`
	SlotMinutes       int            `yaml:"slot_minutes"`
	CheckInWindowMins int            `yaml:"check_in_window_minutes"`
	Timezone          string         `yaml:"timezone"`
	Location          *time.Location `yaml:"-"` // Resolved by Validate
}

// AnalyzerConfig configures the outbound transcript analysis service.
type AnalyzerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	HTTPProxy      string `yaml:"http_proxy"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads the configuration from the given path. A .env file in the
// working directory, when present, is loaded first so that ${VAR}
// references in the YAML can be resolved.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills in every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8000
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 30
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost", "http://localhost:8000", "http://localhost:3000"}
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "reservations.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Reservations.GridStart == "" {
		c.Reservations.GridStart = "13:00"
	}
	if c.Reservations.GridEnd == "" {
		c.Reservations.GridEnd = "19:30"
	}
	if c.Reservations.SlotMinutes <= 0 {
		c.Reservations.SlotMinutes = 30
	}
	if c.Reservations.CheckInWindowMins <= 0 {
		c.Reservations.CheckInWindowMins = 5
	}
	if c.Reservations.Location == nil {
		c.Reservations.Location = time.Local
	}

	if c.Analyzer.URL == "" {
		c.Analyzer.URL = "http://localhost:11434"
	}
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = "analyze"
	}
	if c.Analyzer.TimeoutSeconds <= 0 {
		c.Analyzer.TimeoutSeconds = 60
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}

	if c.WorkerPool.Size <= 0 {
		log.Debug().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		c.WorkerPool.Size = 1
	}
	if c.WorkerPool.QueueSize <= 0 {
		c.WorkerPool.QueueSize = 64
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the fields whose bad values would only surface at request time.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}

	if _, err := c.Grid(); err != nil {
		return err
	}

	if c.Reservations.Timezone != "" {
		loc, err := time.LoadLocation(c.Reservations.Timezone)
		if err != nil {
			return fmt.Errorf("reservations.timezone %q: %w", c.Reservations.Timezone, err)
		}
		c.Reservations.Location = loc
	}

	if c.Reservations.CheckInWindowMins >= 12*60 {
		return fmt.Errorf("reservations.check_in_window_minutes must be below 720, got %d", c.Reservations.CheckInWindowMins)
	}
	return nil
}

// Grid expands the configured serving grid into its candidate slots.
func (c *Config) Grid() ([]string, error) {
	start, err := parse.ParseTimeSlot(c.Reservations.GridStart)
	if err != nil {
		return nil, fmt.Errorf("reservations.grid_start: %w", err)
	}
	end, err := parse.ParseTimeSlot(c.Reservations.GridEnd)
	if err != nil {
		return nil, fmt.Errorf("reservations.grid_end: %w", err)
	}
	grid, err := parse.Grid(start, end, time.Duration(c.Reservations.SlotMinutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("reservations grid: %w", err)
	}
	return grid, nil
}

// CheckInWindow returns the configured check-in tolerance.
func (c *Config) CheckInWindow() time.Duration {
	return time.Duration(c.Reservations.CheckInWindowMins) * time.Minute
}
