// Package config handles configuration loading from files, defaults, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/warp/timeclock/worklog"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TIMECLOCK_"

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig                `toml:"server"`
	Storage  StorageConfig               `toml:"storage"`
	Clock    ClockConfig                 `toml:"clock"`
	Schedule worklog.DailyScheduleConfig `toml:"schedule"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DBPath string `toml:"db_path"` // ":memory:" for an in-memory database
}

// ClockConfig holds the local day definition.
type ClockConfig struct {
	UTCOffset        string `toml:"utc_offset"`         // e.g. "+09:00"
	EarlyMorningHour int    `toml:"early_morning_hour"` // before this hour yesterday's punches count
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Storage: StorageConfig{
			DBPath: "timeclock.db",
		},
		Clock: ClockConfig{
			UTCOffset:        "+00:00",
			EarlyMorningHour: worklog.DefaultEarlyMorningHour,
		},
		Schedule: worklog.DefaultSchedule(),
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "timeclock", "config.toml")
}

// Load loads configuration from the default path, merging with defaults and env vars.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from the specified path.
// It starts with defaults, overlays file config if it exists, then applies env overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	// Try to load from file (not an error if it doesn't exist)
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads config from a file if it exists.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over file config.
func applyEnvOverrides(cfg *Config) error {
	// Server overrides
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvPrefix + "ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}

	// Storage overrides
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}

	// Clock overrides
	if v := os.Getenv(EnvPrefix + "UTC_OFFSET"); v != "" {
		cfg.Clock.UTCOffset = v
	}
	if v := os.Getenv(EnvPrefix + "EARLY_MORNING_HOUR"); v != "" {
		hour, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sEARLY_MORNING_HOUR: %w", EnvPrefix, err)
		}
		cfg.Clock.EarlyMorningHour = hour
	}

	// Schedule overrides
	for name, field := range map[string]*string{
		"NORMAL_WORK_START": &cfg.Schedule.NormalWorkStart,
		"NORMAL_WORK_END":   &cfg.Schedule.NormalWorkEnd,
		"LUNCH_BREAK_START": &cfg.Schedule.LunchBreakStart,
		"LUNCH_BREAK_END":   &cfg.Schedule.LunchBreakEnd,
		"OVERTIME_START":    &cfg.Schedule.OvertimeStart,
	} {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*field = v
		}
	}
	if v := os.Getenv(EnvPrefix + "MINIMUM_OVERTIME_UNIT"); v != "" {
		unit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMINIMUM_OVERTIME_UNIT: %w", EnvPrefix, err)
		}
		cfg.Schedule.MinimumOvertimeUnit = unit
	}

	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		return errors.New("db_path must be set")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if h := c.Clock.EarlyMorningHour; h < 0 || h > 23 {
		return fmt.Errorf("early_morning_hour must be between 0 and 23, got %d", h)
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}

// Location returns the fixed zone whose midnight bounds a working day.
func (c *Config) Location() (*time.Location, error) {
	return worklog.ParseUTCOffset(c.Clock.UTCOffset)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
