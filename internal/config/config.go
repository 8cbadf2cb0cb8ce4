// Package config loads taskhive configuration from .hive/config.yaml,
// falling back to built-in defaults when the file is absent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taskhive configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Worker roster, registered in order at startup
	Workers []WorkerConfig `yaml:"workers"`

	// Scheduler tunables
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Response cache settings
	Cache CacheConfig `yaml:"cache"`

	// Complexity history settings
	Complexity ComplexityConfig `yaml:"complexity"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// WorkerConfig describes one schedulable worker in the roster.
type WorkerConfig struct {
	ID              string   `yaml:"id"`
	DisplayName     string   `yaml:"display_name"`
	Capabilities    []string `yaml:"capabilities"`
	Status          string   `yaml:"status"` // active | configured
	BaseTimeSeconds float64  `yaml:"base_time_seconds"`
}

// SchedulerConfig configures task distribution and rebalancing.
type SchedulerConfig struct {
	RebalanceThreshold int    `yaml:"rebalance_threshold"` // queue gap that triggers a move
	RebalanceInterval  string `yaml:"rebalance_interval"`
	IdleBonusWindow    string `yaml:"idle_bonus_window"` // idle time that earns the scoring nudge
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Retention string `yaml:"retention"`
	Path      string `yaml:"path"`
}

// ComplexityConfig configures the complexity history store.
type ComplexityConfig struct {
	Backend    string `yaml:"backend"` // json | sqlite
	Path       string `yaml:"path"`
	HistoryCap int    `yaml:"history_cap"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the built-in configuration, including the static
// worker roster used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Name:    "taskhive",
		Version: "1.0.0",

		Workers: []WorkerConfig{
			{
				ID:              "scout",
				DisplayName:     "Scout",
				Capabilities:    []string{"research", "web-search", "summarize"},
				Status:          "active",
				BaseTimeSeconds: 30,
			},
			{
				ID:              "builder",
				DisplayName:     "Builder",
				Capabilities:    []string{"coding", "file-operations", "refactor"},
				Status:          "active",
				BaseTimeSeconds: 45,
			},
			{
				ID:              "scribe",
				DisplayName:     "Scribe",
				Capabilities:    []string{"writing", "documentation"},
				Status:          "configured",
				BaseTimeSeconds: 25,
			},
		},

		Scheduler: SchedulerConfig{
			RebalanceThreshold: 2,
			RebalanceInterval:  "60s",
			IdleBonusWindow:    "60s",
		},

		Cache: CacheConfig{
			Retention: "24h",
			Path:      ".hive/cache.json",
		},

		Complexity: ComplexityConfig{
			Backend:    "json",
			Path:       ".hive/complexity.json",
			HistoryCap: 100,
		},

		Logging: LoggingConfig{
			Level: "info",
			File:  "taskhive.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults if config file doesn't exist; env still applies
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("HIVE_CACHE_PATH"); path != "" {
		c.Cache.Path = path
	}
	if path := os.Getenv("HIVE_COMPLEXITY_PATH"); path != "" {
		c.Complexity.Path = path
	}
	if level := os.Getenv("HIVE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for fatal misconfiguration.
func (c *Config) Validate() error {
	if len(c.Workers) == 0 {
		return fmt.Errorf("no workers configured")
	}
	seen := make(map[string]bool, len(c.Workers))
	for _, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("worker with empty id")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate worker id: %s", w.ID)
		}
		seen[w.ID] = true
		switch w.Status {
		case "active", "configured", "":
		default:
			return fmt.Errorf("worker %s: invalid status %q", w.ID, w.Status)
		}
	}
	return nil
}

// GetRebalanceInterval returns the rebalance interval as a duration.
func (c *Config) GetRebalanceInterval() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.RebalanceInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetIdleBonusWindow returns the idle scoring window as a duration.
func (c *Config) GetIdleBonusWindow() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.IdleBonusWindow)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetCacheRetention returns the cache retention window as a duration.
func (c *Config) GetCacheRetention() time.Duration {
	d, err := time.ParseDuration(c.Cache.Retention)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
