// Package config loads and validates metricwatch configuration: process
// settings from the environment, monitor profiles from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/opscart/metricwatch/pkg/models"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// Prometheus
	PrometheusURL string `yaml:"prometheus_url"`

	// Storage
	StorageEnabled bool   `yaml:"storage_enabled"`
	DatabaseURL    string `yaml:"database_url"`

	// Logging
	LogFile string `yaml:"log_file"`
	Verbose bool   `yaml:"verbose"`

	// Telemetry endpoint for serve mode, e.g. ":9105"
	MetricsListen string `yaml:"metrics_listen"`

	Profiles []Profile `yaml:"profiles"`
}

// Profile is one per-domain instantiation of the engine
type Profile struct {
	Name     string   `yaml:"name"`
	Subjects []string `yaml:"subjects"`
	Schedule string   `yaml:"schedule"` // cron spec for serve mode

	MetricType string `yaml:"metric_type"`

	// Queries optionally maps metric types to Prometheus range-query
	// templates ({{subject}} is substituted). Without queries, samples
	// come from the store itself.
	Queries map[string]string `yaml:"queries,omitempty"`

	Percentiles   []float64 `yaml:"percentiles"`
	MinSamples    int       `yaml:"min_samples"`
	LookbackHours float64   `yaml:"lookback_hours"`
	Score         string    `yaml:"score"` // mean, max, p50, p95

	Ladder LadderSpec `yaml:"ladder"`
	Trend  TrendSpec  `yaml:"trend"`
	Idle   *IdleSpec  `yaml:"idle,omitempty"`

	Recommend *RecommendSpec `yaml:"recommend,omitempty"`
}

// LadderSpec declares the classification ladder, strictest rung first
type LadderSpec struct {
	Direction string     `yaml:"direction"` // at_least (default) or at_most
	Default   string     `yaml:"default"`
	Rungs     []RungSpec `yaml:"rungs"`
}

// RungSpec is one (label, cutoff) pair
type RungSpec struct {
	Label  string  `yaml:"label"`
	Cutoff float64 `yaml:"cutoff"`
}

// TrendSpec selects the split-half comparison variant
type TrendSpec struct {
	Mode    string  `yaml:"mode"` // margin (default) or ratio
	Margin  float64 `yaml:"margin"`
	Ratio   float64 `yaml:"ratio"`
	History int     `yaml:"history"`
}

// IdleSpec enables the idle onset check
type IdleSpec struct {
	Thresholds       map[string]float64 `yaml:"thresholds"`
	RequireAll       bool               `yaml:"require_all"`
	MinSamples       int                `yaml:"min_samples"`
	MinIdleDurationH float64            `yaml:"min_idle_duration_hours"`
}

// RecommendSpec enables recommendation evaluation
type RecommendSpec struct {
	Actions           map[string]string `yaml:"actions"` // label -> kind
	MinimumImpact     float64           `yaml:"minimum_impact"`
	SevereLabel       string            `yaml:"severe_label"`
	LargeImpactCutoff float64           `yaml:"large_impact_cutoff"`
	CostPerUnit       float64           `yaml:"cost_per_unit"`
	SavingsFraction   float64           `yaml:"savings_fraction"`
}

// NewConfig creates a configuration from environment defaults
func NewConfig() *Config {
	return &Config{
		PrometheusURL:  getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		StorageEnabled: cast.ToBool(getEnv("STORAGE_ENABLED", "true")),
		DatabaseURL:    getEnv("DATABASE_URL", "host=localhost port=5432 user=metricwatch password=devpassword dbname=metricwatch sslmode=disable"),
		LogFile:        getEnv("LOG_FILE", ""),
		Verbose:        cast.ToBool(getEnv("VERBOSE", "false")),
		MetricsListen:  getEnv("METRICS_LISTEN", ":9105"),
	}
}

// Load reads a YAML file over the environment defaults
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Lookback converts the configured hours to a duration
func (p *Profile) Lookback() time.Duration {
	return time.Duration(p.LookbackHours * float64(time.Hour))
}

// MinIdleDuration converts the configured hours to a duration
func (s *IdleSpec) MinIdleDuration() time.Duration {
	return time.Duration(s.MinIdleDurationH * float64(time.Hour))
}

// Validate rejects bad configuration at load time rather than mid-run
func (c *Config) Validate() error {
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("%w: database URL must be set when storage is enabled", models.ErrInvalidConfig)
	}

	for i := range c.Profiles {
		if err := c.Profiles[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks one profile
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: profile has no name", models.ErrInvalidConfig)
	}
	if p.MetricType == "" {
		return fmt.Errorf("%w: profile %s has no metric type", models.ErrInvalidConfig, p.Name)
	}
	if p.LookbackHours <= 0 {
		return fmt.Errorf("%w: profile %s lookback must be positive, got %.2fh", models.ErrInvalidConfig, p.Name, p.LookbackHours)
	}
	if p.MinSamples < 1 {
		return fmt.Errorf("%w: profile %s min samples must be >= 1, got %d", models.ErrInvalidConfig, p.Name, p.MinSamples)
	}
	for _, pct := range p.Percentiles {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: profile %s percentile %.2f outside [0,100]", models.ErrInvalidConfig, p.Name, pct)
		}
	}
	if len(p.Ladder.Rungs) == 0 {
		return fmt.Errorf("%w: profile %s ladder has no rungs", models.ErrInvalidConfig, p.Name)
	}
	if p.Ladder.Default == "" {
		return fmt.Errorf("%w: profile %s ladder has no default label", models.ErrInvalidConfig, p.Name)
	}
	switch p.Ladder.Direction {
	case "", "at_least", "at_most":
	default:
		return fmt.Errorf("%w: profile %s ladder direction %q", models.ErrInvalidConfig, p.Name, p.Ladder.Direction)
	}
	switch p.Trend.Mode {
	case "", "margin", "ratio":
	default:
		return fmt.Errorf("%w: profile %s trend mode %q", models.ErrInvalidConfig, p.Name, p.Trend.Mode)
	}
	if p.Idle != nil && len(p.Idle.Thresholds) == 0 {
		return fmt.Errorf("%w: profile %s idle check has no thresholds", models.ErrInvalidConfig, p.Name)
	}
	if p.Recommend != nil && len(p.Recommend.Actions) == 0 {
		return fmt.Errorf("%w: profile %s recommend block has no actions", models.ErrInvalidConfig, p.Name)
	}
	return nil
}
