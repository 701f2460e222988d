package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opscart/metricwatch/pkg/models"
)

func TestNewConfigDefaults(t *testing.T) {
	os.Unsetenv("PROMETHEUS_URL")
	os.Unsetenv("STORAGE_ENABLED")
	os.Unsetenv("METRICS_LISTEN")

	cfg := NewConfig()

	if cfg.PrometheusURL != "http://localhost:9090" {
		t.Errorf("Expected default prometheus URL, got %s", cfg.PrometheusURL)
	}
	if !cfg.StorageEnabled {
		t.Error("Expected storage enabled by default")
	}
	if cfg.MetricsListen != ":9105" {
		t.Errorf("Expected default metrics listen :9105, got %s", cfg.MetricsListen)
	}
	if cfg.Verbose {
		t.Error("Expected verbose off by default")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("PROMETHEUS_URL", "http://prom.internal:9090")
	t.Setenv("STORAGE_ENABLED", "false")
	t.Setenv("VERBOSE", "true")

	cfg := NewConfig()

	if cfg.PrometheusURL != "http://prom.internal:9090" {
		t.Errorf("Expected env prometheus URL, got %s", cfg.PrometheusURL)
	}
	if cfg.StorageEnabled {
		t.Error("Expected storage disabled via env")
	}
	if !cfg.Verbose {
		t.Error("Expected verbose enabled via env")
	}
}

const sampleYAML = `
prometheus_url: http://prom:9090
metrics_listen: ":9200"
profiles:
  - name: vm-utilization
    subjects: [vm-1, vm-2]
    schedule: "@hourly"
    metric_type: cpu
    queries:
      cpu: avg(node_cpu_utilization{instance="{{subject}}"})
    percentiles: [50, 95]
    min_samples: 10
    lookback_hours: 24
    score: p95
    ladder:
      direction: at_least
      default: unused
      rungs:
        - {label: healthy, cutoff: 40}
        - {label: underutilized, cutoff: 5}
    trend:
      mode: margin
      margin: 5
      history: 6
    idle:
      thresholds:
        cpu: 5.0
      min_samples: 10
      min_idle_duration_hours: 72
    recommend:
      actions:
        underutilized: DOWNSIZE
        unused: UNUSED
      minimum_impact: 10
      severe_label: unused
      cost_per_unit: 0.05
      savings_fraction: 0.5
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metricwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PrometheusURL != "http://prom:9090" {
		t.Errorf("Expected file to override prometheus URL, got %s", cfg.PrometheusURL)
	}
	if len(cfg.Profiles) != 1 {
		t.Fatalf("Expected one profile, got %d", len(cfg.Profiles))
	}

	p := cfg.Profiles[0]
	if p.Name != "vm-utilization" {
		t.Errorf("Expected profile name vm-utilization, got %s", p.Name)
	}
	if p.Lookback() != 24*time.Hour {
		t.Errorf("Expected 24h lookback, got %s", p.Lookback())
	}
	if len(p.Subjects) != 2 {
		t.Errorf("Expected 2 subjects, got %d", len(p.Subjects))
	}
	if p.Ladder.Rungs[0].Label != "healthy" || p.Ladder.Rungs[0].Cutoff != 40 {
		t.Errorf("Unexpected first rung: %+v", p.Ladder.Rungs[0])
	}
	if p.Idle == nil || p.Idle.MinIdleDuration() != 72*time.Hour {
		t.Errorf("Expected 72h idle duration, got %+v", p.Idle)
	}
	if p.Recommend == nil || p.Recommend.Actions["underutilized"] != "DOWNSIZE" {
		t.Errorf("Unexpected recommend block: %+v", p.Recommend)
	}
	if p.Queries["cpu"] == "" {
		t.Error("Expected a cpu query template")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "profiles: [\n")); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}

func TestProfileValidate(t *testing.T) {
	valid := func() Profile {
		return Profile{
			Name:          "p",
			MetricType:    "cpu",
			MinSamples:    5,
			LookbackHours: 1,
			Ladder: LadderSpec{
				Default: "low",
				Rungs:   []RungSpec{{Label: "high", Cutoff: 10}},
			},
		}
	}

	if err := func() *Profile { p := valid(); return &p }().Validate(); err != nil {
		t.Fatalf("Expected valid profile, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"no name", func(p *Profile) { p.Name = "" }},
		{"no metric type", func(p *Profile) { p.MetricType = "" }},
		{"zero lookback", func(p *Profile) { p.LookbackHours = 0 }},
		{"zero min samples", func(p *Profile) { p.MinSamples = 0 }},
		{"bad percentile", func(p *Profile) { p.Percentiles = []float64{101} }},
		{"no rungs", func(p *Profile) { p.Ladder.Rungs = nil }},
		{"no default", func(p *Profile) { p.Ladder.Default = "" }},
		{"bad direction", func(p *Profile) { p.Ladder.Direction = "sideways" }},
		{"bad trend mode", func(p *Profile) { p.Trend.Mode = "vibes" }},
		{"idle without thresholds", func(p *Profile) { p.Idle = &IdleSpec{} }},
		{"recommend without actions", func(p *Profile) { p.Recommend = &RecommendSpec{} }},
	}

	for _, c := range cases {
		p := valid()
		c.mutate(&p)
		if err := p.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", c.name, err)
		}
	}
}

func TestValidateStorageNeedsURL(t *testing.T) {
	cfg := &Config{StorageEnabled: true}
	if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without a database URL, got %v", err)
	}

	cfg.StorageEnabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config with storage disabled, got %v", err)
	}
}
