package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opscart/metricwatch/pkg/ladder"
	"github.com/opscart/metricwatch/pkg/models"
	"github.com/opscart/metricwatch/pkg/recommender"
	"github.com/opscart/metricwatch/pkg/storage"
	"github.com/opscart/metricwatch/pkg/trend"
)

func utilizationLadder(t *testing.T) *ladder.Ladder {
	t.Helper()
	l, err := ladder.New(ladder.AtLeast, "unused",
		ladder.Rung{Label: "healthy", Cutoff: 40.0},
		ladder.Rung{Label: "underutilized", Cutoff: 5.0},
	)
	if err != nil {
		t.Fatalf("ladder.New failed: %v", err)
	}
	return l
}

func baseConfig() Config {
	return Config{
		MetricType:  "cpu",
		Percentiles: []float64{50, 95},
		MinSamples:  5,
		Lookback:    time.Hour,
		Trend:       trend.SplitHalfConfig{Mode: trend.CompareMargin, Margin: 5.0},
	}
}

func seedSamples(t *testing.T, store *storage.MemoryStore, subjectID string, now time.Time, count int, value float64) {
	t.Helper()
	samples := make([]models.MetricSample, count)
	for i := range samples {
		samples[i] = models.MetricSample{
			SubjectID:  subjectID,
			MetricType: "cpu",
			Value:      value,
			Timestamp:  now.Add(-time.Hour).Add(time.Duration(i+1) * time.Minute),
		}
	}
	if err := store.InsertSamples(context.Background(), samples); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}
}

func TestRunOne(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	seedSamples(t, store, "vm-1", now, 12, 75.0)

	r, err := NewRunner(baseConfig(), store, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	outcome, err := r.RunOne(context.Background(), "vm-1", now)
	if err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}

	if outcome.Status != StatusOK {
		t.Errorf("Expected status ok, got %s", outcome.Status)
	}
	if outcome.State == nil || outcome.State.Label != "healthy" {
		t.Errorf("Expected 'healthy' classification, got %+v", outcome.State)
	}
	if outcome.Aggregate == nil || outcome.Aggregate.Mean != 75.0 {
		t.Errorf("Expected mean 75, got %+v", outcome.Aggregate)
	}
	if store.SummaryCount() != 1 {
		t.Errorf("Expected one persisted summary, got %d", store.SummaryCount())
	}
}

func TestRunOneRepeatSameWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	seedSamples(t, store, "vm-1", now, 12, 75.0)

	r, err := NewRunner(baseConfig(), store, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	// Re-running the same subject over the same window must overwrite the
	// summary, not append a second row
	for i := 0; i < 3; i++ {
		if _, err := r.RunOne(context.Background(), "vm-1", now); err != nil {
			t.Fatalf("RunOne %d failed: %v", i, err)
		}
	}
	if store.SummaryCount() != 1 {
		t.Errorf("Expected one summary after repeated runs, got %d", store.SummaryCount())
	}
}

func TestRunOneInsufficientData(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	seedSamples(t, store, "vm-1", now, 3, 75.0) // below the minimum of 5

	r, err := NewRunner(baseConfig(), store, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	outcome, err := r.RunOne(context.Background(), "vm-1", now)
	if err != nil {
		t.Fatalf("RunOne returned an error for a data shortfall: %v", err)
	}

	if outcome.Status != StatusInsufficientData {
		t.Errorf("Expected insufficient_data status, got %s", outcome.Status)
	}
	if outcome.State != nil {
		t.Error("Expected no classification without a verdict")
	}
	if store.SummaryCount() != 0 {
		t.Errorf("Expected nothing persisted, got %d summaries", store.SummaryCount())
	}
}

func TestRunOneRecommendationDedup(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	seedSamples(t, store, "vm-1", now, 12, 10.0) // underutilized

	engine, err := recommender.New(recommender.Config{
		Actions: map[string]models.Kind{"underutilized": models.KindDownsize},
	})
	if err != nil {
		t.Fatalf("recommender.New failed: %v", err)
	}

	r, err := NewRunner(baseConfig(), store, store, utilizationLadder(t), nil,
		WithRecommender(engine, nil))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	outcome, err := r.RunOne(context.Background(), "vm-1", now)
	if err != nil {
		t.Fatalf("first RunOne failed: %v", err)
	}
	if outcome.Recommendation == nil {
		t.Fatal("Expected a recommendation on the first run")
	}
	if outcome.Recommendation.ID == "" {
		t.Error("Expected storage to assign an ID")
	}

	// A second run sees the open DOWNSIZE and must not duplicate it
	outcome, err = r.RunOne(context.Background(), "vm-1", now)
	if err != nil {
		t.Fatalf("second RunOne failed: %v", err)
	}
	if outcome.Recommendation != nil {
		t.Errorf("Expected dedup against the open recommendation, got %+v", outcome.Recommendation)
	}

	open, err := store.OpenRecommendations(context.Background(), "vm-1")
	if err != nil {
		t.Fatalf("OpenRecommendations failed: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("Expected exactly one open recommendation, got %d", len(open))
	}

	// Once implemented, the next run may recommend again
	if err := store.MarkImplemented(context.Background(), open[0].ID, "ops"); err != nil {
		t.Fatalf("MarkImplemented failed: %v", err)
	}
	outcome, err = r.RunOne(context.Background(), "vm-1", now)
	if err != nil {
		t.Fatalf("third RunOne failed: %v", err)
	}
	if outcome.Recommendation == nil {
		t.Error("Expected a fresh recommendation after the previous one was implemented")
	}
}

func TestRunOneScoreStatistic(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()

	// Values 10..120: mean 65, nearest-rank p95 = sorted[floor(0.95*12)]=sorted[11]=120
	samples := make([]models.MetricSample, 12)
	for i := range samples {
		samples[i] = models.MetricSample{
			SubjectID:  "vm-1",
			MetricType: "cpu",
			Value:      float64((i + 1) * 10),
			Timestamp:  now.Add(-time.Hour).Add(time.Duration(i+1) * time.Minute),
		}
	}
	if err := store.InsertSamples(context.Background(), samples); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	cfg := baseConfig()
	cfg.Score = ScoreP95
	r, err := NewRunner(cfg, store, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	outcome, err := r.RunOne(context.Background(), "vm-1", now)
	if err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	if outcome.State.Score != 120 {
		t.Errorf("Expected p95 score 120, got %.2f", outcome.State.Score)
	}
}

func TestRunOneScoreMissingPercentile(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	seedSamples(t, store, "vm-1", now, 12, 50.0)

	cfg := baseConfig()
	cfg.Score = ScoreP95
	cfg.Percentiles = []float64{50} // p95 not computed

	r, err := NewRunner(cfg, store, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	_, err = r.RunOne(context.Background(), "vm-1", now)
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for a missing percentile, got %v", err)
	}
}

// failingSource aborts every fetch
type failingSource struct{}

func (failingSource) GetSamples(context.Context, string, string, time.Time, time.Time) ([]models.MetricSample, error) {
	return nil, fmt.Errorf("query range: %w", models.ErrStorageUnavailable)
}

func TestRunOneSourceFailure(t *testing.T) {
	store := storage.NewMemoryStore()

	r, err := NewRunner(baseConfig(), failingSource{}, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	_, err = r.RunOne(context.Background(), "vm-1", time.Now())
	if !errors.Is(err, models.ErrStorageUnavailable) {
		t.Errorf("Expected the source failure to propagate, got %v", err)
	}
	if store.SummaryCount() != 0 {
		t.Error("Expected no partial summary after an aborted run")
	}
}

func TestRunAll(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()

	subjects := []string{"vm-1", "vm-2", "vm-3", "vm-4", "vm-5"}
	for _, id := range subjects {
		seedSamples(t, store, id, now, 12, 60.0)
	}

	cfg := baseConfig()
	cfg.Workers = 3
	r, err := NewRunner(cfg, store, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	outcomes, err := r.RunAll(context.Background(), subjects, now)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if len(outcomes) != len(subjects) {
		t.Errorf("Expected %d outcomes, got %d", len(subjects), len(outcomes))
	}
	if store.SummaryCount() != len(subjects) {
		t.Errorf("Expected %d summaries, got %d", len(subjects), store.SummaryCount())
	}

	seen := make(map[string]bool)
	for _, o := range outcomes {
		if o.Status != StatusOK {
			t.Errorf("%s: expected status ok, got %s", o.SubjectID, o.Status)
		}
		seen[o.SubjectID] = true
	}
	for _, id := range subjects {
		if !seen[id] {
			t.Errorf("Missing outcome for %s", id)
		}
	}
}

func TestRunAllPartialFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	seedSamples(t, store, "vm-1", now, 12, 60.0)
	// vm-2 has no samples at all: still a valid insufficient_data outcome,
	// never an error
	subjects := []string{"vm-1", "vm-2"}

	r, err := NewRunner(baseConfig(), store, store, utilizationLadder(t), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	outcomes, err := r.RunAll(context.Background(), subjects, now)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(outcomes))
	}
	if store.SummaryCount() != 1 {
		t.Errorf("Expected one summary, got %d", store.SummaryCount())
	}
}

func TestNewRunnerValidation(t *testing.T) {
	store := storage.NewMemoryStore()
	l := utilizationLadder(t)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing metric type", func(c *Config) { c.MetricType = "" }},
		{"zero lookback", func(c *Config) { c.Lookback = 0 }},
		{"zero min samples", func(c *Config) { c.MinSamples = 0 }},
		{"bad percentile", func(c *Config) { c.Percentiles = []float64{150} }},
	}

	for _, c := range cases {
		cfg := baseConfig()
		c.mutate(&cfg)
		if _, err := NewRunner(cfg, store, store, l, nil); !errors.Is(err, models.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", c.name, err)
		}
	}

	if _, err := NewRunner(baseConfig(), store, store, nil, nil); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("nil ladder: expected ErrInvalidConfig, got %v", err)
	}
}
