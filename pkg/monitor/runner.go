// Package monitor orchestrates one run per subject:
// fetch, aggregate, classify, locate onset, recommend, persist.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/metricwatch/pkg/aggregator"
	"github.com/opscart/metricwatch/pkg/idle"
	"github.com/opscart/metricwatch/pkg/ladder"
	"github.com/opscart/metricwatch/pkg/models"
	"github.com/opscart/metricwatch/pkg/recommender"
	"github.com/opscart/metricwatch/pkg/storage"
	"github.com/opscart/metricwatch/pkg/telemetry"
	"github.com/opscart/metricwatch/pkg/trend"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Status is the terminal state of a run
type Status string

const (
	// StatusOK means a verdict was computed and persisted
	StatusOK Status = "ok"
	// StatusInsufficientData means too few samples for a verdict; this is
	// a valid outcome, not an error, and nothing is persisted.
	StatusInsufficientData Status = "insufficient_data"
)

// ScoreStat selects which aggregate statistic becomes the classified score
type ScoreStat string

const (
	ScoreMean ScoreStat = "mean"
	ScoreMax  ScoreStat = "max"
	ScoreP50  ScoreStat = "p50"
	ScoreP95  ScoreStat = "p95"
)

// Config parameterizes a runner for one domain instantiation
type Config struct {
	MetricType  string
	Percentiles []float64
	MinSamples  int
	Lookback    time.Duration

	// Score selects the statistic fed to the ladder; defaults to the mean.
	Score ScoreStat

	// TrendHistory is how many recent window scores feed the split-half
	// trend comparison (current score included).
	TrendHistory int
	Trend        trend.SplitHalfConfig

	// Workers bounds the RunAll pool; defaults to 8.
	Workers int
}

// Outcome is the result of one run, exposed as plain data for rendering
type Outcome struct {
	SubjectID      string
	Status         Status
	WindowStart    time.Time
	WindowEnd      time.Time
	Aggregate      *models.AggregateResult
	State          *models.ClassifiedState
	Pattern        aggregator.UsagePattern
	IdleSince      *time.Time
	Recommendation *models.Recommendation
}

// Runner executes monitor runs. Source and store may be the same object
// (postgres) or different ones (prometheus feeding, postgres persisting).
type Runner struct {
	cfg     Config
	source  storage.SampleSource
	store   storage.Store
	classif *ladder.Ladder
	locator *idle.Locator      // optional
	engine  *recommender.Engine // optional
	cost    *recommender.CostModel
	metrics *telemetry.Metrics // optional
	log     *zap.Logger
}

// Option configures optional runner collaborators
type Option func(*Runner)

// WithLocator enables the idle onset check
func WithLocator(l *idle.Locator) Option {
	return func(r *Runner) { r.locator = l }
}

// WithRecommender enables recommendation evaluation
func WithRecommender(e *recommender.Engine, cost *recommender.CostModel) Option {
	return func(r *Runner) {
		r.engine = e
		r.cost = cost
	}
}

// WithTelemetry wires run counters
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner validates the configuration and builds a runner
func NewRunner(cfg Config, source storage.SampleSource, store storage.Store, classif *ladder.Ladder, log *zap.Logger, opts ...Option) (*Runner, error) {
	if cfg.MetricType == "" {
		return nil, fmt.Errorf("%w: metric type is required", models.ErrInvalidConfig)
	}
	if cfg.Lookback <= 0 {
		return nil, fmt.Errorf("%w: lookback window must be positive, got %s", models.ErrInvalidConfig, cfg.Lookback)
	}
	if cfg.MinSamples < 1 {
		return nil, fmt.Errorf("%w: min samples must be >= 1, got %d", models.ErrInvalidConfig, cfg.MinSamples)
	}
	for _, p := range cfg.Percentiles {
		if p < 0 || p > 100 {
			return nil, fmt.Errorf("%w: percentile %.2f outside [0,100]", models.ErrInvalidConfig, p)
		}
	}
	if classif == nil {
		return nil, fmt.Errorf("%w: classification ladder is required", models.ErrInvalidConfig)
	}
	if cfg.Score == "" {
		cfg.Score = ScoreMean
	}
	if cfg.TrendHistory == 0 {
		cfg.TrendHistory = 6
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Runner{
		cfg:     cfg,
		source:  source,
		store:   store,
		classif: classif,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunOne executes a single monitor run for the subject over the window
// [now-lookback, now). A storage failure aborts the run with no partial
// summary; too few samples terminates with StatusInsufficientData.
func (r *Runner) RunOne(ctx context.Context, subjectID string, now time.Time) (*Outcome, error) {
	windowStart := now.Add(-r.cfg.Lookback)
	outcome := &Outcome{
		SubjectID:   subjectID,
		WindowStart: windowStart,
		WindowEnd:   now,
	}

	// FETCH
	samples, err := r.source.GetSamples(ctx, subjectID, r.cfg.MetricType, windowStart, now)
	if err != nil {
		r.countError()
		return nil, fmt.Errorf("fetch for %s: %w", subjectID, err)
	}

	// AGGREGATE
	agg, err := aggregator.Aggregate(samples, r.cfg.Percentiles, r.cfg.MinSamples)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			outcome.Status = StatusInsufficientData
			r.countRun(StatusInsufficientData)
			r.log.Debug("no verdict, insufficient data",
				zap.String("subject", subjectID),
				zap.Int("samples", len(samples)))
			return outcome, nil
		}
		r.countError()
		return nil, err
	}
	outcome.Aggregate = agg
	outcome.Pattern = aggregator.AnalyzeUsagePattern(samples)

	// CLASSIFY
	score, err := r.score(agg)
	if err != nil {
		r.countError()
		return nil, err
	}
	direction, err := r.classifyTrend(ctx, subjectID, score)
	if err != nil {
		r.countError()
		return nil, err
	}
	state := models.ClassifiedState{
		Score: score,
		Label: r.classif.Classify(score),
		Trend: direction,
	}
	outcome.State = &state

	// ONSET_CHECK
	if r.locator != nil {
		onset, isIdle, err := r.locator.LocateOnset(ctx, subjectID, now)
		if err != nil {
			r.countError()
			return nil, err
		}
		if isIdle {
			outcome.IdleSince = &onset
		}
	}

	// RECOMMEND
	if r.engine != nil {
		if rec := r.engine.Evaluate(state, subjectID, agg, r.cost); rec != nil {
			open, err := r.store.OpenRecommendations(ctx, subjectID)
			if err != nil {
				r.countError()
				return nil, fmt.Errorf("dedup lookup for %s: %w", subjectID, err)
			}
			if !hasOpen(open, rec.Kind) {
				outcome.Recommendation = rec
			}
		}
	}

	// PERSIST
	summary := &models.PersistedSummary{
		SubjectID:      subjectID,
		WindowStart:    windowStart,
		WindowEnd:      now,
		Aggregate:      *agg,
		Classification: state,
	}
	if err := r.store.UpsertSummary(ctx, summary); err != nil {
		r.countError()
		return nil, fmt.Errorf("persist summary for %s: %w", subjectID, err)
	}
	if outcome.Recommendation != nil {
		if err := r.store.SaveRecommendation(ctx, outcome.Recommendation); err != nil {
			r.countError()
			return nil, fmt.Errorf("persist recommendation for %s: %w", subjectID, err)
		}
		if r.metrics != nil {
			r.metrics.RecommendationsTotal.WithLabelValues(string(outcome.Recommendation.Kind)).Inc()
		}
	}

	outcome.Status = StatusOK
	r.countRun(StatusOK)
	r.log.Info("monitor run complete",
		zap.String("subject", subjectID),
		zap.Float64("score", state.Score),
		zap.String("label", state.Label),
		zap.String("trend", string(state.Trend)))

	return outcome, nil
}

// RunAll fans subjects out across a bounded worker pool. Subjects share no
// mutable state; per-subject-per-window correctness rests on the store's
// upsert-by-window. The first error is returned after all runs finish.
func (r *Runner) RunAll(ctx context.Context, subjects []string, now time.Time) ([]*Outcome, error) {
	pool, err := ants.NewPool(r.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]*Outcome, 0, len(subjects))
		firstErr error
	)

	for _, subjectID := range subjects {
		subjectID := subjectID
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			outcome, err := r.RunOne(ctx, subjectID, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			outcomes = append(outcomes, outcome)
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
		}
	}

	wg.Wait()
	return outcomes, firstErr
}

// score extracts the configured statistic from the aggregate
func (r *Runner) score(agg *models.AggregateResult) (float64, error) {
	switch r.cfg.Score {
	case ScoreMean:
		return agg.Mean, nil
	case ScoreMax:
		return agg.Max, nil
	case ScoreP50, ScoreP95:
		p := 50.0
		if r.cfg.Score == ScoreP95 {
			p = 95.0
		}
		v, ok := agg.Percentile(p)
		if !ok {
			return 0, fmt.Errorf("%w: score statistic %s requires percentile %.0f in the percentile set",
				models.ErrInvalidConfig, r.cfg.Score, p)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("%w: unknown score statistic %q", models.ErrInvalidConfig, r.cfg.Score)
	}
}

// classifyTrend feeds recent window scores plus the current one through the
// split-half comparison.
func (r *Runner) classifyTrend(ctx context.Context, subjectID string, current float64) (models.Trend, error) {
	history, err := r.store.RecentSummaries(ctx, subjectID, r.cfg.TrendHistory-1)
	if err != nil {
		return "", fmt.Errorf("trend history for %s: %w", subjectID, err)
	}

	values := make([]float64, 0, len(history)+1)
	for _, s := range history {
		values = append(values, s.Classification.Score)
	}
	values = append(values, current)

	return trend.SplitHalf(values, r.cfg.Trend), nil
}

func hasOpen(open []*models.Recommendation, kind models.Kind) bool {
	for _, rec := range open {
		if rec.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Runner) countRun(status Status) {
	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	}
}

func (r *Runner) countError() {
	if r.metrics != nil {
		r.metrics.RunErrors.Inc()
	}
}
