// Package recommender decides whether a classified state warrants an
// actionable recommendation and assigns it a priority.
package recommender

import (
	"fmt"
	"math"

	"github.com/opscart/metricwatch/pkg/ladder"
	"github.com/opscart/metricwatch/pkg/models"
)

// CostModel converts a sample count into an estimated monetary impact.
// Savings come out positive, cost increases negative.
type CostModel struct {
	CostPerUnit     float64
	SavingsFraction float64
}

// Estimate computes count * cost per unit * savings fraction
func (m CostModel) Estimate(count int) float64 {
	return float64(count) * m.CostPerUnit * m.SavingsFraction
}

// Config parameterizes the engine for one domain
type Config struct {
	// Actions maps actionable classification labels to the kind of
	// recommendation they produce. Labels absent from the map (healthy,
	// compliant, stable rungs) never produce a recommendation.
	Actions map[string]models.Kind

	// MinimumImpact suppresses recommendations whose absolute estimated
	// impact falls below it, even when the classification is actionable.
	// Only applied when a cost model is supplied.
	MinimumImpact float64

	// SevereLabel is the most severe ladder rung; it forces high priority
	// regardless of impact.
	SevereLabel string

	// LargeImpactCutoff promotes a recommendation to high priority on
	// impact alone.
	LargeImpactCutoff float64
}

// Engine evaluates classified states against the configured action set
type Engine struct {
	cfg      Config
	priority *ladder.Ladder
}

// New validates the configuration and builds an engine. Priority
// assignment is itself a threshold ladder over the absolute impact.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Actions) == 0 {
		return nil, fmt.Errorf("%w: no actionable labels configured", models.ErrInvalidConfig)
	}
	if cfg.MinimumImpact < 0 {
		return nil, fmt.Errorf("%w: minimum impact must not be negative", models.ErrInvalidConfig)
	}

	cutoff := cfg.LargeImpactCutoff
	if cutoff <= 0 {
		cutoff = math.Inf(1) // impact alone never promotes
	}
	priority, err := ladder.New(ladder.AtLeast, string(models.PriorityMedium),
		ladder.Rung{Label: string(models.PriorityHigh), Cutoff: cutoff},
	)
	if err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg, priority: priority}, nil
}

// Evaluate returns a recommendation for the subject, or nil when the
// classification is not actionable or the estimated impact is too small to
// justify acting. Re-evaluating the same state produces a structurally
// equal recommendation; deduplication against open recommendations belongs
// to the orchestrator.
func (e *Engine) Evaluate(state models.ClassifiedState, subjectID string, agg *models.AggregateResult, cost *CostModel) *models.Recommendation {
	kind, actionable := e.cfg.Actions[state.Label]
	if !actionable {
		return nil
	}

	var impact float64
	if cost != nil && agg != nil {
		impact = cost.Estimate(agg.Count)
		if math.Abs(impact) < e.cfg.MinimumImpact {
			return nil
		}
	}

	rec := &models.Recommendation{
		SubjectID:       subjectID,
		Kind:            kind,
		Priority:        e.assignPriority(state.Label, impact),
		EstimatedImpact: impact,
		Reason:          buildReason(state, impact),
	}

	return rec
}

func (e *Engine) assignPriority(label string, impact float64) models.Priority {
	if e.cfg.SevereLabel != "" && label == e.cfg.SevereLabel {
		return models.PriorityHigh
	}
	return models.Priority(e.priority.Classify(math.Abs(impact)))
}

func buildReason(state models.ClassifiedState, impact float64) string {
	reason := fmt.Sprintf("classified %s (score %.2f, trend %s)", state.Label, state.Score, state.Trend)
	if impact != 0 {
		reason += fmt.Sprintf(", estimated impact $%.2f/month", impact)
	}
	return reason
}
