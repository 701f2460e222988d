// Package trend classifies the direction of an ordered sequence of
// period-level scalar values.
package trend

import (
	"github.com/montanaflynn/stats"
	"github.com/opscart/metricwatch/pkg/models"
)

// CompareMode selects how the two half averages are compared
type CompareMode int

const (
	// CompareMargin uses an absolute margin; suited to percentage-like
	// quantities bounded roughly 0-100 (on-time %, compliance score).
	CompareMargin CompareMode = iota
	// CompareRatio uses a relative threshold; suited to unbounded or
	// 0-1 score-like quantities.
	CompareRatio
)

const (
	// DefaultMargin is the absolute margin on a 0-100 scale
	DefaultMargin = 5.0
	// DefaultRatio is the relative improvement threshold
	DefaultRatio = 0.05
)

// SplitHalfConfig configures the split-half comparison
type SplitHalfConfig struct {
	Mode   CompareMode
	Margin float64 // absolute margin for CompareMargin; DefaultMargin when 0
	Ratio  float64 // relative threshold for CompareRatio; DefaultRatio when 0
}

// SplitHalf compares the mean of the first half of the ordered values to
// the mean of the second half. Fewer than 2 values yields
// TrendInsufficientData.
//
// Note: for CompareRatio the classification of a reversed sequence is not
// generally the mirror of the original, because the threshold scales with
// the first-half average. CompareMargin with a symmetric margin is
// antisymmetric around stable under a swap of the two halves.
func SplitHalf(values []float64, cfg SplitHalfConfig) models.Trend {
	if len(values) < 2 {
		return models.TrendInsufficientData
	}

	mid := len(values) / 2
	firstHalfAvg, err := stats.Mean(values[:mid])
	if err != nil {
		return models.TrendInsufficientData
	}
	secondHalfAvg, err := stats.Mean(values[mid:])
	if err != nil {
		return models.TrendInsufficientData
	}

	if cfg.Mode == CompareRatio {
		ratio := cfg.Ratio
		if ratio == 0 {
			ratio = DefaultRatio
		}
		switch {
		case secondHalfAvg > firstHalfAvg*(1+ratio):
			return models.TrendIncreasing
		case secondHalfAvg < firstHalfAvg*(1-ratio):
			return models.TrendDecreasing
		default:
			return models.TrendStable
		}
	}

	margin := cfg.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	switch {
	case secondHalfAvg > firstHalfAvg+margin:
		return models.TrendIncreasing
	case secondHalfAvg < firstHalfAvg-margin:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

// FirstLast classifies by the raw delta between the last and first value.
// This is the simpler variant used where score deltas matter directly, not
// the split-half heuristic.
func FirstLast(values []float64, threshold float64) models.Trend {
	if len(values) < 2 {
		return models.TrendInsufficientData
	}

	delta := values[len(values)-1] - values[0]
	switch {
	case delta > threshold:
		return models.TrendIncreasing
	case delta < -threshold:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}
