package aggregator

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/opscart/metricwatch/pkg/models"
)

// Aggregate reduces the samples of one window into count, mean, min, max and
// the requested percentiles. Samples without a finite value are filtered out
// before anything is computed. When fewer than minSamples survive the filter,
// models.ErrInsufficientData is returned instead of misleadingly precise
// statistics.
//
// Percentiles use the nearest-rank method: the value at index
// floor(p/100 * n) of the ascending-sorted values. No interpolation.
func Aggregate(samples []models.MetricSample, percentiles []float64, minSamples int) (*models.AggregateResult, error) {
	if minSamples < 1 {
		return nil, fmt.Errorf("%w: min samples must be >= 1, got %d", models.ErrInvalidConfig, minSamples)
	}
	for _, p := range percentiles {
		if p < 0 || p > 100 {
			return nil, fmt.Errorf("%w: percentile %.2f outside [0,100]", models.ErrInvalidConfig, p)
		}
	}

	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.IsUsable() {
			values = append(values, s.Value)
		}
	}

	if len(values) < minSamples {
		return nil, fmt.Errorf("%w: need %d samples, got %d usable", models.ErrInsufficientData, minSamples, len(values))
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return nil, fmt.Errorf("mean calculation failed: %w", err)
	}
	min, err := stats.Min(values)
	if err != nil {
		return nil, fmt.Errorf("min calculation failed: %w", err)
	}
	max, err := stats.Max(values)
	if err != nil {
		return nil, fmt.Errorf("max calculation failed: %w", err)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	result := &models.AggregateResult{
		Count:       len(values),
		Mean:        mean,
		Min:         min,
		Max:         max,
		Percentiles: make(map[float64]float64, len(percentiles)),
	}
	for _, p := range percentiles {
		result.Percentiles[p] = nearestRank(sorted, p)
	}

	return result, nil
}

// nearestRank selects the floor(p/100 * n)-th element of the sorted slice,
// clamped to the last index for p = 100.
func nearestRank(sorted []float64, p float64) float64 {
	idx := int(p / 100.0 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
