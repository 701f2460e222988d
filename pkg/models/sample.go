package models

import (
	"math"
	"time"
)

// MetricSample represents a single observed value for a monitored subject
type MetricSample struct {
	SubjectID  string
	MetricType string // e.g. "cpu_utilization", "response_time_ms", "error_count"
	Value      float64
	Timestamp  time.Time
}

// IsUsable reports whether the sample carries a finite numeric value.
// Samples without a usable value are excluded from aggregation, never
// coerced to zero.
func (s MetricSample) IsUsable() bool {
	return !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0)
}

// AggregateResult contains the statistics computed over one window.
// Count == 0 means no statistic below it is defined; callers must check
// Count before reading Mean/Min/Max/Percentiles.
type AggregateResult struct {
	Count       int
	Mean        float64
	Min         float64
	Max         float64
	Percentiles map[float64]float64
}

// Percentile returns the requested percentile and whether it was computed.
func (a *AggregateResult) Percentile(p float64) (float64, bool) {
	v, ok := a.Percentiles[p]
	return v, ok
}
