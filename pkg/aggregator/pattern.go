package aggregator

import (
	"github.com/montanaflynn/stats"
	"github.com/opscart/metricwatch/pkg/models"
)

// UsagePattern describes how variable a subject's samples are
type UsagePattern struct {
	Type       string  // "steady", "moderate", "spiky", "highly-variable", "unknown"
	Variation  float64 // coefficient of variation
	Confidence float64
}

// CoefficientOfVariation measures relative variability of the usable sample
// values. High CV (>0.5) indicates a spiky subject, low CV (<0.2) a steady one.
func CoefficientOfVariation(samples []models.MetricSample) float64 {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.IsUsable() {
			values = append(values, s.Value)
		}
	}
	if len(values) < 2 {
		return 0
	}

	mean, err := stats.Mean(values)
	if err != nil || mean == 0 {
		return 0
	}
	stdDev, err := stats.StandardDeviationPopulation(values)
	if err != nil {
		return 0
	}

	return stdDev / mean
}

// AnalyzeUsagePattern classifies sample variability into a named pattern.
// Needs at least 10 samples to say anything.
func AnalyzeUsagePattern(samples []models.MetricSample) UsagePattern {
	if len(samples) < 10 {
		return UsagePattern{Type: "unknown"}
	}

	cv := CoefficientOfVariation(samples)

	var patternType string
	var confidence float64
	switch {
	case cv < 0.15:
		patternType = "steady"
		confidence = 0.95
	case cv < 0.35:
		patternType = "moderate"
		confidence = 0.85
	case cv < 0.70:
		patternType = "spiky"
		confidence = 0.80
	default:
		patternType = "highly-variable"
		confidence = 0.75
	}

	return UsagePattern{
		Type:       patternType,
		Variation:  cv,
		Confidence: confidence,
	}
}
