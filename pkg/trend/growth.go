package trend

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/opscart/metricwatch/pkg/models"
)

// minGrowthSamples is roughly 8 hours of data at 5-minute resolution
const minGrowthSamples = 100

// GrowthTrend describes sample growth over time
type GrowthTrend struct {
	RatePerMonth    float64 // % growth per month
	Confidence      float64 // R² of the fitted line
	Predicted3Month float64
	Predicted6Month float64
	IsGrowing       bool
}

// Growth fits a least-squares line through timestamped samples and converts
// the slope into percentage growth per month, with 3 and 6 month projections.
func Growth(samples []models.MetricSample) (*GrowthTrend, error) {
	if len(samples) < minGrowthSamples {
		return &GrowthTrend{}, fmt.Errorf("%w: trend fit needs %d+ samples, got %d",
			models.ErrInsufficientData, minGrowthSamples, len(samples))
	}

	startTime := samples[0].Timestamp
	x := make([]float64, len(samples)) // hours since start
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.Timestamp.Sub(startTime).Hours()
		y[i] = s.Value
	}

	slope, intercept, r2 := linearRegression(x, y)

	currentAvg, err := stats.Mean(y)
	if err != nil {
		return &GrowthTrend{}, err
	}

	hoursPerMonth := 24.0 * 30.0
	absoluteGrowthPerMonth := slope * hoursPerMonth

	var ratePerMonth float64
	if currentAvg > 0 {
		ratePerMonth = (absoluteGrowthPerMonth / currentAvg) * 100.0
	}

	currentHours := x[len(x)-1]
	predicted3Month := slope*(currentHours+24*90) + intercept
	predicted6Month := slope*(currentHours+24*180) + intercept

	// Projections below zero are meaningless; fall back to the current average
	if predicted3Month < 0 {
		predicted3Month = currentAvg
	}
	if predicted6Month < 0 {
		predicted6Month = currentAvg
	}

	return &GrowthTrend{
		RatePerMonth:    ratePerMonth,
		Confidence:      r2,
		Predicted3Month: predicted3Month,
		Predicted6Month: predicted6Month,
		IsGrowing:       ratePerMonth > 3.0,
	}, nil
}

// linearRegression returns slope, intercept and R² for y = mx + b
func linearRegression(x, y []float64) (slope, intercept, r2 float64) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0, 0
	}

	meanX, _ := stats.Mean(x)
	meanY, _ := stats.Mean(y)

	numerator := 0.0
	denominator := 0.0
	for i := range x {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}
	if denominator == 0 {
		return 0, meanY, 0
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	ssTotal := 0.0
	ssRes := 0.0
	for i := range x {
		predicted := slope*x[i] + intercept
		ssRes += (y[i] - predicted) * (y[i] - predicted)
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
	}
	if ssTotal == 0 {
		return slope, intercept, 0
	}

	r2 = 1.0 - (ssRes / ssTotal)
	if r2 < 0 {
		r2 = 0
	} else if r2 > 1 {
		r2 = 1
	}

	return slope, intercept, r2
}
