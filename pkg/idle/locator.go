// Package idle determines when a sustained underutilization condition began
// for a subject, using a short confirmation window followed by a doubled
// look-back scan for the onset.
package idle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/opscart/metricwatch/pkg/models"
	"github.com/opscart/metricwatch/pkg/storage"
	"go.uber.org/zap"
)

// Config parameterizes the locator for one domain
type Config struct {
	// Lookback is the confirmation window length
	Lookback time.Duration

	// MinSamples gates the confirmation phase; fewer samples per metric
	// means "not idle", not an error.
	MinSamples int

	// Thresholds maps metric type to the per-metric idle threshold; a
	// metric qualifies when its confirmation-window mean is <= threshold.
	Thresholds map[string]float64

	// RequireAll demands every configured metric qualify; otherwise one
	// qualifying metric is enough.
	RequireAll bool

	// MinIdleDuration is the sustained duration required before the
	// condition counts as idle. Defaults to Lookback when zero; the two
	// are independent parameters, not the same knob.
	MinIdleDuration time.Duration
}

// Locator finds the onset of an idle condition
type Locator struct {
	src storage.SampleSource
	cfg Config
	log *zap.Logger
}

// New validates the configuration and builds a locator
func New(src storage.SampleSource, cfg Config, log *zap.Logger) (*Locator, error) {
	if cfg.Lookback <= 0 {
		return nil, fmt.Errorf("%w: lookback window must be positive, got %s", models.ErrInvalidConfig, cfg.Lookback)
	}
	if cfg.MinSamples < 1 {
		return nil, fmt.Errorf("%w: min samples must be >= 1, got %d", models.ErrInvalidConfig, cfg.MinSamples)
	}
	if len(cfg.Thresholds) == 0 {
		return nil, fmt.Errorf("%w: no idle thresholds configured", models.ErrInvalidConfig)
	}
	if cfg.MinIdleDuration == 0 {
		cfg.MinIdleDuration = cfg.Lookback
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{src: src, cfg: cfg, log: log}, nil
}

// LocateOnset reports when the subject's idle condition began. The second
// return value is false when the subject is not (or not long enough) idle.
//
// Phase one confirms idleness over [now-lookback, now): each thresholded
// metric qualifies when its mean is at or below the threshold. Phase two
// re-scans a doubled window and takes the earliest timestamp at which any
// qualifying metric first dipped to its threshold. The returned onset is
// never later than the confirmation window start and never earlier than the
// doubled window start.
func (l *Locator) LocateOnset(ctx context.Context, subjectID string, now time.Time) (time.Time, bool, error) {
	confirmStart := now.Add(-l.cfg.Lookback)

	qualifying := make([]string, 0, len(l.cfg.Thresholds))
	for metricType, threshold := range l.cfg.Thresholds {
		samples, err := l.src.GetSamples(ctx, subjectID, metricType, confirmStart, now)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("confirmation fetch for %s: %w", metricType, err)
		}

		mean, ok := usableMean(samples, l.cfg.MinSamples)
		if !ok || mean > threshold {
			if l.cfg.RequireAll {
				// One failing metric settles it
				return time.Time{}, false, nil
			}
			continue
		}
		qualifying = append(qualifying, metricType)
	}

	if len(qualifying) == 0 {
		return time.Time{}, false, nil
	}

	onsetStart := now.Add(-2 * l.cfg.Lookback)
	onset := confirmStart

	for _, metricType := range qualifying {
		samples, err := l.src.GetSamples(ctx, subjectID, metricType, onsetStart, now)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("onset fetch for %s: %w", metricType, err)
		}

		first, found := earliestAtOrBelow(samples, l.cfg.Thresholds[metricType])
		if !found {
			// Sparse sampling can miss the breach point; fall back to the
			// start of the onset window as a conservative estimate.
			first = onsetStart
		}
		if first.Before(onset) {
			onset = first
		}
	}

	if onset.Before(onsetStart) {
		onset = onsetStart
	}

	if now.Sub(onset) < l.cfg.MinIdleDuration {
		l.log.Debug("idle condition confirmed but not sustained",
			zap.String("subject", subjectID),
			zap.Time("onset", onset),
			zap.Duration("required", l.cfg.MinIdleDuration))
		return time.Time{}, false, nil
	}

	l.log.Info("idle onset located",
		zap.String("subject", subjectID),
		zap.Time("onset", onset),
		zap.Strings("metrics", qualifying))

	return onset, true, nil
}

// usableMean computes the mean over finite sample values, requiring at
// least minSamples of them.
func usableMean(samples []models.MetricSample, minSamples int) (float64, bool) {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.IsUsable() {
			values = append(values, s.Value)
		}
	}
	if len(values) < minSamples {
		return 0, false
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0, false
	}
	return mean, true
}

// earliestAtOrBelow scans samples in timestamp order for the first value at
// or below the threshold.
func earliestAtOrBelow(samples []models.MetricSample, threshold float64) (time.Time, bool) {
	ordered := make([]models.MetricSample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, s := range ordered {
		if s.IsUsable() && s.Value <= threshold {
			return s.Timestamp, true
		}
	}
	return time.Time{}, false
}
