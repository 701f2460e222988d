// Package datasource provides sample sources backed by external systems.
package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opscart/metricwatch/pkg/models"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusSource implements storage.SampleSource over a Prometheus
// range-query API. Each metric type maps to a query template; the literal
// {{subject}} is replaced with the subject identifier.
type PrometheusSource struct {
	api     v1.API
	queries map[string]string
	step    time.Duration
}

// NewPrometheusSource creates a source against the given Prometheus URL
func NewPrometheusSource(url string, queries map[string]string, step time.Duration) (*PrometheusSource, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: no prometheus queries configured", models.ErrInvalidConfig)
	}
	if step <= 0 {
		step = 5 * time.Minute
	}

	client, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusSource{
		api:     v1.NewAPI(client),
		queries: queries,
		step:    step,
	}, nil
}

// GetSamples runs the range query for the metric type over [start, end)
func (p *PrometheusSource) GetSamples(ctx context.Context, subjectID, metricType string, start, end time.Time) ([]models.MetricSample, error) {
	tmpl, ok := p.queries[metricType]
	if !ok {
		return nil, fmt.Errorf("%w: no query configured for metric type %q", models.ErrInvalidConfig, metricType)
	}
	query := strings.ReplaceAll(tmpl, "{{subject}}", subjectID)

	r := v1.Range{
		Start: start,
		End:   end,
		Step:  p.step,
	}

	result, _, err := p.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("%w: prometheus query failed: %v", models.ErrStorageUnavailable, err)
	}

	return parseMatrix(result, subjectID, metricType)
}

// parseMatrix converts a range-query result into metric samples. An empty
// matrix yields an empty slice, not an error.
func parseMatrix(result model.Value, subjectID, metricType string) ([]models.MetricSample, error) {
	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}

	var samples []models.MetricSample
	for _, series := range matrix {
		for _, value := range series.Values {
			samples = append(samples, models.MetricSample{
				SubjectID:  subjectID,
				MetricType: metricType,
				Value:      float64(value.Value),
				Timestamp:  value.Timestamp.Time(),
			})
		}
	}

	return samples, nil
}
