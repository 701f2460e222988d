package storage

import (
	"context"
	"time"

	"github.com/opscart/metricwatch/pkg/models"
)

// SampleSource is the read side consumed by monitor runs and the idle
// locator. metricType may be empty to fetch all metric types for a subject.
// The window is half-open: [start, end).
type SampleSource interface {
	GetSamples(ctx context.Context, subjectID, metricType string, start, end time.Time) ([]models.MetricSample, error)
}

// Store defines the interface for persistent storage
type Store interface {
	SampleSource

	InsertSamples(ctx context.Context, samples []models.MetricSample) error

	// UpsertSummary writes the per-window record. At most one row exists
	// per (subject, window start, window end); a second write for the same
	// key overwrites the first.
	UpsertSummary(ctx context.Context, summary *models.PersistedSummary) error

	// RecentSummaries returns up to limit summaries for the subject,
	// ordered by window start ascending (oldest first).
	RecentSummaries(ctx context.Context, subjectID string, limit int) ([]*models.PersistedSummary, error)

	SaveRecommendation(ctx context.Context, rec *models.Recommendation) error

	// OpenRecommendations lists unimplemented recommendations; subjectID
	// may be empty to list across all subjects.
	OpenRecommendations(ctx context.Context, subjectID string) ([]*models.Recommendation, error)

	MarkImplemented(ctx context.Context, id, by string) error

	Ping(ctx context.Context) error
	Close() error
}
