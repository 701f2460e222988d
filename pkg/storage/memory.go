package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/metricwatch/pkg/models"
)

// MemoryStore is an in-memory Store used by tests and dry runs. It applies
// the same upsert-by-window discipline as the PostgreSQL store.
type MemoryStore struct {
	mu        sync.RWMutex
	samples   []models.MetricSample
	summaries map[string]*models.PersistedSummary
	recs      map[string]*models.Recommendation
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		summaries: make(map[string]*models.PersistedSummary),
		recs:      make(map[string]*models.Recommendation),
	}
}

func summaryKey(subjectID string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", subjectID, start.UnixNano(), end.UnixNano())
}

// GetSamples filters stored samples by subject, optional metric type and the
// half-open window [start, end), ordered by timestamp ascending.
func (s *MemoryStore) GetSamples(_ context.Context, subjectID, metricType string, start, end time.Time) ([]models.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MetricSample
	for _, sample := range s.samples {
		if sample.SubjectID != subjectID {
			continue
		}
		if metricType != "" && sample.MetricType != metricType {
			continue
		}
		if sample.Timestamp.Before(start) || !sample.Timestamp.Before(end) {
			continue
		}
		out = append(out, sample)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out, nil
}

// InsertSamples appends samples
func (s *MemoryStore) InsertSamples(_ context.Context, samples []models.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, samples...)
	return nil
}

// UpsertSummary overwrites any existing summary for the same window key
func (s *MemoryStore) UpsertSummary(_ context.Context, summary *models.PersistedSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *summary
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now()
	}
	s.summaries[summaryKey(summary.SubjectID, summary.WindowStart, summary.WindowEnd)] = &copied
	return nil
}

// RecentSummaries returns up to limit summaries, oldest window first
func (s *MemoryStore) RecentSummaries(_ context.Context, subjectID string, limit int) ([]*models.PersistedSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PersistedSummary
	for _, summary := range s.summaries {
		if summary.SubjectID == subjectID {
			out = append(out, summary)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowStart.Before(out[j].WindowStart)
	})

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

// SummaryCount reports how many summary rows exist; test helper.
func (s *MemoryStore) SummaryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.summaries)
}

// SaveRecommendation stores a recommendation, assigning ID and creation time
// when missing.
func (s *MemoryStore) SaveRecommendation(_ context.Context, rec *models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	copied := *rec
	s.recs[rec.ID] = &copied
	return nil
}

// OpenRecommendations lists unimplemented recommendations
func (s *MemoryStore) OpenRecommendations(_ context.Context, subjectID string) ([]*models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Recommendation
	for _, rec := range s.recs {
		if rec.Implemented {
			continue
		}
		if subjectID != "" && rec.SubjectID != subjectID {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// MarkImplemented flips the implemented flag
func (s *MemoryStore) MarkImplemented(_ context.Context, id, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok || rec.Implemented {
		return fmt.Errorf("open recommendation not found: %s", id)
	}

	now := time.Now()
	rec.Implemented = true
	rec.ImplementedBy = by
	rec.ImplementedAt = &now
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }
