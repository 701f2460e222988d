package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/opscart/metricwatch/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore opens a connection pool against the DSN and runs
// migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	store := &PostgresStore{db: db, dsn: dsn}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// GetSamples fetches samples for the half-open window [start, end).
// metricType may be empty to fetch all metric types.
func (s *PostgresStore) GetSamples(ctx context.Context, subjectID, metricType string, start, end time.Time) ([]models.MetricSample, error) {
	query := `
		SELECT subject_id, metric_type, value, ts
		FROM metric_samples
		WHERE subject_id = $1 AND ts >= $2 AND ts < $3
	`
	args := []interface{}{subjectID, start, end}
	if metricType != "" {
		query += ` AND metric_type = $4`
		args = append(args, metricType)
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		var sample models.MetricSample
		if err := rows.Scan(&sample.SubjectID, &sample.MetricType, &sample.Value, &sample.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	return samples, rows.Err()
}

// InsertSamples bulk-inserts observed samples
func (s *PostgresStore) InsertSamples(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metric_samples (subject_id, metric_type, value, ts)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx, sample.SubjectID, sample.MetricType, sample.Value, sample.Timestamp); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertSummary writes the per-window summary. The ON CONFLICT clause is
// the correctness boundary for concurrent runs of the same subject and
// window: the last write wins and no duplicate row can exist.
func (s *PostgresStore) UpsertSummary(ctx context.Context, summary *models.PersistedSummary) error {
	percentiles, err := json.Marshal(encodePercentiles(summary.Aggregate.Percentiles))
	if err != nil {
		return fmt.Errorf("failed to encode percentiles: %w", err)
	}

	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO window_summaries (
			subject_id, window_start, window_end,
			sample_count, mean_value, min_value, max_value, percentiles,
			score, label, trend, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (subject_id, window_start, window_end) DO UPDATE SET
			sample_count = EXCLUDED.sample_count,
			mean_value = EXCLUDED.mean_value,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			percentiles = EXCLUDED.percentiles,
			score = EXCLUDED.score,
			label = EXCLUDED.label,
			trend = EXCLUDED.trend,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		summary.SubjectID, summary.WindowStart, summary.WindowEnd,
		summary.Aggregate.Count, summary.Aggregate.Mean,
		summary.Aggregate.Min, summary.Aggregate.Max, percentiles,
		summary.Classification.Score, summary.Classification.Label,
		string(summary.Classification.Trend), summary.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	return nil
}

// RecentSummaries returns up to limit summaries, oldest window first
func (s *PostgresStore) RecentSummaries(ctx context.Context, subjectID string, limit int) ([]*models.PersistedSummary, error) {
	query := `
		SELECT subject_id, window_start, window_end,
			sample_count, mean_value, min_value, max_value, percentiles,
			score, label, trend, updated_at
		FROM (
			SELECT * FROM window_summaries
			WHERE subject_id = $1
			ORDER BY window_start DESC
			LIMIT $2
		) recent
		ORDER BY window_start ASC
	`

	rows, err := s.db.QueryContext(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var summaries []*models.PersistedSummary
	for rows.Next() {
		var summary models.PersistedSummary
		var trend string
		var rawPercentiles []byte

		err := rows.Scan(
			&summary.SubjectID, &summary.WindowStart, &summary.WindowEnd,
			&summary.Aggregate.Count, &summary.Aggregate.Mean,
			&summary.Aggregate.Min, &summary.Aggregate.Max, &rawPercentiles,
			&summary.Classification.Score, &summary.Classification.Label,
			&trend, &summary.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		summary.Classification.Trend = models.Trend(trend)

		var encoded map[string]float64
		if err := json.Unmarshal(rawPercentiles, &encoded); err != nil {
			return nil, fmt.Errorf("failed to decode percentiles: %w", err)
		}
		summary.Aggregate.Percentiles = decodePercentiles(encoded)

		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// SaveRecommendation persists a recommendation, assigning an ID and
// creation time when missing.
func (s *PostgresStore) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO recommendations (
			id, subject_id, kind, priority, estimated_impact, reason,
			implemented, implemented_by, implemented_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var implementedBy sql.NullString
	if rec.ImplementedBy != "" {
		implementedBy = sql.NullString{String: rec.ImplementedBy, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.SubjectID, string(rec.Kind), string(rec.Priority),
		rec.EstimatedImpact, rec.Reason,
		rec.Implemented, implementedBy, rec.ImplementedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	return nil
}

// OpenRecommendations lists unimplemented recommendations, newest first
func (s *PostgresStore) OpenRecommendations(ctx context.Context, subjectID string) ([]*models.Recommendation, error) {
	query := `
		SELECT id, subject_id, kind, priority, estimated_impact, reason,
			implemented, implemented_by, implemented_at, created_at
		FROM recommendations
		WHERE NOT implemented
	`
	args := []interface{}{}
	if subjectID != "" {
		query += ` AND subject_id = $1`
		args = append(args, subjectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var recs []*models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		var kind, priority string
		var implementedBy sql.NullString
		var implementedAt sql.NullTime

		err := rows.Scan(
			&rec.ID, &rec.SubjectID, &kind, &priority,
			&rec.EstimatedImpact, &rec.Reason,
			&rec.Implemented, &implementedBy, &implementedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		rec.Kind = models.Kind(kind)
		rec.Priority = models.Priority(priority)
		if implementedBy.Valid {
			rec.ImplementedBy = implementedBy.String
		}
		if implementedAt.Valid {
			rec.ImplementedAt = &implementedAt.Time
		}

		recs = append(recs, &rec)
	}

	return recs, rows.Err()
}

// MarkImplemented flips the only mutable recommendation field
func (s *PostgresStore) MarkImplemented(ctx context.Context, id, by string) error {
	query := `
		UPDATE recommendations
		SET implemented = TRUE, implemented_by = $1, implemented_at = NOW()
		WHERE id = $2 AND NOT implemented
	`

	result, err := s.db.ExecContext(ctx, query, by, id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("open recommendation not found: %s", id)
	}

	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// JSON object keys must be strings, so percentile keys round-trip through
// their decimal representation.
func encodePercentiles(in map[float64]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for p, v := range in {
		out[strconv.FormatFloat(p, 'f', -1, 64)] = v
	}
	return out
}

func decodePercentiles(in map[string]float64) map[float64]float64 {
	out := make(map[float64]float64, len(in))
	for k, v := range in {
		p, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue
		}
		out[p] = v
	}
	return out
}
