package models

import "time"

// Trend is the classified direction of a sequence of period-level values
type Trend string

const (
	TrendIncreasing       Trend = "increasing"
	TrendDecreasing       Trend = "decreasing"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// ClassifiedState is the verdict for one subject over one window.
// It is computed fresh on every run and never mutated in place.
type ClassifiedState struct {
	Score float64
	Label string
	Trend Trend
}

// PersistedSummary is the one-row-per-subject-per-window record written
// after a completed run. At most one summary exists per
// (SubjectID, WindowStart, WindowEnd); re-running a window overwrites it.
type PersistedSummary struct {
	SubjectID      string
	WindowStart    time.Time
	WindowEnd      time.Time
	Aggregate      AggregateResult
	Classification ClassifiedState
	UpdatedAt      time.Time
}
