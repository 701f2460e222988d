package models

import "time"

// Kind represents the type of action a recommendation proposes
type Kind string

const (
	KindDownsize Kind = "DOWNSIZE"
	KindUpsize   Kind = "UPSIZE"
	KindUnused   Kind = "UNUSED"
	KindCaching  Kind = "CACHING"
	KindRetry    Kind = "RETRY"
)

// Priority is the ordered urgency assigned to a recommendation
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Recommendation represents an actionable finding for a subject.
// Once created it is immutable except for the Implemented flag, which an
// external apply action flips.
type Recommendation struct {
	ID        string
	SubjectID string
	Kind      Kind
	Priority  Priority

	// EstimatedImpact is a signed quantity: savings are positive, cost
	// increases negative. Zero when no cost model was supplied.
	EstimatedImpact float64

	Reason string

	Implemented   bool
	ImplementedBy string
	ImplementedAt *time.Time

	CreatedAt time.Time
}
