// Package ladder maps scalar scores to ordered labels using a ranked list
// of cutoffs, replacing per-domain if/else threshold chains with one
// declarative evaluator.
package ladder

import (
	"fmt"

	"github.com/opscart/metricwatch/pkg/models"
)

// Direction controls which side of a cutoff a rung owns
type Direction int

const (
	// AtLeast matches when score >= cutoff; used for "higher is better"
	// ladders (health from success rate) and severity-from-failure-rate
	// ladders alike, with cutoffs supplied strictest-first.
	AtLeast Direction = iota
	// AtMost matches when score <= cutoff; used for "lower is better"
	// quantities such as latency or variation.
	AtMost
)

// Rung is one (label, cutoff) pair
type Rung struct {
	Label  string
	Cutoff float64
}

// Ladder evaluates rungs in the caller-supplied order; first match wins.
// A boundary value always belongs to the rung owning that cutoff: matches
// are inclusive (>= or <=, never strict).
type Ladder struct {
	rungs        []Rung
	direction    Direction
	defaultLabel string
}

// New builds a ladder. An empty rung list is rejected immediately rather
// than at classification time.
func New(direction Direction, defaultLabel string, rungs ...Rung) (*Ladder, error) {
	if len(rungs) == 0 {
		return nil, fmt.Errorf("%w: ladder has no rungs", models.ErrInvalidConfig)
	}
	if defaultLabel == "" {
		return nil, fmt.Errorf("%w: ladder has no default label", models.ErrInvalidConfig)
	}
	return &Ladder{
		rungs:        rungs,
		direction:    direction,
		defaultLabel: defaultLabel,
	}, nil
}

// Classify returns the label of the first rung the score matches, or the
// default label when no rung matches.
func (l *Ladder) Classify(score float64) string {
	for _, r := range l.rungs {
		if l.matches(score, r.Cutoff) {
			return r.Label
		}
	}
	return l.defaultLabel
}

// Rungs returns a copy of the configured rungs, strictest first.
func (l *Ladder) Rungs() []Rung {
	out := make([]Rung, len(l.rungs))
	copy(out, l.rungs)
	return out
}

func (l *Ladder) matches(score, cutoff float64) bool {
	if l.direction == AtMost {
		return score <= cutoff
	}
	return score >= cutoff
}
