package ladder

import (
	"errors"
	"testing"

	"github.com/opscart/metricwatch/pkg/models"
)

func healthLadder(t *testing.T) *Ladder {
	t.Helper()
	l, err := New(AtLeast, "poor",
		Rung{Label: "excellent", Cutoff: 0.90},
		Rung{Label: "good", Cutoff: 0.75},
		Rung{Label: "satisfactory", Cutoff: 0.60},
		Rung{Label: "needs_improvement", Cutoff: 0.40},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func TestClassify(t *testing.T) {
	l := healthLadder(t)

	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "excellent"},
		{0.80, "good"},
		{0.65, "satisfactory"},
		{0.45, "needs_improvement"},
		{0.10, "poor"},
	}

	for _, c := range cases {
		if got := l.Classify(c.score); got != c.want {
			t.Errorf("Classify(%.2f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestClassifyBoundaryInclusive(t *testing.T) {
	l := healthLadder(t)

	// A score exactly on a cutoff belongs to the rung owning it, never the
	// next-lower rung
	cases := []struct {
		score float64
		want  string
	}{
		{0.90, "excellent"},
		{0.75, "good"},
		{0.60, "satisfactory"},
		{0.40, "needs_improvement"},
	}

	for _, c := range cases {
		if got := l.Classify(c.score); got != c.want {
			t.Errorf("Classify(%.2f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestClassifyAtMost(t *testing.T) {
	// Latency-style ladder: lower is better, cutoffs loosest-last
	l, err := New(AtMost, "unacceptable",
		Rung{Label: "fast", Cutoff: 100},
		Rung{Label: "acceptable", Cutoff: 500},
		Rung{Label: "slow", Cutoff: 2000},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cases := []struct {
		score float64
		want  string
	}{
		{50, "fast"},
		{100, "fast"}, // boundary stays with the stricter rung
		{300, "acceptable"},
		{2000, "slow"},
		{5000, "unacceptable"},
	}

	for _, c := range cases {
		if got := l.Classify(c.score); got != c.want {
			t.Errorf("Classify(%.0f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestNewRejectsEmptyLadder(t *testing.T) {
	_, err := New(AtLeast, "poor")
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for empty ladder, got %v", err)
	}
}

func TestNewRejectsMissingDefault(t *testing.T) {
	_, err := New(AtLeast, "", Rung{Label: "ok", Cutoff: 0.5})
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for missing default, got %v", err)
	}
}

func TestFirstMatchWins(t *testing.T) {
	// Overlapping rungs: caller order decides
	l, err := New(AtLeast, "none",
		Rung{Label: "first", Cutoff: 0.5},
		Rung{Label: "second", Cutoff: 0.5},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := l.Classify(0.7); got != "first" {
		t.Errorf("Expected first matching rung, got %s", got)
	}
}
