package reporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/opscart/metricwatch/pkg/monitor"
)

// GenerateCSV creates a CSV report, one row per subject outcome
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)
	defer w.Flush()

	header := []string{
		"Subject",
		"Status",
		"Window Start",
		"Window End",
		"Samples",
		"Mean",
		"Min",
		"Max",
		"Score",
		"Label",
		"Trend",
		"Idle Since",
		"Recommendation",
		"Priority",
		"Impact ($)",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, outcome := range report.Outcomes {
		row := outcomeRow(outcome)
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return nil
}

func outcomeRow(outcome *monitor.Outcome) []string {
	row := []string{
		outcome.SubjectID,
		string(outcome.Status),
		outcome.WindowStart.Format("2006-01-02 15:04:05"),
		outcome.WindowEnd.Format("2006-01-02 15:04:05"),
	}

	if outcome.Status == monitor.StatusInsufficientData {
		return append(row, "", "", "", "", "", "", "", "", "", "", "")
	}

	row = append(row,
		fmt.Sprintf("%d", outcome.Aggregate.Count),
		fmt.Sprintf("%.2f", outcome.Aggregate.Mean),
		fmt.Sprintf("%.2f", outcome.Aggregate.Min),
		fmt.Sprintf("%.2f", outcome.Aggregate.Max),
		fmt.Sprintf("%.2f", outcome.State.Score),
		outcome.State.Label,
		string(outcome.State.Trend),
	)

	if outcome.IdleSince != nil {
		row = append(row, outcome.IdleSince.Format("2006-01-02 15:04:05"))
	} else {
		row = append(row, "")
	}

	if outcome.Recommendation != nil {
		row = append(row,
			string(outcome.Recommendation.Kind),
			string(outcome.Recommendation.Priority),
			fmt.Sprintf("%.2f", outcome.Recommendation.EstimatedImpact),
		)
	} else {
		row = append(row, "", "", "")
	}

	return row
}
