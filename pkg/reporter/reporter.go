// Package reporter renders monitor outcomes and recommendations. The
// engine itself exposes plain data; all formatting lives here.
package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/opscart/metricwatch/pkg/models"
	"github.com/opscart/metricwatch/pkg/monitor"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatHTML ReportFormat = "html"
	FormatCSV  ReportFormat = "csv"
)

// Report contains all data for generating reports
type Report struct {
	Profile         string
	GeneratedAt     time.Time
	Outcomes        []*monitor.Outcome
	Recommendations []*models.Recommendation
	TotalImpact     float64
	SubjectCount    int
	NoVerdictCount  int
}

// Build assembles a report from run outcomes
func Build(profile string, outcomes []*monitor.Outcome) *Report {
	report := &Report{
		Profile:      profile,
		GeneratedAt:  time.Now(),
		Outcomes:     outcomes,
		SubjectCount: len(outcomes),
	}

	for _, outcome := range outcomes {
		if outcome.Status == monitor.StatusInsufficientData {
			report.NoVerdictCount++
			continue
		}
		if outcome.Recommendation != nil {
			report.Recommendations = append(report.Recommendations, outcome.Recommendation)
			report.TotalImpact += outcome.Recommendation.EstimatedImpact
		}
	}

	return report
}

// Generate writes the report in the requested format
func Generate(report *Report, format ReportFormat, w io.Writer) error {
	switch format {
	case FormatCSV:
		return GenerateCSV(report, w)
	case FormatHTML:
		return GenerateHTML(report, w)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}
