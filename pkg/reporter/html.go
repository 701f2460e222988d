package reporter

import (
	"fmt"
	"html/template"
	"io"
)

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Metricwatch Report - {{.Profile}}</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #333;
            padding: 20px;
            line-height: 1.6;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1);
            overflow: hidden;
        }
        .header {
            background: linear-gradient(135deg, #326ce5 0%, #1a4d8f 100%);
            color: white;
            padding: 40px;
        }
        .header h1 {
            font-size: 2.2em;
            margin-bottom: 10px;
        }
        .header .meta {
            opacity: 0.95;
        }
        .summary {
            display: flex;
            gap: 30px;
            padding: 30px 40px;
            border-bottom: 1px solid #e1e8ed;
        }
        .summary .stat {
            flex: 1;
        }
        .summary .stat .value {
            font-size: 2em;
            font-weight: 700;
            color: #326ce5;
        }
        .summary .stat .name {
            color: #657786;
            font-size: 0.9em;
            text-transform: uppercase;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 12px 16px;
            border-bottom: 1px solid #e1e8ed;
        }
        th {
            background: #f8f9fa;
            color: #657786;
            font-size: 0.85em;
            text-transform: uppercase;
        }
        .badge {
            display: inline-block;
            padding: 2px 10px;
            border-radius: 12px;
            font-size: 0.85em;
            font-weight: 600;
        }
        .badge.high { background: #fde8e8; color: #c0392b; }
        .badge.medium { background: #fef5e7; color: #b9770e; }
        .badge.low { background: #eafaf1; color: #1e8449; }
        .section-title {
            padding: 25px 40px 10px;
            font-size: 1.3em;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Metricwatch Report</h1>
            <div class="meta">
                Profile: <strong>{{.Profile}}</strong> &middot;
                Generated: <strong>{{.GeneratedAt.Format "2006-01-02 15:04:05"}}</strong>
            </div>
        </div>
        <div class="summary">
            <div class="stat">
                <div class="value">{{.SubjectCount}}</div>
                <div class="name">Subjects</div>
            </div>
            <div class="stat">
                <div class="value">{{.NoVerdictCount}}</div>
                <div class="name">No Verdict</div>
            </div>
            <div class="stat">
                <div class="value">{{len .Recommendations}}</div>
                <div class="name">Recommendations</div>
            </div>
            <div class="stat">
                <div class="value">${{printf "%.2f" .TotalImpact}}</div>
                <div class="name">Estimated Impact / Month</div>
            </div>
        </div>
        <div class="section-title">Subject Outcomes</div>
        <table>
            <tr>
                <th>Subject</th><th>Status</th><th>Samples</th>
                <th>Score</th><th>Label</th><th>Trend</th>
            </tr>
            {{range .Outcomes}}
            <tr>
                <td>{{.SubjectID}}</td>
                <td>{{.Status}}</td>
                {{if .Aggregate}}
                <td>{{.Aggregate.Count}}</td>
                <td>{{printf "%.2f" .State.Score}}</td>
                <td>{{.State.Label}}</td>
                <td>{{.State.Trend}}</td>
                {{else}}
                <td>-</td><td>-</td><td>-</td><td>-</td>
                {{end}}
            </tr>
            {{end}}
        </table>
        {{if .Recommendations}}
        <div class="section-title">Recommendations</div>
        <table>
            <tr>
                <th>Subject</th><th>Kind</th><th>Priority</th>
                <th>Impact ($/month)</th><th>Reason</th>
            </tr>
            {{range .Recommendations}}
            <tr>
                <td>{{.SubjectID}}</td>
                <td>{{.Kind}}</td>
                <td><span class="badge {{lower .Priority}}">{{.Priority}}</span></td>
                <td>{{printf "%.2f" .EstimatedImpact}}</td>
                <td>{{.Reason}}</td>
            </tr>
            {{end}}
        </table>
        {{end}}
    </div>
</body>
</html>
`

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, w io.Writer) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"lower": lowerPriority,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse report template: %w", err)
	}

	if err := tmpl.Execute(w, report); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	return nil
}

func lowerPriority(p interface{}) string {
	switch fmt.Sprint(p) {
	case "HIGH":
		return "high"
	case "LOW":
		return "low"
	default:
		return "medium"
	}
}
