package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/lockwhz/ai-scan-service/internal/processor"
	"github.com/lockwhz/ai-scan-service/models"
)

var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
}

// severityRank: 0 para severidades desconhecidas.
func severityRank(s models.Severity) int {
	for i, known := range severityOrder {
		if s == known {
			return len(severityOrder) - i
		}
	}
	return 0
}

func hasSeverityAtLeast(findings []models.Finding, threshold models.Severity) bool {
	floor := severityRank(threshold)
	for _, f := range findings {
		if severityRank(f.Severity) >= floor {
			return true
		}
	}
	return false
}

func severityColor(s models.Severity) *color.Color {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case models.SeverityHigh:
		return color.New(color.FgRed)
	case models.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgBlue)
	}
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 80:
		return color.New(color.FgGreen)
	case score >= 50:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// formatReport monta o relatório de terminal de um scan.
func formatReport(resp *models.ScanResponse, colorize bool) string {
	paint := func(c *color.Color, s string) string {
		if !colorize {
			return s
		}
		return c.Sprint(s)
	}
	var out strings.Builder

	sha := resp.CommitSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}
	out.WriteString(paint(color.New(color.FgCyan, color.Bold),
		fmt.Sprintf("AI Security Scan - %s (%s)\n", resp.Repository, resp.Platform)))
	out.WriteString(fmt.Sprintf("Commit: %s | Method: %s | Files scanned: %d\n\n", sha, resp.AnalysisMethod, resp.FilesScanned))

	s := resp.SecurityScore
	out.WriteString(paint(color.New(color.FgYellow, color.Bold), "Security Score:\n"))
	for _, row := range []struct {
		label string
		value float64
	}{
		{"Overall", s.Overall},
		{"Secrets", s.Secrets},
		{"Vulnerabilities", s.Vulnerabilities},
		{"Configurations", s.Configurations},
		{"Patterns", s.Patterns},
	} {
		out.WriteString(fmt.Sprintf("  %-16s %s\n", row.label, paint(scoreColor(row.value), fmt.Sprintf("%3.0f/100", row.value))))
	}

	if len(resp.Results) == 0 {
		out.WriteString("\n")
		out.WriteString(paint(color.New(color.FgGreen, color.Bold), "No issues found.\n"))
		return out.String()
	}

	counts := processor.CountBySeverity(resp.Results)
	out.WriteString(fmt.Sprintf("\nIssues: %d (%d before deduplication, %d sanitized)\n",
		len(resp.Results), resp.IssuesBeforeDeduplication, resp.SanitizedIssues))
	for _, sev := range severityOrder {
		if counts[sev] > 0 {
			out.WriteString(paint(severityColor(sev), fmt.Sprintf("    %s: %d\n", strings.ToUpper(string(sev)), counts[sev])))
		}
	}

	out.WriteString("\n")
	for _, sev := range severityOrder {
		for _, f := range resp.Results {
			if f.Severity != sev {
				continue
			}
			loc := f.File
			if f.Line != nil {
				loc = fmt.Sprintf("%s:%d", f.File, *f.Line)
			}
			out.WriteString(paint(severityColor(sev), fmt.Sprintf("[%s]", strings.ToUpper(string(sev)))))
			out.WriteString(fmt.Sprintf(" %s (%s)\n    %s\n", f.Title, f.Type, loc))
			if f.Suggestion != "" {
				out.WriteString(fmt.Sprintf("    fix: %s\n", f.Suggestion))
			}
		}
	}
	return out.String()
}
