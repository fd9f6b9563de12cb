package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/delta"
)

// AnalysisMarkdown renders one analysis as a markdown report
func AnalysisMarkdown(report *models.FinancialReport, analysis *models.NarrativeAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Narrative Analysis: %s %s\n\n", report.CompanyID, report.FiscalPeriod)
	fmt.Fprintf(&b, "**Report:** %s (%s, filed %s)\n\n", report.ID, report.ReportType, report.FilingDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Model:** %s, analyzed %s\n\n", analysis.ModelVersion, analysis.CreatedAt.Format("2006-01-02 15:04"))

	b.WriteString("## Sentiment\n\n")
	b.WriteString("| Dimension | Score | Confidence |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| Optimism | %.3f | %.2f |\n", analysis.OptimismScore, analysis.OptimismConfidence)
	fmt.Fprintf(&b, "| Risk | %.3f | %.2f |\n", analysis.RiskScore, analysis.RiskConfidence)
	fmt.Fprintf(&b, "| Uncertainty | %.3f | %.2f |\n", analysis.UncertaintyScore, analysis.UncertaintyConfidence)
	fmt.Fprintf(&b, "| Overall | %.3f | |\n\n", analysis.OverallSentiment())

	writeList(&b, "Key Themes", analysis.KeyThemes)
	writeList(&b, "Risk Indicators", analysis.RiskIndicators)

	if len(analysis.NarrativeSections) > 0 {
		b.WriteString("## Narrative\n\n")
		names := make([]string, 0, len(analysis.NarrativeSections))
		for name := range analysis.NarrativeSections {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", heading(name), oneParagraph(analysis.NarrativeSections[name]))
		}
	}

	if m := analysis.FinancialMetrics; m != nil {
		b.WriteString("## Financial Cross-Reference\n\n")
		fmt.Fprintf(&b, "**Overall:** %s (%d facts)\n\n", m.OverallSentiment, m.FactCount)
		if m.RiskAlignment != nil {
			fmt.Fprintf(&b, "**Risk alignment:** %s (narrative %s, financial %s)\n\n",
				m.RiskAlignment.Alignment, m.RiskAlignment.NarrativeRiskLevel, m.RiskAlignment.FinancialRiskLevel)
		}
		writeList(&b, "Insights", m.Insights)
		if len(m.Discrepancies) > 0 {
			b.WriteString("### Discrepancies\n\n")
			for _, d := range m.Discrepancies {
				fmt.Fprintf(&b, "- **%s** (%s): %s\n", d.Type, d.Severity, d.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// DeltaMarkdown renders a delta with its summary and alert messages
func DeltaMarkdown(d *models.NarrativeDelta) string {
	var b strings.Builder
	s := delta.Summarize(d)

	fmt.Fprintf(&b, "# Narrative Shift: %s\n\n", d.CompanyID)
	fmt.Fprintf(&b, "**Base report:** %s\n\n**Comparison report:** %s\n\n", d.BaseReportID, d.ComparisonReportID)
	fmt.Fprintf(&b, "**Significance:** %s (%s %s change)\n\n", d.ShiftSignificance, s.Overall.Magnitude, s.Overall.Direction)

	b.WriteString("## Changes\n\n")
	b.WriteString("| Dimension | Delta | Percent |\n|---|---|---|\n")
	rows := []struct {
		name string
		c    delta.Change
	}{
		{"Overall", s.Overall.Change},
		{"Optimism", s.Optimism},
		{"Risk", s.Risk},
		{"Uncertainty", s.Uncertainty},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %+.4f | %+.2f%% |\n", row.name, row.c.Delta, row.c.Percentage)
	}
	b.WriteString("\n")

	writeList(&b, "Themes Added", d.ThemesAdded)
	writeList(&b, "Themes Removed", d.ThemesRemoved)
	writeList(&b, "Alerts", delta.AlertMessages(d))
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", oneParagraph(item))
	}
	b.WriteString("\n")
}

func heading(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// oneParagraph collapses whitespace so model text cannot break the markdown structure
func oneParagraph(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
