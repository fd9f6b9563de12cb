package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/trends"
)

// AnalysisRow pairs an analysis with the report it belongs to
type AnalysisRow struct {
	Report   *models.FinancialReport
	Analysis *models.NarrativeAnalysis
}

var analysisHeader = []string{
	"report_id", "company_id", "fiscal_period", "filing_date", "analysis_id",
	"optimism_score", "optimism_confidence", "risk_score", "risk_confidence",
	"uncertainty_score", "uncertainty_confidence", "overall_sentiment",
	"key_themes", "risk_indicators", "model_version", "processing_time_seconds",
}

// WriteAnalysesCSV writes one row per analysis. List fields are joined with "; ".
func WriteAnalysesCSV(w io.Writer, rows []AnalysisRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(analysisHeader); err != nil {
		return err
	}
	for _, row := range rows {
		r, a := row.Report, row.Analysis
		record := []string{
			r.ID, r.CompanyID, r.FiscalPeriod, r.FilingDate.Format(time.DateOnly), a.ID,
			num(a.OptimismScore), num(a.OptimismConfidence),
			num(a.RiskScore), num(a.RiskConfidence),
			num(a.UncertaintyScore), num(a.UncertaintyConfidence),
			num(a.OverallSentiment()),
			strings.Join(a.KeyThemes, "; "), strings.Join(a.RiskIndicators, "; "),
			a.ModelVersion, num(a.ProcessingTimeSeconds),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var trendsHeader = []string{
	"report_id", "fiscal_period", "filing_date",
	"optimism", "risk", "uncertainty", "overall",
	"optimism_delta", "risk_delta", "uncertainty_delta", "overall_delta",
	"optimism_rolling", "risk_rolling", "uncertainty_rolling", "overall_rolling",
}

// WriteTrendsCSV writes one row per timeline point. Delta columns are empty
// for the first filing.
func WriteTrendsCSV(w io.Writer, t *trends.Trends) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(trendsHeader); err != nil {
		return err
	}
	for i, p := range t.Timeline {
		record := []string{
			p.ReportID, p.FiscalPeriod, p.FilingDate.Format(time.DateOnly),
			num(p.Optimism), num(p.Risk), num(p.Uncertainty), num(p.Overall),
		}
		if d := t.PeriodOverPeriod[i].Delta; d != nil {
			record = append(record, num(d.Optimism), num(d.Risk), num(d.Uncertainty), num(d.Overall))
		} else {
			record = append(record, "", "", "", "")
		}
		ra := t.RollingAverage[i]
		record = append(record, num(ra.Optimism), num(ra.Risk), num(ra.Uncertainty), num(ra.Overall))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
