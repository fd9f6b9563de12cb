// Package export renders analyses, deltas and trends as CSV, Markdown or PDF.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/services/trends"
)

// Format is an export file format
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatPDF      Format = "pdf"
)

// ParseFormat accepts csv, md/markdown and pdf
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", common.ValidationError("export.ParseFormat", "unsupported export format %q", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Document is a rendered export
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service loads records and renders them
type Service struct {
	storage interfaces.StorageManager
	trends  *trends.Service
	logger  arbor.ILogger
}

// NewService creates the export service
func NewService(storage interfaces.StorageManager, trendService *trends.Service, logger arbor.ILogger) *Service {
	return &Service{storage: storage, trends: trendService, logger: logger}
}

// Analysis exports one analysis
func (s *Service) Analysis(ctx context.Context, analysisID string, format Format) (*Document, error) {
	analysis, err := s.storage.AnalysisStorage().GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	report, err := s.storage.ReportStorage().GetReport(ctx, analysis.ReportID)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("analysis_%s_%s", report.CompanyID, analysis.ID)
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		if err := WriteAnalysesCSV(&buf, []AnalysisRow{{Report: report, Analysis: analysis}}); err != nil {
			return nil, err
		}
		return s.document(name, format, buf.Bytes()), nil
	case FormatMarkdown, FormatPDF:
		return s.render(name, format, AnalysisMarkdown(report, analysis))
	}
	return nil, common.ValidationError("export.Analysis", "unsupported export format %q", format)
}

// Delta exports one delta as markdown or PDF
func (s *Service) Delta(ctx context.Context, deltaID string, format Format) (*Document, error) {
	d, err := s.storage.DeltaStorage().GetDelta(ctx, deltaID)
	if err != nil {
		return nil, err
	}
	if format != FormatMarkdown && format != FormatPDF {
		return nil, common.ValidationError("export.Delta", "deltas export as md or pdf, not %q", format)
	}
	return s.render(fmt.Sprintf("delta_%s_%s", d.CompanyID, d.ID), format, DeltaMarkdown(d))
}

// Trends exports a company's trends as CSV
func (s *Service) Trends(ctx context.Context, companyID string, window int) (*Document, error) {
	t, err := s.trends.Build(ctx, companyID, window)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := WriteTrendsCSV(&buf, t); err != nil {
		return nil, err
	}
	return s.document("trends_"+companyID, FormatCSV, buf.Bytes()), nil
}

func (s *Service) render(name string, format Format, markdown string) (*Document, error) {
	if format == FormatMarkdown {
		return s.document(name, format, []byte(markdown)), nil
	}
	data, err := MarkdownToPDF(markdown, name)
	if err != nil {
		s.logger.Error().Err(err).Str("document", name).Msg("PDF export failed")
		return nil, err
	}
	return s.document(name, format, data), nil
}

func (s *Service) document(name string, format Format, data []byte) *Document {
	s.logger.Debug().
		Str("document", name).
		Str("format", string(format)).
		Int("bytes", len(data)).
		Msg("Export rendered")
	return &Document{
		Filename:    name + "." + string(format),
		ContentType: format.ContentType(),
		Data:        data,
	}
}
