package extraction

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// Service turns filings on disk into narrative sections and, for inline
// XBRL, structured facts
type Service struct {
	parser    interfaces.StructuredParser
	inspector interfaces.PDFInspector
	logger    arbor.ILogger
}

// Compile-time assertion
var _ interfaces.Extractor = (*Service)(nil)

// NewService creates the extractor. parser and inspector may be nil, which
// disables fact extraction and PDF structure checks respectively.
func NewService(parser interfaces.StructuredParser, inspector interfaces.PDFInspector, logger arbor.ILogger) *Service {
	return &Service{
		parser:    parser,
		inspector: inspector,
		logger:    logger,
	}
}

// Extract returns the sections of the filing. Narrative failure is returned
// as a FileProcessingError; fact failure only adds a warning.
func (s *Service) Extract(ctx context.Context, path string, format models.FileFormat) (*models.Extraction, error) {
	const op = "extraction.Extract"

	if !format.IsValid() {
		return nil, common.ValidationError(op, "unsupported file format %q", format)
	}

	extraction := &models.Extraction{}
	var text string
	var err error

	switch format {
	case models.FileFormatTXT:
		text, err = s.readText(path)
	case models.FileFormatHTML:
		text, err = s.readHTML(path)
	case models.FileFormatPDF:
		text, err = s.readPDF(path, extraction)
	case models.FileFormatIXBRL:
		text, err = s.readHTML(path)
		if err == nil {
			text = s.extractFacts(ctx, path, text, extraction)
		}
	}
	if err != nil {
		return nil, common.FileProcessingError(op, err, "failed to extract %s text from %s", format, path)
	}
	if strings.TrimSpace(text) == "" {
		return nil, common.FileProcessingError(op, nil, "no narrative text found in %s", path)
	}

	extraction.Sections = SplitSections(text)

	s.logger.Debug().
		Str("path", path).
		Str("format", string(format)).
		Int("sections", len(extraction.Sections)).
		Int("characters", len(text)).
		Int("facts", extraction.Facts.Count()).
		Msg("Extraction completed")

	return extraction, nil
}

func (s *Service) readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(data), nil
}

func (s *Service) readHTML(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return htmlToText(data)
}

func (s *Service) readPDF(path string, extraction *models.Extraction) (string, error) {
	if s.inspector != nil {
		pages, err := s.inspector.PageCount(path)
		if err != nil {
			return "", err
		}
		extraction.PageCount = pages
	}

	text, pages, err := pdfText(path)
	if err != nil {
		return "", err
	}
	if extraction.PageCount == 0 {
		extraction.PageCount = pages
	}
	if text == "" {
		return "", fmt.Errorf("PDF has %d pages but no extractable text (scanned image?)", pages)
	}
	return text, nil
}

// extractFacts runs the structured parser. Failure degrades to narrative-only
// extraction. When the visible text is empty the tagged narrative blocks are
// used instead.
func (s *Service) extractFacts(ctx context.Context, path, text string, extraction *models.Extraction) string {
	if s.parser == nil {
		extraction.Warnings = append(extraction.Warnings, "structured parser unavailable, proceeding without financial facts")
		return text
	}

	parsed, err := s.parser.Parse(ctx, path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Structured fact extraction failed")
		extraction.Warnings = append(extraction.Warnings, fmt.Sprintf("structured fact extraction failed: %v", err))
		return text
	}

	facts := CategorizeFacts(parsed.Facts)
	if facts.IsEmpty() {
		extraction.Warnings = append(extraction.Warnings, "no numeric facts found in inline XBRL document")
	} else {
		extraction.Facts = facts
	}

	if strings.TrimSpace(text) == "" && len(parsed.Narratives) > 0 {
		blocks := make([]string, 0, len(parsed.Narratives))
		for _, n := range parsed.Narratives {
			blocks = append(blocks, n.Text)
		}
		text = strings.Join(blocks, "\n\n")
	}
	return text
}
