package extraction

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ternarybob/tenor/internal/interfaces"
)

// pdfText extracts plain text page by page. Pages that fail to decode are
// skipped; the caller decides whether the remaining text is enough.
func pdfText(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	totalPages := r.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return strings.TrimSpace(sb.String()), totalPages, nil
}

// PDFInspector validates PDF structure with pdfcpu
type PDFInspector struct{}

// Compile-time assertion
var _ interfaces.PDFInspector = (*PDFInspector)(nil)

// NewPDFInspector creates a pdfcpu-backed inspector
func NewPDFInspector() *PDFInspector {
	return &PDFInspector{}
}

// PageCount reads the PDF cross-reference structure and returns the page count
func (p *PDFInspector) PageCount(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF structure: %w", err)
	}
	return pdfCtx.PageCount, nil
}
