package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pageWidth  = 190.0 // A4 width minus margins
	pageBottom = 287.0
	bodySize   = 10.0
	lineHeight = 5.0
)

// MarkdownToPDF renders the markdown subset produced by this package
// (headings, paragraphs, emphasis, lists, tables) as an A4 PDF.
func MarkdownToPDF(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("tenor", true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", bodySize)

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	r := &pdfWriter{
		pdf:    pdf,
		source: source,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	bold   bool
	italic bool
	size   float64
	depth  int
}

func (r *pdfWriter) font() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	size := r.size
	if size == 0 {
		size = bodySize
	}
	r.pdf.SetFont("Helvetica", style, size)
}

func (r *pdfWriter) write(s string) {
	r.pdf.Write(lineHeight, r.tr(s))
}

func (r *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			r.bold = true
			r.size = map[int]float64{1: 16, 2: 13, 3: 11}[node.Level]
		} else {
			r.bold = false
			r.size = 0
			r.pdf.Ln(lineHeight + 2)
		}
		r.font()
	case *ast.Paragraph:
		if !entering && r.depth == 0 {
			r.pdf.Ln(lineHeight + 2)
		}
	case *ast.TextBlock:
		// List item content; the item handles line breaks
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.write(" ")
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.font()
	case *ast.CodeSpan:
		if entering {
			r.write(string(node.Text(r.source)))
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.depth++
		} else {
			r.depth--
			if r.depth == 0 {
				r.pdf.Ln(lineHeight + 2)
			}
		}
	case *ast.ListItem:
		if entering {
			if r.pdf.GetX() > 11 {
				r.pdf.Ln(lineHeight)
			}
			r.pdf.SetX(10 + float64(r.depth)*5)
			r.write("- ")
		}
	case *ast.ThematicBreak:
		if entering {
			y := r.pdf.GetY() + 2
			r.pdf.Line(10, y, 10+pageWidth, y)
			r.pdf.Ln(5)
		}
	case *extast.Table:
		if entering {
			r.table(tableRows(node, r.source))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func tableRows(table *extast.Table, source []byte) [][]string {
	var rows [][]string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(string(cell.Text(source))))
		}
		rows = append(rows, cells)
	}
	return rows
}

// table draws rows with equal-width columns; the first row is the header
func (r *pdfWriter) table(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	cols := len(rows[0])
	width := pageWidth / float64(cols)
	const rowHeight = 6.0

	for i, row := range rows {
		if r.pdf.GetY()+rowHeight > pageBottom {
			r.pdf.AddPage()
		}
		if i == 0 {
			r.pdf.SetFont("Helvetica", "B", 9)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont("Helvetica", "", 9)
		}
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = r.tr(row[j])
			}
			for len(cell) > 3 && r.pdf.GetStringWidth(cell) > width-2 {
				cell = cell[:len(cell)-4] + "..."
			}
			r.pdf.CellFormat(width, rowHeight, cell, "1", 0, "L", i == 0, 0, "")
		}
		r.pdf.Ln(rowHeight)
	}
	r.pdf.Ln(3)
	r.font()
}
