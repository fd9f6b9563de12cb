package extraction

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// htmlToText cleans an HTML or inline XBRL document and converts the visible
// body to markdown-flavoured plain text
func htmlToText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, head, template").Remove()
	// The inline XBRL header carries contexts and units, not narrative
	doc.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == "ix:header"
	}).Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	html, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render HTML body: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(html)
	if err != nil || strings.TrimSpace(text) == "" {
		// Fall back to the DOM text content
		text = body.Text()
	}

	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
