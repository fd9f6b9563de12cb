package extraction

import (
	"regexp"
	"strings"

	"github.com/ternarybob/tenor/internal/models"
)

// Section names produced by header detection
const (
	SectionMDA         = "mda"
	SectionRiskFactors = "risk_factors"
	SectionLetter      = "letter_to_shareholders"
	SectionOther       = "other"
)

// maxHeaderLength bounds how long a line may be and still count as a header
const maxHeaderLength = 160

var sectionHeaders = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{SectionMDA, regexp.MustCompile(`(?i)^(item\s*\d+[a-z]?[.:]?\s*[-–—:]?\s*)?(management['’]?s?\s+discussion\s+and\s+analysis|md&a\b)`)},
	{SectionRiskFactors, regexp.MustCompile(`(?i)^(item\s*1a[.:]?\s*[-–—:]?\s*)?risk\s+factors\b`)},
	{SectionLetter, regexp.MustCompile(`(?i)^((a\s+)?letter\s+(to|from)\s+(our\s+|the\s+)?(share|stock)holders|(a\s+)?(message|letter)\s+from\s+(our\s+|the\s+)?(ceo|chief\s+executive|chairman|president)|dear\s+(fellow\s+)?(share|stock)holders)`)},
}

// matchHeader returns the section a line opens, or "" when it is body text
func matchHeader(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > maxHeaderLength {
		return ""
	}
	// Strip markdown decoration left by HTML conversion
	line = strings.TrimLeft(line, "#*_> ")
	line = strings.ReplaceAll(line, `\`, "")
	line = strings.TrimSpace(line)

	for _, h := range sectionHeaders {
		if h.pattern.MatchString(line) {
			return h.name
		}
	}
	return ""
}

// SplitSections tags text by header phrases. The result always holds
// full_document; recognized headers start named sections and any text before
// the first header is filed under "other". Repeated headers append to the
// same section.
func SplitSections(text string) map[string]string {
	sections := map[string]string{
		models.SectionFullDocument: strings.TrimSpace(text),
	}

	current := ""
	var buf strings.Builder
	found := false

	flush := func() {
		body := strings.TrimSpace(buf.String())
		buf.Reset()
		if body == "" {
			return
		}
		name := current
		if name == "" {
			name = SectionOther
		}
		if existing, ok := sections[name]; ok && existing != "" {
			sections[name] = existing + "\n\n" + body
		} else {
			sections[name] = body
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if name := matchHeader(line); name != "" {
			flush()
			current = name
			found = true
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if !found {
		return sections
	}
	flush()
	return sections
}
