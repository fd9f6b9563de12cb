package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// minNarrativeLength is the shortest ix:nonNumeric text kept as a narrative candidate
const minNarrativeLength = 50

// IXBRLParser reads inline XBRL filings with goquery. The HTML parser
// lowercases tag and attribute names, so ix:nonFraction is ix:nonfraction.
type IXBRLParser struct {
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.StructuredParser = (*IXBRLParser)(nil)

// NewIXBRLParser creates an inline XBRL parser
func NewIXBRLParser(logger arbor.ILogger) *IXBRLParser {
	return &IXBRLParser{logger: logger}
}

// Parse extracts numeric facts and narrative candidates from the filing
func (p *IXBRLParser) Parse(ctx context.Context, path string) (*models.ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inline XBRL file: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse inline XBRL document: %w", err)
	}

	contexts := map[string]models.FactPeriod{}
	units := map[string]string{}
	var numeric, nonNumeric []*goquery.Selection

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "xbrli:context":
			if id, ok := s.Attr("id"); ok {
				contexts[id] = parsePeriod(s)
			}
		case "xbrli:unit":
			if id, ok := s.Attr("id"); ok {
				units[id] = parseUnit(s)
			}
		case "ix:nonfraction":
			numeric = append(numeric, s)
		case "ix:nonnumeric":
			nonNumeric = append(nonNumeric, s)
		}
	})

	if len(numeric) == 0 && len(nonNumeric) == 0 {
		return nil, fmt.Errorf("no inline XBRL facts found")
	}

	parsed := &models.ParsedDocument{
		Contexts: len(contexts),
		Units:    len(units),
	}

	skipped := 0
	for _, s := range numeric {
		fact, err := parseNonFraction(s, contexts, units)
		if err != nil {
			skipped++
			continue
		}
		parsed.Facts = append(parsed.Facts, fact)
	}

	for _, s := range nonNumeric {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if len(text) <= minNarrativeLength || !strings.ContainsFunc(text, unicode.IsLetter) {
			continue
		}
		name, _ := s.Attr("name")
		parsed.Narratives = append(parsed.Narratives, models.NarrativeCandidate{
			Concept: localName(name),
			Text:    text,
		})
	}

	p.logger.Debug().
		Str("path", path).
		Int("facts", len(parsed.Facts)).
		Int("skipped", skipped).
		Int("narratives", len(parsed.Narratives)).
		Int("contexts", parsed.Contexts).
		Msg("Inline XBRL parsed")

	return parsed, nil
}

// HealthCheck always succeeds; the parser has no external dependency
func (p *IXBRLParser) HealthCheck(ctx context.Context) error {
	return nil
}

func parseNonFraction(s *goquery.Selection, contexts map[string]models.FactPeriod, units map[string]string) (models.FinancialFact, error) {
	name, _ := s.Attr("name")
	if name == "" {
		return models.FinancialFact{}, fmt.Errorf("fact without name")
	}

	value, err := parseNumber(s)
	if err != nil {
		return models.FinancialFact{}, err
	}

	contextID, _ := s.Attr("contextref")
	unitID, _ := s.Attr("unitref")
	decimals, _ := s.Attr("decimals")

	unit := units[unitID]
	if unit == "" {
		unit = unitID
	}

	return models.FinancialFact{
		Concept:   localName(name),
		Value:     value,
		Unit:      unit,
		Period:    contexts[contextID],
		Decimals:  decimals,
		ContextID: contextID,
	}, nil
}

// parseNumber applies the ix:nonFraction display transforms: thousands
// separators, scale and sign
func parseNumber(s *goquery.Selection) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s.Text())
	format, _ := s.Attr("format")

	if raw == "" || raw == "-" || raw == "—" || strings.Contains(format, "zerodash") || strings.Contains(format, "fixed-zero") {
		return decimal.Zero, nil
	}

	commaDecimal := strings.Contains(format, "comma-decimal") || strings.Contains(format, "numcommadecimal")
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == '.' && !commaDecimal:
			return r
		case r == ',' && commaDecimal:
			return '.'
		}
		return -1
	}, raw)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("unparseable numeric value %q", raw)
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable numeric value %q: %w", raw, err)
	}

	if scaleAttr, ok := s.Attr("scale"); ok {
		scale, err := strconv.Atoi(scaleAttr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid scale %q", scaleAttr)
		}
		value = value.Shift(int32(scale))
	}
	if sign, _ := s.Attr("sign"); sign == "-" {
		value = value.Neg()
	}
	return value, nil
}

func parsePeriod(s *goquery.Selection) models.FactPeriod {
	var period models.FactPeriod
	s.Find("*").Each(func(_ int, child *goquery.Selection) {
		t, err := time.Parse("2006-01-02", strings.TrimSpace(child.Text()))
		if err != nil {
			return
		}
		switch goquery.NodeName(child) {
		case "xbrli:startdate":
			period.Start = &t
		case "xbrli:enddate":
			period.End = &t
		case "xbrli:instant":
			period.Instant = &t
		}
	})
	return period
}

func parseUnit(s *goquery.Selection) string {
	var measures []string
	s.Find("*").Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "xbrli:measure" {
			measures = append(measures, localName(strings.TrimSpace(child.Text())))
		}
	})
	return strings.Join(measures, "/")
}

// localName strips a namespace prefix: "us-gaap:Revenues" -> "Revenues"
func localName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

// CategorizeFacts files each fact under revenue, income, expenses,
// balance_sheet or other by its concept name
func CategorizeFacts(facts []models.FinancialFact) models.StructuredFacts {
	out := models.StructuredFacts{}
	for _, f := range facts {
		out.Add(categorize(f.Concept), f)
	}
	return out
}

func categorize(concept string) models.FactCategory {
	c := strings.ToLower(concept)
	switch {
	case strings.Contains(c, "expense"), strings.HasPrefix(c, "costof"), strings.Contains(c, "costs"):
		return models.FactExpenses
	case strings.Contains(c, "revenue"), strings.Contains(c, "sales"):
		return models.FactRevenue
	case strings.Contains(c, "netincome"), strings.Contains(c, "profitloss"), strings.Contains(c, "operatingincome"),
		strings.Contains(c, "grossprofit"), strings.Contains(c, "earningspershare"), strings.Contains(c, "comprehensiveincome"):
		return models.FactIncome
	case strings.Contains(c, "assets"), strings.Contains(c, "liabilities"), strings.Contains(c, "equity"),
		strings.Contains(c, "cashandcashequivalents"), strings.Contains(c, "debt"):
		return models.FactBalanceSheet
	}
	return models.FactOther
}
