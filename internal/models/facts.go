package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FactCategory groups structured financial facts
type FactCategory string

const (
	FactRevenue      FactCategory = "revenue"
	FactIncome       FactCategory = "income"
	FactExpenses     FactCategory = "expenses"
	FactBalanceSheet FactCategory = "balance_sheet"
	FactOther        FactCategory = "other"
)

// FactCategories lists categories in reporting order
var FactCategories = []FactCategory{FactRevenue, FactIncome, FactExpenses, FactBalanceSheet, FactOther}

// FactPeriod is the reporting context period. Instant facts set only Instant.
type FactPeriod struct {
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
	Instant *time.Time `json:"instant,omitempty"`
}

// SortKey returns the date that orders facts in time
func (p FactPeriod) SortKey() time.Time {
	switch {
	case p.End != nil:
		return *p.End
	case p.Instant != nil:
		return *p.Instant
	case p.Start != nil:
		return *p.Start
	}
	return time.Time{}
}

// FinancialFact is one reported number with its context
type FinancialFact struct {
	Concept   string          `json:"concept"`
	Value     decimal.Decimal `json:"value"`
	Unit      string          `json:"unit,omitempty"`
	Period    FactPeriod      `json:"period"`
	Decimals  string          `json:"decimals,omitempty"`
	ContextID string          `json:"context_id,omitempty"`
}

// StructuredFacts maps category -> normalized concept -> observations ordered by period
type StructuredFacts map[FactCategory]map[string][]FinancialFact

// Add appends a fact under its category, keeping observations sorted by period
func (s StructuredFacts) Add(category FactCategory, fact FinancialFact) {
	if s[category] == nil {
		s[category] = map[string][]FinancialFact{}
	}
	list := append(s[category][fact.Concept], fact)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Period.SortKey().Before(list[j].Period.SortKey())
	})
	s[category][fact.Concept] = list
}

// Values returns all values in a category in period order, across concepts
func (s StructuredFacts) Values(category FactCategory) []float64 {
	concepts := make([]string, 0, len(s[category]))
	for concept := range s[category] {
		concepts = append(concepts, concept)
	}
	sort.Strings(concepts)

	var facts []FinancialFact
	for _, concept := range concepts {
		facts = append(facts, s[category][concept]...)
	}
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Period.SortKey().Before(facts[j].Period.SortKey())
	})

	values := make([]float64, 0, len(facts))
	for _, f := range facts {
		values = append(values, f.Value.InexactFloat64())
	}
	return values
}

// Count returns the total number of facts across categories
func (s StructuredFacts) Count() int {
	n := 0
	for _, concepts := range s {
		for _, facts := range concepts {
			n += len(facts)
		}
	}
	return n
}

// IsEmpty reports whether no facts were extracted
func (s StructuredFacts) IsEmpty() bool {
	return s.Count() == 0
}

// NarrativeCandidate is a tagged text block found by the structured parser
type NarrativeCandidate struct {
	Concept string `json:"concept"`
	Text    string `json:"text"`
}

// ParsedDocument is the structured parser's view of a machine-tagged filing
type ParsedDocument struct {
	Facts      []FinancialFact      `json:"facts"`
	Narratives []NarrativeCandidate `json:"narratives"`
	Contexts   int                  `json:"contexts"`
	Units      int                  `json:"units"`
}

// Extraction is the extractor output: named sections (always including
// full_document) and, for machine-tagged filings, structured facts.
type Extraction struct {
	Sections  map[string]string `json:"sections"`
	Facts     StructuredFacts   `json:"facts,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
	PageCount int               `json:"page_count,omitempty"`
}

// SectionFullDocument is the section key holding the whole extracted text
const SectionFullDocument = "full_document"
