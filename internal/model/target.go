package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TargetCategory groups scraping targets by the kind of source they are.
type TargetCategory string

const (
	CategoryJobBoards       TargetCategory = "job_boards"
	CategoryCompanyWebsites TargetCategory = "company_websites"
	CategoryGovernment      TargetCategory = "government_sources"
	CategorySocial          TargetCategory = "social_platforms"
)

// Priority ranks a target group.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight maps a priority to its weight in quality averaging.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 1
	}
}

// Promote returns the next priority up, saturating at high.
func (p Priority) Promote() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	default:
		return PriorityHigh
	}
}

// Demote returns the next priority down, saturating at low.
func (p Priority) Demote() Priority {
	switch p {
	case PriorityHigh:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// TargetGroup is one category of sources to scrape in a cycle.
type TargetGroup struct {
	Category    TargetCategory `json:"category" yaml:"category"`
	Priority    Priority       `json:"priority" yaml:"priority"`
	Domains     []string       `json:"domains" yaml:"domains"`
	SearchTerms []string       `json:"search_terms,omitempty" yaml:"search_terms"`
}

// TargetSpec is the full set of scraping targets for a business unit.
type TargetSpec struct {
	BusinessUnitID string        `json:"business_unit_id,omitempty" yaml:"business_unit_id"`
	Groups         []TargetGroup `json:"groups" yaml:"groups"`
}

// Clone returns a deep copy of the spec.
func (s TargetSpec) Clone() TargetSpec {
	out := TargetSpec{BusinessUnitID: s.BusinessUnitID, Groups: make([]TargetGroup, len(s.Groups))}
	for i, g := range s.Groups {
		out.Groups[i] = TargetGroup{
			Category:    g.Category,
			Priority:    g.Priority,
			Domains:     append([]string(nil), g.Domains...),
			SearchTerms: append([]string(nil), g.SearchTerms...),
		}
	}
	return out
}

// RecordKind classifies a scraped record.
type RecordKind string

const (
	RecordProfile RecordKind = "profile"
	RecordJob     RecordKind = "job"
	RecordCompany RecordKind = "company"
)

// ScrapedRecord is one extracted item from a source page.
type ScrapedRecord struct {
	Kind        RecordKind     `json:"kind"`
	Category    TargetCategory `json:"category"`
	Domain      string         `json:"domain"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Content     string         `json:"content,omitempty"`
	CompanyName string         `json:"company_name,omitempty"`
	Sector      string         `json:"sector,omitempty"`
	SearchTerm  string         `json:"search_term,omitempty"`
}

// CategoryResult is the outcome of scraping one target category. A category
// that failed carries Error and zero counts.
type CategoryResult struct {
	Category         TargetCategory  `json:"category"`
	Priority         Priority        `json:"priority"`
	DomainsScraped   int             `json:"domains_scraped"`
	ProfilesScraped  int             `json:"profiles_scraped"`
	JobsScraped      int             `json:"jobs_scraped"`
	CompaniesScraped int             `json:"companies_scraped"`
	QualityScore     float64         `json:"quality_score"`
	Tokens           int             `json:"tokens"`
	Error            string          `json:"error,omitempty"`
	Records          []ScrapedRecord `json:"records,omitempty"`
}

// ScrapeResult aggregates every category scraped in a cycle.
type ScrapeResult struct {
	Categories        []CategoryResult `json:"categories"`
	DomainsScraped    int              `json:"domains_scraped"`
	ProfilesExtracted int              `json:"profiles_extracted"`
	JobsDiscovered    int              `json:"jobs_discovered"`
	CompaniesFound    int              `json:"companies_found"`
	QualityScore      float64          `json:"quality_score"`
	Tokens            int              `json:"tokens"`
}

// Records flattens the records of every category.
func (r *ScrapeResult) Records() []ScrapedRecord {
	if r == nil {
		return nil
	}
	var out []ScrapedRecord
	for _, c := range r.Categories {
		out = append(out, c.Records...)
	}
	return out
}

var legalSuffixes = []string{
	" s.a. de c.v.", " sa de cv", " s.a.p.i. de c.v.", " sapi de cv",
	" s. de r.l. de c.v.", " s de rl de cv", " s.a.", " sa",
	" inc.", " inc", " llc", " ltd.", " ltd", " corp.", " corp",
}

// CompanyKey folds a company name into a stable identifier so the same
// company scraped from different sources dedupes to one key.
func CompanyKey(name string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripper, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	for _, sfx := range legalSuffixes {
		if strings.HasSuffix(folded, sfx) {
			folded = strings.TrimSuffix(folded, sfx)
			break
		}
	}
	folded = strings.TrimRight(folded, " ,.")

	var b strings.Builder
	lastDash := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
