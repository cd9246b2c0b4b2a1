// Package report renders cycle reports for people: text summaries for the
// terminal and XLSX workbooks for export.
package report

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/huntred/circle/internal/circle"
	"github.com/huntred/circle/internal/model"
)

// Formatter prints numbers and amounts in the conventions of one language.
type Formatter struct {
	p        *message.Printer
	currency string
}

// NewFormatter creates a Formatter for lang. Amounts are prefixed with the
// currency code.
func NewFormatter(lang language.Tag, currency string) *Formatter {
	return &Formatter{p: message.NewPrinter(lang), currency: currency}
}

// FormatSummary renders r in English.
func FormatSummary(r *model.CycleReport, currency string) string {
	return NewFormatter(language.English, currency).Summary(r)
}

func (f *Formatter) money(v float64) string {
	return f.p.Sprintf("%s %.2f", f.currency, v)
}

// Summary renders a cycle report as a few lines of text.
func (f *Formatter) Summary(r *model.CycleReport) string {
	var b strings.Builder
	bu := r.BusinessUnitID
	if bu == "" {
		bu = model.DefaultBusinessUnit
	}

	if !r.Success {
		id := r.CycleID
		if id == "" {
			id = "(not started)"
		}
		b.WriteString(f.p.Sprintf("Cycle %s (%s) FAILED", id, bu))
		if r.PhaseReached != "" {
			b.WriteString(f.p.Sprintf(" in phase %s", r.PhaseReached))
		}
		b.WriteString(f.p.Sprintf(" after %.1fs\n", r.ExecutionTimeSeconds))
		b.WriteString(f.p.Sprintf("Error: %s\n", r.Error))
		return b.String()
	}

	m := r.Metrics
	b.WriteString(f.p.Sprintf("Cycle %s (%s) completed in %.1fs, %d/%d phases\n",
		r.CycleID, bu, r.ExecutionTimeSeconds, r.PhasesCompleted, len(model.Phases)))
	if m != nil {
		b.WriteString(f.p.Sprintf("Scraping:      %d domains, %d profiles, %d jobs, %d companies (quality %.2f)\n",
			m.DomainsScraped, m.ProfilesExtracted, m.JobsDiscovered, m.CompaniesIdentified, m.ScrapeQualityScore))
	}
	if bi := r.BusinessImpact; bi != nil {
		high := 0
		if m != nil {
			high = m.HighValueOpportunities
		}
		b.WriteString(f.p.Sprintf("Opportunities: %d (%d high value)\n", bi.OpportunitiesGenerated, high))
		sent := 0
		if m != nil {
			sent = m.ProposalsSent
		}
		b.WriteString(f.p.Sprintf("Proposals:     %d generated, %d sent\n", bi.ProposalsCreated, sent))
		b.WriteString(f.p.Sprintf("Conversion:    %.1f%%, %d new clients, revenue %s\n",
			bi.ConversionRate*100, bi.NewClients, f.money(bi.RevenueGenerated)))
	}
	if imp := r.ImprovementsDetected; imp != nil {
		b.WriteString(f.p.Sprintf("Improvements:  ML accuracy %+.3f, %d new patterns, data quality %+.3f\n",
			imp.MLAccuracyGain, imp.NewPatterns, imp.DataQualityImprovement))
	}
	if m != nil {
		b.WriteString(f.p.Sprintf("Scores:        efficiency %.2f, ROI %.2f, data quality %.2f\n",
			m.CircleEfficiency, m.ROIImprovement, m.DataQualityScore))
		if m.APICostUSD > 0 {
			b.WriteString(f.p.Sprintf("API cost:      USD %.4f\n", m.APICostUSD))
		}
	}
	if r.NextCycleScheduled != nil {
		b.WriteString(f.p.Sprintf("Next cycle:    %s\n", r.NextCycleScheduled.UTC().Format(time.RFC3339)))
	}
	return b.String()
}

// Status renders the recent history of a business unit.
func (f *Formatter) Status(s *circle.Status) string {
	var b strings.Builder
	b.WriteString(f.p.Sprintf("Business unit %s: %d completed cycles, %d failures\n",
		s.BusinessUnitID, s.Cycles, s.Failures))
	if s.Cycles == 0 {
		return b.String()
	}
	b.WriteString(f.p.Sprintf("Efficiency:    %.2f average, trend %+.2f\n", s.AverageEfficiency, s.EfficiencyTrend))
	b.WriteString(f.p.Sprintf("Proposals:     %d\n", s.TotalProposals))
	b.WriteString(f.p.Sprintf("Revenue:       %s\n", f.money(s.TotalRevenue)))
	if s.LastCycleAt != nil {
		b.WriteString(f.p.Sprintf("Last cycle:    %s\n", s.LastCycleAt.UTC().Format(time.RFC3339)))
	}
	if s.NextCycleDue != nil {
		b.WriteString(f.p.Sprintf("Next due:      %s\n", s.NextCycleDue.UTC().Format(time.RFC3339)))
	}
	return b.String()
}
