package ml

import (
	"math"
	"sort"
	"strings"

	"github.com/huntred/circle/internal/model"
)

// trendBand is the relative change in job postings treated as flat.
const trendBand = 0.1

// newSectorScale is the posting count at which a sector with no history
// reaches full trend strength.
const newSectorScale = 20.0

type sectorTally struct {
	companies []string
	sentiment []float64
}

func tallySectors(analyses []model.CompanyAnalysis) (map[string]*sectorTally, []string) {
	tallies := make(map[string]*sectorTally)
	for _, a := range analyses {
		sector := a.Sector
		if sector == "" {
			sector = "general"
		}
		t, ok := tallies[sector]
		if !ok {
			t = &sectorTally{}
			tallies[sector] = t
		}
		t.companies = append(t.companies, a.Name)
		t.sentiment = append(t.sentiment, a.Sentiment)
	}
	sectors := make([]string, 0, len(tallies))
	for s, t := range tallies {
		sort.Strings(t.companies)
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)
	return tallies, sectors
}

// sectorJobs counts job records per sector.
func sectorJobs(records []model.ScrapedRecord) map[string]int {
	out := make(map[string]int)
	for _, r := range records {
		if r.Kind != model.RecordJob {
			continue
		}
		sector := r.Sector
		if sector == "" {
			sector = "general"
		}
		out[sector]++
	}
	return out
}

// marketTrends compares this cycle's job postings per sector against the
// learned baseline.
func marketTrends(records []model.ScrapedRecord, analyses []model.CompanyAnalysis, s *ModelState) []model.MarketTrend {
	jobs := sectorJobs(records)
	tallies, _ := tallySectors(analyses)
	sectors := make([]string, 0, len(jobs))
	for sector := range jobs {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	var out []model.MarketTrend
	for _, sector := range sectors {
		n := float64(jobs[sector])
		trend := model.MarketTrend{Sector: sector, JobPostings: jobs[sector], Direction: model.TrendFlat}
		if t, ok := tallies[sector]; ok {
			trend.Companies = t.companies
		}

		base, seen := s.SectorJobs[sector]
		switch {
		case !seen || base <= 0:
			trend.Direction = model.TrendRising
			trend.Strength = math.Min(n/newSectorScale, 1)
		default:
			change := (n - base) / base
			switch {
			case change > trendBand:
				trend.Direction = model.TrendRising
			case change < -trendBand:
				trend.Direction = model.TrendDeclining
			}
			trend.Strength = math.Min(math.Abs(change), 1)
		}
		out = append(out, trend)
	}
	return out
}

// sectorSentiment averages company tone per sector. Shift is measured
// against the previous cycle's score and is 0 for a sector with no history.
func sectorSentiment(analyses []model.CompanyAnalysis, s *ModelState) []model.SentimentSignal {
	tallies, sectors := tallySectors(analyses)
	var out []model.SentimentSignal
	for _, sector := range sectors {
		t := tallies[sector]
		sum := 0.0
		for _, v := range t.sentiment {
			sum += v
		}
		score := sum / float64(len(t.sentiment))
		sig := model.SentimentSignal{Sector: sector, Score: score, Samples: len(t.sentiment)}
		if prev, ok := s.SectorSentiment[sector]; ok {
			sig.Shift = score - prev
		}
		out = append(out, sig)
	}
	return out
}

// turnoverRisk blends negative tone, attrition keywords and how many of the
// company's people are visibly on the market.
func turnoverRisk(a model.CompanyAnalysis, c *companyEvidence) float64 {
	risk := 0.2 + 0.4*math.Max(0, -a.Sentiment)
	if c != nil {
		if countWords(strings.ToLower(c.text()), turnoverWords) > 0 {
			risk += 0.3
		}
		risk += 0.1 * math.Min(float64(c.profiles)/5, 1)
	}
	return clamp01(risk)
}

// patternsOf names the sector/signal combinations present in analyses,
// sorted and unique.
func patternsOf(analyses []model.CompanyAnalysis) []string {
	seen := make(map[string]bool)
	for _, a := range analyses {
		sector := a.Sector
		if sector == "" {
			sector = "general"
		}
		for _, sig := range a.GrowthIndicators {
			seen["sector:"+sector+"+"+sig] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
