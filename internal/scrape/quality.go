package scrape

import (
	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
)

// QualityPolicy reduces category quality scores to one cycle score. It must
// be deterministic for a given input.
type QualityPolicy func([]model.CategoryResult) float64

// AverageQuality is the plain mean of category scores.
func AverageQuality(categories []model.CategoryResult) float64 {
	if len(categories) == 0 {
		return 0
	}
	var sum float64
	for _, c := range categories {
		sum += c.QualityScore
	}
	return sum / float64(len(categories))
}

// WeightedQuality weights each category by its priority.
func WeightedQuality(categories []model.CategoryResult) float64 {
	var sum, weights float64
	for _, c := range categories {
		w := c.Priority.Weight()
		sum += w * c.QualityScore
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// PolicyByName resolves the scrape.quality_policy setting.
func PolicyByName(name string) (QualityPolicy, error) {
	switch name {
	case "", "average":
		return AverageQuality, nil
	case "weighted":
		return WeightedQuality, nil
	}
	return nil, eris.Errorf("scrape: unknown quality policy %q", name)
}

// recordQuality scores how usable a batch of records is for analysis: each
// record earns a third for a title, a company, and substantive content.
func recordQuality(records []model.ScrapedRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		var s float64
		if r.Title != "" {
			s++
		}
		if r.CompanyName != "" {
			s++
		}
		if len(r.Content) >= minContentLen {
			s++
		}
		sum += s / 3
	}
	return sum / float64(len(records))
}
