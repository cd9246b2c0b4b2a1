package circle

import (
	"math"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/model"
)

// DerivedScores are the cycle-level quality scores computed from final
// counters.
type DerivedScores struct {
	CircleEfficiency float64 `json:"circle_efficiency"`
	ROIImprovement   float64 `json:"roi_improvement"`
	DataQualityScore float64 `json:"data_quality_score"`
}

// ComputeScores derives efficiency, ROI improvement and data quality. It
// reads only counters, so equal counters always give equal scores.
func ComputeScores(m model.CycleMetrics, w config.ScoreConfig) DerivedScores {
	profiles := ratio(float64(m.ProfilesExtracted), w.ProfileNorm)
	relevance := float64(m.OpportunitiesDetected) / math.Max(float64(m.CompaniesIdentified), 1)

	efficiency := clamp01(w.EfficiencyWeight * (profiles +
		m.ModelConfidenceScore +
		relevance +
		m.ConversionRate))

	roi := w.ROIBase +
		w.ROIAccuracyWeight*(m.MLAccuracyAfter-m.MLAccuracyBefore) +
		w.ROIEfficiencyWeight*efficiency +
		w.ROIConversionWeight*m.ConversionRate

	quality := (ratio(float64(m.ProfilesExtracted), w.QualityProfileNorm) +
		m.ModelConfidenceScore +
		w.Freshness +
		ratio(float64(m.OpportunitiesDetected), w.OpportunityNorm)) / 4

	return DerivedScores{
		CircleEfficiency: efficiency,
		ROIImprovement:   roi,
		DataQualityScore: quality,
	}
}

// ratio returns min(v/norm, 1), treating a non-positive norm as 1.
func ratio(v, norm float64) float64 {
	return math.Min(v/math.Max(norm, 1), 1)
}

func (s DerivedScores) apply(m *model.CycleMetrics) {
	m.CircleEfficiency = s.CircleEfficiency
	m.ROIImprovement = s.ROIImprovement
	m.DataQualityScore = s.DataQualityScore
}
