package ml

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
)

// ModelState is everything the engine learns for one business unit. It is
// stored as JSON through store.ModelStateStore.
type ModelState struct {
	Version int                `json:"version"`
	Weights map[string]float64 `json:"weights"`
	Bias    float64            `json:"bias"`

	// Outcomes are labelled proposals, oldest first.
	Outcomes []model.Outcome `json:"outcomes,omitempty"`
	// Trained is how many of Outcomes the weights have already seen.
	Trained int `json:"trained"`
	// Pending are sent proposals still awaiting an answer, oldest first.
	Pending []model.Outcome `json:"pending,omitempty"`

	// Patterns maps "sector:<s>+<signal>" to the cycles it was seen in.
	Patterns map[string]int `json:"patterns,omitempty"`

	TargetPriority map[model.TargetCategory]float64  `json:"target_priority,omitempty"`
	SearchTerms    map[model.TargetCategory][]string `json:"search_terms,omitempty"`

	SectorJobs      map[string]float64 `json:"sector_jobs,omitempty"`
	SectorSentiment map[string]float64 `json:"sector_sentiment,omitempty"`

	Calibration map[model.ValueTier]float64 `json:"calibration,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// priorWeights seed a fresh model so the first cycle ranks companies by
// growth signals before any outcome has been observed.
var priorWeights = map[string]float64{
	"signal:" + model.SignalHiringSurge:      0.8,
	"signal:" + model.SignalExpansion:        0.6,
	"signal:" + model.SignalNewLocations:     0.5,
	"signal:" + model.SignalConsistentHiring: 0.3,
	"signal:" + model.SignalStableGrowth:     0.2,
	"signal:" + model.SignalStartup:          -0.2,
	"signal:" + model.SignalSmallBusiness:    -0.3,
	"size:large":                             0.4,
	"size:mid":                               0.2,
	"rev:high":                               0.4,
	"rev:mid":                                0.2,
}

const priorBias = -1.5

func newState() *ModelState {
	w := make(map[string]float64, len(priorWeights))
	for k, v := range priorWeights {
		w[k] = v
	}
	s := &ModelState{Weights: w, Bias: priorBias}
	s.ensure()
	return s
}

func (s *ModelState) ensure() {
	if s.Weights == nil {
		s.Weights = make(map[string]float64)
	}
	if s.Patterns == nil {
		s.Patterns = make(map[string]int)
	}
	if s.TargetPriority == nil {
		s.TargetPriority = make(map[model.TargetCategory]float64)
	}
	if s.SearchTerms == nil {
		s.SearchTerms = make(map[model.TargetCategory][]string)
	}
	if s.SectorJobs == nil {
		s.SectorJobs = make(map[string]float64)
	}
	if s.SectorSentiment == nil {
		s.SectorSentiment = make(map[string]float64)
	}
	if s.Calibration == nil {
		s.Calibration = make(map[model.ValueTier]float64)
	}
}

// priority returns the learned multiplier for a category, 1 when unset.
func (s *ModelState) priority(c model.TargetCategory) float64 {
	if m, ok := s.TargetPriority[c]; ok && m > 0 {
		return m
	}
	return 1
}

func (e *Engine) load(ctx context.Context, bu string) (*ModelState, error) {
	raw, err := e.store.GetModelState(ctx, bu)
	if err != nil {
		return nil, eris.Wrapf(err, "ml: load state for %s", bu)
	}
	if len(raw) == 0 {
		return newState(), nil
	}
	var s ModelState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrapf(err, "ml: decode state for %s", bu)
	}
	s.ensure()
	return &s, nil
}

func (e *Engine) save(ctx context.Context, bu string, s *ModelState) error {
	s.Version++
	s.UpdatedAt = e.now().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "ml: encode state")
	}
	if err := e.store.SaveModelState(ctx, bu, raw); err != nil {
		return eris.Wrapf(err, "ml: save state for %s", bu)
	}
	return nil
}
