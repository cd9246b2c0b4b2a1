package circle

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
)

// Improver feeds a cycle's results back into the models.
type Improver struct {
	tuner ModelTuner
}

// NewImprover creates an Improver over tuner.
func NewImprover(tuner ModelTuner) *Improver {
	return &Improver{tuner: tuner}
}

// Improve applies scraping, model and proposal updates in that order.
func (i *Improver) Improve(ctx context.Context, cc *CycleContext) (*model.ImprovementResult, error) {
	res := &model.ImprovementResult{}
	var err error

	res.ScrapingUpdates, err = i.tuner.TuneTargets(ctx, cc.BusinessUnitID, cc.Insights, cc.Feedback)
	if err != nil {
		return nil, eris.Wrap(err, "tune scraping targets")
	}

	var outcomes []model.Outcome
	if cc.Conversion != nil {
		outcomes = cc.Conversion.Outcomes
	}
	res.ModelUpdates, err = i.tuner.ApplyOutcomes(ctx, cc.BusinessUnitID, outcomes)
	if err != nil {
		return nil, eris.Wrap(err, "apply outcomes")
	}

	res.ProposalUpdates, err = i.tuner.CalibrateProposals(ctx, cc.BusinessUnitID, cc.Conversion)
	if err != nil {
		return nil, eris.Wrap(err, "calibrate proposals")
	}

	res.UpdatesApplied = res.ScrapingUpdates + res.ModelUpdates + res.ProposalUpdates
	return res, nil
}
