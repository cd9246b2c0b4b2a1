package circle

import "github.com/huntred/circle/internal/model"

// PhaseObserver is notified as a cycle advances. Calls happen on the
// cycle's goroutine, in phase order.
type PhaseObserver interface {
	PhaseStarted(cycleID, bu string, phase model.CirclePhase)
	PhaseFinished(cycleID, bu string, result model.PhaseResult)
	CycleFinished(report *model.CycleReport)
}

type nopObserver struct{}

func (nopObserver) PhaseStarted(string, string, model.CirclePhase)  {}
func (nopObserver) PhaseFinished(string, string, model.PhaseResult) {}
func (nopObserver) CycleFinished(*model.CycleReport)                {}

// Observers fans notifications out to several observers.
type Observers []PhaseObserver

func (o Observers) PhaseStarted(cycleID, bu string, phase model.CirclePhase) {
	for _, obs := range o {
		obs.PhaseStarted(cycleID, bu, phase)
	}
}

func (o Observers) PhaseFinished(cycleID, bu string, result model.PhaseResult) {
	for _, obs := range o {
		obs.PhaseFinished(cycleID, bu, result)
	}
}

func (o Observers) CycleFinished(report *model.CycleReport) {
	for _, obs := range o {
		obs.CycleFinished(report)
	}
}
