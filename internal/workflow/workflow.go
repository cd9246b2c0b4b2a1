// Package workflow runs circle cycles under Temporal: a cron schedule per
// business unit starts CycleWorkflow, which runs one cycle as an activity.
package workflow

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/huntred/circle/internal/model"
)

// ActivityRunCycle is the registered name of Activities.RunCycle.
const ActivityRunCycle = "RunCycle"

// ErrTypeCycleFailed marks a workflow whose cycle ran and reported failure.
const ErrTypeCycleFailed = "CycleFailed"

const defaultTimeout = 90 * time.Minute

// CycleInput is the input of CycleWorkflow.
type CycleInput struct {
	BusinessUnitID string `json:"business_unit_id"`
	TimeoutMins    int    `json:"timeout_mins,omitempty"`
}

// CycleWorkflow runs one cycle for a business unit. A failed cycle is not
// retried; it fails the workflow with a non-retryable CycleFailed error
// carrying the report.
func CycleWorkflow(ctx workflow.Context, in CycleInput) (*model.CycleReport, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("cycle workflow started", "business_unit", in.BusinessUnitID)

	timeout := time.Duration(in.TimeoutMins) * time.Minute
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var report model.CycleReport
	if err := workflow.ExecuteActivity(ctx, ActivityRunCycle, in).Get(ctx, &report); err != nil {
		return nil, err
	}
	if !report.Success {
		logger.Warn("cycle failed",
			"business_unit", in.BusinessUnitID,
			"cycle_id", report.CycleID,
			"phase", report.PhaseReached.String(),
			"error", report.Error,
		)
		return nil, temporal.NewNonRetryableApplicationError(report.Error, ErrTypeCycleFailed, nil, report)
	}

	logger.Info("cycle workflow completed",
		"business_unit", in.BusinessUnitID,
		"cycle_id", report.CycleID,
		"execution_seconds", report.ExecutionTimeSeconds,
	)
	return &report, nil
}

// CycleRunner executes a complete cycle.
type CycleRunner interface {
	ExecuteCompleteCycle(ctx context.Context, businessUnitID string) *model.CycleReport
}

// Activities holds the activity implementations.
type Activities struct {
	runner CycleRunner
}

// NewActivities creates activities backed by runner.
func NewActivities(runner CycleRunner) *Activities {
	return &Activities{runner: runner}
}

// RunCycle executes one cycle. A failed cycle is reported in the returned
// report, never as an activity error.
func (a *Activities) RunCycle(ctx context.Context, in CycleInput) (*model.CycleReport, error) {
	return a.runner.ExecuteCompleteCycle(ctx, in.BusinessUnitID), nil
}
