package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/model"
)

// ScheduleID returns the schedule id of a business unit.
func ScheduleID(bu string) string { return "circle-schedule-" + bu }

// WorkflowID returns the workflow id of a business unit's cycle. One id per
// business unit keeps a single cycle running per unit.
func WorkflowID(bu string) string { return "circle-cycle-" + bu }

// Dial connects to the Temporal frontend described by cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    zapLogger{},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "temporal: dial %s", cfg.HostPort)
	}
	return c, nil
}

// Register adds the workflow and activities to a worker.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(CycleWorkflow)
	r.RegisterActivityWithOptions(acts.RunCycle, activity.RegisterOptions{Name: ActivityRunCycle})
}

func units(cfg config.TemporalConfig) []string {
	if len(cfg.BusinessUnits) == 0 {
		return []string{model.DefaultBusinessUnit}
	}
	return cfg.BusinessUnits
}

// scheduleCreator is the part of client.ScheduleClient used here.
type scheduleCreator interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
}

// StartSchedule creates a cron schedule per configured business unit.
// Schedules that already exist are left as they are. Overlapping runs are
// skipped.
func StartSchedule(ctx context.Context, sc scheduleCreator, cfg config.TemporalConfig) error {
	if cfg.Schedule == "" {
		return eris.New("temporal: schedule is required")
	}
	for _, bu := range units(cfg) {
		_, err := sc.Create(ctx, client.ScheduleOptions{
			ID: ScheduleID(bu),
			Spec: client.ScheduleSpec{
				CronExpressions: []string{cfg.Schedule},
			},
			Action: &client.ScheduleWorkflowAction{
				ID:        WorkflowID(bu),
				Workflow:  CycleWorkflow,
				Args:      []any{CycleInput{BusinessUnitID: bu, TimeoutMins: cfg.TimeoutMins}},
				TaskQueue: cfg.TaskQueue,
			},
			Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		})
		if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
			zap.L().Info("temporal: schedule already exists", zap.String("business_unit", bu))
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "temporal: create schedule for %s", bu)
		}
		zap.L().Info("temporal: schedule created",
			zap.String("business_unit", bu),
			zap.String("cron", cfg.Schedule),
		)
	}
	return nil
}

// workflowStarter is the part of client.Client used to trigger cycles.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
}

// TriggerCycle starts a cycle outside the schedule and waits for its report.
// It fails if the business unit already has a cycle running.
func TriggerCycle(ctx context.Context, c workflowStarter, cfg config.TemporalConfig, bu string) (*model.CycleReport, error) {
	if bu == "" {
		bu = model.DefaultBusinessUnit
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(bu),
		TaskQueue: cfg.TaskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, CycleWorkflow, CycleInput{BusinessUnitID: bu, TimeoutMins: cfg.TimeoutMins})
	if err != nil {
		return nil, eris.Wrapf(err, "temporal: start cycle for %s", bu)
	}

	var report model.CycleReport
	if err := run.Get(ctx, &report); err != nil {
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == ErrTypeCycleFailed && appErr.HasDetails() {
			if derr := appErr.Details(&report); derr == nil {
				return &report, nil
			}
		}
		return nil, eris.Wrapf(err, "temporal: cycle for %s", bu)
	}
	return &report, nil
}

// zapLogger routes Temporal SDK logs to the global zap logger.
type zapLogger struct{}

func (zapLogger) Debug(msg string, keyvals ...any) { zap.S().Debugw(prefix(msg), keyvals...) }
func (zapLogger) Info(msg string, keyvals ...any)  { zap.S().Infow(prefix(msg), keyvals...) }
func (zapLogger) Warn(msg string, keyvals ...any)  { zap.S().Warnw(prefix(msg), keyvals...) }
func (zapLogger) Error(msg string, keyvals ...any) { zap.S().Errorw(prefix(msg), keyvals...) }

func prefix(msg string) string { return fmt.Sprintf("temporal: %s", msg) }
