package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/monitoring"
	"github.com/huntred/circle/internal/workflow"
)

var workerNoSchedule bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the temporal worker that executes scheduled cycles",
	Long:  "Registers the cycle workflow on the configured task queue, creates one schedule per business unit and runs the alert checker alongside.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCircle(ctx, envOptions{Mode: "worker"})
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := workflow.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
		workflow.Register(w, workflow.NewActivities(env.Orchestrator))

		if !workerNoSchedule {
			if err := workflow.StartSchedule(ctx, c.ScheduleClient(), cfg.Temporal); err != nil {
				return err
			}
		}

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
			cfg.Temporal.BusinessUnits,
		)
		go checker.Run(ctx)

		zap.L().Info("temporal worker starting",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.String("schedule", cfg.Temporal.Schedule),
			zap.Strings("business_units", cfg.Temporal.BusinessUnits),
		)

		interrupt := make(chan any)
		go func() {
			<-ctx.Done()
			close(interrupt)
		}()
		if err := w.Run(interrupt); err != nil {
			return eris.Wrap(err, "temporal worker")
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerNoSchedule, "no-schedule", false, "serve the task queue without creating schedules")
	rootCmd.AddCommand(workerCmd)
}
