package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/report"
	"github.com/huntred/circle/internal/workflow"
)

var (
	runBU       string
	runDryRun   bool
	runJSON     bool
	runTemporal bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one complete cycle for a business unit",
	Long:  "Runs the seven phases of the circle once and prints the cycle report. With --temporal the cycle is started on the worker's task queue instead of in-process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var (
			rep *model.CycleReport
			err error
		)
		if runTemporal {
			rep, err = triggerRemote(cmd)
		} else {
			env, ierr := initCircle(ctx, envOptions{Mode: "run", DryRun: runDryRun})
			if ierr != nil {
				return ierr
			}
			defer env.Close()
			rep = env.Orchestrator.ExecuteCompleteCycle(ctx, runBU)
		}
		if err != nil {
			return err
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return eris.Wrap(err, "encode report")
			}
		} else {
			fmt.Print(report.FormatSummary(rep, cfg.Circle.Currency))
		}

		if !rep.Success {
			return eris.Errorf("cycle %s failed in phase %s: %s", rep.CycleID, rep.PhaseReached, rep.Error)
		}
		return nil
	},
}

func triggerRemote(cmd *cobra.Command) (*model.CycleReport, error) {
	c, err := workflow.Dial(cfg.Temporal)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	zap.L().Info("triggering cycle on temporal",
		zap.String("business_unit", runBU),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)
	return workflow.TriggerCycle(cmd.Context(), c, cfg.Temporal, runBU)
}

func init() {
	runCmd.Flags().StringVar(&runBU, "bu", model.DefaultBusinessUnit, "business unit id")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log proposals instead of sending them and simulate acceptance")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the cycle report as JSON")
	runCmd.Flags().BoolVar(&runTemporal, "temporal", false, "run the cycle on the temporal worker")
	rootCmd.AddCommand(runCmd)
}
