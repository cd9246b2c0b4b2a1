package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/huntred/circle/internal/monitoring"
)

var (
	monitorWatch bool
	monitorBUs   []string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Check recent cycles against alert thresholds",
	Long:  "Evaluates efficiency, failure rate and proposal output over the last cycles of each business unit. Alerts are posted to the webhook when one is configured. With --watch the check repeats on the configured interval.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		units := monitorBUs
		if len(units) == 0 {
			units = cfg.Temporal.BusinessUnits
		}
		checker := monitoring.NewChecker(monitoring.NewCollector(st), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring, units)

		if monitorWatch {
			checker.Run(ctx)
			return nil
		}

		return printAlerts(checker.CheckOnce(ctx))
	},
}

func printAlerts(alerts []monitoring.Alert) error {
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stderr, "No alerts.")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(alerts); err != nil {
		return eris.Wrap(err, "encode alerts")
	}
	return nil
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorWatch, "watch", false, "keep checking on the configured interval")
	monitorCmd.Flags().StringSliceVar(&monitorBUs, "bu", nil, "business units to check (default from temporal.business_units)")
	rootCmd.AddCommand(monitorCmd)
}
