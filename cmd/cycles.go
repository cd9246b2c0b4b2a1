package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/huntred/circle/internal/circle"
	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/report"
	"github.com/huntred/circle/internal/store"
)

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Inspect cycle history",
	Long:  "Commands for listing, viewing, summarizing and exporting completed cycles.",
}

// -- cycles list --

var cyclesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completed cycles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := cycleFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		cycles, err := st.ListCycles(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "cycles list")
		}

		if len(cycles) == 0 {
			fmt.Fprintln(os.Stderr, "No cycles found.")
			return nil
		}

		formatCyclesList(os.Stdout, cycles)
		return nil
	},
}

// -- cycles show --

var cyclesShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show the full metrics of a cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, err := st.GetCycle(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "cycles show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

// -- cycles stats --

var cyclesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the recent cycles of a business unit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bu, _ := cmd.Flags().GetString("bu")
		n, _ := cmd.Flags().GetInt("last")
		lang, _ := cmd.Flags().GetString("lang")

		status, err := circle.StatusOf(ctx, st, cfg.Circle.NextCycleHours, bu, n)
		if err != nil {
			return eris.Wrap(err, "cycles stats")
		}

		tag, err := language.Parse(lang)
		if err != nil {
			return eris.Wrapf(err, "cycles stats: language %q", lang)
		}
		fmt.Print(report.NewFormatter(tag, cfg.Circle.Currency).Status(status))
		for _, f := range status.RecentFailures {
			fmt.Printf("  failed %s in %s: %s\n", f.CycleID, f.Phase, f.Error)
		}
		return nil
	},
}

// -- cycles export --

var cyclesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cycles and failures to a spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("xlsx")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := cycleFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		cycles, err := st.ListCycles(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "cycles export")
		}
		failures, err := st.ListFailures(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "cycles export")
		}

		if err := report.WriteXLSX(path, cycles, failures); err != nil {
			return err
		}
		zap.L().Info("cycles exported",
			zap.String("path", path),
			zap.Int("cycles", len(cycles)),
			zap.Int("failures", len(failures)),
		)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{cyclesListCmd, cyclesExportCmd} {
		c.Flags().String("bu", "", "filter by business unit")
		c.Flags().Duration("since", 0, "only cycles started within this window (e.g. 72h)")
		c.Flags().Int("limit", 50, "max number of cycles")
	}

	cyclesExportCmd.Flags().String("xlsx", "", "output spreadsheet path")
	_ = cyclesExportCmd.MarkFlagRequired("xlsx")

	cyclesStatsCmd.Flags().String("bu", model.DefaultBusinessUnit, "business unit id")
	cyclesStatsCmd.Flags().Int("last", 10, "number of recent cycles to summarize")
	cyclesStatsCmd.Flags().String("lang", "en", "language for number formatting (e.g. en, es-MX)")

	cyclesCmd.AddCommand(cyclesListCmd)
	cyclesCmd.AddCommand(cyclesShowCmd)
	cyclesCmd.AddCommand(cyclesStatsCmd)
	cyclesCmd.AddCommand(cyclesExportCmd)
	rootCmd.AddCommand(cyclesCmd)
}

func cycleFilterFromFlags(cmd *cobra.Command) (store.CycleFilter, error) {
	bu, _ := cmd.Flags().GetString("bu")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return store.CycleFilter{}, eris.Errorf("--limit must not be negative, got %d", limit)
	}

	filter := store.CycleFilter{BusinessUnitID: bu, Limit: limit}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	return filter, nil
}

// formatCyclesList writes a table of cycles to w.
func formatCyclesList(w io.Writer, cycles []model.CycleMetrics) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE ID\tBU\tSTARTED\tDURATION\tOPPS\tPROPOSALS\tACCEPTED\tREVENUE\tEFFICIENCY")
	for _, c := range cycles {
		dur := "-"
		if c.EndTime != nil {
			dur = c.EndTime.Sub(c.StartTime).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.2f\t%.3f\n",
			c.CycleID,
			c.BusinessUnitID,
			c.StartTime.Format("2006-01-02 15:04"),
			dur,
			c.OpportunitiesDetected,
			c.ProposalsGenerated,
			c.ProposalsAccepted,
			c.RevenueGenerated,
			c.CircleEfficiency,
		)
	}
	tw.Flush() //nolint:errcheck
}
