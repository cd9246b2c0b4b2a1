package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/model"
)

func TestFormatCyclesList(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(4*time.Minute + 30*time.Second)
	cycles := []model.CycleMetrics{
		{
			CycleID:               "VC_1772355600000000000",
			BusinessUnitID:        "acme",
			StartTime:             start,
			EndTime:               &end,
			OpportunitiesDetected: 7,
			ProposalsGenerated:    4,
			ProposalsAccepted:     1,
			RevenueGenerated:      350000,
			CircleEfficiency:      0.612,
		},
		{
			CycleID:        "VC_2",
			BusinessUnitID: "globex",
			StartTime:      start.Add(-24 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatCyclesList(&buf, cycles)

	out := buf.String()
	assert.Contains(t, out, "CYCLE ID")
	assert.Contains(t, out, "EFFICIENCY")
	assert.Contains(t, out, "VC_1772355600000000000")
	assert.Contains(t, out, "acme")
	assert.Contains(t, out, "2026-03-01 09:00")
	assert.Contains(t, out, "4m30s")
	assert.Contains(t, out, "350000.00")
	assert.Contains(t, out, "0.612")
	assert.Contains(t, out, "globex")
}

func TestFormatCyclesList_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatCyclesList(&buf, nil)

	assert.Contains(t, buf.String(), "CYCLE ID")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func filterCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("bu", "", "")
	cmd.Flags().Duration("since", 0, "")
	cmd.Flags().Int("limit", 50, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestCycleFilterFromFlags(t *testing.T) {
	before := time.Now()
	f, err := cycleFilterFromFlags(filterCmd(t, "--bu", "acme", "--since", "72h", "--limit", "5"))
	require.NoError(t, err)

	assert.Equal(t, "acme", f.BusinessUnitID)
	assert.Equal(t, 5, f.Limit)
	assert.WithinDuration(t, before.Add(-72*time.Hour), f.Since, time.Minute)
}

func TestCycleFilterFromFlags_Defaults(t *testing.T) {
	f, err := cycleFilterFromFlags(filterCmd(t))
	require.NoError(t, err)

	assert.Empty(t, f.BusinessUnitID)
	assert.Equal(t, 50, f.Limit)
	assert.True(t, f.Since.IsZero())
}

func TestCycleFilterFromFlags_NegativeLimit(t *testing.T) {
	_, err := cycleFilterFromFlags(filterCmd(t, "--limit", "-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--limit")
}
