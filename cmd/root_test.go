package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "cycles", "serve", "worker", "monitor"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "circle", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"bu", "dry-run", "json", "temporal"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s flag", name)
	}
	assert.Equal(t, "default", runCmd.Flags().Lookup("bu").DefValue)
}

func TestCyclesCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cyclesCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats", "export"} {
		assert.True(t, names[name], "expected cycles subcommand %q", name)
	}
}

func TestServeCommand_PortFlag(t *testing.T) {
	f := serveCmd.Flags().Lookup("port")
	require.NotNil(t, f)
	assert.Equal(t, "0", f.DefValue)
}

func TestWorkerAndMonitorFlags(t *testing.T) {
	assert.NotNil(t, workerCmd.Flags().Lookup("no-schedule"))
	assert.NotNil(t, monitorCmd.Flags().Lookup("watch"))
	assert.NotNil(t, monitorCmd.Flags().Lookup("bu"))
}

func TestRootCommand_LogLevelFlag(t *testing.T) {
	f := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, f)
	assert.Empty(t, f.DefValue)
}
