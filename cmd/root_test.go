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

	for _, name := range []string{"acquire", "repair", "sweep", "ingest", "ledger", "report", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ticker-ingest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("output-dir"))
}

func TestAcquireCommand_Flags(t *testing.T) {
	for _, cmd := range []string{"acquire", "ingest"} {
		c, _, err := rootCmd.Find([]string{cmd})
		require.NoError(t, err)
		for _, flagName := range []string{"plan", "json", "period", "concurrency"} {
			assert.NotNil(t, c.Flags().Lookup(flagName), "%s should have --%s flag", cmd, flagName)
		}
	}
}

func TestSweepCommand_StrictFlag(t *testing.T) {
	flag := sweepCmd.Flags().Lookup("strict")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
	assert.NotNil(t, ingestCmd.Flags().Lookup("strict"))
}

func TestSweepCommand_RequiresTickers(t *testing.T) {
	assert.Error(t, sweepCmd.Args(sweepCmd, nil))
	assert.NoError(t, repairCmd.ValidateArgs(nil), "repair without tickers repairs the whole workspace")
}

func TestLedgerCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range ledgerCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
	assert.True(t, names["export"])

	flag := ledgerExportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "provenance.xlsx", flag.DefValue)
}

func TestRunsListCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
