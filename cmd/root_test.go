package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"run", "health", "incidents", "lifecycle", "reconcile", "replay", "probe", "sources", "monitor", "serve", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ingest-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	force := runCmd.Flags().Lookup("force")
	require.NotNil(t, force)
	assert.Equal(t, "false", force.DefValue)
	require.NotNil(t, runCmd.Flags().Lookup("source"))
}

func TestHealthCommand_Flags(t *testing.T) {
	require.NotNil(t, healthCmd.Flags().Lookup("xlsx"))
	require.NotNil(t, healthCmd.Flags().Lookup("json"))
}

func TestReconcileCommand_ApplyDefaultsOff(t *testing.T) {
	flag := reconcileCmd.Flags().Lookup("apply")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestArgs(t *testing.T) {
	assert.Error(t, replayCmd.Args(replayCmd, []string{"only-one"}))
	assert.NoError(t, replayCmd.Args(replayCmd, []string{"a", "b"}))
	assert.Error(t, probeCmd.Args(probeCmd, nil))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestApplyOverrides(t *testing.T) {
	prevLevel, prevSources, prevStore := flagLogLevel, flagSourcesFile, flagStoreDriver
	t.Cleanup(func() { flagLogLevel, flagSourcesFile, flagStoreDriver = prevLevel, prevSources, prevStore })

	c := &config.Config{}
	c.Log.Level = "info"
	c.Sources.File = "sources.yaml"
	c.Store.Driver = "postgres"

	flagLogLevel, flagSourcesFile, flagStoreDriver = "", "", ""
	applyOverrides(c)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "postgres", c.Store.Driver)

	flagLogLevel, flagSourcesFile, flagStoreDriver = "debug", "staging.yaml", "sqlite"
	applyOverrides(c)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "staging.yaml", c.Sources.File)
	assert.Equal(t, "sqlite", c.Store.Driver)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"log-level", "sources", "store"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}
