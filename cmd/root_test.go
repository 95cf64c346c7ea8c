package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"test", "googlev3", "nominatim", "mapbox", "opencage", "mapquest", "open-mapquest", "census", "tiger", "status"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "geocode-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestProviderCommands_CommonFlags(t *testing.T) {
	for _, c := range []string{"test", "googlev3", "nominatim", "mapbox", "opencage", "mapquest", "open-mapquest", "census", "tiger"} {
		cmd, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		for _, flag := range []string{"location", "delay", "latitude", "longitude", "geojson", "spatial",
			"geometry-column", "raw", "raw-column", "provider-column", "force", "limit", "driver", "report"} {
			assert.NotNil(t, cmd.Flags().Lookup(flag), "%s should have --%s", c, flag)
		}
	}

	loc := testCmd.Flags().ShorthandLookup("l")
	require.NotNil(t, loc)
	assert.Equal(t, "location", loc.Name)
	delay := testCmd.Flags().ShorthandLookup("d")
	require.NotNil(t, delay)
	assert.Equal(t, "delay", delay.Name)
}

func TestProviderCommands_SpecificFlags(t *testing.T) {
	assert.NotNil(t, googleCmd.Flags().ShorthandLookup("k"))
	assert.NotNil(t, googleCmd.Flags().Lookup("domain"))
	assert.NotNil(t, googleCmd.Flags().Lookup("bbox"))
	assert.NotNil(t, nominatimCmd.Flags().Lookup("user-agent"))
	assert.NotNil(t, mapboxCmd.Flags().Lookup("proximity"))
	assert.NotNil(t, opencageCmd.Flags().Lookup("api-key"))
	assert.NotNil(t, mapquestCmd.Flags().ShorthandLookup("k"))
	assert.NotNil(t, mapquestCmd.Flags().Lookup("bbox"))
	assert.NotNil(t, openMQCmd.Flags().Lookup("api-key"))
	assert.Nil(t, openMQCmd.Flags().Lookup("bbox"))
	assert.NotNil(t, censusCmd.Flags().Lookup("benchmark"))
	assert.NotNil(t, tigerCmd.Flags().Lookup("max-rating"))
	assert.NotNil(t, testCmd.Flags().Lookup("reference"))
	assert.NotNil(t, testCmd.Flags().Lookup("reference-table"))
	assert.NotNil(t, testCmd.Flags().Lookup("reference-key"))
	assert.Nil(t, censusCmd.Flags().Lookup("api-key"))
}

func TestRootCmd_PersistentPreRunE_WithValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
store:
  driver: duckdb
log:
  level: info
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "geocode.yaml"), []byte(configContent), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "duckdb", cfg.Store.Driver)
}

func TestRootCmd_PersistentPreRunE_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "{location}", cfg.Geocode.Location)
}

func TestRootCmd_PersistentPreRunE_BadLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
log:
  level: NOT_A_LEVEL
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "geocode.yaml"), []byte(configContent), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}
