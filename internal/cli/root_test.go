package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "itemupdate", cmd.Use)
	assert.Contains(t, cmd.Long, "undo")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{{"run"}, {"init"}, {"item"}, {"item", "create"}, {"show"}, {"runs"}}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	shorthands := map[string]string{
		"source":            "s",
		"eperson":           "e",
		"add-metadata":      "a",
		"delete-metadata":   "d",
		"add-bitstreams":    "A",
		"delete-bitstreams": "D",
		"filter":            "F",
		"item-field":        "i",
		"provenance":        "P",
		"test":              "t",
		"suppress-undo":     "z",
	}
	for name, short := range shorthands {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, short, flag.Shorthand, name)
	}
	require.NotNil(t, runCmd.Flags().Lookup("filter-config"))
	require.NotNil(t, runCmd.Flags().Lookup("metrics-file"))
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "runs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", "/nonexistent/itemupdate.yaml", "runs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSetupIsIdempotent(t *testing.T) {
	opts := &RootOptions{DB: "custom.db"}
	cmd := NewRootCommand()

	require.NoError(t, opts.setup(cmd))
	cfg := opts.Config
	require.NoError(t, opts.setup(cmd))

	assert.Same(t, cfg, opts.Config)
	assert.Equal(t, "custom.db", opts.Config.Store.Path)
	assert.Equal(t, "text", opts.Format)
}
