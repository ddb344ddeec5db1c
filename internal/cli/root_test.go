package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "minisync", cmd.Use)
	assert.Contains(t, cmd.Long, "master index")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"init", "set", "delete", "show", "save", "restore", "import",
		"merge", "index", "files", "serve", "test",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	docFlag := cmd.PersistentFlags().Lookup("doc")
	require.NotNil(t, docFlag)
	assert.Equal(t, DefaultDocFile, docFlag.DefValue)

	metricsFlag := cmd.PersistentFlags().Lookup("metrics")
	require.NotNil(t, metricsFlag)
	assert.Equal(t, "false", metricsFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"init", []string{"id", "client", "force"}},
		{"restore", []string{"client", "force"}},
		{"import", []string{"client", "force"}},
		{"merge", []string{"peers"}},
		{"serve", []string{"addr"}},
		{"test", []string{"update", "filter"}},
	}

	cmd := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			for _, f := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(f), "flag --%s", f)
			}
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"show", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}
