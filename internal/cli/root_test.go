package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetCLI restores package-level command state between tests. Cobra keeps
// flag values across Execute calls.
func resetCLI(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		configPath = ""
		logLevel = ""
		cfg = nil
		cleanup()
		logger = nil
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
}

func TestVersionCommand(t *testing.T) {
	resetCLI(t)

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "dev")
}

func TestRootCommand_BadConfigPath(t *testing.T) {
	resetCLI(t)

	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"version", "--config", "/nonexistent/config.yaml"})

	err := rootCmd.Execute()
	require.Error(t, err)
}

func TestRootCommand_LoadsConfigFile(t *testing.T) {
	resetCLI(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: \":4242\"\n"), 0o600))

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"version", "--config", path})

	require.NoError(t, rootCmd.Execute())
	require.NotNil(t, cfg)
	assert.Equal(t, ":4242", cfg.Server.ListenAddr)
}

func TestServeCommand_InvalidConfigRejected(t *testing.T) {
	resetCLI(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gas:\n  strategy: ludicrous\n"), 0o600))

	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"serve", "--config", path})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gas_strategy")
}
