package bind

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "scan", RunE: func(*cobra.Command, []string) error { return nil }}
	RegisterScanFlags(cmd.Flags())
	return cmd
}

func TestResolveScanConfig_Defaults(t *testing.T) {
	cfg, err := ResolveScanConfig(newTestCommand(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Filter.MinSeverity)
	assert.Equal(t, "high", cfg.Filter.FailOnSeverity)
	assert.True(t, cfg.Scanners.Integrity)
	assert.Equal(t, -1, cfg.Scanners.MaxProcs)
}

func TestResolveScanConfig_ChangedFlagsWin(t *testing.T) {
	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("filter.min_severity", "medium"))
	require.NoError(t, cmd.Flags().Set("output.sarif", "true"))
	require.NoError(t, cmd.Flags().Set("scanners.max_procs", "100"))

	cfg, err := ResolveScanConfig(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "medium", cfg.Filter.MinSeverity)
	assert.True(t, cfg.Output.SARIF)
	assert.Equal(t, 100, cfg.Scanners.MaxProcs)
}

func TestResolveScanConfig_FileThenFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filter:\n  min_severity: low\noutput:\n  pretty: true\n"), 0o644))

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("filter.min_severity", "high"))

	cfg, err := ResolveScanConfig(cmd, path)
	require.NoError(t, err)
	assert.Equal(t, "high", cfg.Filter.MinSeverity, "changed flag shadows the file")
	assert.True(t, cfg.Output.Pretty, "file value survives for untouched keys")
	assert.Equal(t, "high", cfg.Filter.FailOnSeverity)
}

func TestResolveScanConfig_ValidationFailure(t *testing.T) {
	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("filter.min_severity", "high"))
	require.NoError(t, cmd.Flags().Set("filter.fail_on_severity", "low"))

	_, err := ResolveScanConfig(cmd, "")
	require.Error(t, err)
}

func TestResolveScanConfig_FastScanApplied(t *testing.T) {
	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("fast_scan", "true"))

	cfg, err := ResolveScanConfig(cmd, "")
	require.NoError(t, err)
	assert.False(t, cfg.Scanners.Integrity)
	assert.False(t, cfg.Scanners.IOCExecTrace)
	assert.True(t, cfg.Scanners.ModulesSummaryOnly)
}

func TestResolveScanConfig_MissingListFile(t *testing.T) {
	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("lists.allowlist_file", filepath.Join(t.TempDir(), "missing.txt")))

	_, err := ResolveScanConfig(cmd, "")
	require.Error(t, err)
}
