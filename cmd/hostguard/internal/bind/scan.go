// Package bind centralizes the mapping from command-line flags to resolved
// configuration. Flags use the same dotted names as configuration keys, so a
// changed flag shadows the file and environment values for exactly that key.
package bind

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hostguard/hostguard/pkg/config"
)

// RegisterScanFlags declares every scan-relevant flag on the flag set. The
// flag defaults mirror config.DefaultConfig; only flags the user actually
// changed participate in the merge.
func RegisterScanFlags(fs *pflag.FlagSet) {
	defaults := config.DefaultConfig()

	fs.String("output.file", defaults.Output.File, "Report destination path (empty writes to stdout)")
	fs.Bool("output.pretty", defaults.Output.Pretty, "Indent the report document")
	fs.Bool("output.compact", defaults.Output.Compact, "Force the compact document form")
	fs.Bool("output.jsonl", defaults.Output.JSONL, "Emit the report as JSON lines")
	fs.Bool("output.sarif", defaults.Output.SARIF, "Emit the report as SARIF 2.1.0")
	fs.String("output.env_file", defaults.Output.EnvFile, "Write a CI key-value file referencing the report")

	fs.String("filter.min_severity", defaults.Filter.MinSeverity, "Lowest severity to report")
	fs.String("filter.fail_on_severity", defaults.Filter.FailOnSeverity, "Severity at which the exit code becomes non-zero")

	fs.StringSlice("scanners.enable", defaults.Scanners.Enable, "Run only these scanners")
	fs.StringSlice("scanners.disable", defaults.Scanners.Disable, "Skip these scanners")
	fs.Int("scanners.max_procs", defaults.Scanners.MaxProcs, "Max processes to examine (negative = unlimited)")
	fs.Int("scanners.max_sockets", defaults.Scanners.MaxSockets, "Max listening sockets to report (negative = unlimited)")
	fs.Int("scanners.max_packages", defaults.Scanners.MaxPackages, "Max kernel modules to list (negative = unlimited)")
	fs.Bool("scanners.integrity", defaults.Scanners.Integrity, "Hash flagged binaries")
	fs.Bool("scanners.ioc_exec_trace", defaults.Scanners.IOCExecTrace, "Trace exec origins of running processes against IOC rules")
	fs.Bool("scanners.modules_summary_only", defaults.Scanners.ModulesSummaryOnly, "Collapse the module list to one summary finding")
	fs.Bool("scanners.process_hash", defaults.Scanners.ProcessHash, "Hash executables of flagged processes")

	fs.String("lists.allowlist_file", defaults.Lists.AllowListFile, "File listing process names to ignore")
	fs.String("lists.expected_binaries_file", defaults.Lists.ExpectedBinariesFile, "File listing expected setuid/setgid binaries")

	fs.Bool("rules.enable", defaults.Rules.Enable, "Load external IOC rules")
	fs.String("rules.dir", defaults.Rules.Dir, "Rules directory")
	fs.Bool("rules.allow_legacy", defaults.Rules.AllowLegacy, "Accept the legacy line-based rule syntax")
	fs.Bool("rules.strict_permissions", defaults.Rules.StrictPermissions, "Refuse rule files with insecure permissions")

	fs.Bool("privilege.drop", defaults.Priv.DropPrivileges, "Drop privileges after opening privileged sources")
	fs.Bool("privilege.sandbox", defaults.Priv.Sandbox, "Confine scanners with the platform sandbox")

	fs.Bool("privacy.no_user_meta", defaults.Privacy.NoUserMeta, "Strip uid/gid/user metadata from findings")
	fs.Bool("privacy.no_cmdline_meta", defaults.Privacy.NoCmdlineMeta, "Strip command lines from findings")
	fs.Bool("privacy.no_hostname_meta", defaults.Privacy.NoHostnameMeta, "Strip the hostname from report metadata")

	fs.Bool("fast_scan", defaults.FastScan, "Reduced-cost scan profile")
	fs.Bool("canonical", defaults.Canonical, "Deterministic ordering of serialized output")
	fs.String("history_dir", defaults.HistoryDir, "Directory for the local run index (empty disables history)")
}

// ResolveScanConfig merges defaults, the optional config file, environment
// variables and changed flags, then validates the result and loads the
// external list files.
func ResolveScanConfig(cmd *cobra.Command, configFile string) (*config.Config, error) {
	mgr := config.NewManager()
	if err := mgr.Load(cmd.Flags(), configFile); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	cfg := mgr.Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.LoadExternalFiles(); err != nil {
		return nil, err
	}
	cfg.ApplyFastScanOptimizations()
	return &cfg, nil
}
