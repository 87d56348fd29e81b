package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/hostguard/hostguard/cmd/hostguard/internal/bind"
	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/history"
	"github.com/hostguard/hostguard/pkg/output"
	"github.com/hostguard/hostguard/pkg/report"
	"github.com/hostguard/hostguard/pkg/rules"
	"github.com/hostguard/hostguard/pkg/scanners"
	"github.com/hostguard/hostguard/pkg/writer"
)

func newScanCommand(deps *commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scan",
		Short:   "Scan the local host and write a findings report",
		GroupID: "scan",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, deps)
		},
	}
	bind.RegisterScanFlags(cmd.Flags())
	return cmd
}

func runScan(cmd *cobra.Command, deps *commandDeps) error {
	logger := log.With().Str("command", "scan").Logger()
	out := deps.out(false)

	cfg, err := bind.ResolveScanConfig(cmd, *deps.configFile)
	if err != nil {
		out.Error(err)
		return err
	}
	// An empty output path sends the report to stdout; move chatter aside.
	if cfg.Output.File == "" {
		out = deps.out(true)
	}

	ruleSet, err := loadRules(cfg, out)
	if err != nil {
		out.Error(err)
		return err
	}

	hostname, _ := os.Hostname()
	rep := report.New(report.Meta{
		ScanID:    uuid.New().String(),
		Hostname:  hostname,
		Tool:      cliExecutable,
		Version:   version,
		StartedAt: time.Now().UTC(),
	})
	rep.SetMinSeverity(cfg.MinSeverity)

	selected := scanners.Select(cfg, ruleSet)
	names := make([]string, 0, len(selected))
	for _, s := range selected {
		names = append(names, s.Name())
	}
	logger.Info().Strs("scanners", names).Msg("Starting scan")
	out.Info(fmt.Sprintf("Scanning host with %d scanners", len(selected)))
	out.Diag(output.LevelVerbose, "Scanner selection", map[string]any{"scanners": names})

	scanners.RunAll(cmd.Context(), selected, rep)

	w := writer.New()
	if err := w.WriteReport(rep, cfg); err != nil {
		out.Error(err)
		return err
	}

	digest := ""
	if cfg.Output.EnvFile != "" {
		if err := w.WriteEnvFile(cfg, rep); err != nil {
			out.Error(err)
			return err
		}
	}
	if cfg.Output.File != "" {
		if d, err := fileDigest(cfg.Output.File); err == nil {
			digest = d
		}
	}

	if cfg.HistoryDir != "" {
		if err := recordHistory(cfg, rep, digest); err != nil {
			// History is bookkeeping; a failed append never fails the scan.
			logger.Warn().Err(err).Msg("History entry not recorded")
			out.Warning(fmt.Sprintf("history entry not recorded: %v", err))
		}
	}

	printSummary(out, rep, cfg)

	if highest, found := rep.MaxSeverity(); found && highest >= cfg.FailSeverity {
		return fmt.Errorf("findings at or above %s severity", cfg.FailSeverity)
	}
	return nil
}

// loadRules initializes the rule engine when enabled, surfacing skipped
// files and insecure sources as warnings.
func loadRules(cfg *config.Config, out output.Output) ([]rules.Rule, error) {
	if !cfg.Rules.Enable {
		return nil, nil
	}

	eng := rules.NewEngine()
	if err := eng.Initialize(cfg); err != nil {
		return nil, err
	}
	for _, skipped := range eng.Skipped() {
		out.Warning(fmt.Sprintf("rule file skipped: %v", skipped))
	}
	for _, src := range eng.InsecureSources() {
		out.Warning(fmt.Sprintf("rule source has insecure permissions: %s", src))
	}
	out.Diag(output.LevelVerbose, "Rules loaded", map[string]any{
		"rules":   len(eng.Rules()),
		"skipped": len(eng.Skipped()),
	})
	return eng.Rules(), nil
}

func recordHistory(cfg *config.Config, rep *report.Report, digest string) error {
	store, err := history.NewStore(cfg.HistoryDir)
	if err != nil {
		return err
	}
	return store.Append(history.NewEntry(rep, cfg.Output.File, digest))
}

// printSummary renders the severity histogram and risk score through the
// output pipeline.
func printSummary(out output.Output, rep *report.Report, cfg *config.Config) {
	sum := rep.Summary()

	severities := make([]string, 0, len(sum.Counts))
	for sev := range sum.Counts {
		severities = append(severities, sev)
	}
	sort.Strings(severities)

	rows := make([][]string, 0, len(severities))
	for _, sev := range severities {
		rows = append(rows, []string{sev, cast.ToString(sum.Counts[sev])})
	}
	if len(rows) > 0 {
		out.Table([]string{"severity", "count"}, rows)
	}

	target := cfg.Output.File
	if target == "" {
		target = "stdout"
	}
	out.Info(fmt.Sprintf("%d findings, risk score %d, report written to %s",
		sum.TotalFindings, sum.TotalRiskScore, target))
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
