package commands

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/hostguard/hostguard/cmd/hostguard/internal/bind"
	"github.com/hostguard/hostguard/pkg/rules"
)

// newRulesCommand validates and lists a rules directory without running a
// scan, so operators can vet rule drops before they take effect.
func newRulesCommand(deps *commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Short:   "Validate and list the configured rules directory",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := deps.out(false)

			cfg, err := bind.ResolveScanConfig(cmd, *deps.configFile)
			if err != nil {
				out.Error(err)
				return err
			}
			if !cfg.Rules.Enable {
				out.Warning("rule engine is disabled (rules.enable=false)")
				return nil
			}

			eng := rules.NewEngine()
			if err := eng.Initialize(cfg); err != nil {
				out.Error(err)
				return err
			}

			loaded := eng.Rules()
			rows := make([][]string, 0, len(loaded))
			for _, rule := range loaded {
				rows = append(rows, []string{rule.ID, rule.Severity, rule.Source})
			}
			if len(rows) > 0 {
				out.Table([]string{"id", "severity", "source"}, rows)
			}

			for _, skipped := range eng.Skipped() {
				out.Warning(fmt.Sprintf("skipped: %v", skipped))
			}
			for _, src := range eng.InsecureSources() {
				out.Warning(fmt.Sprintf("insecure permissions: %s", src))
			}

			out.Info(cast.ToString(len(loaded)) + " rules loaded, " +
				cast.ToString(len(eng.Skipped())) + " files skipped")
			return nil
		},
	}
	bind.RegisterScanFlags(cmd.Flags())
	return cmd
}
