package commands

import (
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/hostguard/hostguard/cmd/hostguard/internal/bind"
	"github.com/hostguard/hostguard/pkg/history"
)

// newHistoryCommand lists recorded scan runs from the local index.
func newHistoryCommand(deps *commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List recorded scan runs",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := deps.out(false)

			cfg, err := bind.ResolveScanConfig(cmd, *deps.configFile)
			if err != nil {
				out.Error(err)
				return err
			}
			if cfg.HistoryDir == "" {
				out.Warning("history is disabled (history_dir is empty)")
				return nil
			}

			store, err := history.NewStore(cfg.HistoryDir)
			if err != nil {
				out.Error(err)
				return err
			}
			entries, err := store.List()
			if err != nil {
				out.Error(err)
				return err
			}
			if len(entries) == 0 {
				out.Info("no recorded runs")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.RecordedAt.Format(time.RFC3339),
					entry.ScanID,
					cast.ToString(entry.Findings),
					cast.ToString(entry.RiskScore),
					entry.OutputPath,
				})
			}
			out.Table([]string{"recorded", "scan id", "findings", "risk", "report"}, rows)
			return nil
		},
	}
	bind.RegisterScanFlags(cmd.Flags())
	return cmd
}
