// Package commands defines the hostguard CLI surface.
package commands

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hostguard/hostguard/pkg/output"
	"github.com/hostguard/hostguard/pkg/output/subscribers"
)

const cliExecutable = "hostguard"

// NewCommand constructs the top-level hostguard CLI command with global
// flags and the output pipeline shared by subcommands.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		jsonOutput     bool
		noColor        bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Hostguard scans a host for suspicious local state",
		Long: `Hostguard inspects the local host: running processes, listening sockets,
kernel modules, setuid binaries and indicator-of-compromise rules, and
serializes the findings as a machine-readable report.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// -v count: 0 => errors only, 1 => info, 2+ => debug.
			switch {
			case verbosityCount <= 0:
				zerolog.SetGlobalLevel(zerolog.ErrorLevel)
			case verbosityCount == 1:
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			default:
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit CLI messages as JSON lines")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled terminal output")

	cmd.AddGroup(&cobra.Group{ID: "scan", Title: "Scan Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	deps := &commandDeps{
		configFile: &configFile,
		out: func(chatterToStderr bool) output.Output {
			return setupOutputPipeline(jsonOutput, noColor, verbosityCount, chatterToStderr)
		},
	}

	cmd.AddCommand(newScanCommand(deps))
	cmd.AddCommand(newRulesCommand(deps))
	cmd.AddCommand(newHistoryCommand(deps))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// commandDeps carries the root command's shared state into subcommands.
// Commands that write an artifact to stdout ask for chatterToStderr so the
// pipeline never interleaves messages with the artifact.
type commandDeps struct {
	configFile *string
	out        func(chatterToStderr bool) output.Output
}

// setupOutputPipeline wires the event stream: one rendering subscriber
// (human or JSON) plus a diagnostic subscriber when verbosity is raised.
func setupOutputPipeline(jsonOutput, noColor bool, verbosity int, chatterToStderr bool) output.Output {
	stream := output.NewEventStream()

	msgOut := io.Writer(os.Stdout)
	if chatterToStderr {
		msgOut = os.Stderr
	}

	if jsonOutput {
		stream.Subscribe(subscribers.NewJSONFormatter(msgOut))
	} else {
		stream.Subscribe(subscribers.NewHumanFormatter(msgOut, os.Stderr, !noColor))
	}

	if verbosity > 0 {
		stream.Subscribe(subscribers.NewDiagnosticSubscriber(os.Stderr, output.Level(verbosity)))
	}

	return output.NewDefaultOutput(stream)
}
