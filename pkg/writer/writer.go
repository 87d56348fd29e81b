// Package writer serializes a completed report into one of four wire
// formats (plain or pretty document, line-delimited stream, static-analysis
// interchange), applies canonical ordering when requested, and can emit a
// companion integrity/environment file referencing the produced artifact.
package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

// OutputError reports a failed write operation with the path involved.
type OutputError struct {
	Path string
	Err  error
}

// NewOutputError wraps err with the failing path.
func NewOutputError(path string, err error) *OutputError {
	return &OutputError{Path: path, Err: err}
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// Format identifies a wire format after precedence resolution.
type Format string

const (
	// FormatSARIF is the static-analysis interchange form.
	FormatSARIF Format = "sarif"
	// FormatJSONL is the line-delimited stream form.
	FormatJSONL Format = "jsonl"
	// FormatPretty is the indented single-document form.
	FormatPretty Format = "pretty"
	// FormatPlain is the minimal single-document form (the default).
	FormatPlain Format = "plain"
)

// Writer serializes finished reports. It is invoked once, sequentially, and
// holds no long-lived mutable state.
type Writer struct {
	stdout io.Writer
	logger zerolog.Logger
}

// New creates a Writer targeting the process standard output for reports
// with an empty output path.
func New() *Writer {
	return NewWithStdout(os.Stdout)
}

// NewWithStdout creates a Writer with an explicit standard output stream.
func NewWithStdout(stdout io.Writer) *Writer {
	return &Writer{
		stdout: stdout,
		logger: log.With().Str("component", "writer").Logger(),
	}
}

// SelectFormat resolves the format precedence among simultaneously set
// flags: the static-analysis interchange form wins over line-delimited,
// which wins over the single-document forms; within the single-document
// form, compact takes precedence over pretty.
func SelectFormat(cfg *config.Config) Format {
	switch {
	case cfg.Output.SARIF:
		return FormatSARIF
	case cfg.Output.JSONL:
		return FormatJSONL
	case cfg.Output.Compact:
		return FormatPlain
	case cfg.Output.Pretty:
		return FormatPretty
	default:
		return FormatPlain
	}
}

// WriteReport serializes the report in the configured format and writes it
// to cfg.Output.File, or to the standard output stream when the path is
// empty. Writing to a file whose containing directory does not exist is a
// failure, never an auto-create.
func (w *Writer) WriteReport(rep *report.Report, cfg *config.Config) error {
	snap := snapshot(rep, cfg)

	var (
		data []byte
		err  error
	)
	format := SelectFormat(cfg)
	switch format {
	case FormatSARIF:
		data, err = renderSARIF(snap)
	case FormatJSONL:
		data, err = renderJSONL(snap)
	case FormatPretty:
		data, err = renderDocument(snap, true)
	default:
		data, err = renderDocument(snap, false)
	}
	if err != nil {
		return fmt.Errorf("serialize report as %s: %w", format, err)
	}

	if cfg.Output.File == "" {
		if _, err := w.stdout.Write(data); err != nil {
			return NewOutputError("stdout", err)
		}
		return nil
	}

	dir := filepath.Dir(cfg.Output.File)
	if _, err := os.Stat(dir); err != nil {
		return NewOutputError(cfg.Output.File, fmt.Errorf("containing directory: %w", err))
	}
	if err := os.WriteFile(cfg.Output.File, data, 0o644); err != nil {
		return NewOutputError(cfg.Output.File, err)
	}

	w.logger.Info().
		Str("file", cfg.Output.File).
		Str("format", string(format)).
		Int("bytes", len(data)).
		Msg("report written")
	return nil
}

// reportSnapshot is the sanitized, optionally canonically ordered view of a
// report that every renderer consumes. Building it once guarantees PII
// suppression and ordering are identical regardless of output format.
type reportSnapshot struct {
	Meta    report.Meta
	Results []report.ScanResult
	Summary report.Summary
}

// snapshot copies the report, applies PII suppression, and sorts for
// canonical output when requested: findings by id in byte-wise ascending
// order, results by scanner name ascending, independent of the order in
// which scanners completed.
func snapshot(rep *report.Report, cfg *config.Config) reportSnapshot {
	opts := cfg.SanitizeOptions()
	results := rep.Results()
	for i := range results {
		for j := range results[i].Findings {
			results[i].Findings[j].Metadata = report.SanitizeMetadata(results[i].Findings[j].Metadata, opts)
		}
	}

	if cfg.Canonical {
		sort.Slice(results, func(i, j int) bool {
			return results[i].Scanner < results[j].Scanner
		})
		for i := range results {
			findings := results[i].Findings
			sort.Slice(findings, func(a, b int) bool {
				return findings[a].ID < findings[b].ID
			})
		}
	}

	return reportSnapshot{
		Meta:    report.SanitizeMeta(rep.Meta(), opts),
		Results: results,
		Summary: rep.Summary(),
	}
}
