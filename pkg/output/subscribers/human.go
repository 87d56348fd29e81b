// Package subscribers holds the event stream renderers: a styled
// human-readable formatter and a JSON-lines formatter for machine
// consumption.
package subscribers

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/hostguard/hostguard/pkg/output"
)

var (
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")). // red
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")). // yellow
			Bold(true)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62")). // blue
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				Padding(0, 1)

	// severityStyles colors the severity tokens that show up in finding
	// tables and summary lines.
	severityStyles = map[string]lipgloss.Style{
		"high":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"medium": lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		"low":    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"info":   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

// HumanFormatter renders events as styled terminal text. It is the default
// subscriber when the JSON output mode is not requested.
type HumanFormatter struct {
	stdout       io.Writer
	stderr       io.Writer
	colorEnabled bool
}

// NewHumanFormatter creates a human formatter writing messages to stdout and
// errors to stderr.
func NewHumanFormatter(stdout, stderr io.Writer, colorEnabled bool) *HumanFormatter {
	return &HumanFormatter{
		stdout:       stdout,
		stderr:       stderr,
		colorEnabled: colorEnabled,
	}
}

func (s *HumanFormatter) Name() string { return "human-formatter" }

// ShouldHandle accepts everything except diagnostics, which belong to the
// verbosity-gated diagnostic subscriber.
func (s *HumanFormatter) ShouldHandle(event output.Event) bool {
	return event.Type != output.EventDiag
}

func (s *HumanFormatter) Handle(event output.Event) {
	switch event.Type {
	case output.EventInfo:
		s.printInfo(event.Message)
	case output.EventWarning:
		s.printWarning(event.Message)
	case output.EventError:
		s.printError(event.Message)
	case output.EventTable:
		if data, ok := event.Data.(map[string]any); ok {
			headers, _ := data["headers"].([]string)
			rows, _ := data["rows"].([][]string)
			s.printTable(headers, rows)
		}
	case output.EventProgress:
		if data, ok := event.Data.(map[string]any); ok {
			current, _ := data["current"].(int)
			total, _ := data["total"].(int)
			s.printProgress(current, total, event.Message)
		}
	}
}

func (s *HumanFormatter) printInfo(message string) {
	if !s.colorEnabled {
		_, _ = fmt.Fprintln(s.stdout, message)
		return
	}
	_, _ = fmt.Fprintln(s.stdout, infoStyle.Render(message))
}

func (s *HumanFormatter) printWarning(message string) {
	if !s.colorEnabled {
		_, _ = fmt.Fprintf(s.stdout, "Warning: %s\n", message)
		return
	}
	_, _ = fmt.Fprintln(s.stdout, warningStyle.Render("Warning: "+message))
}

func (s *HumanFormatter) printError(message string) {
	if !s.colorEnabled {
		_, _ = fmt.Fprintf(s.stderr, "Error: %s\n", message)
		return
	}
	_, _ = fmt.Fprintln(s.stderr, errorStyle.Render("Error: "+message))
}

func (s *HumanFormatter) printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(s.stdout, 0, 0, 2, ' ', 0)

	if !s.colorEnabled {
		_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
		for _, row := range rows {
			_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		_ = w.Flush()
		return
	}

	headerLine := make([]string, len(headers))
	for i, h := range headers {
		headerLine[i] = tableHeaderStyle.Render(strings.ToUpper(h))
	}
	_, _ = fmt.Fprintln(w, strings.Join(headerLine, "\t"))

	for _, row := range rows {
		styled := make([]string, len(row))
		for i, cell := range row {
			if style, ok := severityStyles[strings.ToLower(cell)]; ok {
				styled[i] = style.Render(cell)
			} else {
				styled[i] = cell
			}
		}
		_, _ = fmt.Fprintln(w, strings.Join(styled, "\t"))
	}
	_ = w.Flush()
}

func (s *HumanFormatter) printProgress(current, total int, message string) {
	if total <= 0 {
		return
	}
	percentage := float64(current) / float64(total) * 100
	_, _ = fmt.Fprintf(s.stdout, "\r[%3.0f%%] %s", percentage, message)
	if current == total {
		_, _ = fmt.Fprintln(s.stdout)
	}
}
