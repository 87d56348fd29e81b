package subscribers

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hostguard/hostguard/pkg/output"
)

// DiagnosticSubscriber renders diagnostic events up to a configured
// verbosity. It is registered only when the user asked for verbose output.
type DiagnosticSubscriber struct {
	stderr   io.Writer
	maxLevel output.Level
}

// NewDiagnosticSubscriber creates a diagnostic renderer showing events at or
// below maxLevel.
func NewDiagnosticSubscriber(stderr io.Writer, maxLevel output.Level) *DiagnosticSubscriber {
	return &DiagnosticSubscriber{stderr: stderr, maxLevel: maxLevel}
}

func (s *DiagnosticSubscriber) Name() string { return "diagnostic" }

func (s *DiagnosticSubscriber) ShouldHandle(event output.Event) bool {
	return event.Type == output.EventDiag && event.Level <= s.maxLevel
}

func (s *DiagnosticSubscriber) Handle(event output.Event) {
	if len(event.Metadata) == 0 {
		_, _ = fmt.Fprintf(s.stderr, "[diag] %s\n", event.Message)
		return
	}

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, event.Metadata[k]))
	}
	_, _ = fmt.Fprintf(s.stderr, "[diag] %s %s\n", event.Message, strings.Join(pairs, " "))
}
