package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/report"
)

// Validate checks the populated configuration for internal consistency and
// populates the derived severity fields. It must run before the rule engine
// is initialized and before any scanning starts.
//
// Checks, in order:
//   - min_severity and fail_on_severity parse against the severity scale;
//   - fail_on_severity rank must not be below min_severity rank (such a
//     configuration could never trigger a failure);
//   - no scanner name may appear in both the enable and disable sets.
//
// Output-format flags are deliberately not checked here: they are not
// mutually exclusive, the writer resolves precedence among them. Negative
// or zero numeric limits are accepted and mean "unlimited" downstream.
// Empty path fields mean "use default".
func (c *Config) Validate() error {
	minSev, err := report.ParseSeverity(c.Filter.MinSeverity)
	if err != nil {
		return NewValidationError("filter.min_severity", err.Error())
	}
	failSev, err := report.ParseSeverity(c.Filter.FailOnSeverity)
	if err != nil {
		return NewValidationError("filter.fail_on_severity", err.Error())
	}
	if failSev < minSev {
		return NewValidationError("filter.fail_on_severity",
			fmt.Sprintf("rank %q is below min_severity %q; the minimum-severity filter would exclude everything at the fail threshold", failSev, minSev))
	}

	enabled := make(map[string]struct{}, len(c.Scanners.Enable))
	for _, name := range c.Scanners.Enable {
		enabled[name] = struct{}{}
	}
	for _, name := range c.Scanners.Disable {
		if _, ok := enabled[name]; ok {
			return NewValidationError("scanners",
				fmt.Sprintf("scanner %q appears in both enable and disable sets", name))
		}
	}

	c.MinSeverity = minSev
	c.FailSeverity = failSev
	return nil
}

// LoadExternalFiles reads the configured list files into the in-memory
// lists. A referenced file that does not exist is a hard failure; an
// existing file that is empty or contains only comments yields an empty
// list.
func (c *Config) LoadExternalFiles() error {
	if path := c.Lists.AllowListFile; path != "" {
		entries, err := readListFile(path)
		if err != nil {
			return err
		}
		c.AllowList = append(c.AllowList, entries...)
	}
	if path := c.Lists.ExpectedBinariesFile; path != "" {
		entries, err := readListFile(path)
		if err != nil {
			return err
		}
		c.ExpectedBinaries = append(c.ExpectedBinaries, entries...)
	}
	return nil
}

// readListFile parses a one-entry-per-line list file: surrounding whitespace
// is trimmed, blank lines and lines whose first non-whitespace character is
// '#' are skipped, duplicates are preserved as given.
func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewExternalFileError(path, err)
	}
	defer func() { _ = f.Close() }()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, NewExternalFileError(path, err)
	}
	return entries, nil
}

// ApplyFastScanOptimizations forces the reduced-cost profile when fast_scan
// is set: deep integrity checking off, IOC execution tracing off, module
// scanning restricted to a summary pass, per-process content hashing off.
// When fast_scan is false this is a no-op; it never enables a feature the
// user disabled explicitly.
func (c *Config) ApplyFastScanOptimizations() {
	if !c.FastScan {
		return
	}
	c.Scanners.Integrity = false
	c.Scanners.IOCExecTrace = false
	c.Scanners.ModulesSummaryOnly = true
	c.Scanners.ProcessHash = false
	log.Debug().Str("component", "config").Msg("fast-scan profile applied")
}
