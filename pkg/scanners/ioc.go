package scanners

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
	"github.com/hostguard/hostguard/pkg/rules"
)

// IOCScanner matches the loaded rule set against host state: filesystem
// paths, running process names, and (when exec tracing is on) the origin of
// running executables.
type IOCScanner struct {
	procRoot  string
	fsRoot    string
	rules     []rules.Rule
	execTrace bool
	logger    zerolog.Logger
}

// NewIOCScanner builds the IOC scanner over the given rule set. The set may
// be empty when the rule engine is disabled; the scanner then reports
// nothing.
func NewIOCScanner(cfg *config.Config, ruleSet []rules.Rule) *IOCScanner {
	return &IOCScanner{
		procRoot:  "/proc",
		fsRoot:    "/",
		rules:     ruleSet,
		execTrace: cfg.Scanners.IOCExecTrace,
		logger:    log.With().Str("component", "scanners").Str("scanner", "ioc").Logger(),
	}
}

func (s *IOCScanner) Name() string { return "ioc" }

func (s *IOCScanner) Scan(ctx context.Context, rep *report.Report) error {
	if len(s.rules) == 0 {
		return nil
	}

	procNames, exePaths, err := s.collectProcesses()
	if err != nil {
		return err
	}

	for _, rule := range s.rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		sev := s.ruleSeverity(rule)

		for _, pattern := range rule.Match.Paths {
			matches, err := filepath.Glob(filepath.Join(s.fsRoot, pattern))
			if err != nil {
				s.logger.Warn().Err(err).Str("rule", rule.ID).Str("pattern", pattern).Msg("Bad path pattern")
				continue
			}
			for _, match := range matches {
				hostPath := "/" + strings.TrimPrefix(strings.TrimPrefix(match, s.fsRoot), "/")
				f := s.finding(rule, sev,
					fmt.Sprintf("ioc/%s/path%s", rule.ID, hostPath),
					fmt.Sprintf("path %s matches rule %s", hostPath, rule.ID)).
					WithMetadata("path", hostPath)
				if len(rule.Match.Hashes) > 0 {
					f = s.matchContent(rule, match, f)
				}
				rep.AddFinding(s.Name(), f)
			}
		}

		for _, name := range rule.Match.ProcessNames {
			for _, pid := range procNames[name] {
				rep.AddFinding(s.Name(), s.finding(rule, sev,
					fmt.Sprintf("ioc/%s/process/%s", rule.ID, pid),
					fmt.Sprintf("running process %s (pid %s) matches rule %s", name, pid, rule.ID)).
					WithMetadata("process", name).
					WithMetadata("pid", pid))
			}
		}

		if s.execTrace {
			s.traceExecOrigins(rule, sev, exePaths, rep)
		}
	}
	return nil
}

// matchContent hashes a path-matched file and records whether its digest is
// on the rule's hash list. Hash comparison is case-insensitive on the rule
// side since digests appear in feeds in both cases.
func (s *IOCScanner) matchContent(rule rules.Rule, path string, f report.Finding) report.Finding {
	digest, err := hashFile(path)
	if err != nil {
		return f
	}
	f = f.WithMetadata("sha256", digest)
	for _, want := range rule.Match.Hashes {
		if strings.EqualFold(want, digest) {
			return f.WithMetadata("hash_matched", "true")
		}
	}
	return f
}

// traceExecOrigins matches rule path patterns against the executables of
// running processes, catching binaries that were removed from disk after
// launch.
func (s *IOCScanner) traceExecOrigins(rule rules.Rule, sev report.Severity, exePaths map[string]string, rep *report.Report) {
	for pid, exe := range exePaths {
		for _, pattern := range rule.Match.Paths {
			ok, err := filepath.Match(pattern, exe)
			if err != nil || !ok {
				continue
			}
			rep.AddFinding(s.Name(), s.finding(rule, sev,
				fmt.Sprintf("ioc/%s/exec/%s", rule.ID, pid),
				fmt.Sprintf("pid %s executes %s, matching rule %s", pid, exe, rule.ID)).
				WithMetadata("pid", pid).
				WithMetadata("exe", exe))
		}
	}
}

// collectProcesses reads the proc tree once: command names keyed to their
// pids, and executable targets keyed by pid.
func (s *IOCScanner) collectProcesses() (map[string][]string, map[string]string, error) {
	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate %s: %w", s.procRoot, err)
	}

	names := make(map[string][]string)
	exes := make(map[string]string)
	for _, entry := range entries {
		pid := entry.Name()
		if !entry.IsDir() || !isNumeric(pid) {
			continue
		}
		if comm := readFirstLine(filepath.Join(s.procRoot, pid, "comm")); comm != "" {
			names[comm] = append(names[comm], pid)
		}
		if exe, err := os.Readlink(filepath.Join(s.procRoot, pid, "exe")); err == nil {
			exes[pid] = strings.TrimSuffix(exe, " (deleted)")
		}
	}
	return names, exes, nil
}

func (s *IOCScanner) finding(rule rules.Rule, sev report.Severity, id, desc string) report.Finding {
	title := rule.Name
	if title == "" {
		title = rule.ID
	}
	return report.NewFinding(id, title, sev, desc).
		WithMetadata("rule_id", rule.ID).
		WithMetadata("rule_source", rule.Source)
}

// ruleSeverity parses the rule's severity token, falling back to medium for
// tokens the engine accepted structurally but the severity scale does not
// define.
func (s *IOCScanner) ruleSeverity(rule rules.Rule) report.Severity {
	sev, err := report.ParseSeverity(rule.Severity)
	if err != nil {
		s.logger.Warn().Str("rule", rule.ID).Str("severity", rule.Severity).Msg("Unrecognized rule severity, using medium")
		return report.SeverityMedium
	}
	return sev
}
