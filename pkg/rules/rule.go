// Package rules discovers and parses externally supplied rule definitions
// from a directory tree without trusting their location or permissions.
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Match holds the structural patterns a rule matches against host state.
// Execution semantics of the patterns belong to the IOC scanner, not here.
type Match struct {
	// Paths are filesystem glob patterns flagged when present.
	Paths []string `yaml:"paths,omitempty"`

	// ProcessNames are process command names flagged when running.
	ProcessNames []string `yaml:"process_names,omitempty"`

	// Hashes are hex content digests flagged when encountered.
	Hashes []string `yaml:"hashes,omitempty"`
}

// Rule is one parsed unit loaded from a file under the rules directory. It
// is owned by the engine's in-memory rule set for the duration of the run.
type Rule struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description,omitempty"`
	Match       Match  `yaml:"match,omitempty"`

	// Source is the file the rule was loaded from.
	Source string `yaml:"-"`
}

// ruleFile is the current on-disk format: a YAML document with a top-level
// rules list.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseError reports a single rule file that failed to parse. It is
// non-fatal: the engine logs it, skips the file and continues.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse rule file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// parseRuleFile parses a YAML rule file and validates the minimal shape of
// each rule (non-empty id and a recognized severity token are checked by the
// IOC scanner at match time; here only id presence is structural).
func parseRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if len(rf.Rules) == 0 {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("no rules entries")}
	}
	for i := range rf.Rules {
		if rf.Rules[i].ID == "" {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("rule %d has empty id", i)}
		}
		rf.Rules[i].Source = path
	}
	return rf.Rules, nil
}

// parseLegacyRuleFile parses the older line-based syntax:
//
//	id|severity|path-pattern|description
//
// Blank lines and '#' comments are skipped. Accepted only when the
// allow-legacy toggle is on; otherwise files in this syntax are treated as
// parse failures.
func parseLegacyRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var parsed []Rule
	for n, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 3 {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("line %d: want id|severity|pattern[|description], got %d fields", n+1, len(fields))}
		}
		rule := Rule{
			ID:       strings.TrimSpace(fields[0]),
			Severity: strings.TrimSpace(fields[1]),
			Match:    Match{Paths: []string{strings.TrimSpace(fields[2])}},
			Source:   path,
		}
		if rule.ID == "" {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("line %d: empty rule id", n+1)}
		}
		if len(fields) > 3 {
			rule.Description = strings.TrimSpace(fields[3])
		}
		rule.Name = rule.ID
		parsed = append(parsed, rule)
	}
	if len(parsed) == 0 {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("no rule lines")}
	}
	return parsed, nil
}
