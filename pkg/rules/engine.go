package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
)

// Recognized rule file extensions. The .rule extension carries the legacy
// line-based syntax and is accepted only when rules.allow_legacy is set.
const (
	extYAML   = ".yaml"
	extYML    = ".yml"
	extLegacy = ".rule"
)

// InsecurePermissionError reports a rule source writable by parties other
// than its owner. Advisory by default; promoted to fatal under
// rules.strict_permissions, since a world-writable rule source is a
// privilege-escalation vector.
type InsecurePermissionError struct {
	Path string
	Mode fs.FileMode
}

func (e *InsecurePermissionError) Error() string {
	return fmt.Sprintf("rule source %s is group- or world-writable (mode %04o)", e.Path, e.Mode.Perm())
}

// Engine loads and owns the in-memory rule set for the duration of a run.
// Initialize is invoked once, sequentially, before scanning.
type Engine struct {
	rules           []Rule
	skipped         []ParseError
	insecureSources []string
	logger          zerolog.Logger
}

// NewEngine creates an empty, uninitialized engine.
func NewEngine() *Engine {
	return &Engine{
		logger: log.With().Str("component", "rules").Logger(),
	}
}

// Initialize discovers and parses rule files under cfg.Rules.Dir.
//
//   - When rules are disabled it succeeds immediately with zero rules and
//     performs no filesystem access.
//   - A missing rules directory is a failure.
//   - The directory tree is walked recursively; a file that fails to parse
//     is logged and skipped, never aborting the remaining files.
//   - Every directory and candidate file is checked for group/world write
//     permission; insecure sources are flagged, or refused entirely when
//     strict permissions are configured.
func (e *Engine) Initialize(cfg *config.Config) error {
	if !cfg.Rules.Enable {
		e.rules = nil
		return nil
	}

	root := cfg.Rules.Dir
	info, err := os.Stat(root)
	if err != nil {
		return config.NewExternalFileError(root, err)
	}
	if !info.IsDir() {
		return config.NewExternalFileError(root, fmt.Errorf("not a directory"))
	}
	if err := e.checkPermissions(root, info.Mode(), cfg.Rules.StrictPermissions); err != nil {
		return err
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil // root already checked
			}
			return e.checkPermissions(path, info.Mode(), cfg.Rules.StrictPermissions)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != extYAML && ext != extYML && ext != extLegacy {
			return nil
		}
		if err := e.checkPermissions(path, info.Mode(), cfg.Rules.StrictPermissions); err != nil {
			return err
		}

		var (
			parsed   []Rule
			parseErr error
		)
		switch {
		case ext == extLegacy && !cfg.Rules.AllowLegacy:
			parseErr = &ParseError{Path: path, Err: fmt.Errorf("legacy rule syntax is disabled")}
		case ext == extLegacy:
			parsed, parseErr = parseLegacyRuleFile(path)
		default:
			parsed, parseErr = parseRuleFile(path)
		}
		if parseErr != nil {
			// Malformed content is non-fatal: log, record, continue.
			var pe *ParseError
			if !errors.As(parseErr, &pe) {
				pe = &ParseError{Path: path, Err: parseErr}
			}
			e.skipped = append(e.skipped, *pe)
			e.logger.Warn().Str("file", path).Err(pe.Err).Msg("skipping unparseable rule file")
			return nil
		}

		e.rules = append(e.rules, parsed...)
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	e.logger.Info().
		Int("rules", len(e.rules)).
		Int("skipped_files", len(e.skipped)).
		Int("insecure_sources", len(e.insecureSources)).
		Str("dir", root).
		Msg("rule engine initialized")
	return nil
}

// checkPermissions flags sources writable by group or others. Under strict
// mode the insecure source is refused instead of flagged.
func (e *Engine) checkPermissions(path string, mode fs.FileMode, strict bool) error {
	if mode.Perm()&0o022 == 0 {
		return nil
	}
	if strict {
		return &InsecurePermissionError{Path: path, Mode: mode}
	}
	e.insecureSources = append(e.insecureSources, path)
	e.logger.Warn().
		Str("path", path).
		Str("mode", fmt.Sprintf("%04o", mode.Perm())).
		Msg("rule source is writable by non-owner")
	return nil
}

// Rules returns the loaded rule set. Always empty when rules are disabled,
// regardless of directory contents.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Skipped returns the per-file parse failures recorded during Initialize.
func (e *Engine) Skipped() []ParseError {
	return e.skipped
}

// InsecureSources returns paths flagged as group- or world-writable.
func (e *Engine) InsecureSources() []string {
	return e.insecureSources
}
