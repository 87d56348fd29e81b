package scanners

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

// defaultSUIDRoots are the directories walked for setuid/setgid binaries
// when no explicit roots are configured.
var defaultSUIDRoots = []string{
	"/usr/bin", "/usr/sbin", "/usr/local/bin", "/usr/local/sbin", "/bin", "/sbin",
}

// SUIDScanner walks binary directories for setuid/setgid files that are not
// on the expected-binaries list.
type SUIDScanner struct {
	roots    []string
	expected map[string]bool
	hash     bool
	logger   zerolog.Logger
}

// NewSUIDScanner builds the SUID scanner from the resolved configuration.
// The expected-binaries list matches either the full path or the base name.
func NewSUIDScanner(cfg *config.Config) *SUIDScanner {
	expected := make(map[string]bool, len(cfg.ExpectedBinaries))
	for _, entry := range cfg.ExpectedBinaries {
		expected[entry] = true
	}
	return &SUIDScanner{
		roots:    defaultSUIDRoots,
		expected: expected,
		hash:     cfg.Scanners.Integrity,
		logger:   log.With().Str("component", "scanners").Str("scanner", "suid").Logger(),
	}
}

func (s *SUIDScanner) Name() string { return "suid" }

func (s *SUIDScanner) Scan(ctx context.Context, rep *report.Report) error {
	for _, root := range s.roots {
		if _, err := os.Stat(root); err != nil {
			s.logger.Debug().Str("root", root).Msg("Skipping absent root")
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if err != nil {
				// Unreadable subtrees are common without privileges.
				s.logger.Debug().Err(err).Str("path", path).Msg("Skipping unreadable entry")
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			s.examine(path, info.Mode(), rep)
			return nil
		})
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return nil
}

func (s *SUIDScanner) examine(path string, mode fs.FileMode, rep *report.Report) {
	if mode&(fs.ModeSetuid|fs.ModeSetgid) == 0 {
		return
	}
	if s.expected[path] || s.expected[filepath.Base(path)] {
		return
	}

	sev := report.SeverityMedium
	title := "unexpected setgid binary"
	if mode&fs.ModeSetuid != 0 {
		sev = report.SeverityHigh
		title = "unexpected setuid binary"
	}

	finding := report.NewFinding(
		fmt.Sprintf("suid/%s", path),
		title,
		sev,
		fmt.Sprintf("%s (%s) is not on the expected-binaries list", path, mode),
	).
		WithMetadata("path", path).
		WithMetadata("mode", mode.String())
	if s.hash {
		if digest, err := hashFile(path); err == nil {
			finding = finding.WithMetadata("sha256", digest)
		}
	}
	rep.AddFinding(s.Name(), finding)
}
