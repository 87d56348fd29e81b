package scanners

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

// worldWritableDirs are executable locations that any local user can write
// to. A process whose executable lives under one of them is suspicious on a
// server host.
var worldWritableDirs = []string{"/tmp/", "/var/tmp/", "/dev/shm/"}

// ProcessScanner enumerates running processes from the proc filesystem and
// flags deleted executables and executables running out of world-writable
// directories.
type ProcessScanner struct {
	procRoot  string
	maxProcs  int
	hash      bool
	allowList map[string]bool
	logger    zerolog.Logger
}

// NewProcessScanner builds the process scanner from the resolved
// configuration.
func NewProcessScanner(cfg *config.Config) *ProcessScanner {
	allow := make(map[string]bool, len(cfg.AllowList))
	for _, name := range cfg.AllowList {
		allow[name] = true
	}
	return &ProcessScanner{
		procRoot:  "/proc",
		maxProcs:  cfg.Scanners.MaxProcs,
		hash:      cfg.Scanners.ProcessHash,
		allowList: allow,
		logger:    log.With().Str("component", "scanners").Str("scanner", "process").Logger(),
	}
}

func (s *ProcessScanner) Name() string { return "process" }

func (s *ProcessScanner) Scan(ctx context.Context, rep *report.Report) error {
	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", s.procRoot, err)
	}

	examined := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		pid := entry.Name()
		if !entry.IsDir() || !isNumeric(pid) {
			continue
		}
		if s.maxProcs >= 0 && examined >= s.maxProcs {
			s.logger.Debug().Int("max_procs", s.maxProcs).Msg("Process limit reached")
			break
		}
		examined++
		s.examine(pid, rep)
	}
	return nil
}

// examine inspects a single process directory. Reads that fail are skipped
// without a finding: processes exit while the scan is in flight.
func (s *ProcessScanner) examine(pid string, rep *report.Report) {
	dir := filepath.Join(s.procRoot, pid)

	comm := readFirstLine(filepath.Join(dir, "comm"))
	if s.allowList[comm] {
		return
	}

	exe, err := os.Readlink(filepath.Join(dir, "exe"))
	if err != nil {
		return
	}

	base := func(id, title string, sev report.Severity, desc string) report.Finding {
		f := report.NewFinding(id, title, sev, desc).
			WithMetadata("pid", pid).
			WithMetadata("comm", comm)
		if cmdline := readCmdline(filepath.Join(dir, "cmdline")); cmdline != "" {
			f = f.WithMetadata("cmdline", cmdline)
		}
		if uid, gid, ok := readProcOwner(filepath.Join(dir, "status")); ok {
			f = f.WithMetadata("uid", uid).WithMetadata("gid", gid)
		}
		if s.hash {
			if digest, herr := hashFile(strings.TrimSuffix(exe, " (deleted)")); herr == nil {
				f = f.WithMetadata("exe_sha256", digest)
			}
		}
		return f
	}

	switch {
	case strings.HasSuffix(exe, " (deleted)"):
		rep.AddFinding(s.Name(), base(
			fmt.Sprintf("process/deleted-exe/%s", pid),
			"process running a deleted executable",
			report.SeverityHigh,
			fmt.Sprintf("pid %s (%s) executes %s, which no longer exists on disk", pid, comm, strings.TrimSuffix(exe, " (deleted)")),
		).WithMetadata("exe", strings.TrimSuffix(exe, " (deleted)")))
	case underWorldWritable(exe):
		rep.AddFinding(s.Name(), base(
			fmt.Sprintf("process/world-writable-exe/%s", pid),
			"process executing from a world-writable directory",
			report.SeverityMedium,
			fmt.Sprintf("pid %s (%s) executes %s", pid, comm, exe),
		).WithMetadata("exe", exe))
	}
}

func underWorldWritable(path string) bool {
	for _, dir := range worldWritableDirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func readFirstLine(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line)
}

// readCmdline joins the NUL-separated argument vector with spaces.
func readCmdline(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	data = bytes.TrimRight(data, "\x00")
	return strings.TrimSpace(string(bytes.ReplaceAll(data, []byte{0}, []byte{' '})))
}

// readProcOwner extracts the real uid and gid from a proc status file.
func readProcOwner(path string) (uid, gid string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "Uid:":
			uid = fields[1]
		case "Gid:":
			gid = fields[1]
		}
	}
	return uid, gid, uid != "" && gid != ""
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
