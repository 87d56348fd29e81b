package scanners

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

// Kernel taint bits relevant to module provenance, from the kernel's
// documented taint flag table.
const (
	taintOutOfTree      = 1 << 12 // O: externally built module loaded
	taintUnsignedModule = 1 << 13 // E: unsigned module loaded
)

// ModuleScanner reports loaded kernel modules and module-related kernel
// taint. In summary-only mode the module list collapses to a single finding.
type ModuleScanner struct {
	procRoot    string
	summaryOnly bool
	maxModules  int
	logger      zerolog.Logger
}

// NewModuleScanner builds the module scanner from the resolved
// configuration.
func NewModuleScanner(cfg *config.Config) *ModuleScanner {
	return &ModuleScanner{
		procRoot:    "/proc",
		summaryOnly: cfg.Scanners.ModulesSummaryOnly,
		maxModules:  cfg.Scanners.MaxPackages,
		logger:      log.With().Str("component", "scanners").Str("scanner", "module").Logger(),
	}
}

func (s *ModuleScanner) Name() string { return "module" }

func (s *ModuleScanner) Scan(ctx context.Context, rep *report.Report) error {
	f, err := os.Open(filepath.Join(s.procRoot, "modules"))
	if err != nil {
		return fmt.Errorf("read module table: %w", err)
	}
	defer func() { _ = f.Close() }()

	total := 0
	listed := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		total++
		if s.summaryOnly {
			continue
		}
		if s.maxModules >= 0 && listed >= s.maxModules {
			continue
		}
		listed++

		name := fields[0]
		finding := report.NewFinding(
			fmt.Sprintf("module/loaded/%s", name),
			"kernel module loaded",
			report.SeverityInfo,
			fmt.Sprintf("module %s is loaded", name),
		).
			WithMetadata("module", name).
			WithMetadata("size", fields[1])
		// Per-module taint characters trail the line in parentheses, e.g. (OE).
		if last := fields[len(fields)-1]; strings.HasPrefix(last, "(") {
			finding = finding.WithMetadata("taint", strings.Trim(last, "()"))
		}
		rep.AddFinding(s.Name(), finding)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read module table: %w", err)
	}

	if s.summaryOnly {
		rep.AddFinding(s.Name(), report.NewFinding(
			"module/summary",
			"kernel module summary",
			report.SeverityInfo,
			fmt.Sprintf("%d kernel modules loaded", total),
		).WithMetadata("count", strconv.Itoa(total)))
	}

	s.reportTaint(rep)
	return nil
}

// reportTaint reads the global kernel taint mask. The file is absent in
// some containers, which is not an error.
func (s *ModuleScanner) reportTaint(rep *report.Report) {
	data, err := os.ReadFile(filepath.Join(s.procRoot, "sys", "kernel", "tainted"))
	if err != nil {
		return
	}
	mask, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Unparseable kernel taint mask")
		return
	}

	if mask&taintOutOfTree != 0 {
		rep.AddFinding(s.Name(), report.NewFinding(
			"module/taint/out-of-tree",
			"kernel tainted by out-of-tree module",
			report.SeverityMedium,
			"an externally built kernel module has been loaded",
		).WithMetadata("taint_mask", strconv.FormatUint(mask, 10)))
	}
	if mask&taintUnsignedModule != 0 {
		rep.AddFinding(s.Name(), report.NewFinding(
			"module/taint/unsigned",
			"kernel tainted by unsigned module",
			report.SeverityHigh,
			"an unsigned kernel module has been loaded",
		).WithMetadata("taint_mask", strconv.FormatUint(mask, 10)))
	}
}
