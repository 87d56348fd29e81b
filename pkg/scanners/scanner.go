// Package scanners implements the host-state collectors and the concurrent
// runner that drives them. Each scanner writes findings into a shared report
// under its own name; a scanner failure becomes a single operational-error
// finding and never aborts the others.
package scanners

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
	"github.com/hostguard/hostguard/pkg/rules"
)

// Scanner is one host-state collector.
//
// Scan writes findings into the shared report under the scanner's own name
// and returns an error only for an operational failure of the scanner
// itself, never for what it observed on the host.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, rep *report.Report) error
}

// RunAll executes the scanners concurrently, bracketing each with the
// report's start/end markers. Errors and panics are converted into
// operational-error findings on the failing scanner's result.
func RunAll(ctx context.Context, scanners []Scanner, rep *report.Report) {
	var wg sync.WaitGroup
	for _, s := range scanners {
		wg.Add(1)
		go func(s Scanner) {
			defer wg.Done()
			runOne(ctx, s, rep)
		}(s)
	}
	wg.Wait()
}

func runOne(ctx context.Context, s Scanner, rep *report.Report) {
	logger := log.With().
		Str("component", "scanners").
		Str("scanner", s.Name()).
		Logger()

	rep.StartScanner(s.Name())
	defer rep.EndScanner(s.Name())

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scanner %s panicked: %v", s.Name(), r)
			}
		}()
		return s.Scan(ctx, rep)
	}()
	if err != nil {
		logger.Error().Err(err).Msg("Scanner failed")
		rep.AddFinding(s.Name(), report.OperationalFailure(s.Name(), err))
		return
	}
	logger.Debug().Msg("Scanner completed")
}

// Select builds the scanner set chosen by the configuration. An empty
// enable list means every scanner; the validator guarantees the enable and
// disable sets are disjoint. The loaded rule set is handed to the IOC
// scanner; it may be empty when the rule engine is disabled.
func Select(cfg *config.Config, ruleSet []rules.Rule) []Scanner {
	all := []Scanner{
		NewProcessScanner(cfg),
		NewSocketScanner(cfg),
		NewModuleScanner(cfg),
		NewSUIDScanner(cfg),
		NewIOCScanner(cfg, ruleSet),
	}

	enabled := make(map[string]bool, len(cfg.Scanners.Enable))
	for _, name := range cfg.Scanners.Enable {
		enabled[name] = true
	}
	disabled := make(map[string]bool, len(cfg.Scanners.Disable))
	for _, name := range cfg.Scanners.Disable {
		disabled[name] = true
	}

	selected := make([]Scanner, 0, len(all))
	for _, s := range all {
		if len(enabled) > 0 && !enabled[s.Name()] {
			continue
		}
		if disabled[s.Name()] {
			continue
		}
		selected = append(selected, s)
	}
	return selected
}
