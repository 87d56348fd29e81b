package scanners

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	return &cfg
}

func newTestReport() *report.Report {
	return report.New(report.Meta{ScanID: "test", Tool: "hostguard", Version: "test"})
}

// fakeScanner is a scriptable scanner for runner tests.
type fakeScanner struct {
	name     string
	findings []report.Finding
	err      error
	panics   bool
}

func (f *fakeScanner) Name() string { return f.name }

func (f *fakeScanner) Scan(_ context.Context, rep *report.Report) error {
	if f.panics {
		panic("boom")
	}
	for _, finding := range f.findings {
		rep.AddFinding(f.name, finding)
	}
	return f.err
}

// writeProcEntry lays down a minimal /proc/<pid> fixture.
func writeProcEntry(t *testing.T, procRoot, pid, comm, exeTarget, cmdline, uid string) {
	t.Helper()
	dir := filepath.Join(procRoot, pid)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644))
	if exeTarget != "" {
		require.NoError(t, os.Symlink(exeTarget, filepath.Join(dir, "exe")))
	}
	if cmdline != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644))
	}
	status := "Name:\t" + comm + "\nUid:\t" + uid + "\t" + uid + "\t" + uid + "\t" + uid + "\nGid:\t" + uid + "\t" + uid + "\t" + uid + "\t" + uid + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0o644))
}

func findingsFor(t *testing.T, rep *report.Report, scanner string) []report.Finding {
	t.Helper()
	for _, res := range rep.Results() {
		if res.Scanner == scanner {
			return res.Findings
		}
	}
	return nil
}

func TestRunAll_CollectsFromAllScanners(t *testing.T) {
	rep := newTestReport()
	RunAll(context.Background(), []Scanner{
		&fakeScanner{name: "a", findings: []report.Finding{report.NewFinding("a-1", "x", report.SeverityLow, "")}},
		&fakeScanner{name: "b", findings: []report.Finding{
			report.NewFinding("b-1", "y", report.SeverityHigh, ""),
			report.NewFinding("b-2", "z", report.SeverityInfo, ""),
		}},
	}, rep)

	assert.Equal(t, 3, rep.FindingCount())
	assert.Len(t, findingsFor(t, rep, "a"), 1)
	assert.Len(t, findingsFor(t, rep, "b"), 2)
}

func TestRunAll_ErrorBecomesOperationalFinding(t *testing.T) {
	rep := newTestReport()
	RunAll(context.Background(), []Scanner{
		&fakeScanner{name: "broken", err: errors.New("table unreadable")},
		&fakeScanner{name: "ok", findings: []report.Finding{report.NewFinding("ok-1", "x", report.SeverityLow, "")}},
	}, rep)

	broken := findingsFor(t, rep, "broken")
	require.Len(t, broken, 1)
	assert.Equal(t, "broken/operational-error", broken[0].ID)
	assert.True(t, broken[0].OperationalError)
	assert.Zero(t, broken[0].Score)

	assert.Len(t, findingsFor(t, rep, "ok"), 1, "other scanners are unaffected")
}

func TestRunAll_PanicIsRecovered(t *testing.T) {
	rep := newTestReport()
	RunAll(context.Background(), []Scanner{
		&fakeScanner{name: "panicky", panics: true},
		&fakeScanner{name: "ok", findings: []report.Finding{report.NewFinding("ok-1", "x", report.SeverityLow, "")}},
	}, rep)

	panicked := findingsFor(t, rep, "panicky")
	require.Len(t, panicked, 1)
	assert.True(t, panicked[0].OperationalError)
	assert.Contains(t, panicked[0].Description, "panicked")
	assert.Len(t, findingsFor(t, rep, "ok"), 1)
}

func TestRunAll_PartialFindingsSurvivePanic(t *testing.T) {
	rep := newTestReport()
	partial := &partialThenPanic{}
	RunAll(context.Background(), []Scanner{partial}, rep)

	findings := findingsFor(t, rep, "partial")
	require.Len(t, findings, 2)
	assert.Equal(t, "partial-1", findings[0].ID)
	assert.True(t, findings[1].OperationalError)
}

type partialThenPanic struct{}

func (p *partialThenPanic) Name() string { return "partial" }

func (p *partialThenPanic) Scan(_ context.Context, rep *report.Report) error {
	rep.AddFinding(p.Name(), report.NewFinding("partial-1", "x", report.SeverityLow, ""))
	panic("midway")
}

func TestSelect_DefaultsToAllFive(t *testing.T) {
	scanners := Select(testConfig(), nil)
	names := scannerNames(scanners)
	assert.ElementsMatch(t, []string{"process", "socket", "module", "suid", "ioc"}, names)
}

func TestSelect_EnableRestricts(t *testing.T) {
	cfg := testConfig()
	cfg.Scanners.Enable = []string{"process", "socket"}
	assert.ElementsMatch(t, []string{"process", "socket"}, scannerNames(Select(cfg, nil)))
}

func TestSelect_DisableRemoves(t *testing.T) {
	cfg := testConfig()
	cfg.Scanners.Disable = []string{"module", "ioc"}
	assert.ElementsMatch(t, []string{"process", "socket", "suid"}, scannerNames(Select(cfg, nil)))
}

func scannerNames(scanners []Scanner) []string {
	names := make([]string, 0, len(scanners))
	for _, s := range scanners {
		names = append(names, s.Name())
	}
	return names
}
