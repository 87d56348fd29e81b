package writer

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

func testMeta() report.Meta {
	return report.Meta{
		ScanID:    "00000000-0000-0000-0000-000000000001",
		Hostname:  "ci-runner-7",
		Tool:      "hostguard",
		Version:   "test",
		StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// seedReport populates a report with findings carrying PII metadata and one
// operational error, in the given scanner/finding order.
func seedReport(t *testing.T, order []string) *report.Report {
	t.Helper()
	rep := report.New(testMeta())
	findings := map[string]func(){
		"process/a": func() {
			rep.AddFinding("process", report.NewFinding("proc-002", "deleted exe", report.SeverityHigh, "runs from deleted file").
				WithMetadata("uid", "1000").
				WithMetadata("user", "alice").
				WithMetadata("cmdline", "/tmp/.x --hide").
				WithMetadata("pid", "4242"))
		},
		"process/b": func() {
			rep.AddFinding("process", report.NewFinding("proc-001", "tmp exe", report.SeverityMedium, "executable under /tmp").
				WithMetadata("gid", "1000").
				WithMetadata("pid", "4243"))
		},
		"socket/a": func() {
			rep.AddFinding("socket", report.NewFinding("sock-001", "listener", report.SeverityLow, "0.0.0.0:31337").
				WithMetadata("uid", "0"))
		},
		"ioc/err": func() {
			rep.AddFinding("ioc", report.OperationalFailure("ioc", errors.New("rules unavailable")))
		},
	}
	for _, key := range order {
		findings[key]()
	}
	return rep
}

func defaultOrder() []string {
	return []string{"process/a", "process/b", "socket/a", "ioc/err"}
}

func shuffledOrder() []string {
	return []string{"ioc/err", "socket/a", "process/b", "process/a"}
}

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	return &cfg
}

func render(t *testing.T, rep *report.Report, cfg *config.Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWithStdout(&buf)
	require.NoError(t, w.WriteReport(rep, cfg))
	return buf.Bytes()
}

func TestSelectFormat_Precedence(t *testing.T) {
	cases := []struct {
		name                          string
		sarif, jsonl, pretty, compact bool
		want                          Format
	}{
		{"default is plain", false, false, false, false, FormatPlain},
		{"pretty", false, false, true, false, FormatPretty},
		{"compact beats pretty", false, false, true, true, FormatPlain},
		{"jsonl beats document", false, true, true, true, FormatJSONL},
		{"sarif beats everything", true, true, true, true, FormatSARIF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Output.SARIF = tc.sarif
			cfg.Output.JSONL = tc.jsonl
			cfg.Output.Pretty = tc.pretty
			cfg.Output.Compact = tc.compact
			assert.Equal(t, tc.want, SelectFormat(cfg))
		})
	}
}

func TestWriteReport_DocumentRoundTrip(t *testing.T) {
	rep := seedReport(t, defaultOrder())
	out := render(t, rep, baseConfig())

	var doc struct {
		Meta    report.Meta `json:"meta"`
		Results []struct {
			Scanner  string           `json:"scanner"`
			Findings []report.Finding `json:"findings"`
		} `json:"results"`
		Summary report.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))

	total := 0
	for _, res := range doc.Results {
		total += len(res.Findings)
	}
	assert.Equal(t, rep.FindingCount(), total)
	assert.Equal(t, "ci-runner-7", doc.Meta.Hostname)
	assert.Equal(t, rep.Summary().TotalRiskScore, doc.Summary.TotalRiskScore)
}

func TestWriteReport_PrettyIsIndented(t *testing.T) {
	cfg := baseConfig()
	cfg.Output.Pretty = true
	out := render(t, seedReport(t, defaultOrder()), cfg)
	assert.Contains(t, string(out), "\n  \"meta\"")

	plain := render(t, seedReport(t, defaultOrder()), baseConfig())
	assert.NotContains(t, strings.TrimRight(string(plain), "\n"), "\n", "plain form is a single line")
}

func TestWriteReport_OperationalErrorsEmittedButExcludedFromSummary(t *testing.T) {
	out := render(t, seedReport(t, defaultOrder()), baseConfig())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Contains(t, string(out), "operational_error", "operational failures stay visible in results")

	summary := doc["summary"].(map[string]any)
	counts := summary["counts"].(map[string]any)
	assert.NotContains(t, counts, "error")
	// high(70) + medium(40) + low(10)
	assert.EqualValues(t, 120, summary["total_risk_score"])
}

func TestWriteReport_CanonicalIsByteStableAcrossInsertionOrder(t *testing.T) {
	for _, format := range []string{"plain", "pretty", "jsonl", "sarif"} {
		t.Run(format, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Canonical = true
			cfg.Output.Pretty = format == "pretty"
			cfg.Output.JSONL = format == "jsonl"
			cfg.Output.SARIF = format == "sarif"

			a := render(t, seedReport(t, defaultOrder()), cfg)
			b := render(t, seedReport(t, shuffledOrder()), cfg)
			assert.Equal(t, a, b, "canonical output must be byte-identical regardless of insertion order")
		})
	}
}

func TestWriteReport_CanonicalSortsResultsAndFindings(t *testing.T) {
	cfg := baseConfig()
	cfg.Canonical = true
	out := render(t, seedReport(t, shuffledOrder()), cfg)

	var doc struct {
		Results []struct {
			Scanner  string           `json:"scanner"`
			Findings []report.Finding `json:"findings"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc.Results, 3)
	assert.Equal(t, "ioc", doc.Results[0].Scanner)
	assert.Equal(t, "process", doc.Results[1].Scanner)
	assert.Equal(t, "socket", doc.Results[2].Scanner)
	require.Len(t, doc.Results[1].Findings, 2)
	assert.Equal(t, "proc-001", doc.Results[1].Findings[0].ID)
	assert.Equal(t, "proc-002", doc.Results[1].Findings[1].ID)
}

func TestWriteReport_JSONLEveryLineParses(t *testing.T) {
	cfg := baseConfig()
	cfg.Output.JSONL = true
	rep := seedReport(t, defaultOrder())
	out := render(t, rep, cfg)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	var types []string
	findings := 0
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "line %q must parse independently", scanner.Text())
		typ := rec["type"].(string)
		types = append(types, typ)
		if typ == "finding" {
			assert.NotEmpty(t, rec["scanner"], "finding records carry their own scanner name")
			findings++
		}
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, rep.FindingCount(), findings)
	assert.Equal(t, "meta", types[0])
	assert.Equal(t, "summary", types[len(types)-1])
}

func TestWriteReport_SARIFSchemaAndMapping(t *testing.T) {
	cfg := baseConfig()
	cfg.Output.SARIF = true
	out := render(t, seedReport(t, defaultOrder()), cfg)

	var doc struct {
		Version string `json:"version"`
		Schema  string `json:"$schema"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name string `json:"name"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID  string `json:"ruleId"`
				Level   string `json:"level"`
				Message struct {
					Text string `json:"text"`
				} `json:"message"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))

	assert.Equal(t, "2.1.0", doc.Version)
	assert.Contains(t, doc.Schema, "sarif-2.1.0")
	require.Len(t, doc.Runs, 1)
	assert.Equal(t, "hostguard", doc.Runs[0].Tool.Driver.Name)

	levels := make(map[string]string)
	for _, r := range doc.Runs[0].Results {
		levels[r.RuleID] = r.Level
	}
	assert.Equal(t, "error", levels["proc-002"], "high -> error")
	assert.Equal(t, "warning", levels["proc-001"], "medium -> warning")
	assert.Equal(t, "note", levels["sock-001"], "low -> note")
	assert.Equal(t, "none", levels["ioc/operational-error"], "operational -> none")
}

func TestWriteReport_PIISuppressionAcrossFormats(t *testing.T) {
	for _, format := range []string{"plain", "pretty", "jsonl", "sarif"} {
		t.Run(format, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Privacy.NoUserMeta = true
			cfg.Privacy.NoCmdlineMeta = true
			cfg.Privacy.NoHostnameMeta = true
			cfg.Output.Pretty = format == "pretty"
			cfg.Output.JSONL = format == "jsonl"
			cfg.Output.SARIF = format == "sarif"

			out := string(render(t, seedReport(t, defaultOrder()), cfg))
			assert.NotContains(t, out, `"uid"`)
			assert.NotContains(t, out, `"gid"`)
			assert.NotContains(t, out, `"user"`)
			assert.NotContains(t, out, `"cmdline"`)
			assert.NotContains(t, out, "ci-runner-7")
			assert.Contains(t, out, "4242", "unknown keys like pid survive")
		})
	}
}

func TestWriteReport_SuppressionLeavesReportUntouched(t *testing.T) {
	cfg := baseConfig()
	cfg.Privacy.NoUserMeta = true
	rep := seedReport(t, defaultOrder())
	_ = render(t, rep, cfg)

	results := rep.Results()
	assert.Equal(t, "1000", results[0].Findings[0].Metadata["uid"],
		"sanitization applies to the serialized view, not the report")
}

func TestWriteReport_EmptyPathWritesToStdout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithStdout(&buf)
	cfg := baseConfig()
	cfg.Output.File = ""
	require.NoError(t, w.WriteReport(seedReport(t, defaultOrder()), cfg))
	assert.True(t, json.Valid(buf.Bytes()))
}

func TestWriteReport_ToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Output.File = filepath.Join(dir, "report.json")

	w := NewWithStdout(io.Discard)
	require.NoError(t, w.WriteReport(seedReport(t, defaultOrder()), cfg))

	data, err := os.ReadFile(cfg.Output.File)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestWriteReport_MissingDirectoryIsFailureNotAutoCreate(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Output.File = filepath.Join(dir, "missing", "report.json")

	w := NewWithStdout(io.Discard)
	err := w.WriteReport(seedReport(t, defaultOrder()), cfg)
	require.Error(t, err)
	var oerr *OutputError
	assert.ErrorAs(t, err, &oerr)
	assert.NoDirExists(t, filepath.Join(dir, "missing"))
}

func TestWriteEnvFile_Success(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Output.File = filepath.Join(dir, "report.json")
	cfg.Output.EnvFile = filepath.Join(dir, "report.env")

	rep := seedReport(t, defaultOrder())
	w := NewWithStdout(io.Discard)
	require.NoError(t, w.WriteReport(rep, cfg))
	require.NoError(t, w.WriteEnvFile(cfg, rep))

	content, err := os.ReadFile(cfg.Output.EnvFile)
	require.NoError(t, err)
	lines := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		k, v, ok := strings.Cut(line, "=")
		require.True(t, ok, "env file lines are KEY=value")
		lines[k] = v
	}

	abs, _ := filepath.Abs(cfg.Output.File)
	assert.Equal(t, abs, lines["HOSTGUARD_REPORT_PATH"])

	data, err := os.ReadFile(cfg.Output.File)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), lines["HOSTGUARD_REPORT_SHA256"])
	assert.Equal(t, "4", lines["HOSTGUARD_FINDINGS"])
	assert.Equal(t, "120", lines["HOSTGUARD_RISK_SCORE"])
}

func TestWriteEnvFile_FailsWithoutReportFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWithStdout(io.Discard)
	rep := seedReport(t, defaultOrder())

	t.Run("stdout report", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Output.EnvFile = filepath.Join(dir, "report.env")
		err := w.WriteEnvFile(cfg, rep)
		require.Error(t, err)
	})

	t.Run("report never written", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Output.File = filepath.Join(dir, "never-written.json")
		cfg.Output.EnvFile = filepath.Join(dir, "report.env")
		err := w.WriteEnvFile(cfg, rep)
		require.Error(t, err)
		var oerr *OutputError
		assert.ErrorAs(t, err, &oerr)
	})
}
