package report

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() Meta {
	return Meta{
		ScanID:    "scan-1",
		Hostname:  "host-a",
		Tool:      "hostguard",
		Version:   "test",
		StartedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestParseSeverity_ValidTokens(t *testing.T) {
	cases := map[string]Severity{
		"info":   SeverityInfo,
		"low":    SeverityLow,
		"medium": SeverityMedium,
		"HIGH":   SeverityHigh,
		" high ": SeverityHigh,
	}
	for token, want := range cases {
		sev, err := ParseSeverity(token)
		require.NoError(t, err, "token %q should parse", token)
		assert.Equal(t, want, sev)
	}
}

func TestParseSeverity_RejectsUnknownTokens(t *testing.T) {
	for _, token := range []string{"", "critical", "error", "warn"} {
		_, err := ParseSeverity(token)
		assert.Error(t, err, "token %q should be rejected", token)
	}
}

func TestSeverity_OrderingAndWeights(t *testing.T) {
	assert.True(t, SeverityInfo < SeverityLow)
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityMedium < SeverityHigh)

	// Weights must increase monotonically with rank.
	assert.Less(t, SeverityInfo.Weight(), SeverityLow.Weight())
	assert.Less(t, SeverityLow.Weight(), SeverityMedium.Weight())
	assert.Less(t, SeverityMedium.Weight(), SeverityHigh.Weight())

	// Operational-error severity never contributes weight.
	assert.Equal(t, 0, SeverityError.Weight())
}

func TestNewFinding_DerivesScoreFromSeverity(t *testing.T) {
	f := NewFinding("proc-001", "suspicious process", SeverityMedium, "details")
	assert.Equal(t, SeverityMedium.Weight(), f.Score)
	assert.False(t, f.OperationalError)
}

func TestReport_OperationalErrorInvariant(t *testing.T) {
	rep := New(testMeta())
	rep.StartScanner("process")
	rep.AddFinding("process", OperationalFailure("process", errors.New("boom")))
	// An operational finding sneaking in with a nominal score is forced to zero.
	rep.AddFinding("process", Finding{
		ID:               "proc-777",
		Severity:         SeverityHigh,
		Score:            70,
		OperationalError: true,
	})
	rep.AddFinding("process", NewFinding("proc-002", "world-writable", SeverityHigh, ""))
	rep.EndScanner("process")

	results := rep.Results()
	require.Len(t, results, 1)
	require.Len(t, results[0].Findings, 3, "operational errors must still be emitted")

	for _, f := range results[0].Findings {
		if f.OperationalError {
			assert.Equal(t, 0, f.Score, "operational error %s must have zero score", f.ID)
			assert.Equal(t, SeverityError, f.Severity)
		}
	}

	sum := rep.Summary()
	assert.Equal(t, 3, sum.TotalFindings)
	assert.Equal(t, SeverityHigh.Weight(), sum.TotalRiskScore, "only the genuine finding contributes")
	assert.Equal(t, map[string]int{"high": 1}, sum.Counts, "operational errors excluded from histogram")
}

func TestReport_SummaryAcrossScanners(t *testing.T) {
	rep := New(testMeta())
	rep.StartScanner("process")
	rep.AddFinding("process", NewFinding("a", "", SeverityLow, ""))
	rep.AddFinding("process", NewFinding("b", "", SeverityLow, ""))
	rep.EndScanner("process")
	rep.StartScanner("suid")
	rep.AddFinding("suid", NewFinding("c", "", SeverityHigh, ""))
	rep.EndScanner("suid")

	sum := rep.Summary()
	assert.Equal(t, 2*SeverityLow.Weight()+SeverityHigh.Weight(), sum.TotalRiskScore)
	assert.Equal(t, 2, sum.Counts["low"])
	assert.Equal(t, 1, sum.Counts["high"])
}

func TestReport_MaxSeverityIgnoresOperationalErrors(t *testing.T) {
	rep := New(testMeta())
	rep.AddFinding("ioc", OperationalFailure("ioc", errors.New("no rules")))

	_, found := rep.MaxSeverity()
	assert.False(t, found, "a report with only operational errors has no max severity")

	rep.AddFinding("ioc", NewFinding("x", "", SeverityMedium, ""))
	sev, found := rep.MaxSeverity()
	require.True(t, found)
	assert.Equal(t, SeverityMedium, sev)
}

func TestReport_ConcurrentScanners(t *testing.T) {
	rep := New(testMeta())

	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			name := fmt.Sprintf("scanner-%d", s)
			rep.StartScanner(name)
			for i := 0; i < 50; i++ {
				rep.AddFinding(name, NewFinding(fmt.Sprintf("%s-%03d", name, i), "t", SeverityLow, ""))
			}
			rep.EndScanner(name)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 8*50, rep.FindingCount())
	results := rep.Results()
	require.Len(t, results, 8)
	for _, res := range results {
		assert.Len(t, res.Findings, 50, "scanner %s lost findings", res.Scanner)
		assert.False(t, res.EndTime.IsZero())
	}
}

func TestReport_MinSeverityDropsAtCollection(t *testing.T) {
	rep := New(Meta{ScanID: "test"})
	rep.SetMinSeverity(SeverityMedium)

	rep.AddFinding("process", NewFinding("p-1", "kept", SeverityHigh, ""))
	rep.AddFinding("process", NewFinding("p-2", "dropped", SeverityLow, ""))
	rep.AddFinding("process", NewFinding("p-3", "dropped", SeverityInfo, ""))
	rep.AddFinding("process", OperationalFailure("process", assert.AnError))

	results := rep.Results()
	require.Len(t, results, 1)
	require.Len(t, results[0].Findings, 2)
	assert.Equal(t, "p-1", results[0].Findings[0].ID)
	assert.True(t, results[0].Findings[1].OperationalError, "operational errors bypass the threshold")

	sum := rep.Summary()
	assert.Equal(t, 2, sum.TotalFindings)
	assert.Equal(t, 70, sum.TotalRiskScore)
}

func TestReport_ResultsReturnsDeepCopy(t *testing.T) {
	rep := New(testMeta())
	rep.AddFinding("process", NewFinding("a", "t", SeverityLow, "").WithMetadata("uid", "0"))

	results := rep.Results()
	results[0].Findings[0].Metadata["uid"] = "mutated"
	results[0].Findings[0].ID = "mutated"

	fresh := rep.Results()
	assert.Equal(t, "a", fresh[0].Findings[0].ID)
	assert.Equal(t, "0", fresh[0].Findings[0].Metadata["uid"])
}

func TestSanitizeMetadata_StripsConfiguredKeys(t *testing.T) {
	meta := map[string]string{
		"uid":     "1000",
		"gid":     "1000",
		"user":    "alice",
		"cmdline": "/usr/bin/evil --flag",
		"pid":     "4242",
	}

	t.Run("user keys", func(t *testing.T) {
		out := SanitizeMetadata(meta, SanitizeOptions{NoUserMeta: true})
		assert.NotContains(t, out, "uid")
		assert.NotContains(t, out, "gid")
		assert.NotContains(t, out, "user")
		assert.Equal(t, "4242", out["pid"], "unknown keys are left untouched")
		assert.Equal(t, meta["cmdline"], out["cmdline"])
	})

	t.Run("cmdline", func(t *testing.T) {
		out := SanitizeMetadata(meta, SanitizeOptions{NoCmdlineMeta: true})
		assert.NotContains(t, out, "cmdline")
		assert.Equal(t, "alice", out["user"])
	})

	t.Run("no options is a copy", func(t *testing.T) {
		out := SanitizeMetadata(meta, SanitizeOptions{})
		assert.Equal(t, meta, out)
		out["pid"] = "mutated"
		assert.Equal(t, "4242", meta["pid"])
	})

	t.Run("nil input", func(t *testing.T) {
		assert.Nil(t, SanitizeMetadata(nil, SanitizeOptions{NoUserMeta: true}))
	})
}

func TestSanitizeMeta_Hostname(t *testing.T) {
	meta := SanitizeMeta(testMeta(), SanitizeOptions{NoHostnameMeta: true})
	assert.Empty(t, meta.Hostname)
	assert.Equal(t, "scan-1", meta.ScanID)

	kept := SanitizeMeta(testMeta(), SanitizeOptions{})
	assert.Equal(t, "host-a", kept.Hostname)
}
