package report

import (
	"sync"
	"time"
)

// Meta is the report-level metadata block. Hostname is subject to PII
// suppression (no_hostname_meta) before serialization.
type Meta struct {
	ScanID    string    `json:"scan_id"`
	Hostname  string    `json:"hostname,omitempty"`
	Tool      string    `json:"tool"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// ScanResult is one scanner's execution record. Findings keep insertion
// order; canonical ordering, when requested, is applied by the writer at
// serialization time, never during collection.
type ScanResult struct {
	Scanner   string    `json:"scanner"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Findings  []Finding `json:"findings"`
}

// Summary holds the derived statistics for a report: a severity histogram
// and the total risk score. Operational-error findings are excluded from
// both.
type Summary struct {
	Counts         map[string]int `json:"counts"`
	TotalFindings  int            `json:"total_findings"`
	TotalRiskScore int            `json:"total_risk_score"`
}

// Report accumulates per-scanner results during a scan.
//
// StartScanner, AddFinding and EndScanner are safe for concurrent use by
// independent scanners, each identified by its own scanner name. Once handed
// to the output writer the report is treated as read-only.
type Report struct {
	mu      sync.Mutex
	meta    Meta
	minSev  Severity
	results []ScanResult
	index   map[string]int // scanner name -> position in results
}

// New creates an empty report carrying the given metadata.
func New(meta Meta) *Report {
	return &Report{
		meta:  meta,
		index: make(map[string]int),
	}
}

// Meta returns the report metadata block.
func (r *Report) Meta() Meta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

// StartScanner records the beginning of a scanner's execution. Calling it
// twice for the same name resets the start time but keeps findings already
// collected.
func (r *Report) StartScanner(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.resultFor(name)
	r.results[i].StartTime = time.Now().UTC()
}

// SetMinSeverity discards findings below the given severity at collection
// time. Operational-error findings are always kept.
func (r *Report) SetMinSeverity(s Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minSev = s
}

// AddFinding appends a finding to the named scanner's result, enforcing the
// operational-error invariant (zero score, severity Error). Findings below
// the minimum severity are dropped.
func (r *Report) AddFinding(name string, f Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f = f.normalize()
	if !f.OperationalError && f.Severity < r.minSev {
		return
	}
	i := r.resultFor(name)
	r.results[i].Findings = append(r.results[i].Findings, f)
}

// EndScanner records the completion of a scanner's execution.
func (r *Report) EndScanner(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.resultFor(name)
	r.results[i].EndTime = time.Now().UTC()
}

// resultFor returns the index of the named scanner's result, creating the
// entry on first use. Caller must hold r.mu.
func (r *Report) resultFor(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	r.results = append(r.results, ScanResult{Scanner: name})
	r.index[name] = len(r.results) - 1
	return len(r.results) - 1
}

// Results returns a deep copy of the collected scan results in insertion
// order. The copy lets the writer sort for canonical output without
// mutating the report.
func (r *Report) Results() []ScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ScanResult, len(r.results))
	for i, res := range r.results {
		cp := res
		cp.Findings = make([]Finding, len(res.Findings))
		for j, f := range res.Findings {
			fc := f
			if len(f.Metadata) > 0 {
				fc.Metadata = make(map[string]string, len(f.Metadata))
				for k, v := range f.Metadata {
					fc.Metadata[k] = v
				}
			}
			cp.Findings[j] = fc
		}
		out[i] = cp
	}
	return out
}

// FindingCount returns the total number of findings across all results,
// operational errors included.
func (r *Report) FindingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, res := range r.results {
		n += len(res.Findings)
	}
	return n
}

// Summary computes the severity histogram and total risk score across all
// results. Findings flagged as operational errors are excluded from both.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := Summary{Counts: make(map[string]int)}
	for _, res := range r.results {
		for _, f := range res.Findings {
			sum.TotalFindings++
			if f.OperationalError {
				continue
			}
			sum.Counts[f.Severity.String()]++
			sum.TotalRiskScore += f.Score
		}
	}
	return sum
}

// MaxSeverity returns the highest severity among non-operational-error
// findings, and false when there are none.
func (r *Report) MaxSeverity() (Severity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	max, found := SeverityInfo, false
	for _, res := range r.results {
		for _, f := range res.Findings {
			if f.OperationalError {
				continue
			}
			if !found || f.Severity > max {
				max, found = f.Severity, true
			}
		}
	}
	return max, found
}
