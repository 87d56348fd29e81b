package report

import "fmt"

// Finding is a single reported observation from a scanner.
//
// Invariant: when OperationalError is true, Score is zero and the finding is
// excluded from severity histograms and the aggregate risk score, but it is
// still emitted in output so operators can see that a scanner failed.
type Finding struct {
	// ID is a stable identifier, unique within the owning scanner's result.
	ID string `json:"id"`

	// Title is a short human-readable summary.
	Title string `json:"title"`

	// Severity classifies the observation.
	Severity Severity `json:"severity"`

	// Description is free text with detail about the observation.
	Description string `json:"description,omitempty"`

	// Metadata holds order-irrelevant key/value context (pid, uid, cmdline...).
	// Subject to PII suppression before serialization.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Score is the numeric base severity score derived from Severity.
	Score int `json:"base_severity_score"`

	// OperationalError marks a scanner's own failure to complete,
	// not a security observation.
	OperationalError bool `json:"operational_error,omitempty"`
}

// NewFinding constructs a Finding with its score derived from the severity.
func NewFinding(id, title string, severity Severity, description string) Finding {
	return Finding{
		ID:          id,
		Title:       title,
		Severity:    severity,
		Description: description,
		Score:       severity.Weight(),
	}
}

// WithMetadata returns a copy of the finding with the given key set.
func (f Finding) WithMetadata(key, value string) Finding {
	meta := make(map[string]string, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		meta[k] = v
	}
	meta[key] = value
	f.Metadata = meta
	return f
}

// OperationalFailure converts a scanner's internal error into the single
// Finding that represents it in the report. The finding carries severity
// Error, a zero score, and the operational-error flag.
func OperationalFailure(scanner string, err error) Finding {
	return Finding{
		ID:               fmt.Sprintf("%s/operational-error", scanner),
		Title:            fmt.Sprintf("scanner %s failed", scanner),
		Severity:         SeverityError,
		Description:      err.Error(),
		Score:            0,
		OperationalError: true,
	}
}

// normalize enforces the operational-error invariant on a finding before it
// enters a report.
func (f Finding) normalize() Finding {
	if f.OperationalError || f.Severity == SeverityError {
		f.Severity = SeverityError
		f.OperationalError = true
		f.Score = 0
	}
	return f
}
