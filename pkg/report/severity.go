// Package report defines the finding vocabulary shared by every scanner:
// the ordered severity scale, the Finding record, the concurrency-safe
// Report aggregate, and the metadata sanitizer applied before serialization.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is a totally ordered scale of finding importance.
//
// SeverityError is distinguished: it marks a scanner's own internal failure
// (an operational error), never a genuine security observation. It sorts
// above High for filtering purposes but its weight is always discarded at
// aggregation time.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityError
)

// severityTokens maps configuration tokens to severities. SeverityError is
// deliberately absent: it is not a valid threshold token.
var severityTokens = map[string]Severity{
	"info":   SeverityInfo,
	"low":    SeverityLow,
	"medium": SeverityMedium,
	"high":   SeverityHigh,
}

// ParseSeverity parses a configuration token ("info", "low", "medium",
// "high") into a Severity. Matching is case-insensitive.
func ParseSeverity(token string) (Severity, error) {
	sev, ok := severityTokens[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return SeverityInfo, fmt.Errorf("unrecognized severity %q (valid: info, low, medium, high)", token)
	}
	return sev, nil
}

// String returns the lowercase token for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Weight returns the fixed risk-score contribution of a finding at this
// severity. Weights are monotonically increasing with rank. SeverityError
// weighs zero: operational failures never contribute to the risk score.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 10
	case SeverityMedium:
		return 40
	case SeverityHigh:
		return 70
	default:
		return 0
	}
}

// MarshalJSON encodes the severity as its lowercase token.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a lowercase severity token, accepting "error" in
// addition to the four threshold tokens so that serialized reports round-trip.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	if strings.EqualFold(token, "error") {
		*s = SeverityError
		return nil
	}
	sev, err := ParseSeverity(token)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}
