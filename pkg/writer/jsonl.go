package writer

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/hostguard/hostguard/pkg/report"
)

// Line-delimited record discriminators.
const (
	recordMeta    = "meta"
	recordFinding = "finding"
	recordSummary = "summary"
)

// metaRecord is the first line of the stream.
type metaRecord struct {
	Type      string    `json:"type"`
	ScanID    string    `json:"scan_id"`
	Hostname  string    `json:"hostname,omitempty"`
	Tool      string    `json:"tool"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// findingRecord is one finding as an independent object. It carries its own
// scanner-name field since it is no longer nested under a result.
type findingRecord struct {
	Type    string `json:"type"`
	Scanner string `json:"scanner"`
	report.Finding
}

// summaryRecord is the last line of the stream.
type summaryRecord struct {
	Type string `json:"type"`
	report.Summary
}

// renderJSONL serializes the snapshot as newline-separated JSON objects:
// one meta record, one record per finding, one summary record. Every line
// independently parses as a valid object so consumers can process the
// stream incrementally.
func renderJSONL(snap reportSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	meta := metaRecord{
		Type:      recordMeta,
		ScanID:    snap.Meta.ScanID,
		Hostname:  snap.Meta.Hostname,
		Tool:      snap.Meta.Tool,
		Version:   snap.Meta.Version,
		StartedAt: snap.Meta.StartedAt,
	}
	if err := enc.Encode(meta); err != nil {
		return nil, err
	}

	for _, res := range snap.Results {
		for _, f := range res.Findings {
			rec := findingRecord{
				Type:    recordFinding,
				Scanner: res.Scanner,
				Finding: f,
			}
			if err := enc.Encode(rec); err != nil {
				return nil, err
			}
		}
	}

	if err := enc.Encode(summaryRecord{Type: recordSummary, Summary: snap.Summary}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
