package writer

import (
	"encoding/json"

	"github.com/hostguard/hostguard/pkg/report"
)

// document is the single-document wire form: one object with a meta block,
// a results array and a summary block.
type document struct {
	Meta    report.Meta         `json:"meta"`
	Results []report.ScanResult `json:"results"`
	Summary report.Summary      `json:"summary"`
}

// renderDocument serializes the snapshot as a single JSON document,
// indented when pretty is set, minimal otherwise. Output always ends with a
// newline so the artifact is line-tool friendly.
func renderDocument(snap reportSnapshot, pretty bool) ([]byte, error) {
	doc := document{
		Meta:    snap.Meta,
		Results: snap.Results,
		Summary: snap.Summary,
	}
	if doc.Results == nil {
		doc.Results = []report.ScanResult{}
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
