package writer

import (
	"encoding/json"

	"github.com/hostguard/hostguard/pkg/report"
)

// Fixed identifiers of the static-analysis interchange form. These must not
// vary between runs; downstream CI consumers match on them.
const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type sarifResult struct {
	RuleID     string            `json:"ruleId"`
	Level      string            `json:"level"`
	Message    sarifMessage      `json:"message"`
	Properties map[string]string `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

// sarifLevel maps the severity scale onto the interchange format's leveling
// scheme. Operational errors map to "none": they are execution notes, not
// analysis results.
func sarifLevel(f report.Finding) string {
	if f.OperationalError {
		return "none"
	}
	switch f.Severity {
	case report.SeverityHigh:
		return "error"
	case report.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// renderSARIF serializes the snapshot in the static-analysis interchange
// form: each finding becomes a result entry with its id as the rule
// identifier, its description as the message, and its severity mapped to
// the format's levels. Scanner name and finding metadata travel in the
// result's properties bag.
func renderSARIF(snap reportSnapshot) ([]byte, error) {
	results := make([]sarifResult, 0, len(snap.Results))
	for _, res := range snap.Results {
		for _, f := range res.Findings {
			text := f.Description
			if text == "" {
				text = f.Title
			}
			props := map[string]string{"scanner": res.Scanner}
			for k, v := range f.Metadata {
				props[k] = v
			}
			results = append(results, sarifResult{
				RuleID:     f.ID,
				Level:      sarifLevel(f),
				Message:    sarifMessage{Text: text},
				Properties: props,
			})
		}
	}

	doc := sarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    snap.Meta.Tool,
						Version: snap.Meta.Version,
					},
				},
				Results: results,
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
