package subscribers

import (
	"encoding/json"
	"io"
	"time"

	"github.com/hostguard/hostguard/pkg/output"
)

// JSONFormatter renders events as one JSON object per line for pipelines
// that consume CLI progress programmatically.
type JSONFormatter struct {
	encoder *json.Encoder
}

// NewJSONFormatter creates a JSON-lines formatter writing to the given
// stream.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{encoder: json.NewEncoder(w)}
}

func (s *JSONFormatter) Name() string { return "json-formatter" }

// ShouldHandle accepts everything except diagnostics.
func (s *JSONFormatter) ShouldHandle(event output.Event) bool {
	return event.Type != output.EventDiag
}

func (s *JSONFormatter) Handle(event output.Event) {
	record := map[string]any{
		"type":      event.Type,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}
	if event.Message != "" {
		record["message"] = event.Message
	}
	if event.Data != nil {
		record["data"] = event.Data
	}
	if len(event.Metadata) > 0 {
		record["metadata"] = event.Metadata
	}
	// A broken pipe cannot be propagated; the event is dropped.
	_ = s.encoder.Encode(record)
}
