package output

import "time"

// DefaultOutput is the standard Output implementation: it converts method
// calls into events on a stream.
type DefaultOutput struct {
	stream *EventStream
}

// NewDefaultOutput creates an Output emitting to the given stream.
func NewDefaultOutput(stream *EventStream) *DefaultOutput {
	return &DefaultOutput{stream: stream}
}

func (o *DefaultOutput) Info(message string) {
	o.stream.Emit(Event{
		Type:      EventInfo,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (o *DefaultOutput) Warning(message string) {
	o.stream.Emit(Event{
		Type:      EventWarning,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (o *DefaultOutput) Error(err error) {
	o.stream.Emit(Event{
		Type:      EventError,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

func (o *DefaultOutput) Table(headers []string, rows [][]string) {
	o.stream.Emit(Event{
		Type: EventTable,
		Data: map[string]any{
			"headers": headers,
			"rows":    rows,
		},
		Timestamp: time.Now(),
	})
}

func (o *DefaultOutput) Progress(current, total int, message string) {
	o.stream.Emit(Event{
		Type:    EventProgress,
		Message: message,
		Data: map[string]any{
			"current": current,
			"total":   total,
		},
		Timestamp: time.Now(),
	})
}

func (o *DefaultOutput) Diag(level Level, message string, metadata map[string]any) {
	o.stream.Emit(Event{
		Type:      EventDiag,
		Level:     level,
		Message:   message,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
}
