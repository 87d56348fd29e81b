package config

import "fmt"

// ValidationError reports an internally inconsistent configuration. It is
// always fatal to startup and surfaces before any scanning occurs.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ExternalFileError reports a failure to load an externally referenced file
// (list file, rules directory). It is fatal for the loading step that
// triggered it.
type ExternalFileError struct {
	Path string
	Err  error
}

// NewExternalFileError wraps err with the path that failed to load.
func NewExternalFileError(path string, err error) *ExternalFileError {
	return &ExternalFileError{Path: path, Err: err}
}

func (e *ExternalFileError) Error() string {
	return fmt.Sprintf("external file %s: %v", e.Path, e.Err)
}

func (e *ExternalFileError) Unwrap() error { return e.Err }
