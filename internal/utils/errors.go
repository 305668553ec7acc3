package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrForbidden is returned when the caller does not own the resource.
var ErrForbidden = errors.New("forbidden")

// ValidationError is a user-correctable input problem, keyed by field name
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StorageError wraps a blob store failure
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ProbeError means the media probe could not read the source
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe: %v", e.Err) }

func (e *ProbeError) Unwrap() error { return e.Err }

// TranscodeError means the export failed. Output holds the tail of the
// encoder's diagnostics.
type TranscodeError struct {
	Err    error
	Output string
}

func (e *TranscodeError) Error() string { return fmt.Sprintf("transcode: %v", e.Err) }

func (e *TranscodeError) Unwrap() error { return e.Err }

// NotFoundError is a lookup miss by code or id
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}
