package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown job id.
var ErrNotFound = errors.New("job not found")

// ValidationError rejects a request before any job or file is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// StateError reports a lifecycle operation applied against the wrong status.
type StateError struct {
	ID     string
	Status Status
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("job %s: cannot %s while %s", e.ID, e.Op, e.Status)
}

// IngestionError covers download, transcode, and temp-file save failures.
type IngestionError struct {
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingestion failed during %s", e.Stage)
	}
	return fmt.Sprintf("ingestion failed during %s: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// ModelError covers model load and inference failures.
type ModelError struct {
	Stage string
	Err   error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %s failed", e.Stage)
	}
	return fmt.Sprintf("model %s failed: %v", e.Stage, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a durable write that could not complete.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
