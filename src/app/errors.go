package app

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a key is absent after a direct lookup and
	// any scan fallback.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic update lost the race.
	ErrConflict = errors.New("version conflict")
	// ErrNoMatchFound is returned when a face search produced no candidate
	// above the threshold.
	ErrNoMatchFound = errors.New("no match found")
	// ErrForbidden is returned when a user may not mutate an event.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports a required field missing before a write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("validation: %s is required", e.Field)
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// Required builds a ValidationError for each empty field, returning the first.
func Required(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return &ValidationError{Field: fields[i]}
		}
	}
	return nil
}

// PartialFailure reports a multi-step operation where Committed succeeded and
// Failed did not. Nothing is rolled back.
type PartialFailure struct {
	Committed string
	Failed    string
	Err       error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("partial failure: %s committed, %s failed: %v", e.Committed, e.Failed, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// ExternalServiceError wraps a transport failure of a remote collaborator.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// External wraps err as an ExternalServiceError unless it is nil or already
// a domain sentinel.
func External(service string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalServiceError{Service: service, Err: err}
}
