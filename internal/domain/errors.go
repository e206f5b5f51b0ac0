package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when neither email nor transaction id is supplied
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when no survey response matches the request
	ErrNotFound = errors.New("survey response not found")

	// ErrJobNotFound is returned when no audio job exists for a survey response
	ErrJobNotFound = errors.New("audio job not found")

	// ErrJobInProgress is returned when another invocation holds the job record
	ErrJobInProgress = errors.New("audio job already in progress")

	// ErrInvalidScriptLength is returned when the sanitized script is outside the synthesis window
	ErrInvalidScriptLength = errors.New("invalid script length")

	// ErrCompletionProvider is returned by completion backends; the pipeline recovers from it
	ErrCompletionProvider = errors.New("completion provider error")

	// ErrSynthesis is returned when text-to-speech fails
	ErrSynthesis = errors.New("synthesis error")

	// ErrStorage is returned when the audio artifact cannot be stored
	ErrStorage = errors.New("storage error")

	// ErrCrmPropagation is returned when the CRM could not be updated; never fatal to a job
	ErrCrmPropagation = errors.New("crm propagation error")

	// ErrSchemaMismatch is returned when a provider response does not match its schema
	ErrSchemaMismatch = errors.New("provider response schema mismatch")
)

// StageError ties a failure to the pipeline stage it happened in.
// errors.Is matches both Kind and anything Err wraps.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Is(target error) bool {
	return target == e.Kind
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new stage error
func NewStageError(stage string, kind, err error) error {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// ProviderError describes a non-success response from an external provider
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
}

// StageOf returns the stage name carried by err, or "" when there is none.
func StageOf(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
