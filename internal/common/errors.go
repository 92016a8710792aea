package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrValidation is wrapped by every Validator failure.
var ErrValidation = errors.New("validation failed")

// Workflow error taxonomy. Each typed error below unwraps to one of these.
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrCredential      = errors.New("credential acquisition failed")
	ErrSubmission      = errors.New("shipment submission failed")
	ErrResolution      = errors.New("shipment resolution failed")
	ErrPersistence     = errors.New("persistence failed")
)

// Error codes carried by AppError.
const (
	CodeConfig      = "CONFIG_ERROR"
	CodeCredential  = "CREDENTIAL_ERROR"
	CodePersistence = "PERSISTENCE_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewCredentialError wraps a failure of the credential supplier.
func NewCredentialError(cause error) *AppError {
	return NewAppError(CodeCredential, "acquire bearer token", fmt.Errorf("%w: %w", ErrCredential, cause))
}

// NewPersistenceError wraps a failure to read or write the backing workbook.
func NewPersistenceError(message string, cause error) *AppError {
	if cause == nil {
		return NewAppError(CodePersistence, message, ErrPersistence)
	}
	return NewAppError(CodePersistence, message, fmt.Errorf("%w: %w", ErrPersistence, cause))
}

// MalformedRecordError is returned when a row cannot be turned into a payload.
type MalformedRecordError struct {
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("row %d: column %q value %q: %s", e.Row, e.Column, e.Value, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

// SubmissionError is fatal to a run; no protocol has been assigned when it is returned.
type SubmissionError struct {
	StatusCode int    // 0 when the request never got a response
	Body       string // remote body, verbatim
	Expected   int
	Got        int
	Cause      error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Cause != nil:
		return fmt.Sprintf("submit %d shipments: status %d: %s", e.Expected, e.StatusCode, e.Body)
	case e.Cause != nil:
		return fmt.Sprintf("submit %d shipments: %v", e.Expected, e.Cause)
	default:
		return fmt.Sprintf("submit %d shipments: got %d protocols", e.Expected, e.Got)
	}
}

func (e *SubmissionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSubmission}
	}
	return []error{ErrSubmission, e.Cause}
}

// ResolutionError describes one row whose shipment id could not be resolved.
type ResolutionError struct {
	Row      int
	Protocol int64
	Cause    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("row %d: resolve protocol %d: %v", e.Row, e.Protocol, e.Cause)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Cause}
}
