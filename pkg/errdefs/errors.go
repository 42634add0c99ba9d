// Package errdefs defines the classified error type shared by the condition
// subsystem, the transform engine, the stores and the protocol loader.
//
// Every failure surfaced to a caller carries one of five classes. The class
// decides where the failure may originate and whether anything could have been
// committed: configuration and type-mismatch errors are raised before any
// worker starts, computation and cancellation errors abort a running batch,
// consistency errors signal a broken internal invariant.
package errdefs

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates a missing or invalid parameter, an unknown
	// collection or object, or a mismatched operand count.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassTypeMismatch indicates a dataset or condition of the wrong kind.
	ErrorClassTypeMismatch ErrorClass = "type_mismatch"

	// ErrorClassComputation indicates a failure while computing values inside a worker,
	// such as division by zero or malformed numeric input.
	ErrorClassComputation ErrorClass = "computation"

	// ErrorClassCancellation indicates the cooperative cancellation signal was observed.
	ErrorClassCancellation ErrorClass = "cancellation"

	// ErrorClassConsistency indicates an internal invariant violation. Always fatal.
	ErrorClassConsistency ErrorClass = "consistency"
)

// Error represents a classified error with context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Sequence is the sequence being processed when the error occurred, if any.
	Sequence string `json:"sequence,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Line is the protocol source line of the failing step, 0 when unknown.
	Line int `json:"line,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Operation != "" && e.Sequence != "" {
		msg = fmt.Sprintf("%s (operation=%s, sequence=%s)", msg, e.Operation, e.Sequence)
	} else if e.Operation != "" {
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	} else if e.Sequence != "" {
		msg = fmt.Sprintf("%s (sequence=%s)", msg, e.Sequence)
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("%s at line %d", msg, e.Line)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// Two errors match when their class matches and, if the target carries a code, the codes match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Class != t.Class {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// ErrorClass returns the class as a plain string, for instrumentation labels.
func (e *Error) ErrorClass() string { return string(e.Class) }

// ErrorCode returns the code, possibly empty.
func (e *Error) ErrorCode() string { return e.Code }

func newError(class ErrorClass, message string, err error) *Error {
	return &Error{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *Error {
	return newError(ErrorClassConfiguration, message, err)
}

// NewTypeMismatchError creates a new type mismatch error.
func NewTypeMismatchError(message string, err error) *Error {
	return newError(ErrorClassTypeMismatch, message, err).WithCode(CodeWrongKind)
}

// NewComputationError creates a new computation error.
func NewComputationError(message string, err error) *Error {
	return newError(ErrorClassComputation, message, err)
}

// NewCancellationError creates a new cancellation error.
func NewCancellationError(message string, err error) *Error {
	return newError(ErrorClassCancellation, message, err).WithCode(CodeCancelled)
}

// NewConsistencyError creates a new consistency error.
func NewConsistencyError(message string, err error) *Error {
	return newError(ErrorClassConsistency, message, err)
}

// WithSequence adds sequence context to an error.
func (e *Error) WithSequence(sequence string) *Error {
	e.Sequence = sequence
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithLine adds the protocol source line to an error.
func (e *Error) WithLine(line int) *Error {
	e.Line = line
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// As returns the first classified error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ClassOf returns the class of the first classified error in the chain, or "" if none.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// CodeOf returns the code of the first classified error in the chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool {
	return ClassOf(err) == ErrorClassConfiguration
}

// IsTypeMismatch returns true if the error is classified as a type mismatch.
func IsTypeMismatch(err error) bool {
	return ClassOf(err) == ErrorClassTypeMismatch
}

// IsComputation returns true if the error is classified as a computation error.
func IsComputation(err error) bool {
	return ClassOf(err) == ErrorClassComputation
}

// IsCancellation returns true if the error is classified as a cancellation.
func IsCancellation(err error) bool {
	return ClassOf(err) == ErrorClassCancellation
}

// IsConsistency returns true if the error is classified as a consistency violation.
func IsConsistency(err error) bool {
	return ClassOf(err) == ErrorClassConsistency
}

// IsPreDispatch returns true for the classes that can only be raised before any worker starts.
func IsPreDispatch(err error) bool {
	return IsConfiguration(err) || IsTypeMismatch(err)
}

// Common error codes.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeWrongKind         = "WRONG_KIND"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeOperandCount      = "OPERAND_COUNT"
	CodeDivisionByZero    = "DIVISION_BY_ZERO"
	CodeMalformedNumber   = "MALFORMED_NUMBER"
	CodeCancelled         = "CANCELLED"
	CodeMissingSequence   = "MISSING_SEQUENCE"
	CodePartialCompletion = "PARTIAL_COMPLETION"
	CodeUnknownOperator   = "UNKNOWN_OPERATOR"
	CodeUnresolved        = "UNRESOLVED"
	CodeEvaluationFailed  = "EVALUATION_FAILED"
	CodePersistFailed     = "PERSIST_FAILED"
)
