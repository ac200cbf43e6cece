// Package apperrors classifies pipeline failures so callers can tell a bad
// state descriptor from a failed download or a failed subprocess without
// string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is a failure classification.
type Code string

const (
	CodeConfiguration Code = "CONFIGURATION"
	CodeStateFormat   Code = "STATE_FORMAT"
	CodeDownload      Code = "DOWNLOAD"
	CodeExtraction    Code = "EXTRACTION"
	CodeArchiveLayout Code = "ARCHIVE_LAYOUT"
	CodeAPI           Code = "API"
	CodeExecution     Code = "EXECUTION"
	// CodeSpawn is an execution failure where the process never started.
	CodeSpawn Code = "SPAWN"
	CodeSink  Code = "SINK"
)

// Error carries a Code, a message, the underlying cause and optional context
// for logging.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause with a classification.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext attaches a key/value pair and returns the same error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the outermost classification found in err's chain.
func CodeOf(err error) (Code, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

// Is reports whether any Error in err's chain carries code. CodeSpawn also
// satisfies CodeExecution.
func Is(err error, code Code) bool {
	for err != nil {
		var ae *Error
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Code == code || (code == CodeExecution && ae.Code == CodeSpawn) {
			return true
		}
		err = ae.Cause
	}
	return false
}
