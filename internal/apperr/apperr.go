// Package apperr defines the error codes used across the ingest pipeline.
//
// Only a handful of codes halt an operation (see Fatal). The rest describe a
// failure isolated to one field, row, table or undo step; callers log them
// and keep going.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies an error class.
type Code string

const (
	// Halting.
	ErrFormat            Code = "FORMAT_ERROR"
	ErrUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	ErrNamingExhausted   Code = "NAMING_EXHAUSTED"
	ErrBusy              Code = "BUSY"
	ErrNothingToUndo     Code = "NOTHING_TO_UNDO"

	// Isolated.
	ErrInferenceWarning Code = "INFERENCE_WARNING"
	ErrFieldResolution  Code = "FIELD_RESOLUTION_FAILED"
	ErrRowWrite         Code = "ROW_WRITE_FAILED"
	ErrTableOperation   Code = "TABLE_OPERATION_FAILED"
	ErrUndoStep         Code = "UNDO_STEP_FAILED"
)

// AppError carries a code, a user-facing message and an optional cause.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether any error in err's chain is an AppError with code.
func Is(err error, code Code) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			if ae.Code == code {
				return true
			}
			err = ae.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Fatal reports whether err must halt the whole operation.
func Fatal(err error) bool {
	switch CodeOf(err) {
	case ErrFormat, ErrUnsupportedFormat, ErrNamingExhausted, ErrBusy, ErrNothingToUndo:
		return true
	}
	return false
}
