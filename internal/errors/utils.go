package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a LavenderError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *LavenderError {
	if err == nil {
		return nil
	}

	// Keep location and diagnostics of an inner LavenderError
	var le *LavenderError
	if errors.As(err, &le) {
		return &LavenderError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       le,
			Context:     le.Context,
			FilePath:    le.FilePath,
			Line:        le.Line,
			Column:      le.Column,
			Diagnostics: le.Diagnostics,
			Recoverable: le.Recoverable,
		}
	}

	return &LavenderError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeBuild,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *LavenderError {
	le := Wrap(err, ErrorTypeIO, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// WrapSession wraps an error as a browser session error
func WrapSession(err error, code, message string) *LavenderError {
	le := Wrap(err, ErrorTypeSession, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// Diagnostics returns the compiler diagnostics attached anywhere in the chain.
func Diagnostics(err error) []BuildError {
	for err != nil {
		var le *LavenderError
		if !errors.As(err, &le) {
			return nil
		}
		if len(le.Diagnostics) > 0 {
			return le.Diagnostics
		}
		err = le.Cause
	}
	return nil
}
