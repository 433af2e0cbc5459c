package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeSession    ErrorType = "session"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeFileNotFound    = "ERR_FILE_NOT_FOUND"
	ErrCodeStagingPrepare  = "ERR_STAGING_PREPARE"
	ErrCodeStagingWrite    = "ERR_STAGING_WRITE"
	ErrCodeStagingRead     = "ERR_STAGING_READ"
	ErrCodeCompileFailed   = "ERR_COMPILE_FAILED"
	ErrCodeBrowserNotFound = "ERR_BROWSER_NOT_FOUND"
	ErrCodeBrowserLaunch   = "ERR_BROWSER_LAUNCH"
	ErrCodeBrowserProtocol = "ERR_BROWSER_PROTOCOL"
	ErrCodeWatcherFailed   = "ERR_WATCHER"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeInternalError   = "ERR_INTERNAL"
)

// LavenderError is a structured error type with context.
type LavenderError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Line        int
	Column      int
	Diagnostics []BuildError
	Recoverable bool
}

// Error implements the error interface.
func (e *LavenderError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *LavenderError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *LavenderError) Is(target error) bool {
	var t *LavenderError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *LavenderError) WithContext(key string, value interface{}) *LavenderError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *LavenderError) WithLocation(filePath string, line, column int) *LavenderError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// Error creation functions

// NewValidationError creates an input validation error. The process aborts on
// these before touching the staging directory or the browser.
func NewValidationError(code, message string) *LavenderError {
	return &LavenderError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *LavenderError {
	return &LavenderError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewCompileError creates a recoverable build error carrying the bundler
// diagnostics.
func NewCompileError(message string, diagnostics []BuildError) *LavenderError {
	e := &LavenderError{
		Type:        ErrorTypeBuild,
		Code:        ErrCodeCompileFailed,
		Message:     message,
		Diagnostics: diagnostics,
		Recoverable: true,
	}
	if len(diagnostics) > 0 {
		first := diagnostics[0]
		e.WithLocation(first.File, first.Line, first.Column)
	}

	return e
}

// NewSessionError creates a browser session error.
func NewSessionError(code, message string, cause error) *LavenderError {
	return &LavenderError{
		Type:        ErrorTypeSession,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *LavenderError {
	return &LavenderError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *LavenderError {
	return &LavenderError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var le *LavenderError
	if errors.As(err, &le) {
		return le.Recoverable
	}

	return false
}

// IsCompileError checks if an error came out of the bundler.
func IsCompileError(err error) bool {
	return GetErrorType(err) == ErrorTypeBuild
}

// IsValidationError checks if an error is an input validation error.
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsSessionError checks if an error is a browser session error.
func IsSessionError(err error) bool {
	return GetErrorType(err) == ErrorTypeSession
}

// GetErrorType returns the type of the outermost LavenderError in the chain,
// or the empty string.
func GetErrorType(err error) ErrorType {
	var le *LavenderError
	if errors.As(err, &le) {
		return le.Type
	}

	return ""
}

// ErrFileNotFound reports a missing entry component.
func ErrFileNotFound(path string) *LavenderError {
	return NewValidationError(ErrCodeFileNotFound, "no such file: "+path).
		WithContext("path", path)
}

// ErrNotAFile reports an entry path that exists but is not a regular file.
func ErrNotAFile(path string) *LavenderError {
	return NewValidationError(ErrCodeInvalidInput, "given path is either invalid, or it does not point to a file: "+path).
		WithContext("path", path)
}
