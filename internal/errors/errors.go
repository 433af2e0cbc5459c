// Package errors defines the error taxonomy used across lavender: structured
// LavenderError values with a type and code, plus BuildError diagnostics
// produced by the bundler.
package errors

import (
	"fmt"
	"strings"
)

// BuildError is a single compiler diagnostic.
type BuildError struct {
	File     string
	Line     int
	Column   int
	Message  string
	LineText string
	Severity ErrorSeverity
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (be BuildError) Error() string {
	if be.File == "" {
		return fmt.Sprintf("%s: %s", be.Severity, be.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", be.File, be.Line, be.Column, be.Severity, be.Message)
}

// FormatDiagnostics renders diagnostics one per line, with the offending source
// line indented underneath when known.
func FormatDiagnostics(diagnostics []BuildError) string {
	var b strings.Builder
	for i, d := range diagnostics {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.Error())
		if d.LineText != "" {
			b.WriteString("\n    ")
			b.WriteString(strings.TrimRight(d.LineText, "\r\n"))
		}
	}
	return b.String()
}
