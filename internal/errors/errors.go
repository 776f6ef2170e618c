// Package errors provides structured load-time errors for weft. Every
// failure found while reading, validating or generating handlers is a
// LoadError carrying a stable code, the handler identity and the member at
// fault. LoadErrors format for the terminal and serialize to JSON for
// tooling.
package errors

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// ErrorCode is a unique, stable error code such as "EXT110"
type ErrorCode string

// ErrorCategory groups error codes
type ErrorCategory string

const (
	// CategoryExtraction covers handler declaration errors (EXT100-199)
	CategoryExtraction ErrorCategory = "extraction"
	// CategoryLoad covers source tree and parse errors (LOD200-299)
	CategoryLoad ErrorCategory = "load"
	// CategoryCodeGen covers specialization errors (GEN600-699)
	CategoryCodeGen ErrorCategory = "codegen"
)

// ErrorSeverity indicates how an error affects a deployment
type ErrorSeverity string

const (
	// SeverityError skips the handler
	SeverityError ErrorSeverity = "error"
	// SeverityWarning is reported but does not skip anything
	SeverityWarning ErrorSeverity = "warning"
)

// Location is a position in a handler source file
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// String returns file:line:column, or "<source>" when unknown
func (l Location) String() string {
	if l.File == "" {
		return "<source>"
	}
	if l.Line == 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// LoadError is a structured load-time error
type LoadError struct {
	Code     ErrorCode     `json:"code"`
	Type     string        `json:"type"`
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	// Handler is the identity of the handler at fault
	Handler string `json:"handler,omitempty"`
	// Member is the field, method or marker at fault
	Member     string   `json:"member,omitempty"`
	Location   Location `json:"location"`
	Suggestion string   `json:"suggestion,omitempty"`
	Cause      error    `json:"-"`
}

// Error implements the error interface
func (e *LoadError) Error() string {
	return FormatCompact(e)
}

// Unwrap returns the underlying cause, if any
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is matches another LoadError by code, so sentinels like
// ErrAccessorMissing work with errors.Is
func (e *LoadError) Is(target error) bool {
	var t *LoadError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Format returns the multi-line terminal form
func (e *LoadError) Format() string {
	return FormatError(e)
}

// ToJSON returns the error as indented JSON
func (e *LoadError) ToJSON() (string, error) {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WithHandler sets the handler identity
func (e *LoadError) WithHandler(identity string) *LoadError {
	e.Handler = identity
	return e
}

// WithMember sets the member at fault
func (e *LoadError) WithMember(member string) *LoadError {
	e.Member = member
	return e
}

// WithLocation sets the source location
func (e *LoadError) WithLocation(loc Location) *LoadError {
	e.Location = loc
	return e
}

// WithSuggestion sets a fix hint
func (e *LoadError) WithSuggestion(suggestion string) *LoadError {
	e.Suggestion = suggestion
	return e
}

// WithCause records the underlying error
func (e *LoadError) WithCause(err error) *LoadError {
	e.Cause = err
	return e
}

// ErrorList collects load errors across handlers
type ErrorList []*LoadError

// Error implements the error interface
func (el ErrorList) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	return FormatErrorList(el)
}

// HasErrors reports whether any entry has error severity
func (el ErrorList) HasErrors() bool {
	for _, e := range el {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ToJSON returns all errors as a JSON array
func (el ErrorList) ToJSON() (string, error) {
	if el == nil {
		el = ErrorList{}
	}
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(el, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// As returns err as a LoadError. Errors that are not LoadErrors are wrapped
// in a generic load failure.
func As(err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return NewLoadFailed(err.Error()).WithCause(err)
}

func newError(code ErrorCode, typ string, category ErrorCategory, message string) *LoadError {
	return &LoadError{
		Code:     code,
		Type:     typ,
		Category: category,
		Severity: SeverityError,
		Message:  message,
	}
}
