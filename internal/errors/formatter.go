package errors

import (
	"fmt"
	"strings"
)

// FormatError returns a human-readable error message for terminal output
func FormatError(e *LoadError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s [%s] in %s\n", severityIcon(e.Severity), categoryDisplayName(e.Category), e.Code, e.Location)
	if e.Handler != "" {
		fmt.Fprintf(&b, "Handler: %s\n", e.Handler)
	}
	if e.Member != "" {
		fmt.Fprintf(&b, "Member:  %s\n", e.Member)
	}
	fmt.Fprintf(&b, "  %s\n", e.Message)

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n💡 %s\n", e.Suggestion)
	}

	return b.String()
}

// FormatErrorList returns a formatted string of all errors
func FormatErrorList(list ErrorList) string {
	if len(list) == 0 {
		return "no errors"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Deployment reported %d problem(s)\n\n", len(list))
	for i, err := range list {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("-", 80) + "\n\n")
		}
		b.WriteString(err.Format())
	}
	return b.String()
}

// FormatCompact returns a one-line error format
func FormatCompact(e *LoadError) string {
	var b strings.Builder
	b.WriteString(e.Location.String())
	b.WriteString(": ")
	b.WriteString(string(e.Severity))
	if e.Handler != "" {
		b.WriteString(": ")
		b.WriteString(e.Handler)
		if e.Member != "" {
			b.WriteString(".")
			b.WriteString(e.Member)
		}
	}
	fmt.Fprintf(&b, ": %s [%s]", e.Message, e.Code)
	return b.String()
}

func severityIcon(severity ErrorSeverity) string {
	switch severity {
	case SeverityError:
		return "❌"
	case SeverityWarning:
		return "⚠️ "
	default:
		return "❓"
	}
}

func categoryDisplayName(category ErrorCategory) string {
	switch category {
	case CategoryExtraction:
		return "Handler Error"
	case CategoryLoad:
		return "Load Error"
	case CategoryCodeGen:
		return "Code Generation Error"
	default:
		return "Error"
	}
}
