package errors

import (
	"fmt"
	"strings"
)

// FormatError returns a human-readable error message for terminal output
func FormatError(e *CompilerError) string {
	var b strings.Builder

	icon := severityIcon(e.Severity)

	where := e.File
	if where == "" {
		where = "<source>"
	}
	fmt.Fprintf(&b, "%s %s [%s] in %s\n", icon, categoryDisplayName(e.Category), e.Code, where)

	if e.Line > 0 {
		fmt.Fprintf(&b, "Line %d, Column %d (offset %d):\n", e.Line, e.Column, e.Offset)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "At %s", e.Path)
		if e.Pass != "" {
			fmt.Fprintf(&b, " during %s (task %d)", e.Pass, e.Task)
		}
		b.WriteString(":\n")
	}

	fmt.Fprintf(&b, "  %s\n", e.Message)

	if e.Excerpt != "" {
		fmt.Fprintf(&b, "    | %s\n", e.Excerpt)
	}

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n💡 %s\n", e.Suggestion)
	}

	return b.String()
}

// FormatErrorList returns a formatted string of all errors
func FormatErrorList(errors ErrorList) string {
	if len(errors) == 0 {
		return "no errors"
	}

	var b strings.Builder

	errCount, warnCount, infoCount := errors.ErrorCount()
	verb := "Compilation failed"
	if errCount == 0 {
		verb = "Compilation finished"
	}
	fmt.Fprintf(&b, "%s with %d error(s), %d warning(s), %d info\n\n",
		verb, errCount, warnCount, infoCount)

	for i, err := range errors {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("-", 80) + "\n\n")
		}
		b.WriteString(err.Format())
	}

	return b.String()
}

// FormatCompact returns a compact one-line error format
func FormatCompact(e *CompilerError) string {
	var loc string
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	case e.File != "":
		loc = e.File
	case e.Path != "":
		loc = e.Path
	default:
		loc = "<source>"
	}
	if e.File != "" && e.Path != "" {
		loc += " " + e.Path
	}
	return fmt.Sprintf("%s: %s: %s [%s]", loc, e.Severity, e.Message, e.Code)
}

// severityIcon returns the emoji/icon for a severity level
func severityIcon(severity ErrorSeverity) string {
	switch severity {
	case SeverityError:
		return "❌"
	case SeverityWarning:
		return "⚠️ "
	case SeverityInfo:
		return "ℹ️ "
	default:
		return "❓"
	}
}

// categoryDisplayName returns a human-readable category name
func categoryDisplayName(category ErrorCategory) string {
	switch category {
	case CategorySource:
		return "Source Error"
	case CategoryFile:
		return "File Error"
	case CategoryValue:
		return "Value Error"
	case CategoryObject:
		return "Object Error"
	case CategorySibling:
		return "Sibling Error"
	case CategoryDependency:
		return "Dependency Error"
	case CategoryCache:
		return "Cache Error"
	default:
		return "Compiler Error"
	}
}
