package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

func levelColors(level ErrorLevel, noColor bool) (header, body *color.Color, symbol string) {
	switch level {
	case ErrorLevelWarning:
		header = color.New(color.FgYellow, color.Bold)
		body = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		header = color.New(color.FgCyan, color.Bold)
		body = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		header = color.New(color.FgRed, color.Bold)
		body = color.New(color.FgRed)
		symbol = "❌"
	}
	if noColor {
		header.DisableColor()
		body.DisableColor()
	}
	return header, body, symbol
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ RESOURCE NOT FOUND: titel
//	   No resource named 'titel' in the pack.
//
//	   Did you mean: title?
//
//	   → List resources: respack inspect
func FormatError(opts ErrorOptions) string {
	var b strings.Builder
	headerColor, bodyColor, symbol := levelColors(opts.Level, opts.NoColor)

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// FormatDiagnostic renders one compiler diagnostic in its severity colour
func FormatDiagnostic(e *cerrors.CompilerError, noColor bool) string {
	level := ErrorLevelError
	switch e.Severity {
	case cerrors.SeverityWarning:
		level = ErrorLevelWarning
	case cerrors.SeverityInfo:
		level = ErrorLevelInfo
	}
	headerColor, bodyColor, symbol := levelColors(level, noColor)
	gray := color.New(color.FgHiBlack)
	if noColor {
		gray.DisableColor()
	}

	var b strings.Builder
	where := e.File
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	headerColor.Fprintf(&b, "%s %s %s", symbol, e.Code, e.Type)
	if where != "" {
		gray.Fprintf(&b, " %s", where)
	}
	b.WriteString("\n")
	if e.Path != "" {
		gray.Fprintf(&b, "   at %s", e.Path)
		if e.Pass != "" {
			gray.Fprintf(&b, " (%s)", e.Pass)
		}
		b.WriteString("\n")
	}
	bodyColor.Fprintf(&b, "   %s\n", e.Message)
	if e.Excerpt != "" {
		gray.Fprintf(&b, "     | %s\n", e.Excerpt)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "   💡 %s\n", e.Suggestion)
	}
	return b.String()
}

// WriteDiagnostics writes every diagnostic followed by a count line
func WriteDiagnostics(w io.Writer, list cerrors.ErrorList, noColor bool) {
	for _, e := range list {
		fmt.Fprintln(w, FormatDiagnostic(e, noColor))
	}
	errs, warnings, _ := list.ErrorCount()
	if errs > 0 {
		fmt.Fprint(w, BuildError(fmt.Sprintf("%d error(s), %d warning(s)", errs, warnings), noColor))
		return
	}
	if warnings > 0 {
		fmt.Fprint(w, Warning(fmt.Sprintf("%d warning(s)", warnings), nil, noColor))
	}
}

// ResourceNotFoundError creates a standardized resource not found error
func ResourceNotFoundError(name string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "RESOURCE NOT FOUND",
		Problem:     fmt.Sprintf("No resource named '%s' in the pack.", name),
		Suggestions: suggestions,
		HelpCommands: []string{
			"List resources: respack inspect",
		},
		NoColor: noColor,
	})
}

// PathNotFoundError reports a dictionary path that does not resolve
func PathNotFoundError(name, path string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "PATH NOT FOUND",
		Problem: fmt.Sprintf("Resource '%s' has nothing at %s.", name, path),
		HelpCommands: []string{
			fmt.Sprintf("Show the whole resource: respack inspect %s", name),
		},
		NoColor: noColor,
	})
}

// BuildError creates a standardized build error
func BuildError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "BUILD FAILED",
		Problem: message,
		HelpCommands: []string{
			"Machine-readable diagnostics: respack build --json",
			"Get help: respack build --help",
		},
		NoColor: noColor,
	})
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONFIGURATION ERROR",
		Problem: message,
		HelpCommands: []string{
			"View config: cat respack.yml",
			"Get help: respack --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelWarning,
		Problem:     message,
		Suggestions: suggestions,
		NoColor:     noColor,
	})
}

// Info creates a standardized info message
func Info(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelInfo,
		Problem: message,
		NoColor: noColor,
	})
}
