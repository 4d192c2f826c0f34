// Package errors provides structured diagnostics for the resource compiler.
// It defines error codes, categories, and formatting for both human-readable
// terminal output and machine-parseable JSON.
package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ErrorCode represents a unique diagnostic code (e.g. "RES201")
type ErrorCode string

// ErrorCategory represents the category of a diagnostic
type ErrorCategory string

const (
	// CategorySource represents malformed source documents (RES001-099)
	CategorySource ErrorCategory = "source"
	// CategoryFile represents file references (RES100-199)
	CategoryFile ErrorCategory = "file"
	// CategoryValue represents value, template and import expansion (RES200-299)
	CategoryValue ErrorCategory = "value"
	// CategoryObject represents object construction (RES300-399)
	CategoryObject ErrorCategory = "object"
	// CategorySibling represents sibling extraction and reference resolution (RES400-499)
	CategorySibling ErrorCategory = "sibling"
	// CategoryDependency represents dependency completion (RES500-599)
	CategoryDependency ErrorCategory = "dependency"
	// CategoryCache represents conversion to the cache representation (RES600-699)
	CategoryCache ErrorCategory = "cache"
)

// ErrorSeverity indicates the severity level of a diagnostic
type ErrorSeverity string

const (
	// SeverityError aborts the pipeline after the reporting pass
	SeverityError ErrorSeverity = "error"
	// SeverityWarning is reported but does not abort
	SeverityWarning ErrorSeverity = "warning"
	// SeverityInfo indicates informational messages
	SeverityInfo ErrorSeverity = "info"
)

// CompilerError is one diagnostic. Path is the logical path inside the
// resource tree (e.g. "/hero/frames[2]"); Pass and Task identify which pass
// and which fan-out task produced it.
type CompilerError struct {
	Code       ErrorCode     `json:"code"`
	Type       string        `json:"type"`
	Category   ErrorCategory `json:"category"`
	Severity   ErrorSeverity `json:"severity"`
	Message    string        `json:"message"`
	Path       string        `json:"path,omitempty"`
	Pass       string        `json:"pass,omitempty"`
	Task       uint64        `json:"task,omitempty"`
	File       string        `json:"file,omitempty"`
	Offset     int           `json:"offset,omitempty"`
	Line       int           `json:"line,omitempty"`
	Column     int           `json:"column,omitempty"`
	Excerpt    string        `json:"excerpt,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *CompilerError) Error() string {
	return FormatCompact(e)
}

// Format returns a human-readable message for terminal output
func (e *CompilerError) Format() string {
	return FormatError(e)
}

// ToJSON returns the error as a JSON string
func (e *CompilerError) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// WithFile sets the source file name
func (e *CompilerError) WithFile(file string) *CompilerError {
	e.File = file
	return e
}

// WithPath sets the logical path
func (e *CompilerError) WithPath(path string) *CompilerError {
	e.Path = path
	return e
}

// WithPass records the pass and task that produced the error
func (e *CompilerError) WithPass(pass string, task uint64) *CompilerError {
	e.Pass = pass
	e.Task = task
	return e
}

// WithPosition sets the byte offset, line and column in File
func (e *CompilerError) WithPosition(offset, line, column int) *CompilerError {
	e.Offset = offset
	e.Line = line
	e.Column = column
	return e
}

// WithExcerpt sets the source excerpt
func (e *CompilerError) WithExcerpt(excerpt string) *CompilerError {
	e.Excerpt = excerpt
	return e
}

// WithSuggestion sets a suggestion for fixing the error
func (e *CompilerError) WithSuggestion(suggestion string) *CompilerError {
	e.Suggestion = suggestion
	return e
}

// ErrorList is a collection of compiler errors
type ErrorList []*CompilerError

// Error implements the error interface
func (el ErrorList) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	return FormatErrorList(el)
}

// HasErrors returns true if the list contains any errors (excludes warnings/info)
func (el ErrorList) HasErrors() bool {
	for _, err := range el {
		if err.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if the list contains any warnings
func (el ErrorList) HasWarnings() bool {
	for _, err := range el {
		if err.Severity == SeverityWarning {
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
	bytes, err := json.MarshalIndent(el, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// ErrorCount returns the number of errors by severity
func (el ErrorList) ErrorCount() (errors, warnings, info int) {
	for _, err := range el {
		switch err.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			info++
		}
	}
	return
}

// Sort orders the list by path, then code, then message, so that output does
// not depend on which task reported first.
func (el ErrorList) Sort() {
	sort.SliceStable(el, func(i, j int) bool {
		a, b := el[i], el[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// Collector is a goroutine-safe error sink shared by the tasks of one pass
type Collector struct {
	mu   sync.Mutex
	errs ErrorList
}

// Add records e
func (c *Collector) Add(e *CompilerError) {
	c.mu.Lock()
	c.errs = append(c.errs, e)
	c.mu.Unlock()
}

// List returns a sorted copy of everything collected so far
func (c *Collector) List() ErrorList {
	c.mu.Lock()
	out := make(ErrorList, len(c.errs))
	copy(out, c.errs)
	c.mu.Unlock()
	out.Sort()
	return out
}

// Len returns the number of collected diagnostics
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// newError creates a new CompilerError with the given parameters
func newError(
	code ErrorCode,
	typ string,
	category ErrorCategory,
	severity ErrorSeverity,
	message string,
	path string,
) *CompilerError {
	return &CompilerError{
		Code:     code,
		Type:     typ,
		Category: category,
		Severity: severity,
		Message:  message,
		Path:     path,
	}
}

func newErrorf(code ErrorCode, typ string, category ErrorCategory, path, format string, args ...any) *CompilerError {
	return newError(code, typ, category, SeverityError, fmt.Sprintf(format, args...), path)
}
