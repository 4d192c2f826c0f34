package errors

import "fmt"

// Source errors (RES001-099)
const (
	// ErrSyntax indicates a malformed source document
	ErrSyntax ErrorCode = "RES001"
	// ErrSourceRead indicates a root source could not be read
	ErrSourceRead ErrorCode = "RES002"
)

// File errors (RES100-199)
const (
	// ErrMissingFile indicates a file: reference to a file that does not exist
	ErrMissingFile ErrorCode = "RES101"
)

// Value errors (RES200-299)
const (
	// ErrMissingValue indicates a res:<name> lookup with no binding in scope
	ErrMissingValue ErrorCode = "RES201"
	// ErrBadTemplate indicates a res:template that is missing or not a dictionary
	ErrBadTemplate ErrorCode = "RES202"
	// ErrBadImport indicates a res:import that could not be loaded
	ErrBadImport ErrorCode = "RES203"
)

// Object errors (RES300-399)
const (
	// ErrUnknownType indicates a res:type with no registered factory
	ErrUnknownType ErrorCode = "RES301"
	// ErrFactoryFailed indicates a factory could not build an object
	ErrFactoryFailed ErrorCode = "RES302"
)

// Sibling errors (RES400-499)
const (
	// ErrSiblingCollision indicates a sibling whose name is already taken
	ErrSiblingCollision ErrorCode = "RES401"
	// ErrUnresolvedRef indicates a reference that never resolved to a resource
	ErrUnresolvedRef ErrorCode = "RES402"
)

// Dependency errors (RES500-599)
const (
	// ErrSelfDependency indicates an object that depends on itself, directly or through a cycle
	ErrSelfDependency ErrorCode = "RES501"
	// ErrFinishFailed indicates an object failed to complete loading
	ErrFinishFailed ErrorCode = "RES502"
)

// Cache errors (RES600-699)
const (
	// ErrSaveFailed indicates a factory could not save an object
	ErrSaveFailed ErrorCode = "RES601"
)

// NewSyntax creates a RES001 error
func NewSyntax(file string, offset, line, column int, excerpt, message string) *CompilerError {
	return newError(ErrSyntax, "syntax", CategorySource, SeverityError, message, "").
		WithFile(file).
		WithPosition(offset, line, column).
		WithExcerpt(excerpt)
}

// NewSourceRead creates a RES002 error
func NewSourceRead(file string, err error) *CompilerError {
	return newErrorf(ErrSourceRead, "source_read", CategorySource, "", "cannot read source: %v", err).
		WithFile(file)
}

// NewMissingFile creates a RES101 error
func NewMissingFile(path, file string) *CompilerError {
	return newErrorf(ErrMissingFile, "missing_file", CategoryFile, path, "referenced file %q does not exist", file).
		WithSuggestion("file: paths are resolved relative to the JSON file that contains them")
}

// NewMissingValue creates a RES201 error
func NewMissingValue(path, name string) *CompilerError {
	return newErrorf(ErrMissingValue, "missing_value", CategoryValue, path, "no value named %q in scope", name).
		WithSuggestion("declare it in an enclosing res:values block")
}

// NewBadTemplate creates a RES202 error
func NewBadTemplate(path, name, reason string) *CompilerError {
	return newErrorf(ErrBadTemplate, "bad_template", CategoryValue, path, "template %q %s", name, reason)
}

// NewBadImport creates a RES203 error
func NewBadImport(path, file string, err error) *CompilerError {
	return newErrorf(ErrBadImport, "bad_import", CategoryValue, path, "cannot import %q: %v", file, err)
}

// NewUnknownType creates a RES301 error
func NewUnknownType(path, typeName string) *CompilerError {
	return newErrorf(ErrUnknownType, "unknown_type", CategoryObject, path, "no factory registered for type %q", typeName)
}

// NewFactoryFailed creates a RES302 error
func NewFactoryFailed(path, typeName string, err error) *CompilerError {
	return newErrorf(ErrFactoryFailed, "factory_failed", CategoryObject, path, "%s: %v", typeName, err)
}

// NewSiblingCollision creates a RES401 error
func NewSiblingCollision(path, name string) *CompilerError {
	return newErrorf(ErrSiblingCollision, "sibling_collision", CategorySibling, path, "sibling %q collides with an existing resource", name)
}

// NewUnresolvedRef creates a RES402 warning
func NewUnresolvedRef(name string) *CompilerError {
	return newError(ErrUnresolvedRef, "unresolved_ref", CategorySibling, SeverityWarning,
		fmt.Sprintf("reference %q does not name any resource; it resolves to no value", name), "/"+name)
}

// NewSelfDependency creates a RES501 error
func NewSelfDependency(path, name string, err error) *CompilerError {
	return newErrorf(ErrSelfDependency, "self_dependency", CategoryDependency, path, "resource %q depends on itself (%v)", name, err)
}

// NewFinishFailed creates a RES502 error
func NewFinishFailed(path, name string, err error) *CompilerError {
	return newErrorf(ErrFinishFailed, "finish_failed", CategoryDependency, path, "resource %q failed to finish loading: %v", name, err)
}

// NewSaveFailed creates a RES601 error
func NewSaveFailed(path, typeName string, err error) *CompilerError {
	return newErrorf(ErrSaveFailed, "save_failed", CategoryCache, path, "%s: cannot save: %v", typeName, err)
}
