package errors

import "fmt"

// Load error codes (LOD200-299)
const (
	// ErrCodeLoadFailed is a structural failure of the source or output tree
	ErrCodeLoadFailed ErrorCode = "LOD200"
	// ErrCodeParseFailed is a Go source file that does not parse
	ErrCodeParseFailed ErrorCode = "LOD201"
	// ErrCodeModuleUnknown is a missing or unreadable go.mod
	ErrCodeModuleUnknown ErrorCode = "LOD202"
)

// Code generation error codes (GEN600-699)
const (
	// ErrCodeGenFailed indicates a general code generation failure
	ErrCodeGenFailed ErrorCode = "GEN600"
	// ErrCodeFormatFailed indicates generated source that gofmt rejects
	ErrCodeFormatFailed ErrorCode = "GEN601"
)

var (
	ErrLoadFailed    = &LoadError{Code: ErrCodeLoadFailed}
	ErrParseFailed   = &LoadError{Code: ErrCodeParseFailed}
	ErrModuleUnknown = &LoadError{Code: ErrCodeModuleUnknown}
	ErrGenFailed     = &LoadError{Code: ErrCodeGenFailed}
	ErrFormatFailed  = &LoadError{Code: ErrCodeFormatFailed}
)

// NewLoadFailed creates a LOD200 error
func NewLoadFailed(reason string) *LoadError {
	return newError(ErrCodeLoadFailed, "load_failed", CategoryLoad,
		fmt.Sprintf("Deployment failed: %s", reason))
}

// NewParseFailed creates a LOD201 error
func NewParseFailed(file string, cause error) *LoadError {
	return newError(ErrCodeParseFailed, "parse_failed", CategoryLoad,
		fmt.Sprintf("Cannot parse %s: %v", file, cause),
	).WithLocation(Location{File: file}).WithCause(cause).
		WithSuggestion("The file was copied to the output unchanged")
}

// NewModuleUnknown creates a LOD202 error
func NewModuleUnknown(dir string, cause error) *LoadError {
	return newError(ErrCodeModuleUnknown, "module_unknown", CategoryLoad,
		fmt.Sprintf("Cannot determine the module path of %s: %v", dir, cause),
	).WithCause(cause).
		WithSuggestion("Add a go.mod to the source tree or set deploy.module")
}

// NewCodeGenFailed creates a GEN600 error
func NewCodeGenFailed(identity, reason string) *LoadError {
	return newError(ErrCodeGenFailed, "codegen_failed", CategoryCodeGen,
		fmt.Sprintf("Code generation failed for '%s': %s", identity, reason),
	).WithHandler(identity).
		WithSuggestion("This is likely a weft bug - please report it")
}

// NewFormatFailed creates a GEN601 error
func NewFormatFailed(identity string, cause error) *LoadError {
	return newError(ErrCodeFormatFailed, "format_failed", CategoryCodeGen,
		fmt.Sprintf("Generated source for '%s' is not valid Go: %v", identity, cause),
	).WithHandler(identity).WithCause(cause)
}
