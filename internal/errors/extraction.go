package errors

import "fmt"

// Extraction error codes (EXT100-199)
const (
	ErrCodeNotAHandler               ErrorCode = "EXT100"
	ErrCodeMultipleKinds             ErrorCode = "EXT101"
	ErrCodeAccessorMissing           ErrorCode = "EXT110"
	ErrCodePrimitiveParameter        ErrorCode = "EXT111"
	ErrCodeInvalidConverter          ErrorCode = "EXT112"
	ErrCodeDuplicateParameter        ErrorCode = "EXT113"
	ErrCodeDuplicateContext          ErrorCode = "EXT114"
	ErrCodeURLPatternMissing         ErrorCode = "EXT120"
	ErrCodeInvalidURLPattern         ErrorCode = "EXT121"
	ErrCodeInvalidActionSignature    ErrorCode = "EXT130"
	ErrCodeDuplicateAction           ErrorCode = "EXT131"
	ErrCodeInvalidInterceptor        ErrorCode = "EXT132"
	ErrCodeLifecycleMethodMissing    ErrorCode = "EXT140"
	ErrCodeInvalidLifecycleSignature ErrorCode = "EXT141"
	ErrCodeUnknownMarker             ErrorCode = "EXT150"
)

// Sentinels for errors.Is. They match any LoadError with the same code.
var (
	ErrNotAHandler               = &LoadError{Code: ErrCodeNotAHandler}
	ErrMultipleKinds             = &LoadError{Code: ErrCodeMultipleKinds}
	ErrAccessorMissing           = &LoadError{Code: ErrCodeAccessorMissing}
	ErrPrimitiveParameter        = &LoadError{Code: ErrCodePrimitiveParameter}
	ErrInvalidConverter          = &LoadError{Code: ErrCodeInvalidConverter}
	ErrDuplicateParameter        = &LoadError{Code: ErrCodeDuplicateParameter}
	ErrDuplicateContext          = &LoadError{Code: ErrCodeDuplicateContext}
	ErrURLPatternMissing         = &LoadError{Code: ErrCodeURLPatternMissing}
	ErrInvalidURLPattern         = &LoadError{Code: ErrCodeInvalidURLPattern}
	ErrInvalidActionSignature    = &LoadError{Code: ErrCodeInvalidActionSignature}
	ErrDuplicateAction           = &LoadError{Code: ErrCodeDuplicateAction}
	ErrInvalidInterceptor        = &LoadError{Code: ErrCodeInvalidInterceptor}
	ErrLifecycleMethodMissing    = &LoadError{Code: ErrCodeLifecycleMethodMissing}
	ErrInvalidLifecycleSignature = &LoadError{Code: ErrCodeInvalidLifecycleSignature}
	ErrUnknownMarker             = &LoadError{Code: ErrCodeUnknownMarker}
)

// NewNotAHandler creates an EXT100 error
func NewNotAHandler(identity string) *LoadError {
	return newError(ErrCodeNotAHandler, "not_a_handler", CategoryExtraction,
		fmt.Sprintf("Type '%s' has no +weft:controller, +weft:interceptor or +weft:initializer marker", identity),
	).WithHandler(identity).
		WithSuggestion("Add a kind marker to the type's doc comment, e.g. // +weft:controller url=/path/*")
}

// NewMultipleKinds creates an EXT101 error
func NewMultipleKinds(identity string, kinds []string) *LoadError {
	return newError(ErrCodeMultipleKinds, "multiple_kinds", CategoryExtraction,
		fmt.Sprintf("Type '%s' declares more than one handler kind: %v", identity, kinds),
	).WithHandler(identity).
		WithSuggestion("Keep exactly one kind marker per type")
}

// NewAccessorMissing creates an EXT110 error
func NewAccessorMissing(identity, member, accessor string) *LoadError {
	return newError(ErrCodeAccessorMissing, "accessor_missing", CategoryExtraction,
		fmt.Sprintf("Member '%s' of '%s' has no accessor %s", member, identity, accessor),
	).WithHandler(identity).WithMember(member).
		WithSuggestion(fmt.Sprintf("Declare %s with a pointer receiver", accessor))
}

// NewPrimitiveParameter creates an EXT111 error
func NewPrimitiveParameter(identity, member, typ string) *LoadError {
	return newError(ErrCodePrimitiveParameter, "primitive_parameter", CategoryExtraction,
		fmt.Sprintf("Parameter '%s' of '%s' has scalar type %s", member, identity, typ),
	).WithHandler(identity).WithMember(member).
		WithSuggestion(fmt.Sprintf("Use *%s so an absent value can be told apart from the zero value", typ))
}

// NewInvalidConverter creates an EXT112 error
func NewInvalidConverter(identity, member, converter, reason string) *LoadError {
	return newError(ErrCodeInvalidConverter, "invalid_converter", CategoryExtraction,
		fmt.Sprintf("Converter '%s' for parameter '%s' of '%s' is invalid: %s", converter, member, identity, reason),
	).WithHandler(identity).WithMember(member).
		WithSuggestion("Declare the converter in the same package with Convert([]string) (any, error)")
}

// NewDuplicateParameter creates an EXT113 error
func NewDuplicateParameter(identity, member, name string) *LoadError {
	return newError(ErrCodeDuplicateParameter, "duplicate_parameter", CategoryExtraction,
		fmt.Sprintf("Parameter name '%s' of '%s' is declared twice", name, identity),
	).WithHandler(identity).WithMember(member)
}

// NewDuplicateContext creates an EXT114 error
func NewDuplicateContext(identity, member, kind string) *LoadError {
	return newError(ErrCodeDuplicateContext, "duplicate_context", CategoryExtraction,
		fmt.Sprintf("Type '%s' declares more than one %s context", identity, kind),
	).WithHandler(identity).WithMember(member)
}

// NewURLPatternMissing creates an EXT120 error
func NewURLPatternMissing(identity string) *LoadError {
	return newError(ErrCodeURLPatternMissing, "url_pattern_missing", CategoryExtraction,
		fmt.Sprintf("Controller '%s' has no url pattern", identity),
	).WithHandler(identity).
		WithSuggestion("Add url=<pattern> to the +weft:controller marker")
}

// NewInvalidURLPattern creates an EXT121 error
func NewInvalidURLPattern(identity, raw string, cause error) *LoadError {
	return newError(ErrCodeInvalidURLPattern, "invalid_url_pattern", CategoryExtraction,
		fmt.Sprintf("Controller '%s' has an invalid url pattern %q: %v", identity, raw, cause),
	).WithHandler(identity).WithCause(cause)
}

// NewInvalidActionSignature creates an EXT130 error
func NewInvalidActionSignature(identity, method, reason string) *LoadError {
	return newError(ErrCodeInvalidActionSignature, "invalid_action_signature", CategoryExtraction,
		fmt.Sprintf("Action method '%s' of '%s' %s", method, identity, reason),
	).WithHandler(identity).WithMember(method).
		WithSuggestion("Actions take no arguments and return exactly web.Result")
}

// NewDuplicateAction creates an EXT131 error
func NewDuplicateAction(identity, method, name string) *LoadError {
	return newError(ErrCodeDuplicateAction, "duplicate_action", CategoryExtraction,
		fmt.Sprintf("Action name '%s' of '%s' is declared twice", name, identity),
	).WithHandler(identity).WithMember(method)
}

// NewInvalidInterceptor creates an EXT132 error
func NewInvalidInterceptor(identity, method, ref, reason string) *LoadError {
	return newError(ErrCodeInvalidInterceptor, "invalid_interceptor", CategoryExtraction,
		fmt.Sprintf("Interceptor '%s' on action '%s' of '%s' %s", ref, method, identity, reason),
	).WithHandler(identity).WithMember(method)
}

// NewLifecycleMethodMissing creates an EXT140 error
func NewLifecycleMethodMissing(identity, method string) *LoadError {
	return newError(ErrCodeLifecycleMethodMissing, "lifecycle_method_missing", CategoryExtraction,
		fmt.Sprintf("Type '%s' has no method %s", identity, method),
	).WithHandler(identity).WithMember(method)
}

// NewInvalidLifecycleSignature creates an EXT141 error
func NewInvalidLifecycleSignature(identity, method, reason string) *LoadError {
	return newError(ErrCodeInvalidLifecycleSignature, "invalid_lifecycle_signature", CategoryExtraction,
		fmt.Sprintf("Method '%s' of '%s' %s", method, identity, reason),
	).WithHandler(identity).WithMember(method)
}

// NewUnknownMarker creates an EXT150 error
func NewUnknownMarker(identity, member, text, reason string) *LoadError {
	return newError(ErrCodeUnknownMarker, "unknown_marker", CategoryExtraction,
		fmt.Sprintf("Malformed marker %q on '%s': %s", text, identity, reason),
	).WithHandler(identity).WithMember(member)
}
