// Package capability defines the fixed method sets a specialized handler
// implements, and the static-table forms that generated code fills in.
//
// Generated code never implements these interfaces by hand. It declares a
// ControllerSpec, InterceptorSpec or InitializerSpec literal whose tables
// hold method expressions and small closures; those literals implement
// the capabilities with plain slice scans and direct calls.
package capability

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/weft/pkg/convert"
	"github.com/conduit-lang/weft/pkg/web"
)

// ErrNoSuchAction is returned by InvokeAction for a name the handler does
// not define
var ErrNoSuchAction = errors.New("no such action")

// Kind classifies a handler
type Kind int

const (
	// KindController handles requests routed by URL pattern
	KindController Kind = iota
	// KindInterceptor guards controller actions with before/after hooks
	KindInterceptor
	// KindInitializer runs at deployment start and stop
	KindInitializer
)

// String returns the marker name of the kind
func (k Kind) String() string {
	switch k {
	case KindController:
		return "controller"
	case KindInterceptor:
		return "interceptor"
	case KindInitializer:
		return "initializer"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	for _, c := range []Kind{KindController, KindInterceptor, KindInitializer} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown handler kind %q", text)
}

// TypeMismatchError is returned by SetParameter when the value does not
// have the parameter's declared type
type TypeMismatchError struct {
	Handler string
	Param   string
	Want    string
	Got     any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: parameter %q wants %s, got %T", e.Handler, e.Param, e.Want, e.Got)
}

// Handler is the surface shared by controllers and interceptors
type Handler interface {
	Identity() string

	Parameters() []string
	GetParameter(name string) (any, bool)
	SetParameter(name string, value any) error
	ParameterType(name string) string
	ConverterFor(name string) convert.Converter

	SetApplication(*web.Application)
	SetCookies(*web.Cookies)
	SetErrors(*web.Errors)
	SetMessages(*web.Messages)
	SetRequest(*web.Request)
	SetSession(*web.Session)

	// Target returns the underlying handler value
	Target() any
}

// Controller is a specialized request controller instance
type Controller interface {
	Handler
	URLPattern() string
	InvokeAction(name string) (web.Result, error)
	IsActionDefined(name string) bool
	InterceptorsFor(name string) ([]string, bool)
	ContentType(name string) string
}

// Interceptor is a specialized interceptor instance
type Interceptor interface {
	Handler
	Before() web.Result
	After() web.Result
	BeforeContentType() string
	AfterContentType() string
}

// Initializer is a specialized initializer instance
type Initializer interface {
	Identity() string
	SetApplication(*web.Application)
	Init() error
	Destroy() error
}

// ControllerType is the static side of a controller: what the router needs
// without creating an instance
type ControllerType interface {
	Identity() string
	URLPattern() string
	ActionNames() []string
	IsActionDefined(name string) bool
	InterceptorsFor(name string) ([]string, bool)
	ContentType(name string) string
	New() Controller
}

// InterceptorType creates interceptor instances
type InterceptorType interface {
	Identity() string
	New() Interceptor
}

// InitializerType creates initializer instances
type InitializerType interface {
	Identity() string
	New() Initializer
}

// Set is the output of one generated package
type Set struct {
	Controllers  []ControllerType
	Interceptors []InterceptorType
	Initializers []InitializerType
}

// Merge concatenates sets, keeping order
func Merge(sets ...Set) Set {
	var out Set
	for _, s := range sets {
		out.Controllers = append(out.Controllers, s.Controllers...)
		out.Interceptors = append(out.Interceptors, s.Interceptors...)
		out.Initializers = append(out.Initializers, s.Initializers...)
	}
	return out
}

// Inject calls all six context setters of h. Setters for context kinds the
// handler does not declare are no-ops.
func Inject(h Handler, c web.Contexts) {
	h.SetApplication(c.Application)
	h.SetCookies(c.Cookies)
	h.SetErrors(c.Errors)
	h.SetMessages(c.Messages)
	h.SetRequest(c.Request)
	h.SetSession(c.Session)
}
