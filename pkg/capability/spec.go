package capability

import (
	"fmt"

	"github.com/conduit-lang/weft/pkg/convert"
	"github.com/conduit-lang/weft/pkg/web"
)

// Param is one bindable parameter of handler type T
type Param[T any] struct {
	Name string
	// Type is the declared Go type with package names replaced by import
	// paths, e.g. "*github.com/google/uuid.UUID"; see convert.Registry
	Type string
	Get  func(*T) any
	// Set stores v after a checked assertion to Type and reports whether
	// the assertion held
	Set       func(*T, any) bool
	Converter func() convert.Converter
}

// Contexts holds one setter per context kind T declares. Nil entries are
// kinds T does not declare.
type Contexts[T any] struct {
	Application func(*T, *web.Application)
	Cookies     func(*T, *web.Cookies)
	Errors      func(*T, *web.Errors)
	Messages    func(*T, *web.Messages)
	Request     func(*T, *web.Request)
	Session     func(*T, *web.Session)
}

// Action is one named action of controller type T
type Action[T any] struct {
	Name         string
	ContentType  string
	Interceptors []string
	Invoke       func(*T) web.Result
}

// ControllerSpec is the static table of a controller type
type ControllerSpec[T any] struct {
	TypeName string
	Pattern  string
	Params   []Param[T]
	Contexts Contexts[T]
	Actions  []Action[T]
}

// Identity implements ControllerType
func (s *ControllerSpec[T]) Identity() string { return s.TypeName }

// URLPattern implements ControllerType
func (s *ControllerSpec[T]) URLPattern() string { return s.Pattern }

// ActionNames returns the action names in declaration order
func (s *ControllerSpec[T]) ActionNames() []string {
	names := make([]string, len(s.Actions))
	for i := range s.Actions {
		names[i] = s.Actions[i].Name
	}
	return names
}

func (s *ControllerSpec[T]) action(name string) *Action[T] {
	for i := range s.Actions {
		if s.Actions[i].Name == name {
			return &s.Actions[i]
		}
	}
	return nil
}

// IsActionDefined implements ControllerType
func (s *ControllerSpec[T]) IsActionDefined(name string) bool {
	return s.action(name) != nil
}

// InterceptorsFor implements ControllerType
func (s *ControllerSpec[T]) InterceptorsFor(name string) ([]string, bool) {
	a := s.action(name)
	if a == nil || len(a.Interceptors) == 0 {
		return nil, false
	}
	return a.Interceptors, true
}

// ContentType implements ControllerType
func (s *ControllerSpec[T]) ContentType(name string) string {
	if a := s.action(name); a != nil {
		return a.ContentType
	}
	return ""
}

// New implements ControllerType
func (s *ControllerSpec[T]) New() Controller {
	return &controller[T]{
		handler: handler[T]{
			id:       s.TypeName,
			target:   new(T),
			params:   s.Params,
			contexts: &s.Contexts,
		},
		spec: s,
	}
}

// InterceptorSpec is the static table of an interceptor type
type InterceptorSpec[T any] struct {
	TypeName          string
	Params            []Param[T]
	Contexts          Contexts[T]
	Before            func(*T) web.Result
	After             func(*T) web.Result
	BeforeContentType string
	AfterContentType  string
}

// Identity implements InterceptorType
func (s *InterceptorSpec[T]) Identity() string { return s.TypeName }

// New implements InterceptorType
func (s *InterceptorSpec[T]) New() Interceptor {
	return &interceptor[T]{
		handler: handler[T]{
			id:       s.TypeName,
			target:   new(T),
			params:   s.Params,
			contexts: &s.Contexts,
		},
		spec: s,
	}
}

// InitializerSpec is the static table of an initializer type
type InitializerSpec[T any] struct {
	TypeName    string
	Application func(*T, *web.Application)
	Init        func(*T) error
	Destroy     func(*T) error
}

// Identity implements InitializerType
func (s *InitializerSpec[T]) Identity() string { return s.TypeName }

// New implements InitializerType
func (s *InitializerSpec[T]) New() Initializer {
	return &initializer[T]{spec: s, target: new(T)}
}

type handler[T any] struct {
	id       string
	target   *T
	params   []Param[T]
	contexts *Contexts[T]
}

func (h *handler[T]) Identity() string { return h.id }

func (h *handler[T]) Target() any { return h.target }

func (h *handler[T]) param(name string) *Param[T] {
	for i := range h.params {
		if h.params[i].Name == name {
			return &h.params[i]
		}
	}
	return nil
}

func (h *handler[T]) Parameters() []string {
	names := make([]string, len(h.params))
	for i := range h.params {
		names[i] = h.params[i].Name
	}
	return names
}

func (h *handler[T]) GetParameter(name string) (any, bool) {
	p := h.param(name)
	if p == nil {
		return nil, false
	}
	return p.Get(h.target), true
}

// SetParameter ignores names outside the declared set
func (h *handler[T]) SetParameter(name string, value any) error {
	p := h.param(name)
	if p == nil {
		return nil
	}
	if !p.Set(h.target, value) {
		return &TypeMismatchError{Handler: h.id, Param: name, Want: p.Type, Got: value}
	}
	return nil
}

func (h *handler[T]) ParameterType(name string) string {
	if p := h.param(name); p != nil {
		return p.Type
	}
	return ""
}

func (h *handler[T]) ConverterFor(name string) convert.Converter {
	if p := h.param(name); p != nil && p.Converter != nil {
		return p.Converter()
	}
	return nil
}

func (h *handler[T]) SetApplication(v *web.Application) {
	if h.contexts.Application != nil {
		h.contexts.Application(h.target, v)
	}
}

func (h *handler[T]) SetCookies(v *web.Cookies) {
	if h.contexts.Cookies != nil {
		h.contexts.Cookies(h.target, v)
	}
}

func (h *handler[T]) SetErrors(v *web.Errors) {
	if h.contexts.Errors != nil {
		h.contexts.Errors(h.target, v)
	}
}

func (h *handler[T]) SetMessages(v *web.Messages) {
	if h.contexts.Messages != nil {
		h.contexts.Messages(h.target, v)
	}
}

func (h *handler[T]) SetRequest(v *web.Request) {
	if h.contexts.Request != nil {
		h.contexts.Request(h.target, v)
	}
}

func (h *handler[T]) SetSession(v *web.Session) {
	if h.contexts.Session != nil {
		h.contexts.Session(h.target, v)
	}
}

type controller[T any] struct {
	handler[T]
	spec *ControllerSpec[T]
}

func (c *controller[T]) URLPattern() string { return c.spec.Pattern }

func (c *controller[T]) InvokeAction(name string) (web.Result, error) {
	a := c.spec.action(name)
	if a == nil {
		return nil, fmt.Errorf("%s: %w: %q", c.id, ErrNoSuchAction, name)
	}
	return a.Invoke(c.target), nil
}

func (c *controller[T]) IsActionDefined(name string) bool {
	return c.spec.IsActionDefined(name)
}

func (c *controller[T]) InterceptorsFor(name string) ([]string, bool) {
	return c.spec.InterceptorsFor(name)
}

func (c *controller[T]) ContentType(name string) string {
	return c.spec.ContentType(name)
}

type interceptor[T any] struct {
	handler[T]
	spec *InterceptorSpec[T]
}

func (i *interceptor[T]) Before() web.Result { return i.spec.Before(i.target) }

func (i *interceptor[T]) After() web.Result { return i.spec.After(i.target) }

func (i *interceptor[T]) BeforeContentType() string { return i.spec.BeforeContentType }

func (i *interceptor[T]) AfterContentType() string { return i.spec.AfterContentType }

type initializer[T any] struct {
	spec   *InitializerSpec[T]
	target *T
}

func (i *initializer[T]) Identity() string { return i.spec.TypeName }

func (i *initializer[T]) SetApplication(v *web.Application) {
	if i.spec.Application != nil {
		i.spec.Application(i.target, v)
	}
}

func (i *initializer[T]) Init() error {
	if i.spec.Init == nil {
		return nil
	}
	return i.spec.Init(i.target)
}

func (i *initializer[T]) Destroy() error {
	if i.spec.Destroy == nil {
		return nil
	}
	return i.spec.Destroy(i.target)
}
