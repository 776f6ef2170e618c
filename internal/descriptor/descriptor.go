// Package descriptor holds the validated, immutable description of a
// handler type: its kind, identity, bindable parameters, context bindings,
// actions and lifecycle methods. Descriptors are produced by the extractor
// and are the only input the specializer reads.
package descriptor

import (
	"sort"
	"strings"

	"github.com/conduit-lang/weft/internal/pattern"
	"github.com/conduit-lang/weft/pkg/capability"
)

// Identity names a handler type: "<import path>.<TypeName>"
type Identity string

// NewIdentity joins an import path and a type name
func NewIdentity(importPath, typeName string) Identity {
	return Identity(importPath + "." + typeName)
}

// ImportPath returns the package import path part
func (id Identity) ImportPath() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return ""
}

// TypeName returns the unqualified type name
func (id Identity) TypeName() string {
	s := string(id)
	return s[strings.LastIndexByte(s, '.')+1:]
}

func (id Identity) String() string { return string(id) }

// ContextKind is one of the six injectable request-scoped context types
type ContextKind string

const (
	ContextApplication ContextKind = "Application"
	ContextCookies     ContextKind = "Cookies"
	ContextErrors      ContextKind = "Errors"
	ContextMessages    ContextKind = "Messages"
	ContextRequest     ContextKind = "Request"
	ContextSession     ContextKind = "Session"
)

// ContextKinds lists the supported kinds in injection order
var ContextKinds = []ContextKind{
	ContextApplication,
	ContextCookies,
	ContextErrors,
	ContextMessages,
	ContextRequest,
	ContextSession,
}

// ParseContextKind maps a pkg/web type name to its context kind
func ParseContextKind(typeName string) (ContextKind, bool) {
	for _, k := range ContextKinds {
		if string(k) == typeName {
			return k, true
		}
	}
	return "", false
}

// ContextBinding links a context kind to the member and setter that
// receive it
type ContextBinding struct {
	Kind   ContextKind `json:"kind"`
	Member string      `json:"member"`
	Getter string      `json:"getter"`
	Setter string      `json:"setter"`
}

// ImportRef is a package a parameter or converter type refers to
type ImportRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ParameterDescriptor is one bindable parameter
type ParameterDescriptor struct {
	Name   string `json:"name"`
	Member string `json:"member"`
	// Type is the declared type as written in source, e.g. "*u.UUID"
	Type string `json:"type"`
	// TypeKey is Type with package names replaced by import paths, e.g.
	// "*github.com/google/uuid.UUID". Default converters are keyed by it.
	TypeKey string      `json:"type_key"`
	Imports []ImportRef `json:"imports,omitempty"`
	Getter  string      `json:"getter"`
	Setter  string      `json:"setter"`
	// Converter is the override type name in the handler's package, if any
	Converter string `json:"converter,omitempty"`
}

// ActionDescriptor is one controller action
type ActionDescriptor struct {
	Name         string     `json:"name"`
	Method       string     `json:"method"`
	ContentType  string     `json:"content_type,omitempty"`
	Interceptors []Identity `json:"interceptors,omitempty"`
}

// ResultShape describes what an Init or Destroy method returns
type ResultShape int

const (
	// ResultsNone is a method with no results
	ResultsNone ResultShape = iota
	// ResultsError is a method returning exactly error
	ResultsError
	// ResultsValuesAndError is a method returning several values, last error
	ResultsValuesAndError
	// ResultsValues is a method whose results carry no error
	ResultsValues
)

// LifecycleMethod describes a Before/After/Init/Destroy method
type LifecycleMethod struct {
	Method      string      `json:"method"`
	ContentType string      `json:"content_type,omitempty"`
	Results     ResultShape `json:"results"`
	// NumResults is the result count, used to emit blank assignments
	NumResults int `json:"num_results"`
}

// HandlerDescriptor is the validated description of one handler type
type HandlerDescriptor struct {
	Kind     capability.Kind `json:"kind"`
	Identity Identity        `json:"identity"`
	// Package is the declaring package name
	Package  string `json:"package"`
	TypeName string `json:"type_name"`
	// File is the source file relative to the source root
	File string `json:"file"`

	Pattern    *pattern.Pattern      `json:"pattern,omitempty"`
	Parameters []ParameterDescriptor `json:"parameters,omitempty"`
	Contexts   []ContextBinding      `json:"contexts,omitempty"`
	Actions    []ActionDescriptor    `json:"actions,omitempty"`

	Before  *LifecycleMethod `json:"before,omitempty"`
	After   *LifecycleMethod `json:"after,omitempty"`
	Init    *LifecycleMethod `json:"init,omitempty"`
	Destroy *LifecycleMethod `json:"destroy,omitempty"`
}

// New returns an empty descriptor of the given kind
func New(kind capability.Kind, id Identity, pkg string) *HandlerDescriptor {
	return &HandlerDescriptor{
		Kind:     kind,
		Identity: id,
		Package:  pkg,
		TypeName: id.TypeName(),
	}
}

// Parameter returns the parameter with the given name
func (d *HandlerDescriptor) Parameter(name string) (*ParameterDescriptor, bool) {
	for i := range d.Parameters {
		if d.Parameters[i].Name == name {
			return &d.Parameters[i], true
		}
	}
	return nil, false
}

// Action returns the action with the given name
func (d *HandlerDescriptor) Action(name string) (*ActionDescriptor, bool) {
	for i := range d.Actions {
		if d.Actions[i].Name == name {
			return &d.Actions[i], true
		}
	}
	return nil, false
}

// Context returns the binding for a context kind
func (d *HandlerDescriptor) Context(kind ContextKind) (*ContextBinding, bool) {
	for i := range d.Contexts {
		if d.Contexts[i].Kind == kind {
			return &d.Contexts[i], true
		}
	}
	return nil, false
}

// Converters maps parameter names to their converter override type names
func (d *HandlerDescriptor) Converters() map[string]string {
	out := make(map[string]string)
	for _, p := range d.Parameters {
		if p.Converter != "" {
			out[p.Name] = p.Converter
		}
	}
	return out
}

// Imports returns the distinct parameter type imports sorted by path
func (d *HandlerDescriptor) Imports() []ImportRef {
	seen := make(map[string]ImportRef)
	for _, p := range d.Parameters {
		for _, ref := range p.Imports {
			seen[ref.Path] = ref
		}
	}
	refs := make([]ImportRef, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs
}

// SortByIdentity orders descriptors by identity
func SortByIdentity(descs []*HandlerDescriptor) {
	sort.Slice(descs, func(i, j int) bool { return descs[i].Identity < descs[j].Identity })
}
