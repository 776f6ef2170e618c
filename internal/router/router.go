// Package router resolves request paths to controller actions.
//
// A Table is built once per deployment from the specialized controller and
// interceptor types and never changes afterwards. A Router holds the live
// table and replaces it wholesale on redeploy, so concurrent requests see
// either the old table or the new one, never a mix.
package router

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/conduit-lang/weft/internal/pattern"
	"github.com/conduit-lang/weft/pkg/capability"
)

var (
	// ErrDuplicatePattern is returned when two controllers declare the same
	// URL pattern
	ErrDuplicatePattern = errors.New("duplicate URL pattern")
	// ErrUnboundInterceptor is returned when an action names an interceptor
	// type that was not registered
	ErrUnboundInterceptor = errors.New("interceptor not registered")
	// ErrDuplicateHandler is returned when a type identity is registered twice
	ErrDuplicateHandler = errors.New("handler registered twice")
)

// Entry is one registered controller
type Entry struct {
	Pattern pattern.Pattern
	Type    capability.ControllerType
	// bindings holds the resolved interceptor types per action name
	bindings map[string][]capability.InterceptorType
}

// Interceptors returns the interceptor binding of an action
func (e *Entry) Interceptors(action string) []capability.InterceptorType {
	return e.bindings[action]
}

// Match is the outcome of resolving a path
type Match struct {
	Entry  *Entry
	Action string
}

// Interceptors returns the interceptor binding of the matched action
func (m *Match) Interceptors() []capability.InterceptorType {
	return m.Entry.Interceptors(m.Action)
}

// Table is an immutable, specificity-ordered list of controllers
type Table struct {
	entries      []*Entry
	interceptors map[string]capability.InterceptorType
}

// Entries returns the controllers in resolution order
func (t *Table) Entries() []*Entry {
	return t.entries
}

// Interceptor returns a registered interceptor type by identity
func (t *Table) Interceptor(id string) (capability.InterceptorType, bool) {
	it, ok := t.interceptors[id]
	return it, ok
}

// Len returns the number of controllers
func (t *Table) Len() int {
	return len(t.entries)
}

// Resolve finds the controller and action for a request path. A path no
// controller claims, or whose action is undefined on a controller without
// a main action, yields ok == false.
func (t *Table) Resolve(path string) (*Match, bool) {
	path = pattern.StripPath(path)

	for _, e := range t.entries {
		if e.Pattern.Specificity() > len(path) {
			continue
		}
		action, ok := e.Pattern.Match(path)
		if !ok {
			continue
		}
		if !e.Type.IsActionDefined(action) {
			if !e.Type.IsActionDefined(pattern.DefaultAction) {
				return nil, false
			}
			action = pattern.DefaultAction
		}
		return &Match{Entry: e, Action: action}, true
	}
	return nil, false
}

// Builder collects handler types for a new Table
type Builder struct {
	entries      []*Entry
	patterns     map[string]string
	controllers  map[string]bool
	interceptors map[string]capability.InterceptorType
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{
		patterns:     make(map[string]string),
		controllers:  make(map[string]bool),
		interceptors: make(map[string]capability.InterceptorType),
	}
}

// Register adds a controller type and keeps the entries in specificity
// order
func (b *Builder) Register(ct capability.ControllerType) error {
	p, err := pattern.Compile(ct.URLPattern())
	if err != nil {
		return fmt.Errorf("%s: %w", ct.Identity(), err)
	}
	if b.controllers[ct.Identity()] {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, ct.Identity())
	}
	if other, ok := b.patterns[p.Raw]; ok {
		return fmt.Errorf("%w: %s is declared by %s and %s", ErrDuplicatePattern, p.Raw, other, ct.Identity())
	}

	b.patterns[p.Raw] = ct.Identity()
	b.controllers[ct.Identity()] = true
	b.entries = append(b.entries, &Entry{Pattern: p, Type: ct})
	sortEntries(b.entries)
	return nil
}

// RegisterInterceptor adds an interceptor type
func (b *Builder) RegisterInterceptor(it capability.InterceptorType) error {
	if _, ok := b.interceptors[it.Identity()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, it.Identity())
	}
	b.interceptors[it.Identity()] = it
	return nil
}

// RegisterSet adds every controller and interceptor of s
func (b *Builder) RegisterSet(s capability.Set) error {
	for _, it := range s.Interceptors {
		if err := b.RegisterInterceptor(it); err != nil {
			return err
		}
	}
	for _, ct := range s.Controllers {
		if err := b.Register(ct); err != nil {
			return err
		}
	}
	return nil
}

// Build resolves every interceptor binding and returns the table. The
// builder should not be used afterwards.
func (b *Builder) Build() (*Table, error) {
	var errs []error
	for _, e := range b.entries {
		e.bindings = make(map[string][]capability.InterceptorType)
		for _, action := range e.Type.ActionNames() {
			ids, ok := e.Type.InterceptorsFor(action)
			if !ok {
				continue
			}
			bound := make([]capability.InterceptorType, 0, len(ids))
			for _, id := range ids {
				it, ok := b.interceptors[id]
				if !ok {
					errs = append(errs, fmt.Errorf("%w: %s (action %q of %s)", ErrUnboundInterceptor, id, action, e.Type.Identity()))
					continue
				}
				bound = append(bound, it)
			}
			e.bindings[action] = bound
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Table{entries: b.entries, interceptors: b.interceptors}, nil
}

// sortEntries orders by descending specificity, then by raw pattern
func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].Pattern.Specificity(), entries[j].Pattern.Specificity()
		if si != sj {
			return si > sj
		}
		return entries[i].Pattern.Raw < entries[j].Pattern.Raw
	})
}

// Router serves lookups against the live table
type Router struct {
	table atomic.Pointer[Table]
}

// EmptyTable returns a table that resolves nothing
func EmptyTable() *Table {
	return &Table{interceptors: map[string]capability.InterceptorType{}}
}

// New creates a router holding an empty table
func New() *Router {
	r := &Router{}
	r.table.Store(EmptyTable())
	return r
}

// Table returns the live table
func (r *Router) Table() *Table {
	return r.table.Load()
}

// Swap installs t and returns the previous table
func (r *Router) Swap(t *Table) *Table {
	return r.table.Swap(t)
}

// Resolve resolves path against the live table
func (r *Router) Resolve(path string) (*Match, bool) {
	return r.table.Load().Resolve(path)
}
