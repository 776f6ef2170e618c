// Package extract reads handler declarations from parsed Go source and
// turns them into validated descriptors.
//
// A handler is a named type whose doc comment carries exactly one kind
// marker (+weft:controller, +weft:interceptor or +weft:initializer).
// Extraction checks the accessor convention for every context member and
// bindable parameter, the action and lifecycle method shapes, and every
// interceptor an action names. It never modifies the syntax trees it reads.
package extract

import (
	"fmt"
	"go/ast"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/descriptor"
	werrors "github.com/conduit-lang/weft/internal/errors"
	"github.com/conduit-lang/weft/internal/pattern"
	"github.com/conduit-lang/weft/pkg/capability"
	"github.com/conduit-lang/weft/pkg/web"
)

// TagKey is the struct tag key for bindable parameters
const TagKey = "weft"

// primitives are bare scalar types a parameter may not have: an absent
// request value could not be told apart from the zero value
var primitives = map[string]bool{
	"bool": true, "string": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
	"byte": true, "rune": true,
}

type result struct {
	desc *descriptor.HandlerDescriptor
	err  error
}

// Extractor builds handler descriptors from a Universe. Results are
// memoized, so an interceptor shared by many actions is checked once.
type Extractor struct {
	u      *Universe
	logger *zap.Logger
	memo   map[descriptor.Identity]result
	active map[descriptor.Identity]bool
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger used for skipped members
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// New creates an extractor over u
func New(u *Universe, opts ...Option) *Extractor {
	e := &Extractor{
		u:      u,
		logger: zap.NewNop(),
		memo:   make(map[descriptor.Identity]result),
		active: make(map[descriptor.Identity]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the descriptor of the handler type id, or a
// *errors.LoadError naming the handler and the member at fault
func (e *Extractor) Extract(id descriptor.Identity) (*descriptor.HandlerDescriptor, error) {
	if r, ok := e.memo[id]; ok {
		return r.desc, r.err
	}

	td, ok := e.u.Lookup(id.ImportPath(), id.TypeName())
	if !ok {
		err := werrors.NewNotAHandler(string(id))
		err.Message = fmt.Sprintf("Type '%s' is not declared in the source tree", id)
		return nil, err
	}

	e.active[id] = true
	desc, err := e.extract(td, id)
	delete(e.active, id)

	e.memo[id] = result{desc: desc, err: err}
	return desc, err
}

// ExtractPackage extracts every type in the package that carries a weft
// marker. Types without markers are not handlers and are not reported.
func (e *Extractor) ExtractPackage(importPath string) ([]*descriptor.HandlerDescriptor, werrors.ErrorList) {
	pkg, ok := e.u.Package(importPath)
	if !ok {
		return nil, nil
	}

	var (
		descs []*descriptor.HandlerDescriptor
		errs  werrors.ErrorList
	)
	for _, td := range pkg.Types() {
		if !hasMarker(td.Doc) {
			continue
		}
		d, err := e.Extract(descriptor.NewIdentity(pkg.ImportPath, td.Name))
		if err != nil {
			errs = append(errs, werrors.As(err))
			continue
		}
		descs = append(descs, d)
	}
	return descs, errs
}

// ExtractAll extracts every marked type of every package
func (e *Extractor) ExtractAll() ([]*descriptor.HandlerDescriptor, werrors.ErrorList) {
	var (
		descs []*descriptor.HandlerDescriptor
		errs  werrors.ErrorList
	)
	for _, pkg := range e.u.Packages() {
		d, el := e.ExtractPackage(pkg.ImportPath)
		descs = append(descs, d...)
		errs = append(errs, el...)
	}
	return descs, errs
}

func hasMarker(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(c.Text, "//")), MarkerPrefix) {
			return true
		}
	}
	return false
}

// scan holds the state of one type's extraction
type scan struct {
	e    *Extractor
	td   *TypeDecl
	id   descriptor.Identity
	desc *descriptor.HandlerDescriptor
}

func (e *Extractor) extract(td *TypeDecl, id descriptor.Identity) (*descriptor.HandlerDescriptor, error) {
	s := &scan{e: e, td: td, id: id}

	markers, err := ParseMarkers(td.Doc)
	if err != nil {
		return nil, s.markerError(td.Name, err, td.Spec)
	}

	var kinds []Marker
	for _, m := range markers {
		switch m.Name {
		case MarkerController, MarkerInterceptor, MarkerInitializer:
			kinds = append(kinds, m)
		default:
			return nil, werrors.NewUnknownMarker(string(id), td.Name, m.Text, "only valid on methods").
				WithLocation(s.loc(td.Spec))
		}
	}

	switch len(kinds) {
	case 0:
		return nil, werrors.NewNotAHandler(string(id)).WithLocation(s.loc(td.Spec))
	case 1:
	default:
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = k.Name
		}
		return nil, werrors.NewMultipleKinds(string(id), names).WithLocation(s.loc(td.Spec))
	}

	if td.Spec.TypeParams != nil {
		return nil, werrors.NewCodeGenFailed(string(id), "generic types cannot be handlers").
			WithLocation(s.loc(td.Spec))
	}

	kindMarker := kinds[0]
	s.desc = descriptor.New(kindOf(kindMarker.Name), id, td.Pkg.Name)
	s.desc.File = td.File.Path

	if err := s.fields(); err != nil {
		return nil, err
	}

	switch s.desc.Kind {
	case capability.KindController:
		err = s.controller(kindMarker)
	case capability.KindInterceptor:
		err = s.interceptor()
	case capability.KindInitializer:
		err = s.initializer()
	}
	if err != nil {
		return nil, err
	}
	return s.desc, nil
}

func kindOf(marker string) capability.Kind {
	switch marker {
	case MarkerInterceptor:
		return capability.KindInterceptor
	case MarkerInitializer:
		return capability.KindInitializer
	default:
		return capability.KindController
	}
}

func (s *scan) loc(n ast.Node) werrors.Location {
	pos := s.e.u.FileSet().Position(n.Pos())
	return werrors.Location{File: pos.Filename, Line: pos.Line, Column: pos.Column}
}

func (s *scan) markerError(member string, err error, n ast.Node) *werrors.LoadError {
	text, reason := "", err.Error()
	if me, ok := err.(*MarkerError); ok {
		text, reason = me.Text, me.Reason
	}
	return werrors.NewUnknownMarker(string(s.id), member, text, reason).WithLocation(s.loc(n))
}

func (s *scan) pkg() *Package { return s.td.Pkg }

// fields walks the struct members: tagged members become parameters,
// members typed as one of the six context kinds become context bindings
func (s *scan) fields() error {
	st, ok := s.td.Spec.Type.(*ast.StructType)
	if !ok {
		return nil
	}

	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			s.e.logger.Debug("skipping embedded field",
				zap.String("handler", string(s.id)),
				zap.String("type", exprString(field.Type)))
			continue
		}

		tag, tagged, err := s.tag(field)
		if err != nil {
			return err
		}

		for _, name := range field.Names {
			if tagged {
				if s.desc.Kind == capability.KindInitializer {
					s.e.logger.Debug("initializers take no parameters, ignoring tag",
						zap.String("handler", string(s.id)),
						zap.String("member", name.Name))
					continue
				}
				if err := s.param(name, field, tag); err != nil {
					return err
				}
				continue
			}
			if kind, ok := s.contextKind(field.Type, name.Name); ok {
				if err := s.context(name, kind, field); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type paramTag struct {
	name      string
	converter string
}

func (s *scan) tag(field *ast.Field) (paramTag, bool, error) {
	if field.Tag == nil {
		return paramTag{}, false, nil
	}
	raw, err := strconv.Unquote(field.Tag.Value)
	if err != nil {
		return paramTag{}, false, nil
	}
	value, ok := reflect.StructTag(raw).Lookup(TagKey)
	if !ok {
		return paramTag{}, false, nil
	}

	text := fmt.Sprintf("%s:%q", TagKey, value)
	parts := strings.Split(value, ",")
	if strings.TrimSpace(parts[0]) != "param" {
		return paramTag{}, false, werrors.NewUnknownMarker(string(s.id), field.Names[0].Name, text,
			`tag must start with "param"`).WithLocation(s.loc(field))
	}

	var t paramTag
	for _, opt := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "name":
			t.name = val
		case "converter":
			t.converter = val
		default:
			return paramTag{}, false, werrors.NewUnknownMarker(string(s.id), field.Names[0].Name, text,
				fmt.Sprintf("unknown option %q", key)).WithLocation(s.loc(field))
		}
		if val == "" {
			return paramTag{}, false, werrors.NewUnknownMarker(string(s.id), field.Names[0].Name, text,
				fmt.Sprintf("option %q needs a value", key)).WithLocation(s.loc(field))
		}
	}
	return t, true, nil
}

func (s *scan) param(name *ast.Ident, field *ast.Field, tag paramTag) error {
	member := name.Name
	typ := exprString(field.Type)

	if id, ok := field.Type.(*ast.Ident); ok && primitives[id.Name] {
		return werrors.NewPrimitiveParameter(string(s.id), member, typ).WithLocation(s.loc(name))
	}

	pname := tag.name
	if pname == "" {
		pname = lowerFirst(member)
	}
	if _, dup := s.desc.Parameter(pname); dup {
		return werrors.NewDuplicateParameter(string(s.id), member, pname).WithLocation(s.loc(name))
	}

	getter, setter, err := s.accessors(name, typ)
	if err != nil {
		return err
	}

	imports, err := s.imports(field.Type, s.td.File)
	if err != nil {
		return err
	}

	if tag.converter != "" {
		if err := s.converter(name, tag.converter); err != nil {
			return err
		}
	}

	s.desc.Parameters = append(s.desc.Parameters, descriptor.ParameterDescriptor{
		Name:      pname,
		Member:    member,
		Type:      typ,
		TypeKey:   typeKey(field.Type, s.td.File.Imports, s.pkg().ImportPath),
		Imports:   imports,
		Getter:    getter,
		Setter:    setter,
		Converter: tag.converter,
	})
	return nil
}

// contextKind reports whether expr is a pointer to one of the six context
// types. Other pkg/web types are skipped.
func (s *scan) contextKind(expr ast.Expr, member string) (descriptor.ContextKind, bool) {
	star, ok := expr.(*ast.StarExpr)
	if !ok {
		return "", false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	pkgName, ok := sel.X.(*ast.Ident)
	if !ok || s.td.File.Imports[pkgName.Name] != web.ImportPath {
		return "", false
	}

	kind, ok := descriptor.ParseContextKind(sel.Sel.Name)
	if !ok {
		s.e.logger.Debug("skipping unsupported context type",
			zap.String("handler", string(s.id)),
			zap.String("member", member),
			zap.String("type", exprString(expr)))
	}
	return kind, ok
}

func (s *scan) context(name *ast.Ident, kind descriptor.ContextKind, field *ast.Field) error {
	if _, dup := s.desc.Context(kind); dup {
		return werrors.NewDuplicateContext(string(s.id), name.Name, string(kind)).WithLocation(s.loc(name))
	}

	getter, setter, err := s.accessors(name, exprString(field.Type))
	if err != nil {
		return err
	}

	s.desc.Contexts = append(s.desc.Contexts, descriptor.ContextBinding{
		Kind:   kind,
		Member: name.Name,
		Getter: getter,
		Setter: setter,
	})
	return nil
}

// accessors checks the getter Foo() T and setter SetFoo(T) of member foo
func (s *scan) accessors(name *ast.Ident, typ string) (string, string, error) {
	member := name.Name
	getter := upperFirst(member)
	setter := "Set" + getter

	g, ok := s.pkg().Method(s.td.Name, getter)
	if !ok || countFields(g.Decl.Type.Params) != 0 || countFields(g.Decl.Type.Results) != 1 ||
		exprString(g.Decl.Type.Results.List[0].Type) != typ {
		return "", "", werrors.NewAccessorMissing(string(s.id), member, fmt.Sprintf("%s() %s", getter, typ)).
			WithLocation(s.loc(name))
	}

	st, ok := s.pkg().Method(s.td.Name, setter)
	if !ok || countFields(st.Decl.Type.Params) != 1 || countFields(st.Decl.Type.Results) != 0 ||
		exprString(st.Decl.Type.Params.List[0].Type) != typ {
		return "", "", werrors.NewAccessorMissing(string(s.id), member, fmt.Sprintf("%s(%s)", setter, typ)).
			WithLocation(s.loc(name))
	}

	return getter, setter, nil
}

// converter checks that name is a type in the handler's package with
// Convert([]string) (any, error)
func (s *scan) converter(member *ast.Ident, name string) error {
	fail := func(reason string) error {
		return werrors.NewInvalidConverter(string(s.id), member.Name, name, reason).WithLocation(s.loc(member))
	}

	if _, ok := s.pkg().Type(name); !ok {
		return fail("type is not declared in package " + s.pkg().Name)
	}
	m, ok := s.pkg().Method(name, "Convert")
	if !ok {
		return fail("missing method Convert([]string) (any, error)")
	}

	ft := m.Decl.Type
	if countFields(ft.Params) != 1 || exprString(ft.Params.List[0].Type) != "[]string" {
		return fail("Convert must take a single []string")
	}
	if countFields(ft.Results) != 2 {
		return fail("Convert must return (any, error)")
	}
	results := flatten(ft.Results)
	if first := exprString(results[0]); first != "any" && first != "interface{}" {
		return fail("Convert must return (any, error)")
	}
	if exprString(results[1]) != "error" {
		return fail("Convert must return (any, error)")
	}
	return nil
}

// imports resolves every package qualifier in a type expression against
// the declaring file's imports
func (s *scan) imports(expr ast.Expr, file *File) ([]descriptor.ImportRef, error) {
	var (
		refs []descriptor.ImportRef
		err  error
	)
	seen := make(map[string]bool)
	ast.Inspect(expr, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok || err != nil {
			return err == nil
		}
		id, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		p, ok := file.Imports[id.Name]
		if !ok {
			err = werrors.NewCodeGenFailed(string(s.id),
				fmt.Sprintf("cannot resolve package %q in %s; import it with an explicit name", id.Name, exprString(expr))).
				WithLocation(s.loc(sel))
			return false
		}
		if !seen[p] {
			seen[p] = true
			refs = append(refs, descriptor.ImportRef{Name: id.Name, Path: p})
		}
		return false
	})
	return refs, err
}

func (s *scan) controller(m Marker) error {
	raw, ok := m.Arg("url")
	if !ok || raw == "" || raw == "true" {
		return werrors.NewURLPatternMissing(string(s.id)).WithLocation(s.loc(s.td.Spec))
	}
	p, err := pattern.Compile(raw)
	if err != nil {
		return werrors.NewInvalidURLPattern(string(s.id), raw, err).WithLocation(s.loc(s.td.Spec))
	}
	s.desc.Pattern = &p

	for _, method := range s.pkg().Methods(s.td.Name) {
		am, err := s.actionMarker(method)
		if err != nil {
			return err
		}
		if am == nil {
			continue
		}
		if err := s.action(method, *am); err != nil {
			return err
		}
	}
	return nil
}

// actionMarker returns the single +weft:action marker of a method, if any
func (s *scan) actionMarker(m *Method) (*Marker, error) {
	markers, err := ParseMarkers(m.Decl.Doc)
	if err != nil {
		return nil, s.markerError(m.Name(), err, m.Decl)
	}
	switch len(markers) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, werrors.NewUnknownMarker(string(s.id), m.Name(), markers[1].Text, "more than one marker on a method").
			WithLocation(s.loc(m.Decl))
	}
	if markers[0].Name != MarkerAction {
		return nil, werrors.NewUnknownMarker(string(s.id), m.Name(), markers[0].Text, "only +weft:action is valid on methods").
			WithLocation(s.loc(m.Decl))
	}
	return &markers[0], nil
}

func (s *scan) action(m *Method, am Marker) error {
	ft := m.Decl.Type
	if countFields(ft.Params) != 0 {
		return werrors.NewInvalidActionSignature(string(s.id), m.Name(), "takes arguments").WithLocation(s.loc(m.Decl))
	}
	if countFields(ft.Results) != 1 || !s.isResult(ft.Results.List[0].Type, m.File) {
		return werrors.NewInvalidActionSignature(string(s.id), m.Name(), "does not return web.Result").WithLocation(s.loc(m.Decl))
	}

	name := lowerFirst(m.Name())
	if v, ok := am.Arg("name"); ok {
		name = v
	}
	if name == "" || pattern.ActionName(name) != name {
		return werrors.NewUnknownMarker(string(s.id), m.Name(), am.Text, "action names are letters and digits only").
			WithLocation(s.loc(m.Decl))
	}
	if _, dup := s.desc.Action(name); dup {
		return werrors.NewDuplicateAction(string(s.id), m.Name(), name).WithLocation(s.loc(m.Decl))
	}

	var interceptors []descriptor.Identity
	for _, ref := range am.List("interceptors") {
		id, err := s.interceptorRef(m, ref)
		if err != nil {
			return err
		}
		interceptors = append(interceptors, id)
	}

	contentType, _ := am.Arg("content-type")
	s.desc.Actions = append(s.desc.Actions, descriptor.ActionDescriptor{
		Name:         name,
		Method:       m.Name(),
		ContentType:  contentType,
		Interceptors: interceptors,
	})
	return nil
}

// interceptorRef resolves "Type", "alias.Type" or a full identity and
// checks that it names a valid interceptor
func (s *scan) interceptorRef(m *Method, ref string) (descriptor.Identity, error) {
	fail := func(reason string) *werrors.LoadError {
		return werrors.NewInvalidInterceptor(string(s.id), m.Name(), ref, reason).WithLocation(s.loc(m.Decl))
	}

	var id descriptor.Identity
	switch {
	case strings.Contains(ref, "/"):
		id = descriptor.Identity(ref)
	case strings.Contains(ref, "."):
		alias, typeName, _ := strings.Cut(ref, ".")
		p, ok := m.File.Imports[alias]
		if !ok {
			return "", fail(fmt.Sprintf("is not found: package %q is not imported", alias))
		}
		id = descriptor.NewIdentity(p, typeName)
	default:
		id = descriptor.NewIdentity(s.pkg().ImportPath, ref)
	}

	if s.e.active[id] {
		return "", fail("is not an interceptor")
	}
	if _, ok := s.e.u.Lookup(id.ImportPath(), id.TypeName()); !ok {
		return "", fail("is not found")
	}
	d, err := s.e.Extract(id)
	if err != nil {
		return "", fail("fails extraction: " + werrors.As(err).Message).WithCause(err)
	}
	if d.Kind != capability.KindInterceptor {
		return "", fail("is not an interceptor")
	}
	return id, nil
}

func (s *scan) interceptor() error {
	before, err := s.hook("Before")
	if err != nil {
		return err
	}
	after, err := s.hook("After")
	if err != nil {
		return err
	}
	s.desc.Before, s.desc.After = before, after

	// action markers on any other method are a mistake
	for _, m := range s.pkg().Methods(s.td.Name) {
		if m.Name() == "Before" || m.Name() == "After" {
			continue
		}
		if am, err := s.actionMarker(m); err != nil {
			return err
		} else if am != nil {
			return werrors.NewUnknownMarker(string(s.id), m.Name(), am.Text, "interceptor actions are Before and After only").
				WithLocation(s.loc(m.Decl))
		}
	}
	return nil
}

// hook checks an interceptor's Before or After: no arguments, web.Result
func (s *scan) hook(name string) (*descriptor.LifecycleMethod, error) {
	m, ok := s.pkg().Method(s.td.Name, name)
	if !ok {
		return nil, werrors.NewLifecycleMethodMissing(string(s.id), name+"() web.Result").WithLocation(s.loc(s.td.Spec))
	}
	ft := m.Decl.Type
	if countFields(ft.Params) != 0 {
		return nil, werrors.NewInvalidLifecycleSignature(string(s.id), name, "takes arguments").WithLocation(s.loc(m.Decl))
	}
	if countFields(ft.Results) != 1 || !s.isResult(ft.Results.List[0].Type, m.File) {
		return nil, werrors.NewInvalidLifecycleSignature(string(s.id), name, "does not return web.Result").WithLocation(s.loc(m.Decl))
	}

	am, err := s.actionMarker(m)
	if err != nil {
		return nil, err
	}
	lm := &descriptor.LifecycleMethod{Method: name, Results: descriptor.ResultsValues, NumResults: 1}
	if am != nil {
		if _, ok := am.Arg("name"); ok {
			return nil, werrors.NewUnknownMarker(string(s.id), name, am.Text, "interceptor hooks cannot be renamed").
				WithLocation(s.loc(m.Decl))
		}
		if _, ok := am.Arg("interceptors"); ok {
			return nil, werrors.NewUnknownMarker(string(s.id), name, am.Text, "interceptor hooks cannot be intercepted").
				WithLocation(s.loc(m.Decl))
		}
		lm.ContentType, _ = am.Arg("content-type")
	}
	return lm, nil
}

func (s *scan) initializer() error {
	init, err := s.lifecycle("Init")
	if err != nil {
		return err
	}
	destroy, err := s.lifecycle("Destroy")
	if err != nil {
		return err
	}
	s.desc.Init, s.desc.Destroy = init, destroy
	return nil
}

// lifecycle checks Init or Destroy: no arguments, any results. A trailing
// error result is propagated by the generated adapter.
func (s *scan) lifecycle(name string) (*descriptor.LifecycleMethod, error) {
	m, ok := s.pkg().Method(s.td.Name, name)
	if !ok {
		return nil, werrors.NewLifecycleMethodMissing(string(s.id), name+"()").WithLocation(s.loc(s.td.Spec))
	}
	ft := m.Decl.Type
	if countFields(ft.Params) != 0 {
		return nil, werrors.NewInvalidLifecycleSignature(string(s.id), name, "takes arguments").WithLocation(s.loc(m.Decl))
	}
	if am, err := s.actionMarker(m); err != nil {
		return nil, err
	} else if am != nil {
		return nil, werrors.NewUnknownMarker(string(s.id), name, am.Text, "initializer methods take no markers").
			WithLocation(s.loc(m.Decl))
	}

	results := flatten(ft.Results)
	lm := &descriptor.LifecycleMethod{Method: name, NumResults: len(results)}
	switch {
	case len(results) == 0:
		lm.Results = descriptor.ResultsNone
	case exprString(results[len(results)-1]) != "error":
		lm.Results = descriptor.ResultsValues
	case len(results) == 1:
		lm.Results = descriptor.ResultsError
	default:
		lm.Results = descriptor.ResultsValuesAndError
	}
	return lm, nil
}

func (s *scan) isResult(expr ast.Expr, file *File) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Result" {
		return false
	}
	id, ok := sel.X.(*ast.Ident)
	return ok && file.Imports[id.Name] == web.ImportPath
}

// countFields counts declared names, so (a, b int) counts two
func countFields(fl *ast.FieldList) int {
	if fl == nil {
		return 0
	}
	n := 0
	for _, f := range fl.List {
		if len(f.Names) == 0 {
			n++
		} else {
			n += len(f.Names)
		}
	}
	return n
}

// flatten returns one type expression per declared name
func flatten(fl *ast.FieldList) []ast.Expr {
	if fl == nil {
		return nil
	}
	var out []ast.Expr
	for _, f := range fl.List {
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, f.Type)
		}
	}
	return out
}
