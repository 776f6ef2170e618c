// Package specialize generates the executable form of handlers: Go source
// that fills the static tables of pkg/capability for one handler type.
//
// The generated code reads only the descriptor. Parameter access goes
// through closures with a checked type assertion, context injection and
// actions through method expressions, so a request does a bounded number
// of direct calls and no reflection.
package specialize

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"unicode"

	"github.com/conduit-lang/weft/internal/descriptor"
	werrors "github.com/conduit-lang/weft/internal/errors"
	"github.com/conduit-lang/weft/pkg/capability"
)

// Header starts every generated file
const Header = "// Code generated by weft. DO NOT EDIT."

// FilePrefix starts every generated file name
const FilePrefix = "zz_weft_"

// RegistryFile is the per-package file exposing WeftHandlers
const RegistryFile = FilePrefix + "handlers.go"

// RegistryFunc is the generated per-package accessor
const RegistryFunc = "WeftHandlers"

const (
	capabilityImport = "github.com/conduit-lang/weft/pkg/capability"
	convertImport    = "github.com/conduit-lang/weft/pkg/convert"
)

// Generator emits Go source for handler descriptors
type Generator struct {
	buf    *bytes.Buffer
	indent int
	// imports maps import path to an explicit name, "" for the default
	imports map[string]string
}

// NewGenerator creates a new code generator
func NewGenerator() *Generator {
	return &Generator{
		buf:     &bytes.Buffer{},
		imports: make(map[string]string),
	}
}

func (g *Generator) reset() {
	g.buf.Reset()
	g.indent = 0
	g.imports = make(map[string]string)
}

// FileName returns the generated file name for a handler type
func FileName(typeName string) string {
	return FilePrefix + snake(typeName) + ".go"
}

// SpecVar returns the package-level variable holding a handler's table
func SpecVar(typeName string) string {
	r := []rune(typeName)
	r[0] = unicode.ToUpper(r[0])
	return "weft" + string(r) + "Spec"
}

// Specialize returns the formatted Go source for one handler
func (g *Generator) Specialize(desc *descriptor.HandlerDescriptor) (string, error) {
	g.reset()
	g.imports[capabilityImport] = ""
	if len(desc.Converters()) > 0 {
		g.imports[convertImport] = ""
	}
	for _, ref := range desc.Imports() {
		g.addImport(ref)
	}

	var body bytes.Buffer
	saved := g.buf
	g.buf = &body
	switch desc.Kind {
	case capability.KindController:
		g.generateController(desc)
	case capability.KindInterceptor:
		g.generateInterceptor(desc)
	case capability.KindInitializer:
		g.generateInitializer(desc)
	default:
		g.buf = saved
		return "", werrors.NewCodeGenFailed(string(desc.Identity), fmt.Sprintf("unknown kind %v", desc.Kind))
	}
	g.buf = saved

	g.writeHeader(desc.Package)
	g.buf.Write(body.Bytes())

	return g.format(desc.Identity)
}

// Registry returns the formatted WeftHandlers file for one package
func (g *Generator) Registry(pkg string, descs []*descriptor.HandlerDescriptor) (string, error) {
	g.reset()
	g.imports[capabilityImport] = ""

	sorted := make([]*descriptor.HandlerDescriptor, len(descs))
	copy(sorted, descs)
	descriptor.SortByIdentity(sorted)

	g.writeHeader(pkg)
	g.writeLine("// %s returns the specialized handlers declared in package %s", RegistryFunc, pkg)
	g.writeLine("func %s() capability.Set {", RegistryFunc)
	g.indent++
	g.writeLine("return capability.Set{")
	g.indent++
	g.writeSetField(sorted, capability.KindController, "Controllers", "ControllerType")
	g.writeSetField(sorted, capability.KindInterceptor, "Interceptors", "InterceptorType")
	g.writeSetField(sorted, capability.KindInitializer, "Initializers", "InitializerType")
	g.indent--
	g.writeLine("}")
	g.indent--
	g.writeLine("}")

	return g.format(descriptor.Identity(pkg + "." + RegistryFunc))
}

func (g *Generator) writeSetField(descs []*descriptor.HandlerDescriptor, kind capability.Kind, field, typ string) {
	var names []string
	for _, d := range descs {
		if d.Kind == kind {
			names = append(names, SpecVar(d.TypeName))
		}
	}
	if len(names) == 0 {
		return
	}
	g.writeLine("%s: []capability.%s{", field, typ)
	g.indent++
	for _, n := range names {
		g.writeLine("%s,", n)
	}
	g.indent--
	g.writeLine("},")
}

func (g *Generator) generateController(d *descriptor.HandlerDescriptor) {
	t := d.TypeName
	g.writeLine("var %s = &capability.ControllerSpec[%s]{", SpecVar(t), t)
	g.indent++
	g.writeLine("TypeName: %q,", string(d.Identity))
	if d.Pattern != nil {
		g.writeLine("Pattern: %q,", d.Pattern.Raw)
	}
	g.generateParams(d)
	g.generateContexts(d)

	if len(d.Actions) > 0 {
		g.writeLine("Actions: []capability.Action[%s]{", t)
		g.indent++
		for _, a := range d.Actions {
			fields := []string{fmt.Sprintf("Name: %q", a.Name)}
			if a.ContentType != "" {
				fields = append(fields, fmt.Sprintf("ContentType: %q", a.ContentType))
			}
			if len(a.Interceptors) > 0 {
				ids := make([]string, len(a.Interceptors))
				for i, id := range a.Interceptors {
					ids[i] = fmt.Sprintf("%q", string(id))
				}
				fields = append(fields, fmt.Sprintf("Interceptors: []string{%s}", strings.Join(ids, ", ")))
			}
			fields = append(fields, fmt.Sprintf("Invoke: (*%s).%s", t, a.Method))
			g.writeLine("{%s},", strings.Join(fields, ", "))
		}
		g.indent--
		g.writeLine("},")
	}

	g.indent--
	g.writeLine("}")
}

func (g *Generator) generateInterceptor(d *descriptor.HandlerDescriptor) {
	t := d.TypeName
	g.writeLine("var %s = &capability.InterceptorSpec[%s]{", SpecVar(t), t)
	g.indent++
	g.writeLine("TypeName: %q,", string(d.Identity))
	g.generateParams(d)
	g.generateContexts(d)
	if d.Before != nil {
		g.writeLine("Before: (*%s).%s,", t, d.Before.Method)
		if d.Before.ContentType != "" {
			g.writeLine("BeforeContentType: %q,", d.Before.ContentType)
		}
	}
	if d.After != nil {
		g.writeLine("After: (*%s).%s,", t, d.After.Method)
		if d.After.ContentType != "" {
			g.writeLine("AfterContentType: %q,", d.After.ContentType)
		}
	}
	g.indent--
	g.writeLine("}")
}

func (g *Generator) generateInitializer(d *descriptor.HandlerDescriptor) {
	t := d.TypeName
	g.writeLine("var %s = &capability.InitializerSpec[%s]{", SpecVar(t), t)
	g.indent++
	g.writeLine("TypeName: %q,", string(d.Identity))
	if c, ok := d.Context(descriptor.ContextApplication); ok {
		g.writeLine("Application: (*%s).%s,", t, c.Setter)
	}
	g.generateLifecycle("Init", t, d.Init)
	g.generateLifecycle("Destroy", t, d.Destroy)
	g.indent--
	g.writeLine("}")
}

// generateLifecycle adapts Init or Destroy to func(*T) error
func (g *Generator) generateLifecycle(field, t string, m *descriptor.LifecycleMethod) {
	if m == nil {
		return
	}
	switch m.Results {
	case descriptor.ResultsError:
		g.writeLine("%s: (*%s).%s,", field, t, m.Method)
		return
	case descriptor.ResultsValuesAndError:
		g.writeLine("%s: func(h *%s) error {", field, t)
		g.indent++
		blanks := strings.Repeat("_, ", m.NumResults-1)
		g.writeLine("%serr := h.%s()", blanks, m.Method)
		g.writeLine("return err")
	default:
		g.writeLine("%s: func(h *%s) error {", field, t)
		g.indent++
		g.writeLine("h.%s()", m.Method)
		g.writeLine("return nil")
	}
	g.indent--
	g.writeLine("},")
}

func (g *Generator) generateParams(d *descriptor.HandlerDescriptor) {
	if len(d.Parameters) == 0 {
		return
	}
	t := d.TypeName
	g.writeLine("Params: []capability.Param[%s]{", t)
	g.indent++
	for _, p := range d.Parameters {
		g.writeLine("{")
		g.indent++
		g.writeLine("Name: %q,", p.Name)
		key := p.TypeKey
		if key == "" {
			key = p.Type
		}
		g.writeLine("Type: %q,", key)
		g.writeLine("Get: func(h *%s) any { return h.%s() },", t, p.Getter)
		g.writeLine("Set: func(h *%s, v any) bool {", t)
		g.indent++
		g.writeLine("if v == nil {")
		g.indent++
		g.writeLine("var zero %s", p.Type)
		g.writeLine("h.%s(zero)", p.Setter)
		g.writeLine("return true")
		g.indent--
		g.writeLine("}")
		g.writeLine("x, ok := v.(%s)", p.Type)
		g.writeLine("if ok {")
		g.indent++
		g.writeLine("h.%s(x)", p.Setter)
		g.indent--
		g.writeLine("}")
		g.writeLine("return ok")
		g.indent--
		g.writeLine("},")
		if p.Converter != "" {
			g.writeLine("Converter: func() convert.Converter { return new(%s) },", p.Converter)
		}
		g.indent--
		g.writeLine("},")
	}
	g.indent--
	g.writeLine("},")
}

func (g *Generator) generateContexts(d *descriptor.HandlerDescriptor) {
	if len(d.Contexts) == 0 {
		return
	}
	g.writeLine("Contexts: capability.Contexts[%s]{", d.TypeName)
	g.indent++
	for _, kind := range descriptor.ContextKinds {
		if c, ok := d.Context(kind); ok {
			g.writeLine("%s: (*%s).%s,", kind, d.TypeName, c.Setter)
		}
	}
	g.indent--
	g.writeLine("},")
}

func (g *Generator) addImport(ref descriptor.ImportRef) {
	name := ref.Name
	if name == descriptor.DefaultImportName(ref.Path) {
		name = ""
	}
	g.imports[ref.Path] = name
}

func (g *Generator) writeHeader(pkg string) {
	g.writeLine(Header)
	g.writeLine("")
	g.writeLine("package %s", pkg)
	g.writeLine("")
	g.writeImports()
	g.writeLine("")
}

// writeLine writes a formatted line with proper indentation
func (g *Generator) writeLine(format string, args ...interface{}) {
	if format == "" {
		g.buf.WriteString("\n")
		return
	}
	for i := 0; i < g.indent; i++ {
		g.buf.WriteString("\t")
	}
	if len(args) > 0 {
		g.buf.WriteString(fmt.Sprintf(format, args...))
	} else {
		g.buf.WriteString(format)
	}
	g.buf.WriteString("\n")
}

// writeImports writes the import block, stdlib first, then external
func (g *Generator) writeImports() {
	var std, ext []string
	for path := range g.imports {
		if strings.Contains(strings.SplitN(path, "/", 2)[0], ".") {
			ext = append(ext, path)
		} else {
			std = append(std, path)
		}
	}
	sort.Strings(std)
	sort.Strings(ext)

	g.writeLine("import (")
	g.indent++
	for _, p := range std {
		g.writeImportLine(p)
	}
	if len(std) > 0 && len(ext) > 0 {
		g.writeLine("")
	}
	for _, p := range ext {
		g.writeImportLine(p)
	}
	g.indent--
	g.writeLine(")")
}

func (g *Generator) writeImportLine(path string) {
	if name := g.imports[path]; name != "" {
		g.writeLine("%s %q", name, path)
		return
	}
	g.writeLine("%q", path)
}

func (g *Generator) format(id descriptor.Identity) (string, error) {
	src, err := format.Source(g.buf.Bytes())
	if err != nil {
		return "", werrors.NewFormatFailed(string(id), err)
	}
	return string(src), nil
}

func snake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
