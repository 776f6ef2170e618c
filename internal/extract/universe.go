package extract

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/weft/internal/descriptor"
	werrors "github.com/conduit-lang/weft/internal/errors"
)

// Universe is the set of parsed handler packages of one source tree
type Universe struct {
	fset     *token.FileSet
	module   string
	packages map[string]*Package
}

// Package is one parsed Go package
type Package struct {
	Name       string
	ImportPath string
	// Dir is the package directory relative to the source root, "." for
	// the root package
	Dir   string
	Files []*File

	types   map[string]*TypeDecl
	order   []string
	methods map[string][]*Method
}

// File is one parsed source file
type File struct {
	// Path is relative to the source root
	Path string
	AST  *ast.File
	// Imports maps the local package name to its import path
	Imports map[string]string
}

// Method is a method declaration and the file declaring it
type Method struct {
	Decl *ast.FuncDecl
	File *File
}

// Name returns the method name
func (m *Method) Name() string { return m.Decl.Name.Name }

// TypeDecl is a named type declared in a package
type TypeDecl struct {
	Name string
	Spec *ast.TypeSpec
	Doc  *ast.CommentGroup
	File *File
	Pkg  *Package
}

// NewUniverse creates an empty universe for the given module path
func NewUniverse(module string) *Universe {
	return &Universe{
		fset:     token.NewFileSet(),
		module:   module,
		packages: make(map[string]*Package),
	}
}

// Module returns the module path
func (u *Universe) Module() string { return u.module }

// FileSet returns the file set positions resolve against
func (u *Universe) FileSet() *token.FileSet { return u.fset }

// ImportPathFor returns the import path of a directory relative to the
// source root
func (u *Universe) ImportPathFor(dir string) string {
	dir = path.Clean(strings.ReplaceAll(dir, "\\", "/"))
	if dir == "." || dir == "" {
		return u.module
	}
	return u.module + "/" + dir
}

// AddFile parses src as the file at rel (slash separated, relative to the
// source root) and adds it to its package
func (u *Universe) AddFile(rel string, src []byte) (*File, error) {
	f, err := parser.ParseFile(u.fset, rel, src, parser.ParseComments)
	if err != nil {
		return nil, werrors.NewParseFailed(rel, err)
	}

	dir := path.Dir(rel)
	importPath := u.ImportPathFor(dir)
	pkg, ok := u.packages[importPath]
	if !ok {
		pkg = &Package{
			Name:       f.Name.Name,
			ImportPath: importPath,
			Dir:        dir,
			types:      make(map[string]*TypeDecl),
			methods:    make(map[string][]*Method),
		}
		u.packages[importPath] = pkg
	} else if pkg.Name != f.Name.Name {
		return nil, werrors.NewParseFailed(rel,
			fmt.Errorf("package %s conflicts with package %s in the same directory", f.Name.Name, pkg.Name))
	}

	file := &File{Path: rel, AST: f, Imports: fileImports(f)}
	pkg.Files = append(pkg.Files, file)
	pkg.index(file)
	return file, nil
}

// Package returns the package with the given import path
func (u *Universe) Package(importPath string) (*Package, bool) {
	p, ok := u.packages[importPath]
	return p, ok
}

// Packages returns all packages sorted by import path
func (u *Universe) Packages() []*Package {
	out := make([]*Package, 0, len(u.packages))
	for _, p := range u.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportPath < out[j].ImportPath })
	return out
}

// Lookup finds a type by package import path and name
func (u *Universe) Lookup(importPath, name string) (*TypeDecl, bool) {
	p, ok := u.packages[importPath]
	if !ok {
		return nil, false
	}
	return p.Type(name)
}

// Type returns the named type declared in p
func (p *Package) Type(name string) (*TypeDecl, bool) {
	t, ok := p.types[name]
	return t, ok
}

// Types returns the declared types in source order
func (p *Package) Types() []*TypeDecl {
	out := make([]*TypeDecl, len(p.order))
	for i, name := range p.order {
		out[i] = p.types[name]
	}
	return out
}

// Method returns the method of the named receiver type
func (p *Package) Method(recv, name string) (*Method, bool) {
	for _, m := range p.methods[recv] {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// Methods returns the methods of the named receiver type in file order
func (p *Package) Methods(recv string) []*Method {
	return p.methods[recv]
}

func (p *Package) index(f *File) {
	for _, decl := range f.AST.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(d.Specs) == 1 {
					doc = d.Doc
				}
				if _, dup := p.types[ts.Name.Name]; !dup {
					p.order = append(p.order, ts.Name.Name)
				}
				p.types[ts.Name.Name] = &TypeDecl{Name: ts.Name.Name, Spec: ts, Doc: doc, File: f, Pkg: p}
			}
		case *ast.FuncDecl:
			if recv := receiverName(d); recv != "" {
				p.methods[recv] = append(p.methods[recv], &Method{Decl: d, File: f})
			}
		}
	}
}

func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) != 1 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if id, ok := expr.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func fileImports(f *ast.File) map[string]string {
	out := make(map[string]string, len(f.Imports))
	for _, spec := range f.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		name := descriptor.DefaultImportName(p)
		if spec.Name != nil {
			name = spec.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		out[name] = p
	}
	return out
}
