package deploy

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/weft/internal/specialize"
)

// storeTree is a small application exercising the shapes the specializer
// has to get right: value receivers, aliased imports in parameter types,
// interceptors with parameters, and Init/Destroy without a bare error
// result.
func storeTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"go.mod": "module example.com/store\n\ngo 1.23.1\n\nrequire github.com/conduit-lang/weft v0.0.0\n",
		"main.go": `package main

import (
	"example.com/store/weftgen"

	"github.com/conduit-lang/weft/pkg/serve"
)

func main() {
	serve.Main(weftgen.Handlers())
}
`,
		"main_test.go": `package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/store/weftgen"

	"github.com/conduit-lang/weft/pkg/serve"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestStore(t *testing.T) {
	h, shutdown, err := serve.Handler(context.Background(), serve.Options{}, weftgen.Handlers())
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(context.Background())
	srv := httptest.NewServer(h)
	defer srv.Close()

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/users/", 200, "users started=true"},
		{"/users/show?id=010&wait=1m30s&token=secret", 200, "user 10 wait 1m30s"},
		{"/users/show?id=7&wait=1s", 403, ""},
		{"/users/show?id=x&wait=1s&token=secret", 500, ""},
	}
	for _, tt := range tests {
		code, body := get(t, srv.URL+tt.path)
		if code != tt.code {
			t.Errorf("GET %s: status %d, want %d (%s)", tt.path, code, tt.code, body)
		}
		if tt.body != "" && body != tt.body {
			t.Errorf("GET %s: body %q, want %q", tt.path, body, tt.body)
		}
	}
}
`,
		"shop/users.go": `package shop

import (
	"fmt"
	tm "time"

	"github.com/conduit-lang/weft/pkg/web"
)

// +weft:controller url=/users/*
type Users struct {
	id          *int         ` + "`weft:\"param\"`" + `
	wait        *tm.Duration ` + "`weft:\"param\"`" + `
	application *web.Application
}

func (u *Users) Id() *int                          { return u.id }
func (u *Users) SetId(v *int)                      { u.id = v }
func (u *Users) Wait() *tm.Duration                { return u.wait }
func (u *Users) SetWait(v *tm.Duration)            { u.wait = v }
func (u *Users) Application() *web.Application     { return u.application }
func (u *Users) SetApplication(a *web.Application) { u.application = a }

// +weft:action
func (u Users) Main() web.Result {
	started, _ := u.application.Get("started")
	return web.TextResult(fmt.Sprintf("users started=%v", started))
}

// +weft:action interceptors=Auth
func (u *Users) Show() web.Result {
	return web.TextResult(fmt.Sprintf("user %d wait %s", *u.id, *u.wait))
}
`,
		"shop/auth.go": `package shop

import "github.com/conduit-lang/weft/pkg/web"

// +weft:interceptor
type Auth struct {
	token *string ` + "`weft:\"param\"`" + `
}

func (a *Auth) Token() *string     { return a.token }
func (a *Auth) SetToken(v *string) { a.token = v }

func (a *Auth) Before() web.Result {
	if a.token == nil || *a.token != "secret" {
		return web.Status(403)
	}
	return nil
}

func (a Auth) After() web.Result { return nil }
`,
		"boot/start.go": `package boot

import "github.com/conduit-lang/weft/pkg/web"

// +weft:initializer
type Start struct {
	application *web.Application
}

func (s *Start) Application() *web.Application     { return s.application }
func (s *Start) SetApplication(a *web.Application) { s.application = a }

func (s *Start) Init() (int, error) {
	s.application.Set("started", true)
	return 1, nil
}

func (s *Start) Destroy() {}
`,
	})
	return src
}

// moduleRoot is the root of the weft module, which the generated tree
// imports
func moduleRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs(filepath.Join("..", ".."))
	require.NoError(t, err)
	m, err := ModulePath(root)
	require.NoError(t, err)
	require.Equal(t, "github.com/conduit-lang/weft", m)
	return root
}

func goTool(t *testing.T) string {
	t.Helper()
	p, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not found")
	}
	return p
}

// treeImporter type-checks the packages of a generated tree from source
// and everything else from compiled export data
type treeImporter struct {
	fset   *token.FileSet
	module string
	dir    string
	files  map[string][]*ast.File
	pkgs   map[string]*types.Package
	gc     types.Importer
}

func newTreeImporter(t *testing.T, module, dir string, rels []string) *treeImporter {
	t.Helper()
	ti := &treeImporter{
		fset:   token.NewFileSet(),
		module: module,
		dir:    dir,
		files:  make(map[string][]*ast.File),
		pkgs:   make(map[string]*types.Package),
	}

	external := make(map[string]bool)
	for _, rel := range rels {
		entries, err := os.ReadDir(filepath.Join(dir, filepath.FromSlash(rel)))
		require.NoError(t, err)
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			f, err := parser.ParseFile(ti.fset, filepath.Join(dir, filepath.FromSlash(rel), name), nil, 0)
			require.NoError(t, err)
			ti.files[ti.importPath(rel)] = append(ti.files[ti.importPath(rel)], f)
			for _, spec := range f.Imports {
				p, err := strconv.Unquote(spec.Path.Value)
				require.NoError(t, err)
				if _, ok := ti.rel(p); !ok {
					external[p] = true
				}
			}
		}
	}

	exports := exportData(t, moduleRoot(t), external)
	ti.gc = importer.ForCompiler(ti.fset, "gc", func(path string) (io.ReadCloser, error) {
		f, ok := exports[path]
		if !ok {
			return nil, fmt.Errorf("no export data for %s", path)
		}
		return os.Open(f)
	})
	return ti
}

func (ti *treeImporter) importPath(rel string) string {
	if rel == "." {
		return ti.module
	}
	return ti.module + "/" + rel
}

func (ti *treeImporter) rel(path string) (string, bool) {
	if path == ti.module {
		return ".", true
	}
	if strings.HasPrefix(path, ti.module+"/") {
		return strings.TrimPrefix(path, ti.module+"/"), true
	}
	return "", false
}

func (ti *treeImporter) Import(path string) (*types.Package, error) {
	if p, ok := ti.pkgs[path]; ok {
		return p, nil
	}
	if _, ok := ti.rel(path); !ok {
		return ti.gc.Import(path)
	}
	files, ok := ti.files[path]
	if !ok {
		return nil, fmt.Errorf("package %s is not part of the tree", path)
	}
	conf := types.Config{Importer: ti}
	p, err := conf.Check(path, ti.fset, files, nil)
	if err != nil {
		return nil, err
	}
	ti.pkgs[path] = p
	return p, nil
}

// exportData builds paths and their dependencies inside the weft module
// and returns the export data file of each package
func exportData(t *testing.T, root string, paths map[string]bool) map[string]string {
	t.Helper()
	args := []string{"list", "-export", "-deps", "-f", "{{.ImportPath}}\t{{.Export}}"}
	for p := range paths {
		args = append(args, p)
	}
	sort.Strings(args[5:])

	cmd := exec.Command(goTool(t), args...)
	cmd.Dir = root
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	require.NoError(t, err, stderr.String())

	exports := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		path, file, ok := strings.Cut(line, "\t")
		if ok && file != "" {
			exports[path] = file
		}
	}
	return exports
}

func TestGeneratedTreeTypeChecks(t *testing.T) {
	if testing.Short() {
		t.Skip("compiles the weft packages the generated tree imports")
	}
	goTool(t)

	out := t.TempDir()
	res := load(t, storeTree(t), out)
	require.True(t, res.Success, "%v", res.Failures)
	require.Len(t, res.Controllers, 1)
	require.Len(t, res.Interceptors, 1)
	require.Len(t, res.Initializers, 1)

	ti := newTreeImporter(t, res.Module, out, []string{".", "shop", "boot", specialize.AggregateDir})
	for _, rel := range []string{"shop", "boot", specialize.AggregateDir, "."} {
		_, err := ti.Import(ti.importPath(rel))
		require.NoError(t, err, rel)
	}

	handlers := ti.pkgs[res.Module+"/"+specialize.AggregateDir].Scope().Lookup("Handlers")
	require.NotNil(t, handlers)
	require.Equal(t, "func() github.com/conduit-lang/weft/pkg/capability.Set", handlers.Type().String())
}

func TestGeneratedTreeServes(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and tests the generated tree")
	}
	tool := goTool(t)
	root := moduleRoot(t)

	work := t.TempDir()
	out := filepath.Join(work, "store")
	res := load(t, storeTree(t), out)
	require.True(t, res.Success, "%v", res.Failures)

	workFile := filepath.Join(work, "go.work")
	require.NoError(t, os.WriteFile(workFile,
		[]byte(fmt.Sprintf("go 1.23.1\n\nuse (\n\t./store\n\t%s\n)\n", filepath.ToSlash(root))), 0644))

	cmd := exec.Command(tool, "test", "-count=1", "./...")
	cmd.Dir = out
	cmd.Env = append(os.Environ(), "GOWORK="+workFile, "GOFLAGS=")
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, string(output))
}
