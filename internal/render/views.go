package render

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrViewNotFound is returned when no template file matches a view name
var ErrViewNotFound = errors.New("view not found")

// TemplateEngine executes named views
type TemplateEngine interface {
	Execute(w io.Writer, name string, data any) error
}

// LayoutsDir holds templates parsed alongside every view
const LayoutsDir = "layouts"

// ViewEngine renders html/template files from a directory. A view name maps
// to <dir>/<name>.html; names may include the extension. Templates under
// <dir>/layouts are parsed together with each view so views can invoke them.
type ViewEngine struct {
	dir    string
	reload bool
	funcs  template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewViewEngine creates an engine over dir. With reload set, templates are
// parsed on every call instead of once.
func NewViewEngine(dir string, reload bool, funcs template.FuncMap) *ViewEngine {
	return &ViewEngine{
		dir:    dir,
		reload: reload,
		funcs:  funcs,
		cache:  make(map[string]*template.Template),
	}
}

// Execute implements TemplateEngine
func (e *ViewEngine) Execute(w io.Writer, name string, data any) error {
	tmpl, err := e.lookup(name)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, data)
}

func (e *ViewEngine) lookup(name string) (*template.Template, error) {
	if !e.reload {
		e.mu.RLock()
		tmpl, ok := e.cache[name]
		e.mu.RUnlock()
		if ok {
			return tmpl, nil
		}
	}

	tmpl, err := e.parse(name)
	if err != nil {
		return nil, err
	}

	if !e.reload {
		e.mu.Lock()
		e.cache[name] = tmpl
		e.mu.Unlock()
	}
	return tmpl, nil
}

func (e *ViewEngine) parse(name string) (*template.Template, error) {
	file, err := e.resolve(name)
	if err != nil {
		return nil, err
	}

	tmpl := template.New(filepath.Base(file))
	if e.funcs != nil {
		tmpl = tmpl.Funcs(e.funcs)
	}
	tmpl, err = tmpl.ParseFiles(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse view %q: %w", name, err)
	}

	layouts, err := filepath.Glob(filepath.Join(e.dir, LayoutsDir, "*.html"))
	if err != nil {
		return nil, err
	}
	if len(layouts) > 0 {
		if tmpl, err = tmpl.ParseFiles(layouts...); err != nil {
			return nil, fmt.Errorf("failed to parse layouts: %w", err)
		}
	}
	return tmpl, nil
}

// resolve maps a view name to a file inside dir
func (e *ViewEngine) resolve(name string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" {
		return "", fmt.Errorf("%q: %w", name, ErrViewNotFound)
	}

	candidates := []string{clean}
	if path.Ext(clean) == "" {
		candidates = []string{clean + ".html", clean}
	}
	for _, c := range candidates {
		file := filepath.Join(e.dir, filepath.FromSlash(c))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			return file, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, ErrViewNotFound)
}
