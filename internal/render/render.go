// Package render writes dispatch outcomes to HTTP responses.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/dispatch"
	"github.com/conduit-lang/weft/pkg/web"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrUnknownResult is returned for result kinds the renderer cannot write
	ErrUnknownResult = errors.New("unknown result kind")

	// ErrNoViews is returned when a view result is rendered without an engine
	ErrNoViews = errors.New("no template engine configured")

	// ErrFileNotAllowed is returned for file results outside the allowed dirs
	ErrFileNotAllowed = errors.New("file path not in allowed directories")
)

// Config configures a Renderer
type Config struct {
	// PrettyPrint indents JSON bodies
	PrettyPrint bool

	// AllowedDirs lists the directories file results may be served from.
	// File results are refused when it is empty.
	AllowedDirs []string
}

// Renderer is the default dispatch.Renderer
type Renderer struct {
	prettyPrint bool
	allowedDirs []string
	engine      TemplateEngine
	logger      *zap.Logger
}

// New creates a renderer. engine may be nil when the application has no
// views.
func New(cfg Config, engine TemplateEngine, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		prettyPrint: cfg.PrettyPrint,
		allowedDirs: cfg.AllowedDirs,
		engine:      engine,
		logger:      logger,
	}
}

var _ dispatch.Renderer = (*Renderer)(nil)

// Render writes o.Result. An empty result answers 204. A non-empty
// o.ContentType replaces the result's default content type.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, o *dispatch.Outcome) error {
	if o == nil || web.Empty(o.Result) {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	switch res := o.Result.(type) {
	case web.Text:
		return rd.write(w, status(res.Status), contentType(o, "text/plain; charset=utf-8"), []byte(res.Body))

	case web.JSON:
		body, err := rd.marshal(res.Value)
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return rd.write(w, status(res.Status), contentType(o, "application/json; charset=utf-8"), body)

	case web.View:
		if rd.engine == nil {
			return fmt.Errorf("view %q: %w", res.Name, ErrNoViews)
		}
		var buf bytes.Buffer
		if err := rd.engine.Execute(&buf, res.Name, res.Data); err != nil {
			return fmt.Errorf("view %q: %w", res.Name, err)
		}
		return rd.write(w, status(res.Status), contentType(o, "text/html; charset=utf-8"), buf.Bytes())

	case web.Redirect:
		http.Redirect(w, r, res.URL, res.StatusCode())
		return nil

	case web.Status:
		w.WriteHeader(int(res))
		return nil

	case web.File:
		return rd.file(w, r, o, res)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownResult, o.Result.ResultKind())
	}
}

func (rd *Renderer) marshal(v any) ([]byte, error) {
	if rd.prettyPrint {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func (rd *Renderer) write(w http.ResponseWriter, code int, ct string, body []byte) error {
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(code)
	_, err := w.Write(body)
	return err
}

func (rd *Renderer) file(w http.ResponseWriter, r *http.Request, o *dispatch.Outcome, res web.File) error {
	path, err := rd.validateFilePath(res.Path)
	if err != nil {
		return err
	}

	if res.Name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Name}))
	}
	if o.ContentType != "" {
		w.Header().Set("Content-Type", o.ContentType)
	}
	http.ServeFile(w, r, path)
	return nil
}

// validateFilePath resolves symlinks and checks the file lies in one of the
// allowed directories
func (rd *Renderer) validateFilePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}

	for _, dir := range rd.allowedDirs {
		root, err := filepath.EvalSymlinks(filepath.Clean(dir))
		if err != nil {
			continue
		}
		if root, err = filepath.Abs(root); err != nil {
			continue
		}
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	rd.logger.Warn("file result refused", zap.String("path", path))
	return "", fmt.Errorf("%s: %w", path, ErrFileNotAllowed)
}

func status(code int) int {
	if code == 0 {
		return http.StatusOK
	}
	return code
}

func contentType(o *dispatch.Outcome, def string) string {
	if o.ContentType != "" {
		return o.ContentType
	}
	return def
}
