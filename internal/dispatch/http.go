package dispatch

import (
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/session"
	"github.com/conduit-lang/weft/pkg/web"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxMemory bounds the in-memory part of multipart form parsing
const maxMemory = 32 << 20

// Renderer writes an outcome to the response
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, o *Outcome) error
}

type httpConfig struct {
	sessions    *session.Manager
	renderer    Renderer
	application *web.Application
	fallback    http.Handler
}

// WithSessions sets the session manager used to build the session, errors
// and messages contexts
func WithSessions(m *session.Manager) Option {
	return func(d *Dispatcher) { d.http.sessions = m }
}

// WithRenderer sets the result renderer
func WithRenderer(r Renderer) Option {
	return func(d *Dispatcher) { d.http.renderer = r }
}

// WithApplication sets the application context shared by every request
func WithApplication(app *web.Application) Option {
	return func(d *Dispatcher) { d.http.application = app }
}

// WithFallback sets the handler for paths no controller claims
func WithFallback(h http.Handler) Option {
	return func(d *Dispatcher) { d.http.fallback = h }
}

// ServeHTTP resolves the request path, runs the pipeline and renders the
// outcome. The session is saved before rendering so its cookie goes out
// with the response header, and only when the manager says it needs it.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, ok := d.router.Resolve(r.URL.Path)
	if !ok {
		d.notFound(w, r)
		return
	}

	if err := parseForm(r); err != nil {
		d.logger.Info("malformed request body", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var sess *session.Session
	if d.http.sessions != nil {
		sess = d.http.sessions.Load(r)
	} else {
		sess = &session.Session{}
	}
	ws, we, wm := sess.Views()

	app := d.http.application
	if app == nil {
		app = web.NewApplication("")
	}
	cookies := web.NewCookies(r.Cookies())

	in := Input{
		Contexts: web.Contexts{
			Application: app,
			Cookies:     cookies,
			Errors:      we,
			Messages:    wm,
			Request:     web.NewRequest(w, r, m.Action),
			Session:     ws,
		},
		Params: r.Form,
	}

	out, err := d.Execute(r.Context(), m, in)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	if d.http.sessions != nil && d.http.sessions.NeedsSave(r, sess) {
		if err := d.http.sessions.Save(r.Context(), w, sess); err != nil {
			d.logger.Warn("session not saved", zap.String("session", sess.ID), zap.Error(err))
		}
	}
	for _, c := range cookies.Outgoing() {
		http.SetCookie(w, c)
	}

	if d.http.renderer == nil {
		if !web.Empty(out.Result) {
			d.logger.Warn("no renderer configured, result dropped", zap.String("kind", out.Result.ResultKind()))
		}
		return
	}
	if err := d.http.renderer.Render(w, r, out); err != nil {
		d.logger.Error("render failed",
			zap.String("handler", out.Handler.Identity()),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
}

func (d *Dispatcher) notFound(w http.ResponseWriter, r *http.Request) {
	if d.http.fallback != nil {
		d.http.fallback.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

type errorResponse struct {
	Error     string `json:"error"`
	Handler   string `json:"handler,omitempty"`
	Phase     Phase  `json:"phase,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// fail logs a dispatch error and answers with a JSON 500
func (d *Dispatcher) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{
		Error:     "dispatch_failed",
		RequestID: middleware.GetReqID(r.Context()),
	}
	fields := []zap.Field{zap.String("path", r.URL.Path), zap.Error(err)}

	var de *Error
	if errors.As(err, &de) {
		resp.Handler = de.Handler
		resp.Phase = de.Phase
		fields = append(fields, zap.String("handler", de.Handler), zap.String("phase", string(de.Phase)))
		var pe *PanicError
		if errors.As(de.Err, &pe) {
			fields = append(fields, zap.ByteString("stack", pe.Stack))
		}
	}
	d.logger.Error("dispatch failed", fields...)

	body, encErr := json.Marshal(resp)
	if encErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write(body)
}

// parseForm fills r.Form with the query and body values
func parseForm(r *http.Request) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		err := r.ParseMultipartForm(maxMemory)
		if errors.Is(err, http.ErrNotMultipart) {
			return r.ParseForm()
		}
		return err
	}
	return r.ParseForm()
}
