package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/weft/internal/metrics"
	"github.com/conduit-lang/weft/internal/render"
	"github.com/conduit-lang/weft/internal/router"
	"github.com/conduit-lang/weft/internal/session"
	"github.com/conduit-lang/weft/pkg/capability"
	"github.com/conduit-lang/weft/pkg/web"
)

// journal records initializer calls across deployments
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type boot struct {
	app *web.Application
}

func initializer(j *journal, id string, initErr, destroyErr error) *capability.InitializerSpec[boot] {
	return &capability.InitializerSpec[boot]{
		TypeName:    id,
		Application: func(b *boot, a *web.Application) { b.app = a },
		Init: func(b *boot) error {
			j.add("init " + id)
			if initErr == nil {
				b.app.Set(id, true)
			}
			return initErr
		},
		Destroy: func(b *boot) error {
			j.add("destroy " + id)
			return destroyErr
		},
	}
}

type greeter struct {
	name string
}

func greeterSpec(id, body string) *capability.ControllerSpec[greeter] {
	return &capability.ControllerSpec[greeter]{
		TypeName: id,
		Pattern:  "/*",
		Params: []capability.Param[greeter]{{
			Name: "name",
			Type: "*string",
			Get:  func(g *greeter) any { return &g.name },
			Set: func(g *greeter, v any) bool {
				p, ok := v.(*string)
				if ok && p != nil {
					g.name = *p
				}
				return ok
			},
		}},
		Actions: []capability.Action[greeter]{
			{Name: "main", Invoke: func(g *greeter) web.Result { return web.TextResult(body + g.name) }},
			{Name: "boom", Invoke: func(*greeter) web.Result { panic("boom") }},
		},
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDeploy(t *testing.T) {
	j := &journal{}
	a := New(Options{Name: "shop", Renderer: render.New(render.Config{}, nil, nil)})

	rec := get(t, a.Handler(), "/")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing deployed yet")

	require.NoError(t, a.Deploy(
		capability.Set{Controllers: []capability.ControllerType{greeterSpec("app.V1", "v1 ")}},
		capability.Set{Initializers: []capability.InitializerType{
			initializer(j, "app.DB", nil, nil),
			initializer(j, "app.Cache", nil, nil),
		}},
	))

	rec = get(t, a.Handler(), "/?name=ada")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1 ada", rec.Body.String())
	assert.Equal(t, []string{"init app.DB", "init app.Cache"}, j.all())

	v, ok := a.Application().Get("app.DB")
	assert.True(t, ok)
	assert.Equal(t, true, v)
	assert.Equal(t, "shop", a.Application().Name())
	assert.Len(t, a.Deployed().Controllers, 1)
}

func TestRedeployDestroysPreviousInReverse(t *testing.T) {
	j := &journal{}
	a := New(Options{Renderer: render.New(render.Config{}, nil, nil)})

	require.NoError(t, a.Deploy(capability.Set{
		Controllers:  []capability.ControllerType{greeterSpec("app.V1", "v1 ")},
		Initializers: []capability.InitializerType{initializer(j, "app.A", nil, nil), initializer(j, "app.B", nil, nil)},
	}))
	require.NoError(t, a.Deploy(capability.Set{
		Controllers:  []capability.ControllerType{greeterSpec("app.V2", "v2 ")},
		Initializers: []capability.InitializerType{initializer(j, "app.C", nil, nil)},
	}))

	assert.Equal(t, []string{
		"init app.A", "init app.B",
		"init app.C",
		"destroy app.B", "destroy app.A",
	}, j.all())
	assert.Equal(t, "v2 ", get(t, a.Handler(), "/").Body.String())
}

func TestDeployInitFailureRollsBack(t *testing.T) {
	j := &journal{}
	a := New(Options{Renderer: render.New(render.Config{}, nil, nil)})
	require.NoError(t, a.Deploy(capability.Set{
		Controllers: []capability.ControllerType{greeterSpec("app.V1", "v1 ")},
	}))

	boom := errors.New("no database")
	err := a.Deploy(capability.Set{
		Controllers: []capability.ControllerType{greeterSpec("app.V2", "v2 ")},
		Initializers: []capability.InitializerType{
			initializer(j, "app.A", nil, nil),
			initializer(j, "app.B", nil, nil),
			initializer(j, "app.C", boom, nil),
			initializer(j, "app.D", nil, nil),
		},
	})

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "app.C", initErr.Initializer)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"init app.A", "init app.B", "init app.C", "destroy app.B", "destroy app.A"}, j.all())

	assert.Equal(t, "v1 ", get(t, a.Handler(), "/").Body.String(), "previous deployment keeps serving")
	assert.Equal(t, "app.V1", a.Deployed().Controllers[0].Identity())
}

func TestDeployRejectsInvalidTable(t *testing.T) {
	a := New(Options{})
	err := a.Deploy(capability.Set{Controllers: []capability.ControllerType{
		greeterSpec("app.A", ""),
		greeterSpec("app.B", ""),
	}})
	assert.ErrorIs(t, err, router.ErrDuplicatePattern)
	assert.Equal(t, 0, a.Router().Table().Len())
}

func TestShutdown(t *testing.T) {
	j := &journal{}
	sessions := session.NewManager(session.NewMemoryStore(time.Hour), session.DefaultConfig(), nil)
	closed := 0
	a := New(Options{
		Sessions: sessions,
		Renderer: render.New(render.Config{}, nil, nil),
		Closers:  []io.Closer{closerFunc(func() error { closed++; return nil })},
	})

	require.NoError(t, a.Deploy(capability.Set{
		Controllers:  []capability.ControllerType{greeterSpec("app.V1", "")},
		Initializers: []capability.InitializerType{initializer(j, "app.A", nil, nil), initializer(j, "app.B", nil, errors.New("stuck"))},
	}))

	err := a.Shutdown(context.Background())
	assert.ErrorContains(t, err, "stuck")
	assert.Equal(t, []string{"init app.A", "init app.B", "destroy app.B", "destroy app.A"}, j.all())
	assert.Equal(t, http.StatusNotFound, get(t, a.Handler(), "/").Code)

	assert.Equal(t, 1, closed)

	assert.NoError(t, a.Shutdown(context.Background()), "second shutdown is a no-op")
	assert.Equal(t, 1, closed)
	assert.ErrorIs(t, a.Deploy(capability.Set{}), ErrShutdown)
}

func TestHandlerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	collector := metrics.New()
	a := New(Options{
		Renderer:    render.New(render.Config{}, nil, nil),
		Metrics:     collector,
		MetricsPath: "/metrics",
		Fallback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Logger: zap.New(core),
	})
	require.NoError(t, a.Deploy(capability.Set{Controllers: []capability.ControllerType{
		&capability.ControllerSpec[greeter]{
			TypeName: "app.Users",
			Pattern:  "/users/*",
			Actions: []capability.Action[greeter]{
				{Name: "main", Invoke: func(*greeter) web.Result { return web.TextResult("users") }},
			},
		},
	}}))
	h := a.Handler()

	rec := get(t, h, "/users/")
	assert.Equal(t, "users", rec.Body.String())

	access := logs.FilterMessage("request").All()
	require.Len(t, access, 1)
	fields := access[0].ContextMap()
	assert.Equal(t, "/users/", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.NotEmpty(t, fields["request_id"])

	assert.Equal(t, http.StatusTeapot, get(t, h, "/elsewhere").Code)

	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `weft_dispatch_total{handler="app.Users",outcome="done"} 1`))
	assert.Contains(t, rec.Body.String(), `weft_deployed_handlers{kind="controller"} 1`)
}

func TestHandlerProfiler(t *testing.T) {
	a := New(Options{ProfilePath: "/debug"})
	assert.Equal(t, http.StatusOK, get(t, a.Handler(), "/debug/pprof/").Code)

	a = New(Options{})
	assert.Equal(t, http.StatusNotFound, get(t, a.Handler(), "/debug/pprof/").Code)
}

func TestHandlerDispatchFailure(t *testing.T) {
	a := New(Options{Renderer: render.New(render.Config{}, nil, nil)})
	require.NoError(t, a.Deploy(capability.Set{Controllers: []capability.ControllerType{greeterSpec("app.V1", "")}}))

	rec := get(t, a.Handler(), "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "dispatch_failed")
	assert.Contains(t, rec.Body.String(), "request_id")
}
