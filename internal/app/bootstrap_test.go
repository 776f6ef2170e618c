package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/weft/internal/cli/config"
	"github.com/conduit-lang/weft/pkg/capability"
	"github.com/conduit-lang/weft/pkg/web"
)

type page struct{}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	views := filepath.Join(dir, "views")
	static := filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(views, 0o755))
	require.NoError(t, os.MkdirAll(static, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(views, "about.html"), []byte("<h1>{{.}}</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "robots.txt"), []byte("User-agent: *"), 0o644))

	cfg, err := config.LoadFrom(dir)
	require.NoError(t, err)
	cfg.Server.ViewsDir = views
	cfg.Server.StaticDir = static

	a, err := NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	require.NoError(t, a.Deploy(capability.Set{Controllers: []capability.ControllerType{
		&capability.ControllerSpec[page]{
			TypeName: "app.Pages",
			Pattern:  "/pages/*",
			Actions: []capability.Action[page]{
				{Name: "about", Invoke: func(*page) web.Result { return web.View{Name: "about", Data: "weft"} }},
			},
		},
	}}))
	h := a.Handler()

	rec := get(t, h, "/pages/about")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>weft</h1>", rec.Body.String())
	assert.Empty(t, rec.Result().Cookies(), "an untouched session is not saved")

	rec = get(t, h, "/robots.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User-agent: *", rec.Body.String())

	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
}

func TestNewFromConfigStoreError(t *testing.T) {
	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)
	cfg.Session.Store = "tape"

	_, err = NewFromConfig(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewFromConfigRateLimit(t *testing.T) {
	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Requests = 1

	a, err := NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	h := a.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/anything").Code)
	rec := get(t, h, "/anything")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code, "metrics are not throttled")
	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
}

func TestNewServer(t *testing.T) {
	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	a := New(Options{})
	gs, err := NewServer(cfg, a, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, gs.Run(ctx))

	assert.ErrorIs(t, a.Deploy(capability.Set{}), ErrShutdown, "the server shut the app down")
}
