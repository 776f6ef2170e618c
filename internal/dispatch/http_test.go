package dispatch

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/weft/internal/session"
	"github.com/conduit-lang/weft/pkg/web"
)

// textRenderer writes text results and status codes only
type textRenderer struct{}

func (textRenderer) Render(w http.ResponseWriter, r *http.Request, o *Outcome) error {
	if o.ContentType != "" {
		w.Header().Set("Content-Type", o.ContentType)
	}
	switch res := o.Result.(type) {
	case web.Text:
		w.WriteHeader(res.Status)
		_, err := w.Write([]byte(res.Body))
		return err
	case web.Status:
		w.WriteHeader(int(res))
	}
	return nil
}

func newHTTPDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *session.Manager) {
	t.Helper()
	f := &fixture{}
	sessions := session.NewManager(session.NewMemoryStore(time.Hour), session.Config{CookieName: "sid"}, nil)
	t.Cleanup(func() { sessions.Close() })
	opts = append([]Option{WithSessions(sessions), WithRenderer(textRenderer{})}, opts...)
	return New(f.table(t), opts...), sessions
}

func TestServeHTTP(t *testing.T) {
	d, _ := newHTTPDispatcher(t)

	req := httptest.NewRequest(http.MethodGet, "/account/?name=ada", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello ada", rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestServeHTTPFormValues(t *testing.T) {
	d, _ := newHTTPDispatcher(t)

	form := url.Values{"name": {"grace"}}
	req := httptest.NewRequest(http.MethodPost, "/account/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, "hello grace", rec.Body.String())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "linus"))
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/account/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, "hello linus", rec.Body.String())
}

func TestServeHTTPSessionRoundTrip(t *testing.T) {
	d, sessions := newHTTPDispatcher(t)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/?name=ada", nil))
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/account/", nil)
	req.AddCookie(cookie)
	sess := sessions.Load(req)
	assert.Equal(t, cookie.Value, sess.ID)
	v, _ := sess.Get("name")
	assert.Equal(t, "ada", v)
}

func TestServeHTTPUntouchedSession(t *testing.T) {
	f := &fixture{}
	store := session.NewMemoryStore(time.Hour)
	sessions := session.NewManager(store, session.Config{CookieName: "sid"}, nil)
	t.Cleanup(func() { sessions.Close() })
	d := New(f.table(t), WithSessions(sessions), WithRenderer(textRenderer{}))

	// nothing read or written, no cookie sent: nothing is stored
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 0, store.Count())

	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/?name=ada", nil))
	require.Len(t, rec.Result().Cookies(), 1)
	cookie := rec.Result().Cookies()[0]
	assert.Equal(t, 1, store.Count())

	// a returning client keeps its session alive even when nothing changes
	req := httptest.NewRequest(http.MethodGet, "/account/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, cookie.Value, rec.Result().Cookies()[0].Value)
	assert.Equal(t, 1, store.Count())
}

func TestServeHTTPShortCircuit(t *testing.T) {
	d, _ := newHTTPDispatcher(t)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/guarded?token=outer-before", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestServeHTTPNotFound(t *testing.T) {
	d, _ := newHTTPDispatcher(t)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("static"))
	})
	d, _ = newHTTPDispatcher(t, WithFallback(fallback))
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "static", rec.Body.String())
}

func TestServeHTTPDispatchError(t *testing.T) {
	d, _ := newHTTPDispatcher(t)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dispatch_failed", resp.Error)
	assert.Equal(t, "app.Account", resp.Handler)
	assert.Equal(t, PhaseAction, resp.Phase)
	assert.Empty(t, rec.Result().Cookies(), "a failed request does not save the session")
}

func TestServeHTTPMalformedBody(t *testing.T) {
	d, _ := newHTTPDispatcher(t)

	req := httptest.NewRequest(http.MethodPost, "/account/", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTPWithoutSessions(t *testing.T) {
	f := &fixture{}
	d := New(f.table(t), WithRenderer(textRenderer{}), WithApplication(web.NewApplication("test")))

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/whoami", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}
