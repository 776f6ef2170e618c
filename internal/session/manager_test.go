package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ MemoryStore }

func (*failingStore) Get(context.Context, string) (*Session, error) {
	return nil, errors.New("backend down")
}

func TestManagerFind(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, DefaultConfig(), nil)
	defer m.Close()
	ctx := context.Background()

	fresh := m.Find(ctx, "")
	_, err := uuid.Parse(fresh.ID)
	assert.NoError(t, err)

	unknown := m.Find(ctx, "does-not-exist")
	assert.NotEqual(t, "does-not-exist", unknown.ID)
	assert.NotEqual(t, fresh.ID, unknown.ID)

	fresh.Set("user", "ada")
	require.NoError(t, store.Set(ctx, fresh.ID, fresh, time.Hour))

	live := m.Find(ctx, fresh.ID)
	assert.Equal(t, fresh.ID, live.ID)
	v, _ := live.Get("user")
	assert.Equal(t, "ada", v)
}

func TestManagerFindStoreFailure(t *testing.T) {
	m := NewManager(&failingStore{}, Config{}, nil)
	sess := m.Find(context.Background(), "abc")
	require.NotNil(t, sess)
	assert.NotEqual(t, "abc", sess.ID)
}

type countingStore struct {
	MemoryStore
	gets int
}

func (s *countingStore) Get(context.Context, string) (*Session, error) {
	s.gets++
	return nil, ErrSessionNotFound
}

func TestManagerFindSkipsInvalidIDs(t *testing.T) {
	store := &countingStore{}
	m := NewManager(store, Config{}, nil)
	ctx := context.Background()

	for _, id := range []string{"", "a b", "weft:session:x", "s1\n"} {
		assert.NotEqual(t, id, m.Find(ctx, id).ID)
	}
	assert.Zero(t, store.gets)

	m.Find(ctx, "abc")
	assert.Equal(t, 1, store.gets)
}

func TestSessionChanged(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, DefaultConfig(), nil)
	defer m.Close()
	ctx := context.Background()

	assert.True(t, (&Session{ID: "s1"}).Changed())

	fresh := m.Find(ctx, "")
	ws, _, _ := fresh.Views()
	assert.False(t, fresh.Changed())
	ws.Get("user")
	assert.False(t, fresh.Changed(), "reads are not changes")
	ws.Set("user", "ada")
	assert.True(t, fresh.Changed())

	fresh.Messages = []string{"welcome"}
	require.NoError(t, m.Save(ctx, httptest.NewRecorder(), fresh))
	assert.False(t, fresh.Changed())

	loaded := m.Find(ctx, fresh.ID)
	lws, _, msgs := loaded.Views()
	assert.False(t, loaded.Changed())
	lws.Set("user", "ada")
	assert.False(t, loaded.Changed(), "same value")
	assert.Equal(t, []string{"welcome"}, msgs.Flush())
	assert.True(t, loaded.Changed())

	again := m.Find(ctx, fresh.ID)
	_, errs, _ := again.Views()
	errs.Add("email", "is required")
	assert.True(t, again.Changed())
}

func TestManagerNeedsSave(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), Config{CookieName: "sid"}, nil)
	defer m.Close()

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	sess := m.Load(anon)
	assert.False(t, m.NeedsSave(anon, sess))
	sess.Set("cart", 1)
	assert.True(t, m.NeedsSave(anon, sess))

	returning := httptest.NewRequest(http.MethodGet, "/", nil)
	returning.AddCookie(&http.Cookie{Name: "sid", Value: "expired-or-unknown"})
	assert.True(t, m.NeedsSave(returning, m.Load(returning)))
}

func TestManagerDefaults(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), Config{}, nil)
	defer m.Close()
	assert.Equal(t, "weft_session", m.Config().CookieName)
	assert.Equal(t, "/", m.Config().CookiePath)
	assert.Equal(t, 30*time.Minute, m.Config().TTL)
}

func TestManagerLoadAndSave(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), Config{CookieName: "sid", TTL: time.Hour, HttpOnly: true, SameSite: "strict"}, nil)
	defer m.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess := m.Load(req)
	_, errs, msgs := sess.Views()
	errs.Add("email", "is required")
	msgs.Add("saved")

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(req.Context(), rec, sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded := m.Load(next)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, []string{"is required"}, loaded.Errors["email"])
	assert.Equal(t, []string{"saved"}, loaded.Messages)

	rec = httptest.NewRecorder()
	require.NoError(t, m.Destroy(next.Context(), rec, loaded))
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
	assert.NotEqual(t, sess.ID, m.Load(next).ID)
}

func TestSessionViews(t *testing.T) {
	sess := &Session{ID: "s1"}
	ws, we, wm := sess.Views()

	ws.Set("k", "v")
	we.Add("f", "bad")
	wm.Add("hi")

	assert.Equal(t, "s1", ws.ID())
	assert.Equal(t, "v", sess.Data["k"])
	assert.Equal(t, []string{"bad"}, sess.Errors["f"])
	assert.Equal(t, []string{"hi"}, sess.Messages)

	assert.Equal(t, []string{"hi"}, wm.Flush())
	assert.Empty(t, sess.Messages)
}

func TestSessionClone(t *testing.T) {
	sess := NewSession("s1", time.Hour)
	sess.Set("k", "v")
	sess.Errors["f"] = []string{"a"}
	sess.Messages = []string{"m"}

	c := sess.Clone()
	c.Set("k", "changed")
	c.Errors["f"][0] = "changed"
	c.Messages[0] = "changed"

	assert.Equal(t, "v", sess.Data["k"])
	assert.Equal(t, "a", sess.Errors["f"][0])
	assert.Equal(t, "m", sess.Messages[0])
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, StoreConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	s.Close()

	var cfg StoreConfig
	cfg.Kind = StoreDatabase
	cfg.Database.Driver = "sqlite3"
	cfg.Database.DSN = ":memory:"
	cfg.Database.Table = "sessions"
	s, err = NewStore(ctx, cfg, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = NewStore(ctx, StoreConfig{Kind: "memcached"}, nil)
	assert.Error(t, err)

	_, err = NewStore(ctx, StoreConfig{Kind: StoreRedis, Redis: RedisConfig{Addr: "127.0.0.1:1"}}, nil)
	assert.Error(t, err)
}
