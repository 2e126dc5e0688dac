package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pysugar/service-interactor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() (*Manager, *MemoryStore) {
	store := NewMemoryStore(time.Hour)
	return NewManager(store, config.SessionConfig{CookieName: "sid", TTL: time.Hour}), store
}

func TestMiddleware_NewSessionSetsCookieAndPersists(t *testing.T) {
	m, store := testManager()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		require.NotNil(t, s)
		assert.True(t, s.IsNew())
		s.Set(KeyUserID, "42")
		s.AddFlash(LevelSuccess, "welcome")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	_, ok, err := store.Load(context.Background(), cookies[0].Value)
	require.NoError(t, err)
	assert.True(t, ok)

	// second request carries the cookie and sees the values
	h2 := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		assert.False(t, s.IsNew())
		assert.Equal(t, "42", s.Get(KeyUserID))
		flashes := s.Flashes()
		require.Len(t, flashes, 1)
		assert.Equal(t, Flash{Level: LevelSuccess, Message: "welcome"}, flashes[0])
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h2.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies(), "existing session is not re-issued")

	// flashes were consumed
	loaded := m.Load(req)
	assert.Empty(t, loaded.PeekFlashes())
	assert.Equal(t, "42", loaded.Get(KeyUserID))
}

func TestLoad_UnknownCookieStartsFresh(t *testing.T) {
	m, _ := testManager()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "missing"})
	s := m.Load(req)
	assert.True(t, s.IsNew())
	assert.NotEqual(t, "missing", s.ID)
}

func TestLoad_CorruptPayloadStartsFresh(t *testing.T) {
	m, store := testManager()
	require.NoError(t, store.Save(context.Background(), "bad", []byte("{not json"), time.Minute))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "bad"})
	assert.True(t, m.Load(req).IsNew())
}

func TestSave_SkipsUnchanged(t *testing.T) {
	m, store := testManager()
	s := New()
	require.NoError(t, m.Save(context.Background(), s))
	_, ok, _ := store.Load(context.Background(), s.ID)
	assert.False(t, ok)

	s.Set("k", "v")
	require.NoError(t, m.Save(context.Background(), s))
	_, ok, _ = store.Load(context.Background(), s.ID)
	assert.True(t, ok)
}

func TestSession_PopAndClear(t *testing.T) {
	s := New()
	s.Set(KeyScopesReceived, "a b")
	v, ok := s.Pop(KeyScopesReceived)
	assert.True(t, ok)
	assert.Equal(t, "a b", v)
	_, ok = s.Lookup(KeyScopesReceived)
	assert.False(t, ok)

	s.Set(KeyUserID, "1")
	s.AddFlash(LevelInfo, "x")
	s.Clear()
	assert.Empty(t, s.Get(KeyUserID))
	assert.Empty(t, s.PeekFlashes())
}

func TestDestroy(t *testing.T) {
	m, store := testManager()
	s := New()
	s.Set(KeyUserID, "7")
	require.NoError(t, m.Save(context.Background(), s))

	rec := httptest.NewRecorder()
	require.NoError(t, m.Destroy(rec, httptest.NewRequest(http.MethodPost, "/logout", nil), s))
	_, ok, _ := store.Load(context.Background(), s.ID)
	assert.False(t, ok)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestOpen_Backends(t *testing.T) {
	st, err := Open(context.Background(), config.SessionConfig{Backend: config.SessionMemory, TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	_, err = Open(context.Background(), config.SessionConfig{Backend: "cookie"})
	assert.ErrorIs(t, err, config.ErrInvalidSessionBackend)
}

func TestRedisStore_Key(t *testing.T) {
	assert.Equal(t, "session:abc", NewRedisStore(nil, "session").key("abc"))
	assert.Equal(t, "abc", NewRedisStore(nil, "").key("abc"))
}
