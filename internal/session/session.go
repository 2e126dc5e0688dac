// Package session keeps per-browser state (signed-in user, flash messages,
// the active service choice) in a pluggable store keyed by a cookie.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/service-interactor/internal/config"
	"github.com/pysugar/service-interactor/internal/logging"
	"go.uber.org/zap"
)

// Well-known session keys.
const (
	KeyUserID          = "user_id"
	KeyActiveService   = "active_service_provider_id"
	KeyScopesReceived  = "scopes_received"
	KeyOAuthState      = "oauth_state"
	KeyOAuthProvider   = "oauth_provider"
	KeyOAuthProcess    = "oauth_process"
	KeyOAuthRedirectTo = "oauth_next"
)

// Flash levels.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type payload struct {
	Values  map[string]string `json:"values,omitempty"`
	Flashes []Flash           `json:"flashes,omitempty"`
}

// Session is the state of one browser. It is owned by a single request at a
// time and is not safe for concurrent use.
type Session struct {
	ID    string
	data  payload
	dirty bool
	isNew bool
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), isNew: true, data: payload{Values: map[string]string{}}}
}

// IsNew reports whether the session was created by this request.
func (s *Session) IsNew() bool { return s.isNew }

func (s *Session) Get(key string) string { return s.data.Values[key] }

func (s *Session) Lookup(key string) (string, bool) {
	v, ok := s.data.Values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if cur, ok := s.data.Values[key]; ok && cur == value {
		return
	}
	s.data.Values[key] = value
	s.dirty = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.data.Values[key]; !ok {
		return
	}
	delete(s.data.Values, key)
	s.dirty = true
}

// Pop returns the value of key and removes it.
func (s *Session) Pop(key string) (string, bool) {
	v, ok := s.data.Values[key]
	if ok {
		s.Delete(key)
	}
	return v, ok
}

// Clear drops every value and flash, e.g. on logout.
func (s *Session) Clear() {
	s.data = payload{Values: map[string]string{}}
	s.dirty = true
}

// AddFlash queues a message for the next page.
func (s *Session) AddFlash(level, message string) {
	s.data.Flashes = append(s.data.Flashes, Flash{Level: level, Message: message})
	s.dirty = true
}

// Flashes returns queued messages and clears them.
func (s *Session) Flashes() []Flash {
	out := s.data.Flashes
	if len(out) > 0 {
		s.data.Flashes = nil
		s.dirty = true
	}
	return out
}

// PeekFlashes returns queued messages without clearing them.
func (s *Session) PeekFlashes() []Flash { return s.data.Flashes }

// Manager loads and saves sessions around HTTP requests.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewManager creates a manager over store using the cookie settings of cfg.
func NewManager(store Store, cfg config.SessionConfig) *Manager {
	name := cfg.CookieName
	if name == "" {
		name = "interactor_session"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &Manager{store: store, cookieName: name, ttl: ttl, secure: cfg.Secure}
}

// Load returns the session named by the request cookie, or a new session
// when the cookie is missing, unknown or unreadable.
func (m *Manager) Load(r *http.Request) *Session {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return newSession()
	}
	ctx := r.Context()
	raw, ok, err := m.store.Load(ctx, c.Value)
	if err != nil {
		logging.From(ctx).Warn("session load failed", zap.Error(err))
		return newSession()
	}
	if !ok {
		return newSession()
	}
	s := &Session{ID: c.Value}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		logging.From(ctx).Warn("session decode failed", zap.Error(err))
		return newSession()
	}
	if s.data.Values == nil {
		s.data.Values = map[string]string{}
	}
	return s
}

// Save writes s to the store if it changed.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if !s.dirty {
		return nil
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, s.ID, raw, m.ttl); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Destroy removes s from the store and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.Clear()
	s.dirty = false
	return m.store.Delete(r.Context(), s.ID)
}

func (m *Manager) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware attaches the session to the request context and saves it after
// the handler returns. New sessions get their cookie before the handler runs.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Load(r)
		if s.isNew {
			http.SetCookie(w, m.cookie(s.ID))
		}
		ctx := WithSession(r.Context(), s)
		next.ServeHTTP(w, r.WithContext(ctx))
		if err := m.Save(ctx, s); err != nil {
			logging.From(ctx).Error("session save failed", zap.Error(err))
		}
	})
}

type ctxKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// New returns an empty unsaved session, for callers outside a request.
func New() *Session { return newSession() }
