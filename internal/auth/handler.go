package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/loginsync"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
	"github.com/pysugar/service-interactor/internal/session"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// ConnectionsPath is where the flow returns when no other target was given.
const ConnectionsPath = "/connections"

// Handler serves the login and callback endpoints of every configured
// provider.
type Handler struct {
	db         *gorm.DB
	syncer     *loginsync.Syncer
	clients    map[provider.Kind]*Client
	baseURL    string
	httpClient *http.Client
}

// Option configures a Handler.
type Option func(*Handler)

// WithBaseURL fixes the external URL used to build redirect URLs.
func WithBaseURL(u string) Option {
	return func(h *Handler) { h.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for token and profile requests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.httpClient = c }
}

func NewHandler(db *gorm.DB, syncer *loginsync.Syncer, clients map[provider.Kind]*Client, opts ...Option) *Handler {
	h := &Handler{db: db, syncer: syncer, clients: clients, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the auth endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/auth/{provider}/login", h.Login)
	r.Get("/auth/{provider}/callback", h.Callback)
	r.Post("/auth/logout", h.Logout)
}

func (h *Handler) client(r *http.Request) (*Client, bool) {
	kind, err := provider.ParseKind(chi.URLParam(r, "provider"))
	if err != nil {
		return nil, false
	}
	c, ok := h.clients[kind]
	return c, ok
}

// redirectURL builds the callback URL from the configured base URL, or from
// the request when none is set.
func (h *Handler) redirectURL(r *http.Request, kind provider.Kind) string {
	base := h.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	return fmt.Sprintf("%s/auth/%s/callback", base, kind)
}

// isPrivateIP reports whether host is a private network address.
func isPrivateIP(host string) bool {
	hostOnly := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostOnly = h
	}
	if hostOnly == "localhost" || hostOnly == "127.0.0.1" {
		return false
	}
	ip := net.ParseIP(hostOnly)
	if ip == nil {
		return false
	}
	return ip.IsPrivate()
}

// safeNext keeps only local absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

// Login redirects to the provider's consent page. The optional "scope"
// parameter adds scopes to the request; "next" is where the callback
// returns to.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	state := uuid.NewString()
	sess.Set(session.KeyOAuthState, state)
	sess.Set(session.KeyOAuthProvider, string(c.Kind))
	if next := safeNext(r.URL.Query().Get("next")); next != "" {
		sess.Set(session.KeyOAuthRedirectTo, next)
	} else {
		sess.Delete(session.KeyOAuthRedirectTo)
	}

	conf := c.config(h.redirectURL(r, c.Kind), scopes.Parse(r.URL.Query().Get("scope")))
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	}
	opts = append(opts, c.AuthParams...)

	// Google requires device_id and device_name for private IP addresses
	if c.Kind == provider.KindGoogle && isPrivateIP(r.Host) {
		deviceID := make([]byte, 16)
		_, _ = rand.Read(deviceID)
		opts = append(opts,
			oauth2.SetAuthURLParam("device_id", hex.EncodeToString(deviceID)),
			oauth2.SetAuthURLParam("device_name", "service-interactor"),
		)
	}

	http.Redirect(w, r, conf.AuthCodeURL(state, opts...), http.StatusTemporaryRedirect)
}

// Callback completes the code exchange, records the user, account and
// token, and runs login sync.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.client(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	log := logging.From(ctx).With(zap.String("provider", string(c.Kind)))
	sess := session.FromContext(ctx)
	if sess == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	wantState, _ := sess.Pop(session.KeyOAuthState)
	wantProvider, _ := sess.Pop(session.KeyOAuthProvider)
	next, _ := sess.Pop(session.KeyOAuthRedirectTo)
	sess.Delete(session.KeyScopesReceived)
	if next == "" {
		next = ConnectionsPath
	}

	if reason := q.Get("error"); reason != "" {
		log.Info("authorization denied", zap.String("error", reason))
		sess.AddFlash(session.LevelError, fmt.Sprintf("%s login was cancelled.", c.Kind.Name()))
		http.Redirect(w, r, ConnectionsPath, http.StatusFound)
		return
	}
	if wantState == "" || q.Get("state") != wantState || wantProvider != string(c.Kind) {
		http.Error(w, "Invalid state token", http.StatusBadRequest)
		return
	}

	httpClient := h.httpClient
	if c.UserAgent != "" {
		httpClient = credential.WithUserAgent(httpClient, c.UserAgent)
	}
	exCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	conf := c.config(h.redirectURL(r, c.Kind), nil)

	tok, err := conf.Exchange(exCtx, q.Get("code"))
	if err != nil {
		log.Error("token exchange failed", zap.Error(err))
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}
	// Some providers only report the granted scopes in the token response.
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		sess.Set(session.KeyScopesReceived, granted)
	}

	prof, err := fetchProfile(exCtx, c, conf, tok)
	if err != nil {
		log.Error("profile fetch failed", zap.Error(err))
		http.Error(w, "Failed to get user info", http.StatusBadGateway)
		return
	}

	var currentUser uint
	if id, err := strconv.ParseUint(sess.Get(session.KeyUserID), 10, 64); err == nil {
		currentUser = uint(id)
	}
	res, err := h.store(ctx, c, currentUser, prof, tok)
	if err != nil {
		log.Error("failed to save account", zap.Error(err))
		http.Error(w, "Failed to save account", http.StatusInternalServerError)
		return
	}

	if res.AccountCreated {
		if err := h.syncer.OnAccountAdded(ctx, res.User.ID, &res.Account); err != nil {
			log.Error("account sync failed", zap.Error(err))
			http.Error(w, "Failed to link account", http.StatusInternalServerError)
			return
		}
	}
	sess.Set(session.KeyUserID, strconv.FormatUint(uint64(res.User.ID), 10))
	if err := h.syncer.OnUserLoggedIn(ctx, res.User.ID); err != nil {
		log.Error("login sync failed", zap.Error(err))
		http.Error(w, "Failed to link account", http.StatusInternalServerError)
		return
	}
	if _, err := h.syncer.OnSocialLogin(ctx, sess, loginsync.Login{
		UserID:  res.User.ID,
		Account: &res.Account,
		Scope:   q.Get("scope"),
	}); err != nil {
		log.Error("scope sync failed", zap.Error(err))
		http.Error(w, "Failed to record scopes", http.StatusInternalServerError)
		return
	}

	log.Info("account connected",
		zap.Uint("user_id", res.User.ID),
		zap.Uint("account_id", res.Account.ID),
		zap.Bool("new_account", res.AccountCreated))
	http.Redirect(w, r, next, http.StatusFound)
}

// Logout forgets the signed-in user.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess != nil {
		sess.Clear()
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
