package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/scopes"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Holder owns the stored token of one linked account for the duration of a
// request. It is not safe for concurrent use.
//
// Two requests refreshing the same account at once both hit the token
// endpoint and the last write wins.
type Holder struct {
	db        *gorm.DB
	ledger    *scopes.Ledger
	account   *models.SocialAccount
	endpoint  Endpoint
	refresher Refresher
	now       func() time.Time

	token   *models.SocialToken
	loaded  bool
	current *Credential
}

// Option configures a Holder.
type Option func(*Holder)

// WithRefresher replaces the token endpoint client.
func WithRefresher(r Refresher) Option {
	return func(h *Holder) { h.refresher = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Holder) { h.now = now }
}

// NewHolder creates a holder for account refreshing against ep.
func NewHolder(db *gorm.DB, ledger *scopes.Ledger, account *models.SocialAccount, ep Endpoint, opts ...Option) *Holder {
	h := &Holder{
		db:        db,
		ledger:    ledger,
		account:   account,
		endpoint:  ep,
		refresher: OAuth2Refresher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Account returns the linked account this holder serves.
func (h *Holder) Account() *models.SocialAccount {
	return h.account
}

// StoredToken returns the account's most recently expiring token, or nil.
// Tokens without an expiry rank after dated ones on every driver.
func (h *Holder) StoredToken(ctx context.Context) (*models.SocialToken, error) {
	if h.loaded {
		return h.token, nil
	}
	var tok models.SocialToken
	err := h.db.WithContext(ctx).
		Where("account_id = ?", h.account.ID).
		Order("expires_at IS NULL, expires_at DESC, id DESC").
		First(&tok).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		h.token = nil
	case err != nil:
		return nil, err
	default:
		h.token = &tok
	}
	h.loaded = true
	return h.token, nil
}

// HasToken reports whether a stored token exists; when requireAccess is set
// the token must also carry an access token.
func (h *Holder) HasToken(ctx context.Context, requireAccess bool) bool {
	tok, err := h.StoredToken(ctx)
	if err != nil || tok == nil {
		return false
	}
	if requireAccess {
		return tok.Token != ""
	}
	return true
}

// Credential builds the credential from stored material without touching
// the network.
func (h *Holder) Credential(ctx context.Context) (Credential, error) {
	if h.endpoint.TokenURL == "" {
		return Credential{}, fmt.Errorf("%w (%s)", ErrMissingTokenURL, h.account.Provider)
	}
	tok, err := h.StoredToken(ctx)
	if err != nil {
		return Credential{}, err
	}
	if tok == nil {
		return Credential{}, fmt.Errorf("%w (%s account %d)", ErrNoToken, h.account.Provider, h.account.ID)
	}
	if tok.TokenSecret == "" {
		return Credential{}, fmt.Errorf("%w (%s account %d)", ErrMissingRefreshToken, h.account.Provider, h.account.ID)
	}

	var app models.SocialApp
	if err := h.db.WithContext(ctx).Where("provider = ?", h.account.Provider).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Credential{}, fmt.Errorf("%w (%s)", ErrNoApp, h.account.Provider)
		}
		return Credential{}, err
	}

	names, err := h.ledger.AccountScopeNames(ctx, h.account.ID)
	if err != nil {
		return Credential{}, err
	}

	cred := Credential{
		AccessToken:  tok.Token,
		RefreshToken: tok.TokenSecret,
		Scopes:       names,
		ClientID:     app.ClientID,
		ClientSecret: app.Secret,
		TokenURL:     h.endpoint.TokenURL,
	}
	if tok.ExpiresAt != nil {
		cred.Expiry = tok.ExpiresAt.UTC()
	}
	return cred, nil
}

// Refresh exchanges cred's refresh token for a new access token. Nothing is
// written; call Persist to store the result.
func (h *Holder) Refresh(ctx context.Context, cred Credential) (NewCredential, error) {
	log := logging.From(ctx).With(zap.String("provider", h.account.Provider), zap.Uint("account_id", h.account.ID))
	log.Info("refreshing credential")

	tok, err := h.refresher.Refresh(ctx, cred, h.endpoint)
	if err != nil {
		if IsPermanentRefreshError(err) {
			metrics.CredentialRefreshes.WithLabelValues(h.account.Provider, metrics.OutcomeRevoked).Inc()
			log.Warn("refresh token rejected, account must reconnect", zap.Error(err))
			return NewCredential{}, fmt.Errorf("%w: %v", ErrRevoked, err)
		}
		metrics.CredentialRefreshes.WithLabelValues(h.account.Provider, metrics.OutcomeError).Inc()
		log.Error("refresh failed", zap.Error(err))
		return NewCredential{}, fmt.Errorf("refresh %s token: %w", h.account.Provider, err)
	}
	metrics.CredentialRefreshes.WithLabelValues(h.account.Provider, metrics.OutcomeOK).Inc()

	next := cred
	next.AccessToken = tok.AccessToken
	if !tok.Expiry.IsZero() {
		next.Expiry = tok.Expiry.UTC()
	}
	rotated := tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken
	if rotated {
		next.RefreshToken = tok.RefreshToken
	}
	return NewCredential{Credential: next, Rotated: rotated}, nil
}

// Persist writes a refreshed credential back to the stored token row.
func (h *Holder) Persist(ctx context.Context, next NewCredential) error {
	tok, err := h.StoredToken(ctx)
	if err != nil {
		return err
	}
	if tok == nil {
		return ErrNoToken
	}

	updates := map[string]any{"token": next.AccessToken}
	if next.Rotated {
		updates["token_secret"] = next.RefreshToken
	}
	if !next.Expiry.IsZero() {
		updates["expires_at"] = next.Expiry.UTC()
	}
	if err := h.db.WithContext(ctx).Model(tok).Updates(updates).Error; err != nil {
		return fmt.Errorf("persist refreshed token: %w", err)
	}
	tok.Token = next.AccessToken
	if next.Rotated {
		tok.TokenSecret = next.RefreshToken
	}
	if !next.Expiry.IsZero() {
		expiry := next.Expiry.UTC()
		tok.ExpiresAt = &expiry
	}
	if next.Rotated {
		logging.From(ctx).Info("rotated refresh token", zap.String("provider", h.account.Provider), zap.Uint("account_id", h.account.ID))
	}
	return nil
}

// Current returns a usable credential, refreshing and persisting it first
// when the stored one has expired. The result is kept for the holder's
// lifetime and rechecked on every call.
func (h *Holder) Current(ctx context.Context) (Credential, error) {
	if h.current != nil && h.current.IsValid(h.now()) {
		return *h.current, nil
	}

	cred, err := h.Credential(ctx)
	if err != nil {
		return Credential{}, err
	}
	if !cred.IsValid(h.now()) {
		next, err := h.Refresh(ctx, cred)
		if err != nil {
			return Credential{}, err
		}
		if err := h.Persist(ctx, next); err != nil {
			return Credential{}, err
		}
		cred = next.Credential
	}
	h.current = &cred
	return cred, nil
}

// TokenSource adapts Current for vendor SDK clients.
func (h *Holder) TokenSource(ctx context.Context) oauth2.TokenSource {
	return holderSource{ctx: ctx, h: h}
}

type holderSource struct {
	ctx context.Context
	h   *Holder
}

func (s holderSource) Token() (*oauth2.Token, error) {
	cred, err := s.h.Current(s.ctx)
	if err != nil {
		return nil, err
	}
	return cred.Token(), nil
}
