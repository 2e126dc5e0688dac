// Package services resolves linked accounts to their provider adapters.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/provider/facebook"
	"github.com/pysugar/service-interactor/internal/provider/google"
	"github.com/pysugar/service-interactor/internal/provider/microsoft"
	"github.com/pysugar/service-interactor/internal/provider/reddit"
	"github.com/pysugar/service-interactor/internal/scopes"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// Factory builds request-scoped adapters for linked accounts.
type Factory struct {
	db     *gorm.DB
	ledger *scopes.Ledger

	refresher       credential.Refresher
	redditUserAgent string
	googleOpts      []option.ClientOption
	microsoftOpts   []microsoft.Option
}

// Option configures a Factory.
type Option func(*Factory)

// WithRefresher replaces the token endpoint client used by every holder.
func WithRefresher(r credential.Refresher) Option {
	return func(f *Factory) { f.refresher = r }
}

// WithRedditUserAgent sets the user agent sent to Reddit.
func WithRedditUserAgent(ua string) Option {
	return func(f *Factory) { f.redditUserAgent = ua }
}

// WithGoogleOptions appends client options to every Google API client.
func WithGoogleOptions(opts ...option.ClientOption) Option {
	return func(f *Factory) { f.googleOpts = append(f.googleOpts, opts...) }
}

// WithMicrosoftOptions appends options to every Microsoft adapter.
func WithMicrosoftOptions(opts ...microsoft.Option) Option {
	return func(f *Factory) { f.microsoftOpts = append(f.microsoftOpts, opts...) }
}

// NewFactory creates a factory over db.
func NewFactory(db *gorm.DB, ledger *scopes.Ledger, opts ...Option) *Factory {
	f := &Factory{db: db, ledger: ledger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DB returns the factory's database handle.
func (f *Factory) DB() *gorm.DB { return f.db }

// Ledger returns the scope ledger adapters are built with.
func (f *Factory) Ledger() *scopes.Ledger { return f.ledger }

func (f *Factory) holder(account *models.SocialAccount, ep credential.Endpoint) *credential.Holder {
	var opts []credential.Option
	if f.refresher != nil {
		opts = append(opts, credential.WithRefresher(f.refresher))
	}
	return credential.NewHolder(f.db, f.ledger, account, ep, opts...)
}

// Resolve builds the adapter for account. Each call returns a fresh adapter
// with its own credential holder.
func (f *Factory) Resolve(account *models.SocialAccount) (provider.Adapter, error) {
	kind, err := provider.ParseKind(account.Provider)
	if err != nil {
		return nil, err
	}
	switch kind {
	case provider.KindGoogle:
		return google.New(account, f.ledger, f.holder(account, google.Endpoint()), f.googleOpts...), nil
	case provider.KindMicrosoft:
		return microsoft.New(account, f.ledger, f.holder(account, microsoft.Endpoint()), f.microsoftOpts...), nil
	case provider.KindReddit:
		return reddit.New(account, f.ledger, f.holder(account, reddit.Endpoint(f.redditUserAgent))), nil
	case provider.KindFacebook:
		return facebook.New(account, f.ledger, f.holder(account, facebook.Endpoint())), nil
	}
	return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, account.Provider)
}

// Service is a LinkedService together with its lazily resolved adapter.
// The adapter is resolved at most once per Service value.
type Service struct {
	models.LinkedService

	factory  *Factory
	adapter  provider.Adapter
	err      error
	resolved bool
}

// Wrap attaches ls to the factory. ls.Account must be loaded.
func (f *Factory) Wrap(ls models.LinkedService) *Service {
	return &Service{LinkedService: ls, factory: f}
}

// Provider returns the adapter for the service's account.
func (s *Service) Provider() (provider.Adapter, error) {
	if !s.resolved {
		s.adapter, s.err = s.factory.Resolve(&s.Account)
		s.resolved = true
	}
	return s.adapter, s.err
}

// Name is the display name of the linked account.
func (s *Service) Name() string {
	a, err := s.Provider()
	if err != nil {
		return s.Account.Provider
	}
	return provider.DisplayName(a)
}

func (s *Service) String() string { return s.Name() }

// IsEnabled reports whether the service's adapter has a usable token.
func (s *Service) IsEnabled(ctx context.Context) bool {
	a, err := s.Provider()
	return err == nil && a.IsEnabled(ctx)
}

// ForUser loads every linked service of userID, oldest first.
func (f *Factory) ForUser(ctx context.Context, userID uint) ([]*Service, error) {
	var rows []models.LinkedService
	err := f.db.WithContext(ctx).
		Preload("Account").
		Where("user_id = ?", userID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Service, 0, len(rows))
	for _, row := range rows {
		out = append(out, f.Wrap(row))
	}
	return out, nil
}

// GetOrCreate returns the LinkedService for account, creating it for
// userID when missing. created reports whether a row was inserted.
func GetOrCreate(ctx context.Context, db *gorm.DB, userID uint, account *models.SocialAccount) (ls models.LinkedService, created bool, err error) {
	err = db.WithContext(ctx).Where("account_id = ?", account.ID).First(&ls).Error
	if err == nil {
		ls.Account = *account
		return ls, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ls, false, err
	}
	ls = models.LinkedService{UserID: userID, AccountID: account.ID}
	if err := db.WithContext(ctx).Omit("User", "Account").Create(&ls).Error; err != nil {
		return ls, false, err
	}
	ls.Account = *account
	return ls, true, nil
}
