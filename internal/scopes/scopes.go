// Package scopes maintains the ledger of OAuth scopes offered by providers
// and granted to linked accounts.
package scopes

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/pysugar/service-interactor/internal/db/models"
	"gorm.io/gorm"
)

// Google answers with shorthand identifiers for some scopes it was asked for
// in long form.
var googleShorthand = map[string]string{
	"email":   "https://www.googleapis.com/auth/userinfo.email",
	"profile": "https://www.googleapis.com/auth/userinfo.profile",
}

// Normalize returns the canonical name of a scope reported by provider.
func Normalize(provider, scope string) string {
	if provider == "google" {
		if long, ok := googleShorthand[scope]; ok {
			return long
		}
	}
	return scope
}

// Parse splits a raw granted-scope string into identifiers.
// Whitespace is the OAuth delimiter; commas are accepted as well.
func Parse(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
}

// Grant is the outcome of recording one scope for an account.
type Grant struct {
	Scope   models.Scope
	Created bool
}

// Unlocked names the capability a newly recorded grant unlocks, or "".
func (g Grant) Unlocked() string {
	if !g.Created || !g.Scope.GrantsAccess {
		return ""
	}
	switch g.Scope.AccessType {
	case models.AccessTypeCalendar:
		return "Calendar"
	case models.AccessTypeFiles:
		return "Files"
	}
	return ""
}

// Ledger reads and writes Scope and GrantedScope rows.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a ledger backed by db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Reconcile records every scope in names as granted to account, creating
// unknown Scope rows on the fly. Reconciling the same names twice is a no-op.
func (l *Ledger) Reconcile(ctx context.Context, account *models.SocialAccount, names []string) ([]Grant, error) {
	grants := make([]Grant, 0, len(names))
	seen := make(map[string]bool, len(names))
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			name = Normalize(account.Provider, name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true

			scope, err := getOrCreateScope(tx, account.Provider, name)
			if err != nil {
				return err
			}
			created, err := grant(tx, account.ID, scope.ID)
			if err != nil {
				return err
			}
			grants = append(grants, Grant{Scope: scope, Created: created})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// EnsureRequired grants every required scope of the account's provider that
// is not yet recorded. It returns the number of grants created.
func (l *Ledger) EnsureRequired(ctx context.Context, account *models.SocialAccount) (int, error) {
	required, err := l.ProviderScopes(ctx, account.Provider, Filter{RequiredOnly: true})
	if err != nil {
		return 0, err
	}
	created := 0
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range required {
			ok, err := grant(tx, account.ID, s.ID)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	return created, err
}

// Filter narrows scope queries. Zero value matches everything.
type Filter struct {
	AccessType   string
	GrantsAccess bool
	RequiredOnly bool
}

func (f Filter) apply(q *gorm.DB, table string) *gorm.DB {
	if f.AccessType != "" {
		q = q.Where(table+".access_type = ?", f.AccessType)
	}
	if f.GrantsAccess {
		q = q.Where(table+".grants_access = ?", true)
	}
	if f.RequiredOnly {
		q = q.Where(table+".required = ?", true)
	}
	return q
}

// ProviderScopes returns the catalogue of scopes known for provider.
func (l *Ledger) ProviderScopes(ctx context.Context, provider string, f Filter) ([]models.Scope, error) {
	var out []models.Scope
	q := l.db.WithContext(ctx).Model(&models.Scope{}).Where("scopes.provider = ?", provider)
	err := f.apply(q, "scopes").Order("scopes.name").Find(&out).Error
	return out, err
}

// ProviderOffers reports whether provider's catalogue has any scope of accessType.
func (l *Ledger) ProviderOffers(ctx context.Context, provider, accessType string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.Scope{}).
		Where("provider = ? AND access_type = ?", provider, accessType).
		Count(&count).Error
	return count > 0, err
}

// AccountScopes returns the grants recorded for accountID, oldest first.
func (l *Ledger) AccountScopes(ctx context.Context, accountID uint, f Filter) ([]models.GrantedScope, error) {
	var out []models.GrantedScope
	q := l.db.WithContext(ctx).Model(&models.GrantedScope{}).
		Joins("Scope").
		Where("granted_scopes.account_id = ?", accountID)
	err := f.apply(q, `"Scope"`).Order("granted_scopes.created_at, granted_scopes.id").Find(&out).Error
	return out, err
}

// AccountScopeNames returns the names of all scopes granted to accountID.
func (l *Ledger) AccountScopeNames(ctx context.Context, accountID uint) ([]string, error) {
	grants, err := l.AccountScopes(ctx, accountID, Filter{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Scope.Name)
	}
	return names, nil
}

// HasGrantedAccess reports whether accountID holds an access-granting scope
// of accessType.
func (l *Ledger) HasGrantedAccess(ctx context.Context, accountID uint, accessType string) (bool, error) {
	_, ok, err := l.GrantedAt(ctx, accountID, accessType)
	return ok, err
}

// GrantedAt returns when accountID first obtained an access-granting scope
// of accessType.
func (l *Ledger) GrantedAt(ctx context.Context, accountID uint, accessType string) (time.Time, bool, error) {
	grants, err := l.AccountScopes(ctx, accountID, Filter{AccessType: accessType, GrantsAccess: true})
	if err != nil || len(grants) == 0 {
		return time.Time{}, false, err
	}
	return grants[0].CreatedAt, true, nil
}

// RequestScopes is the scope set to ask for when sending the account back
// through consent: everything already granted plus, when accessType is set,
// every provider scope of that type.
func (l *Ledger) RequestScopes(ctx context.Context, account *models.SocialAccount, accessType string) ([]string, error) {
	names, err := l.AccountScopeNames(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if accessType != "" {
		extra, err := l.ProviderScopes(ctx, account.Provider, Filter{AccessType: accessType})
		if err != nil {
			return nil, err
		}
		for _, s := range extra {
			names = append(names, s.Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func getOrCreateScope(tx *gorm.DB, provider, name string) (models.Scope, error) {
	scope := models.Scope{Provider: provider, Name: name}
	err := tx.Where(models.Scope{Provider: provider, Name: name}).
		Attrs(models.Scope{AccessType: models.AccessTypeDefault}).
		FirstOrCreate(&scope).Error
	return scope, err
}

// grant get-or-creates a GrantedScope row and reports whether it was created.
func grant(tx *gorm.DB, accountID, scopeID uint) (bool, error) {
	var existing models.GrantedScope
	err := tx.Where("account_id = ? AND scope_id = ?", accountID, scopeID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	row := models.GrantedScope{AccountID: accountID, ScopeID: scopeID}
	if err := tx.Omit("Scope", "Account").Create(&row).Error; err != nil {
		return false, err
	}
	return true, nil
}
