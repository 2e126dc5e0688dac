// Package loginsync keeps linked services and the scope ledger in step with
// social login events.
package loginsync

import (
	"context"
	"fmt"
	"reflect"

	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/scopes"
	"github.com/pysugar/service-interactor/internal/services"
	"github.com/pysugar/service-interactor/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const callbackName = "loginsync:user_saved"

// Syncer reacts to account, login and user-save events.
type Syncer struct {
	db     *gorm.DB
	ledger *scopes.Ledger
}

func New(db *gorm.DB, ledger *scopes.Ledger) *Syncer {
	return &Syncer{db: db, ledger: ledger}
}

// OnAccountAdded links account to userID and records its required scopes.
func (s *Syncer) OnAccountAdded(ctx context.Context, userID uint, account *models.SocialAccount) error {
	ls, created, err := services.GetOrCreate(ctx, s.db, userID, account)
	if err != nil {
		return fmt.Errorf("link account %d: %w", account.ID, err)
	}
	n, err := s.ledger.EnsureRequired(ctx, account)
	if err != nil {
		return fmt.Errorf("required scopes for account %d: %w", account.ID, err)
	}
	logging.From(ctx).Debug("account linked",
		zap.Uint("service_id", ls.ID),
		zap.Bool("created", created),
		zap.Int("required_granted", n))
	return nil
}

// OnUserLoggedIn makes sure every social account of userID has a linked
// service and its required scopes.
func (s *Syncer) OnUserLoggedIn(ctx context.Context, userID uint) error {
	var accounts []models.SocialAccount
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&accounts).Error; err != nil {
		return err
	}
	for i := range accounts {
		if err := s.OnAccountAdded(ctx, userID, &accounts[i]); err != nil {
			return err
		}
	}
	return nil
}

// Login describes a completed social login.
type Login struct {
	UserID  uint
	Account *models.SocialAccount
	// Scope is the "scope" parameter of the provider callback, if present.
	Scope string
}

// OnSocialLogin records the scopes granted in login. When the callback did
// not carry them, the scopes stashed in sess during the token exchange are
// used. The stash is consumed either way. Each newly unlocked calendar or
// files capability adds one success flash to sess.
func (s *Syncer) OnSocialLogin(ctx context.Context, sess *session.Session, login Login) ([]scopes.Grant, error) {
	var stashed string
	if sess != nil {
		stashed, _ = sess.Pop(session.KeyScopesReceived)
	}
	if login.UserID == 0 || login.Account == nil {
		return nil, nil
	}
	names := scopes.Parse(login.Scope)
	if len(names) == 0 {
		names = scopes.Parse(stashed)
	}
	if len(names) == 0 {
		return nil, nil
	}

	grants, err := s.ledger.Reconcile(ctx, login.Account, names)
	if err != nil {
		return nil, fmt.Errorf("reconcile scopes for account %d: %w", login.Account.ID, err)
	}
	log := logging.From(ctx).With(zap.String("provider", login.Account.Provider), zap.Uint("account_id", login.Account.ID))
	for _, g := range grants {
		if !g.Created {
			continue
		}
		metrics.ScopeGrants.WithLabelValues(login.Account.Provider, g.Scope.AccessType).Inc()
		log.Info("scope granted", zap.String("scope", g.Scope.Name))
		if what := g.Unlocked(); what != "" && sess != nil {
			sess.AddFlash(session.LevelSuccess, "Successfully granted access to "+what)
		}
	}
	return grants, nil
}

// Register installs a callback that runs OnUserLoggedIn for every user row
// created or updated through db. It runs inside the saving transaction.
func (s *Syncer) Register(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:create").Register(callbackName, s.onUserSaved); err != nil {
		return err
	}
	return db.Callback().Update().After("gorm:update").Register(callbackName, s.onUserSaved)
}

func (s *Syncer) onUserSaved(tx *gorm.DB) {
	if tx.Error != nil || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "users" {
		return
	}
	ids := savedUserIDs(tx.Statement.ReflectValue)
	if len(ids) == 0 {
		return
	}
	// Initialized keeps the running statement out of the queries below.
	conn := tx.Session(&gorm.Session{NewDB: true, Initialized: true, SkipHooks: true})
	inTx := &Syncer{db: conn, ledger: scopes.NewLedger(conn)}
	ctx := tx.Statement.Context
	for _, id := range ids {
		if err := inTx.OnUserLoggedIn(ctx, id); err != nil {
			_ = tx.AddError(err)
			return
		}
	}
}

func savedUserIDs(rv reflect.Value) []uint {
	rv = reflect.Indirect(rv)
	var ids []uint
	collect := func(v reflect.Value) {
		v = reflect.Indirect(v)
		if !v.IsValid() || !v.CanInterface() {
			return
		}
		if u, ok := v.Interface().(models.User); ok && u.ID != 0 {
			ids = append(ids, u.ID)
		}
	}
	switch rv.Kind() {
	case reflect.Struct:
		collect(rv)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			collect(rv.Index(i))
		}
	}
	return ids
}
