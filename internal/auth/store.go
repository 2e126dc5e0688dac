package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/util"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// ErrNoAccountID is returned when the provider profile lacks an id.
var ErrNoAccountID = errors.New("profile has no account id")

type profile struct {
	UID   string
	Email string
	Name  string
	Data  map[string]any
}

func fetchProfile(ctx context.Context, c *Client, conf *oauth2.Config, tok *oauth2.Token) (profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProfileURL, nil)
	if err != nil {
		return profile{}, err
	}
	resp, err := conf.Client(ctx, tok).Do(req)
	metrics.ObserveVendor(string(c.Kind), "profile", err)
	if err != nil {
		return profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return profile{}, fmt.Errorf("profile request returned %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return profile{}, fmt.Errorf("decode profile: %w", err)
	}
	p := profile{Data: data}
	if id, ok := data["id"]; ok && id != nil {
		p.UID = fmt.Sprint(id)
	}
	if p.UID == "" {
		return profile{}, ErrNoAccountID
	}
	for _, f := range c.EmailFields {
		if v, ok := data[f].(string); ok && v != "" {
			p.Email = v
			break
		}
	}
	for _, f := range []string{"name", "displayName"} {
		if v, ok := data[f].(string); ok && v != "" {
			p.Name = v
			break
		}
	}
	return p, nil
}

type stored struct {
	User           models.User
	Account        models.SocialAccount
	AccountCreated bool
}

// store records the login in one transaction. A known account keeps its
// owner. A new account is attached to currentUser when set, else to a new
// user. Accounts are never matched to users by email: the provider's claim
// is not proof that the caller owns that user.
func (h *Handler) store(ctx context.Context, c *Client, currentUser uint, p profile, tok *oauth2.Token) (stored, error) {
	var out stored
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		provider := string(c.Kind)
		err := tx.Where("provider = ? AND uid = ?", provider, p.UID).First(&out.Account).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out.AccountCreated = true
			out.Account = models.SocialAccount{Provider: provider, UID: p.UID}
		case err != nil:
			return err
		}

		userID := out.Account.UserID
		if out.AccountCreated {
			userID = currentUser
		}
		user, err := resolveUser(tx, userID, p)
		if err != nil {
			return err
		}
		out.User = user

		out.Account.UserID = user.ID
		if err := out.Account.SetExtra(p.Data); err != nil {
			return err
		}
		if err := tx.Omit("Tokens").Save(&out.Account).Error; err != nil {
			return err
		}

		app := models.SocialApp{Provider: provider}
		err = tx.Where(models.SocialApp{Provider: provider}).
			Assign(models.SocialApp{Name: c.Kind.Name(), ClientID: c.OAuth.ClientID, Secret: c.OAuth.ClientSecret}).
			FirstOrCreate(&app).Error
		if err != nil {
			return err
		}
		return saveToken(tx, out.Account.ID, app.ID, tok)
	})
	return out, err
}

func resolveUser(tx *gorm.DB, userID uint, p profile) (models.User, error) {
	var user models.User
	if userID != 0 {
		err := tx.First(&user, userID).Error
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return user, err
		}
	}
	user = models.User{Email: p.Email, Name: p.Name}
	return user, tx.Omit("Accounts").Create(&user).Error
}

// saveToken rewrites the account's token for app. A missing refresh token in
// the response keeps the stored one.
func saveToken(tx *gorm.DB, accountID, appID uint, tok *oauth2.Token) error {
	var row models.SocialToken
	err := tx.Where("account_id = ? AND app_id = ?", accountID, appID).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	row.AccountID = accountID
	row.AppID = appID
	row.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		row.TokenSecret = tok.RefreshToken
	}
	row.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC().Truncate(time.Second)
		row.ExpiresAt = &exp
	}
	return tx.Save(&row).Error
}
