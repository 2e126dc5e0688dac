package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/dbtest"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestEndpoint(t *testing.T) {
	ep := Endpoint("")
	assert.Equal(t, TokenURL, ep.TokenURL)
	assert.Equal(t, oauth2.AuthStyleInHeader, ep.AuthStyle)
	assert.Equal(t, DefaultUserAgent, ep.UserAgent)
	assert.Equal(t, "bot/2.0", Endpoint("bot/2.0").UserAgent)
}

func TestRefreshUsesBasicAuthAndUserAgent(t *testing.T) {
	var gotUA, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "reddit-fresh",
			"refresh_token": "reddit-rotated",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	database := dbtest.New(t)
	require.NoError(t, database.Create(&models.SocialApp{Provider: "reddit", ClientID: "reddit-cid", Secret: "reddit-secret"}).Error)
	user := models.User{Email: "snoo@example.com"}
	require.NoError(t, database.Create(&user).Error)
	account := models.SocialAccount{UserID: user.ID, Provider: "reddit", UID: "t2_abc"}
	require.NoError(t, database.Create(&account).Error)
	expired := time.Now().Add(-time.Hour)
	require.NoError(t, database.Create(&models.SocialToken{AccountID: account.ID, Token: "old", TokenSecret: "r1", ExpiresAt: &expired}).Error)

	ep := Endpoint("interactor-test/1.0")
	ep.TokenURL = srv.URL
	ledger := scopes.NewLedger(database)
	holder := credential.NewHolder(database, ledger, &account, ep,
		credential.WithRefresher(credential.OAuth2Refresher{HTTPClient: srv.Client()}))
	a := New(&account, ledger, holder)

	cred, err := a.Holder().Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reddit-fresh", cred.AccessToken)
	assert.Equal(t, "interactor-test/1.0", gotUA)
	assert.Equal(t, "reddit-cid", gotUser)

	var tok models.SocialToken
	require.NoError(t, database.First(&tok).Error)
	assert.Equal(t, "reddit-fresh", tok.Token)
	assert.Equal(t, "reddit-rotated", tok.TokenSecret)
}

func TestNoCapabilities(t *testing.T) {
	database := dbtest.New(t)
	account := models.SocialAccount{Provider: "reddit", UID: "t2_x"}
	ledger := scopes.NewLedger(database)
	a := New(&account, ledger, credential.NewHolder(database, ledger, &account, Endpoint("")))
	ctx := context.Background()

	assert.False(t, a.HasCalendarAccess(ctx))
	assert.False(t, a.HasFileAccess(ctx))
	_, err := provider.Collect(a.Calendars(ctx))
	assert.ErrorIs(t, err, provider.ErrNotSupported)
	_, err = provider.Collect(a.Files(ctx, provider.FileQuery{}))
	assert.ErrorIs(t, err, provider.ErrNotSupported)
	assert.Equal(t, "Reddit", provider.DisplayName(a))
}
