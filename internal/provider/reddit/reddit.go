// Package reddit links Reddit accounts. Reddit exposes no calendar or file
// capabilities; only token refresh is implemented.
package reddit

import (
	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
	"golang.org/x/oauth2"
)

// TokenURL is Reddit's token endpoint.
const TokenURL = "https://www.reddit.com/api/v1/access_token"

// DefaultUserAgent is used when no user agent is configured. Reddit
// throttles requests without a descriptive one.
const DefaultUserAgent = "service-interactor/0.1"

// Endpoint is the refresh configuration for Reddit accounts. Reddit wants
// client credentials as HTTP Basic auth and a user agent on every call.
func Endpoint(userAgent string) credential.Endpoint {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return credential.Endpoint{
		TokenURL:  TokenURL,
		AuthStyle: oauth2.AuthStyleInHeader,
		UserAgent: userAgent,
	}
}

// Adapter is a linked Reddit account.
type Adapter struct {
	provider.Base
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the adapter.
func New(account *models.SocialAccount, ledger *scopes.Ledger, holder *credential.Holder) *Adapter {
	return &Adapter{
		Base: provider.NewBase(provider.KindReddit, account, ledger, holder, provider.BaseOptions{}),
	}
}
