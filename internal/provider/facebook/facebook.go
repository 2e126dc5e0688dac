// Package facebook links Facebook accounts. No token endpoint is
// configured, so refreshing a Facebook credential fails with
// credential.ErrMissingTokenURL.
package facebook

import (
	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
)

// Endpoint is empty: Facebook issues long-lived tokens without a refresh
// grant.
func Endpoint() credential.Endpoint {
	return credential.Endpoint{}
}

// Adapter is a linked Facebook account.
type Adapter struct {
	provider.Base
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the adapter.
func New(account *models.SocialAccount, ledger *scopes.Ledger, holder *credential.Holder) *Adapter {
	return &Adapter{
		Base: provider.NewBase(provider.KindFacebook, account, ledger, holder, provider.BaseOptions{}),
	}
}
