// Package auth runs the OAuth authorization-code flow that links social
// accounts to local users.
package auth

import (
	"cmp"
	"slices"

	"github.com/pysugar/service-interactor/internal/config"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/provider/reddit"
	"golang.org/x/oauth2"
	facebookOAuth "golang.org/x/oauth2/facebook"
	googleOAuth "golang.org/x/oauth2/google"
	microsoftOAuth "golang.org/x/oauth2/microsoft"
)

// Client is the login configuration of one provider.
type Client struct {
	Kind  provider.Kind
	OAuth oauth2.Config
	// ProfileURL returns the signed-in identity as JSON.
	ProfileURL string
	// EmailFields are tried in order to find the account email.
	EmailFields []string
	UserAgent   string
	AuthParams  []oauth2.AuthCodeOption
}

// Default login scopes. Capability scopes are requested later through
// re-consent.
var defaultScopes = map[provider.Kind][]string{
	provider.KindGoogle: {
		"openid",
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	},
	provider.KindMicrosoft: {"openid", "offline_access", "User.Read"},
	provider.KindReddit:    {"identity"},
	provider.KindFacebook:  {"email", "public_profile"},
}

// Clients builds the login clients of every provider with credentials in cfg.
func Clients(cfg config.Config) map[provider.Kind]*Client {
	out := make(map[provider.Kind]*Client)
	add := func(kind provider.Kind, pc config.ProviderConfig, c Client) {
		if !pc.Configured() {
			return
		}
		c.Kind = kind
		c.OAuth.ClientID = pc.ClientID
		c.OAuth.ClientSecret = pc.ClientSecret
		c.OAuth.Scopes = pc.Scopes
		if len(c.OAuth.Scopes) == 0 {
			c.OAuth.Scopes = slices.Clone(defaultScopes[kind])
		}
		out[kind] = &c
	}

	add(provider.KindGoogle, cfg.Google, Client{
		OAuth:       oauth2.Config{Endpoint: googleOAuth.Endpoint},
		ProfileURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
		EmailFields: []string{"email"},
		AuthParams:  []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("include_granted_scopes", "true")},
	})
	add(provider.KindMicrosoft, cfg.Microsoft, Client{
		OAuth:       oauth2.Config{Endpoint: microsoftOAuth.AzureADEndpoint("common")},
		ProfileURL:  "https://graph.microsoft.com/v1.0/me",
		EmailFields: []string{"userPrincipalName", "mail"},
	})
	add(provider.KindReddit, cfg.Reddit, Client{
		OAuth: oauth2.Config{Endpoint: oauth2.Endpoint{
			AuthURL:   "https://www.reddit.com/api/v1/authorize",
			TokenURL:  reddit.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		}},
		ProfileURL: "https://oauth.reddit.com/api/v1/me",
		UserAgent:  cmp.Or(cfg.RedditUserAgent, reddit.DefaultUserAgent),
		AuthParams: []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("duration", "permanent")},
	})
	add(provider.KindFacebook, cfg.Facebook, Client{
		OAuth:       oauth2.Config{Endpoint: facebookOAuth.Endpoint},
		ProfileURL:  "https://graph.facebook.com/me?fields=id,name,email",
		EmailFields: []string{"email"},
	})
	return out
}

// config returns a copy of the OAuth config with redirectURL and any extra
// scopes added.
func (c *Client) config(redirectURL string, extra []string) *oauth2.Config {
	conf := c.OAuth
	conf.RedirectURL = redirectURL
	conf.Scopes = slices.Clone(c.OAuth.Scopes)
	for _, s := range extra {
		if !slices.Contains(conf.Scopes, s) {
			conf.Scopes = append(conf.Scopes, s)
		}
	}
	return &conf
}
