// Package credential builds OAuth credentials from stored social tokens and
// refreshes them against the provider's token endpoint.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrConfiguration is the parent of every error caused by missing OAuth
// configuration or token material. These are not recoverable per request.
var ErrConfiguration = errors.New("credential configuration error")

var (
	ErrMissingTokenURL     = fmt.Errorf("%w: missing token endpoint", ErrConfiguration)
	ErrNoToken             = fmt.Errorf("%w: no stored social token", ErrConfiguration)
	ErrMissingRefreshToken = fmt.Errorf("%w: stored token has no refresh token", ErrConfiguration)
	ErrNoApp               = fmt.Errorf("%w: no OAuth app registered for provider", ErrConfiguration)

	// ErrRevoked means the provider rejected the refresh token for good;
	// the user has to reconnect the account.
	ErrRevoked = errors.New("refresh token revoked")
)

// Credential is an access/refresh token pair plus the client material needed
// to refresh it.
type Credential struct {
	AccessToken  string
	RefreshToken string
	// Expiry is stored and compared in UTC; zero means unknown.
	Expiry time.Time
	Scopes []string

	ClientID     string
	ClientSecret string
	TokenURL     string
}

// IsValid reports whether the access token can be used at now.
// A zero expiry is treated as expired so that it gets refreshed.
func (c Credential) IsValid(now time.Time) bool {
	if c.AccessToken == "" || c.Expiry.IsZero() {
		return false
	}
	return now.Before(c.Expiry)
}

// Token converts the credential to an oauth2 token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// NewCredential is the result of a refresh, before it is persisted.
type NewCredential struct {
	Credential
	// Rotated is true when the provider issued a new refresh token.
	Rotated bool
}

// Endpoint describes how a provider refreshes tokens.
type Endpoint struct {
	TokenURL  string
	AuthStyle oauth2.AuthStyle
	// UserAgent is sent on token requests when set.
	UserAgent string
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cred Credential, ep Endpoint) (*oauth2.Token, error)
}

// OAuth2Refresher refreshes through golang.org/x/oauth2.
type OAuth2Refresher struct {
	HTTPClient *http.Client
}

// Refresh performs one synchronous call to the token endpoint.
func (r OAuth2Refresher) Refresh(ctx context.Context, cred Credential, ep Endpoint) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Scopes:       cred.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  ep.TokenURL,
			AuthStyle: ep.AuthStyle,
		},
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if ep.UserAgent != "" {
		client = WithUserAgent(client, ep.UserAgent)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	// Only the refresh token is passed so the source always hits the endpoint.
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// WithUserAgent returns a copy of c that sends ua on every request.
func WithUserAgent(c *http.Client, ua string) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *c
	clone.Transport = userAgentTransport{base: base, userAgent: ua}
	return &clone
}

// IsPermanentRefreshError reports whether err means the grant is gone and
// retrying cannot help.
func IsPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
