package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/selector"
	"github.com/pysugar/service-interactor/internal/session"
	"go.uber.org/zap"
)

var accessTypes = []string{models.AccessTypeCalendar, models.AccessTypeFiles, models.AccessTypeYouTube}

type serviceView struct {
	ID        uint                 `json:"id"`
	Provider  string               `json:"provider"`
	Name      string               `json:"name"`
	Enabled   bool                 `json:"enabled"`
	Active    bool                 `json:"active"`
	Access    map[string]bool      `json:"access"`
	GrantedAt map[string]time.Time `json:"granted_at,omitempty"`
	// Reconnect maps an access type to the login URL that requests it.
	Reconnect map[string]string `json:"reconnect,omitempty"`
}

// LoginURL is the consent URL of kind requesting scopes, returning to next.
func LoginURL(kind provider.Kind, scopes []string, next string) string {
	q := url.Values{}
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}
	if next != "" {
		q.Set("next", next)
	}
	u := fmt.Sprintf("/auth/%s/login", kind)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func describe(ctx context.Context, e selector.Entry, activeID uint) serviceView {
	v := serviceView{
		ID:       e.Service.ID,
		Provider: e.Service.Account.Provider,
		Name:     e.Service.Name(),
		Active:   e.Service.ID == activeID,
		Access:   map[string]bool{},
	}
	a := e.Provider
	if a == nil {
		return v
	}
	v.Enabled = a.IsEnabled(ctx)
	v.Access[models.AccessTypeCalendar] = a.HasCalendarAccess(ctx)
	v.Access[models.AccessTypeFiles] = a.HasFileAccess(ctx)
	v.Access[models.AccessTypeYouTube] = a.HasYouTubeAccess(ctx)

	current, err := a.RequestScopes(ctx, "")
	if err != nil {
		logging.From(ctx).Warn("request scopes unavailable", zap.Uint("service_id", v.ID), zap.Error(err))
		return v
	}
	for _, at := range accessTypes {
		if granted, ok := a.AccessGrantedAt(ctx, at); ok {
			if v.GrantedAt == nil {
				v.GrantedAt = map[string]time.Time{}
			}
			v.GrantedAt[at] = granted
		}
		if v.Access[at] {
			continue
		}
		wanted, err := a.RequestScopes(ctx, at)
		if err != nil || len(wanted) <= len(current) {
			continue
		}
		if v.Reconnect == nil {
			v.Reconnect = map[string]string{}
		}
		v.Reconnect[at] = LoginURL(a.Kind(), wanted, "/connections")
	}
	return v
}

// ConnectionsHandler lists the user's linked services, the login URLs of
// the configured providers and the pending flash messages.
func ConnectionsHandler(loginKinds []provider.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		logins := make(map[string]string, len(loginKinds))
		for _, k := range loginKinds {
			logins[string(k)] = LoginURL(k, nil, "")
		}

		var activeID *uint
		if e, ok := selector.FromContext(ctx); ok {
			id := e.Service.ID
			activeID = &id
		}

		views := make([]serviceView, 0)
		if reg := selector.RegistryFromContext(ctx); reg != nil {
			var id uint
			if activeID != nil {
				id = *activeID
			}
			for _, e := range reg.Entries() {
				views = append(views, describe(ctx, e, id))
			}
		}

		flashes := make([]session.Flash, 0)
		signedIn := false
		if sess := session.FromContext(ctx); sess != nil {
			flashes = append(flashes, sess.Flashes()...)
			signedIn = sess.Get(session.KeyUserID) != ""
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"signed_in": signedIn,
			"services":  views,
			"active_id": activeID,
			"login":     logins,
			"flashes":   flashes,
		})
	}
}
