// Package middleware gates views on the active linked service.
package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/selector"
	"github.com/pysugar/service-interactor/internal/session"
)

// ConnectionsPath is where failed gates send the user.
const ConnectionsPath = "/connections"

// Flash messages of the gates.
const (
	MsgCalendarRequired = "Calendar Access Required"
	MsgFilesRequired    = "Files Access Required"
)

// DefaultProviders are the providers with calendar and file capabilities.
var DefaultProviders = []provider.Kind{provider.KindGoogle, provider.KindMicrosoft}

func reject(w http.ResponseWriter, r *http.Request, message string) {
	if sess := session.FromContext(r.Context()); sess != nil {
		sess.AddFlash(session.LevelError, message)
	}
	http.Redirect(w, r, ConnectionsPath, http.StatusFound)
}

// ProviderMessage is the flash shown when the active service is not one of
// kinds, e.g. "This feature requires a Google or Microsoft account.".
func ProviderMessage(kinds ...provider.Kind) string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.Name())
	}
	return "This feature requires a " + strings.Join(names, " or ") + " account."
}

// RequireProvider lets the request through only when the active service
// belongs to one of kinds. No kinds means DefaultProviders.
func RequireProvider(kinds ...provider.Kind) func(http.Handler) http.Handler {
	if len(kinds) == 0 {
		kinds = DefaultProviders
	}
	message := ProviderMessage(kinds...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			active, ok := selector.FromContext(r.Context())
			if !ok || active.Provider == nil || !slices.Contains(kinds, active.Provider.Kind()) {
				reject(w, r, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCalendarAccess requires the active service to hold a calendar grant.
func RequireCalendarAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		active, ok := selector.FromContext(r.Context())
		if !ok || active.Provider == nil || !active.Provider.HasCalendarAccess(r.Context()) {
			reject(w, r, MsgCalendarRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireFilesAccess requires the active service to hold a files grant.
func RequireFilesAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		active, ok := selector.FromContext(r.Context())
		if !ok || active.Provider == nil || !active.Provider.HasFileAccess(r.Context()) {
			reject(w, r, MsgFilesRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}
