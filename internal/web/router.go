// Package web assembles the HTTP surface.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/service-interactor/internal/auth"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/selector"
	"github.com/pysugar/service-interactor/internal/services"
	"github.com/pysugar/service-interactor/internal/session"
	"github.com/pysugar/service-interactor/internal/version"
	"github.com/pysugar/service-interactor/internal/web/handlers"
	"github.com/pysugar/service-interactor/internal/web/middleware"
)

// Deps are the collaborators of the router.
type Deps struct {
	Factory  *services.Factory
	Sessions *session.Manager
	Auth     *auth.Handler
	// LoginKinds are the providers offered on the connections page.
	LoginKinds []provider.Kind
}

// NewRouter builds the application router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.Middleware)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok " + version.Version))
	})

	r.Group(func(r chi.Router) {
		r.Use(d.Sessions.Middleware)
		d.Auth.Routes(r)

		r.Group(func(r chi.Router) {
			r.Use(selector.Middleware(d.Factory))

			r.Get("/connections", handlers.ConnectionsHandler(d.LoginKinds))

			r.Route("/calendars", func(r chi.Router) {
				r.Use(middleware.RequireProvider(), middleware.RequireCalendarAccess)
				r.Get("/", handlers.CalendarsHandler())
				r.Get("/{id}/events", handlers.CalendarEventsHandler())
				r.Post("/{id}/events", handlers.CreateEventHandler())
				r.Delete("/{id}/events/{eventID}", handlers.DeleteEventHandler())
			})

			r.Route("/files", func(r chi.Router) {
				r.Use(middleware.RequireProvider(), middleware.RequireFilesAccess)
				r.Get("/", handlers.FilesHandler())
				r.With(middleware.RequireProvider(provider.KindGoogle)).Get("/takeout", handlers.TakeoutHandler())
				r.Get("/{id}", handlers.FileDetailsHandler())
				r.Get("/{id}/content", handlers.FileContentHandler())
			})

			r.Route("/gmail/messages/{id}", func(r chi.Router) {
				r.Use(middleware.RequireProvider(provider.KindGoogle))
				r.Get("/", handlers.GmailMessageHandler())
				r.Post("/reply", handlers.GmailReplyHandler())
				r.Post("/labels", handlers.GmailLabelsHandler())
			})

			r.Route("/youtube/playlists", func(r chi.Router) {
				r.Use(middleware.RequireProvider(provider.KindGoogle))
				r.Get("/", handlers.PlaylistsHandler())
				r.Post("/", handlers.CreatePlaylistHandler())
				r.Delete("/{id}", handlers.DeletePlaylistHandler())
				r.Get("/{id}/items", handlers.PlaylistItemsHandler())
				r.Post("/{id}/items", handlers.AddPlaylistItemHandler())
			})
		})
	})
	return r
}
