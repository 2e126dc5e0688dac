// Package selector picks the active linked service for each request.
package selector

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/services"
	"github.com/pysugar/service-interactor/internal/session"
	"go.uber.org/zap"
)

// ServiceParam is the query parameter that switches the active service.
const ServiceParam = "service_id"

// Entry pairs a linked service with its adapter. Provider is nil when the
// service's provider could not be resolved.
type Entry struct {
	Service  *services.Service
	Provider provider.Adapter
}

// Registry holds a user's linked services in registration order.
type Registry struct {
	order []uint
	byID  map[uint]Entry
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint]Entry)}
}

// Register adds svc, resolving its adapter once.
func (r *Registry) Register(svc *services.Service) {
	a, err := svc.Provider()
	if err != nil {
		a = nil
	}
	r.Add(Entry{Service: svc, Provider: a})
}

// Add registers a prepared entry. A repeated ID replaces the earlier entry
// and keeps its position.
func (r *Registry) Add(e Entry) {
	id := e.Service.ID
	if _, ok := r.byID[id]; !ok {
		r.order = append(r.order, id)
	}
	r.byID[id] = e
}

func (r *Registry) Len() int { return len(r.order) }

func (r *Registry) Contains(id uint) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) Get(id uint) (Entry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// Entries returns the entries in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Enabled returns the sub-registry of entries whose adapter has a usable
// token.
func (r *Registry) Enabled(ctx context.Context) *Registry {
	out := NewRegistry()
	for _, e := range r.Entries() {
		if e.Provider != nil && e.Provider.IsEnabled(ctx) {
			out.Add(e)
		}
	}
	return out
}

// Selection is the outcome of Select. Remember is non-zero when the caller
// should store it as the session's active service.
type Selection struct {
	Active   Entry
	Found    bool
	Remember uint
}

// Select resolves the active service. An explicit paramID that belongs to
// the registry wins, then the remembered sessionID, then the first enabled
// entry. Unparsable or foreign IDs are ignored.
func Select(ctx context.Context, reg *Registry, paramID, sessionID string) Selection {
	if id, ok := parseID(paramID); ok && reg.Contains(id) {
		e, _ := reg.Get(id)
		return Selection{Active: e, Found: true, Remember: id}
	}
	if id, ok := parseID(sessionID); ok && reg.Contains(id) {
		e, _ := reg.Get(id)
		return Selection{Active: e, Found: true}
	}
	for _, e := range reg.Entries() {
		if e.Provider != nil && e.Provider.IsEnabled(ctx) {
			return Selection{Active: e, Found: true, Remember: e.Service.ID}
		}
	}
	return Selection{}
}

func parseID(s string) (uint, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Middleware builds the registry for the signed-in user and attaches it and
// the active entry to the request context. Anonymous requests pass through
// untouched. It must run inside session.Manager.Middleware.
func Middleware(factory *services.Factory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := session.FromContext(ctx)
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := parseID(sess.Get(session.KeyUserID))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			svcs, err := factory.ForUser(ctx, userID)
			if err != nil {
				logging.From(ctx).Error("load linked services", zap.Uint("user_id", userID), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			reg := NewRegistry()
			for _, svc := range svcs {
				reg.Register(svc)
			}

			sel := Select(ctx, reg, r.URL.Query().Get(ServiceParam), sess.Get(session.KeyActiveService))
			if sel.Remember != 0 {
				sess.Set(session.KeyActiveService, strconv.FormatUint(uint64(sel.Remember), 10))
			}
			ctx = WithRegistry(ctx, reg)
			if sel.Found {
				ctx = WithActive(ctx, sel.Active)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type (
	registryKey struct{}
	activeKey   struct{}
)

func WithRegistry(ctx context.Context, reg *Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, reg)
}

// RegistryFromContext returns the request's registry, or nil for anonymous
// requests.
func RegistryFromContext(ctx context.Context) *Registry {
	reg, _ := ctx.Value(registryKey{}).(*Registry)
	return reg
}

func WithActive(ctx context.Context, e Entry) context.Context {
	return context.WithValue(ctx, activeKey{}, e)
}

// FromContext returns the active entry. ok is false when no service is
// active.
func FromContext(ctx context.Context) (Entry, bool) {
	e, ok := ctx.Value(activeKey{}).(Entry)
	return e, ok
}
