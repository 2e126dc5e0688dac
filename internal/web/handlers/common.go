// Package handlers serves the JSON views over the active linked service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/provider/microsoft"
	"github.com/pysugar/service-interactor/internal/selector"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// DefaultLimit caps listings when the request gives no limit.
const DefaultLimit = 100

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps an adapter error onto an HTTP status.
func statusOf(err error) int {
	var gerr *googleapi.Error
	var merr *microsoft.GraphError
	switch {
	case errors.Is(err, provider.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, credential.ErrRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, credential.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &gerr):
		if gerr.Code == http.StatusNotFound {
			return http.StatusNotFound
		}
	case errors.As(err, &merr):
		if merr.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	log := logging.From(r.Context())
	if status >= 500 {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": message})
}

// active returns the adapter of the request's active service, writing a
// 409 when there is none.
func active(w http.ResponseWriter, r *http.Request) (provider.Adapter, bool) {
	e, ok := selector.FromContext(r.Context())
	if !ok || e.Provider == nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "no active service"})
		return nil, false
	}
	return e.Provider, true
}

// take collects at most limit items of seq and stops it early.
func take[T any](seq iter.Seq2[T, error], limit int) ([]T, error) {
	out := make([]T, 0)
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + ": want RFC 3339")
	}
	return t, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
