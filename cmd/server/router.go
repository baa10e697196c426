package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"refroute/internal/platform/metrics"
	"refroute/internal/platform/middleware"
	"refroute/internal/reference/handler"
	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/platform/httputil"
	"refroute/pkg/platform/middleware/auth"
	"refroute/pkg/platform/middleware/request"
	"refroute/pkg/platform/middleware/requesttime"
)

// readyFunc returns the backends that are currently unreachable.
type readyFunc func(ctx context.Context) []string

// newRouter mounts the public health endpoints and the authenticated reference API.
func newRouter(svc handler.Service, validator auth.JWTValidator, ready readyFunc, m *metrics.Metrics, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recoverer(log))
	r.Use(request.Logger(log))
	r.Use(middleware.Tracing)
	r.Use(middleware.Instrument(m))
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, "ok", nil)
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if failed := ready(r.Context()); len(failed) > 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "unavailable: "+strings.Join(failed, ", ")))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, "ready", nil)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, log))
		handler.New(svc, log).Register(r)
	})
	return r
}
