// Package httpapi assembles the service's HTTP surface: global middleware,
// the authenticated owner API, the public acknowledgment routes and the
// operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"crummey/pkg/platform/httputil"
	authmw "crummey/pkg/platform/middleware/auth"
	"crummey/pkg/platform/middleware/metadata"
	"crummey/pkg/platform/middleware/request"
	"crummey/pkg/platform/middleware/requesttime"
)

// OwnerRoutes is implemented by handlers mounted behind bearer auth.
type OwnerRoutes interface {
	Register(r chi.Router)
}

// NoticeRoutes is the notice handler, which also serves the public
// acknowledgment page and the delivery webhook.
type NoticeRoutes interface {
	OwnerRoutes
	RegisterPublic(r chi.Router)
	RegisterWebhook(r chi.Router)
}

// HealthCheck reports a dependency's reachability.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger         *slog.Logger
	Auth           authmw.JWTValidator
	Owner          []OwnerRoutes
	Notices        NoticeRoutes
	PublicLimit    func(http.Handler) http.Handler
	Instrument     func(http.Handler) http.Handler
	Metrics        http.Handler
	HealthChecks   map[string]HealthCheck
	AllowedOrigins []string
}

func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if d.Instrument != nil {
		r.Use(d.Instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", request.HeaderRequestID},
		ExposedHeaders: []string{request.HeaderRequestID, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler(d.HealthChecks))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		if d.PublicLimit != nil {
			r.Use(d.PublicLimit)
		}
		d.Notices.RegisterPublic(r)
	})
	d.Notices.RegisterWebhook(r)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.Auth, d.Logger))
		for _, h := range d.Owner {
			h.Register(r)
		}
		d.Notices.Register(r)
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":       http.StatusText(status),
			"dependencies": results,
		})
	}
}
