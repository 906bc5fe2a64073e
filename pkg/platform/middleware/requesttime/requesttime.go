// Package requesttime pins one "now" per request so every timestamp written
// while handling it (sent_at, acknowledged_at, audit entries) agrees.
package requesttime

import (
	"net/http"
	"time"

	"crummey/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
