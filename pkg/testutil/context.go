package testutil

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"crummey/pkg/requestcontext"
)

// WithUserID adds an owner ID to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithUserID(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithClientMetadata adds client IP and User-Agent to the request context.
func WithClientMetadata(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}

// AuthAs returns middleware that authenticates every request as userID.
// Use it in router-level handler tests in place of RequireAuth.
func AuthAs(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, WithUserID(r, userID))
		})
	}
}
