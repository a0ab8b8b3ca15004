package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds the request context with timeout. Handlers see
// context.DeadlineExceeded and report it themselves, so streaming
// responses are never written from two goroutines. A zero timeout
// disables the middleware.
//
// Example usage:
//
//	handler = TimeoutMiddleware(10 * time.Minute)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
