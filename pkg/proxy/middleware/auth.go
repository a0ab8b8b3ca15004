package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hzcy/chatbetter2api/pkg/proxy"
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// AdminAuthMiddleware rejects requests whose Authorization header does not
// carry the admin password, either bare or as a bearer token.
//
// Example usage:
//
//	mux.Handle("/v1/", AdminAuthMiddleware(cfg.Auth.AdminPassword)(api))
func AdminAuthMiddleware(password string) func(http.Handler) http.Handler {
	want := []byte(password)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := proxy.ExtractAdminSecret(r)
			if secret == "" {
				_ = proxy.WriteErrorResponse(w, types.NewAuthenticationError("Authorization header is missing"))
				return
			}

			if subtle.ConstantTimeCompare([]byte(secret), want) != 1 {
				slog.WarnContext(r.Context(), "admin authentication failed",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"credential", proxy.RedactSecret(secret),
				)
				_ = proxy.WriteErrorResponse(w, types.NewAuthenticationError("Invalid admin password"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
