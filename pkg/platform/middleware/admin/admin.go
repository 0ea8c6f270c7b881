// Package admin guards operator endpoints with a shared token.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/secrets"
)

const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// expected, which may be a plain secret or a bcrypt hash. An empty expected
// token disables the operator API entirely. reject renders the failure so
// callers keep their own response envelope.
func RequireAdminToken(expected string, logger *slog.Logger, reject func(w http.ResponseWriter, r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secrets.Matches(r.Header.Get(HeaderAdminToken), expected) {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
				)
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
