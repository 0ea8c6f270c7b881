// Package request assigns request and correlation ids.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// IDs reads X-Request-ID and X-Correlation-ID, generating them when absent,
// stores both in the context and echoes them on the response. A missing
// correlation id defaults to the request id so a single call is traceable
// across platforms.
func IDs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := sanitize(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		correlationID := sanitize(r.Header.Get(HeaderCorrelationID))
		if correlationID == "" {
			correlationID = requestID
		}

		w.Header().Set(HeaderRequestID, requestID)
		w.Header().Set(HeaderCorrelationID, correlationID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithCorrelationID(ctx, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitize drops ids that are too long or carry non-printable bytes so they
// cannot be used for header or log injection.
func sanitize(id string) string {
	if len(id) > 255 {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return ""
		}
	}
	return id
}
