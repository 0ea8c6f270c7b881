package testutil

import (
	"net/http"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/request"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// WithTime pins the request time, as the requesttime middleware would.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithCaller stores an authenticated OCPI request context, as the
// authentication middleware would. The version and time in rc are also
// copied into the base request context.
func WithCaller(req *http.Request, rc *request.Context) *http.Request {
	ctx := req.Context()
	if !rc.Time().IsZero() {
		ctx = requestcontext.WithTime(ctx, rc.Time())
	}
	if rc.Version() != "" {
		ctx = requestcontext.WithVersion(ctx, rc.Version())
	}
	if party, ok := rc.Party(); ok {
		ctx = requestcontext.WithCaller(ctx, party.Key)
	}
	return req.WithContext(request.With(ctx, rc))
}
