package request

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/resolver"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/router"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/response"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/metrics"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// HeaderTOTP carries a one-time code when the Basic password slot is not
// used.
const HeaderTOTP = "OCPI-TOTP"

type Resolver interface {
	Resolve(ctx context.Context, authorization, code string) (resolver.Resolution, error)
}

type Router interface {
	Route(party *models.RemoteParty, h router.Headers) (router.Routing, error)
}

// Authenticate resolves the caller, routing headers and paging filter and
// stores the resulting Context. Rejected tokens get a 401 listing every
// reason; routing and filter failures are answered before any handler runs.
func Authenticate(res Resolver, rt Router, paging config.Pagination, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			now := requestcontext.Now(ctx)

			resolution, err := res.Resolve(ctx, r.Header.Get("Authorization"), r.Header.Get(HeaderTOTP))
			if err != nil {
				logger.ErrorContext(ctx, "token resolution failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				response.WriteError(w, err, now)
				return
			}
			if resolution.Rejected() {
				logger.WarnContext(ctx, "unauthorized access",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
					"reasons", resolution.Messages(),
				)
				response.WriteUnauthorized(w, resolution.Messages(), now)
				return
			}

			routing, err := rt.Route(resolution.Party, router.HeadersFrom(r.Header))
			if err != nil {
				logger.WarnContext(ctx, "routing rejected",
					"request_id", requestcontext.RequestID(ctx),
					"party", resolution.Party.Key.String(),
					"error", err,
				)
				response.WriteError(w, err, now)
				return
			}

			filter, err := ParseFilter(r.URL.Query(), paging)
			if err != nil {
				response.WriteError(w, err, now)
				return
			}

			version, _ := requestcontext.Version(ctx)
			rc := NewContext(Params{
				RequestID:     requestcontext.RequestID(ctx),
				CorrelationID: requestcontext.CorrelationID(ctx),
				Version:       version,
				Time:          now,
				Resolution:    resolution,
				Routing:       routing,
				Filter:        filter,
			})
			ctx = With(ctx, rc)
			if resolution.Party != nil {
				ctx = requestcontext.WithCaller(ctx, resolution.Party.Key)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParty rejects open-data callers; used for credentials, where the
// caller must hold a token.
func RequireParty(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := From(r.Context())
		if _, authenticated := rc.Party(); !ok || !authenticated {
			response.WriteUnauthorized(w, []string{"A token is required for this endpoint"}, requestcontext.Now(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDataAccess admits callers whose token reaches data modules.
// Registration tokens are limited to versions and credentials; anonymous
// open-data callers may only read.
func RequireDataAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := requestcontext.Now(r.Context())
		rc, ok := From(r.Context())
		if !ok {
			response.WriteUnauthorized(w, []string{"A token is required for this endpoint"}, now)
			return
		}
		if rc.Anonymous() {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				response.WriteUnauthorized(w, []string{"A token is required to modify data"}, now)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if !rc.Access().Status.AllowsDataAccess() {
			response.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Token is only valid for registration"), now)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Recover converts panics into a generic server error envelope. Apply it
// outermost so nothing escapes.
func Recover(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				m.IncrementPanics()
				logger.ErrorContext(ctx, "panic recovered",
					"request_id", requestcontext.RequestID(ctx),
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				response.Write(w, http.StatusInternalServerError,
					response.Fail(response.StatusServerError, "Internal server error", requestcontext.Now(ctx)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// AccessLog logs one line per request and records the duration histogram
// by chi route pattern.
func AccessLog(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(r.Method, route, status, start)

			ctx := r.Context()
			logger.InfoContext(ctx, "request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", rec.bytes,
				"duration", time.Since(start),
				"request_id", requestcontext.RequestID(ctx),
				"correlation_id", requestcontext.CorrelationID(ctx),
			)
		})
	}
}
