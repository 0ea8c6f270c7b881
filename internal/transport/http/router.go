// Package httptransport assembles the chi router: platform middleware on
// the outside, the OCPI authentication chain per subtree, and each
// module's handler mounted where its routes live.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/request"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/response"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/httputil"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/middleware/metadata"
	requestid "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/middleware/request"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/middleware/requesttime"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/middleware/tracing"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/middleware/version"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// Module mounts routes on a router.
type Module interface {
	Register(r chi.Router)
}

// VersionsModule also serves the versions list outside any version root.
type VersionsModule interface {
	Module
	RegisterVersions(r chi.Router)
}

// Check reports whether a backend is usable.
type Check func(ctx context.Context) error

// Deps is everything the router needs. Admin may be nil when the operator
// API is disabled.
type Deps struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Resolver     request.Resolver
	Router       request.Router
	Versions     []domain.Version
	Pagination   config.Pagination
	Registration VersionsModule
	Locations    Module
	Admin        Module
	// Checks back /readyz, keyed by backend name.
	Checks map[string]Check
}

// NewRouter wires every public endpoint.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recover(d.Logger, d.Metrics))
	r.Use(requestid.IDs)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(tracing.Middleware)
	r.Use(request.AccessLog(d.Logger, d.Metrics))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", ready(d.Checks, d.Logger))
	if d.Admin != nil {
		d.Admin.Register(r)
	}

	authenticate := request.Authenticate(d.Resolver, d.Router, d.Pagination, d.Logger)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(request.RequireParty)
		d.Registration.RegisterVersions(r)
	})

	r.Route("/ocpi/{version}", func(r chi.Router) {
		// The version must be in the context before authentication so the
		// resolver and the request context see it.
		r.Use(version.ExtractVersion("version", d.Versions, func(w http.ResponseWriter, r *http.Request, err error) {
			response.WriteError(w, err, requestcontext.Now(r.Context()))
		}))
		r.Use(authenticate)

		r.Group(func(r chi.Router) {
			r.Use(request.RequireParty)
			d.Registration.Register(r)
		})
		r.Route("/emsp/locations", func(r chi.Router) {
			r.Use(request.RequireDataAccess)
			d.Locations.Register(r)
		})
	})
	return r
}

const readyTimeout = 2 * time.Second

// ready answers 503 listing the failing backends when any check fails.
func ready(checks map[string]Check, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "backend", name, "error", err)
				status[name] = "unavailable"
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	}
}
