// Package version binds the protocol version in the URL to the request.
package version

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// ExtractVersion reads the chi URL parameter param, validates it against
// the versions we serve and stores it in the context. Unknown versions are
// handed to reject.
//
// Usage:
//
//	r.Route("/ocpi/{version}", func(r chi.Router) {
//	    r.Use(version.ExtractVersion("version", supported, writeUnsupported))
//	})
func ExtractVersion(param string, supported []domain.Version, reject func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := Resolve(chi.URLParam(r, param), supported)
			if err != nil {
				reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithVersion(r.Context(), v)))
		})
	}
}

// Resolve parses raw and checks it is one of supported.
func Resolve(raw string, supported []domain.Version) (domain.Version, error) {
	v, err := domain.ParseVersion(raw)
	if err != nil {
		return "", err
	}
	for _, s := range supported {
		if s == v {
			return v, nil
		}
	}
	return "", dErrors.New(dErrors.CodeUnsupportedVersion, "version "+raw+" is not served here")
}
