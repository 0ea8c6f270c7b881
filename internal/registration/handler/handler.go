// Package handler serves the discovery and credentials endpoints every
// counterpart talks to before it may reach a data module.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/request"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/response"
	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/httputil"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// Service defines the registration operations the handler needs.
type Service interface {
	Credentials(ctx context.Context, access partyModels.LocalAccessInfo) models.Credentials
	Accept(ctx context.Context, party *partyModels.RemoteParty, v domain.Version, raw []byte, renewal bool) (models.Credentials, error)
	Unregister(ctx context.Context, party *partyModels.RemoteParty) error
}

// Module is one entry we publish in version details. Path is relative to
// the version root, e.g. "/emsp/locations".
type Module struct {
	Identifier string
	Role       partyModels.EndpointRole
	Path       string
}

// DefaultModules are the modules this gateway serves next to credentials.
var DefaultModules = []Module{
	{Identifier: "locations", Role: partyModels.EndpointReceiver, Path: "/emsp/locations"},
}

type Handler struct {
	service   Service
	logger    *slog.Logger
	publicURL string
	versions  []domain.Version
	modules   []Module
}

// New creates a registration Handler. versions lists what we serve in
// ascending order; modules are the data modules published in details.
func New(service Service, logger *slog.Logger, publicURL string, versions []domain.Version, modules []Module) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		versions:  versions,
		modules:   modules,
	}
}

// RegisterVersions mounts the versions list. Mount it next to, not inside,
// the /ocpi/{version} subtree.
func (h *Handler) RegisterVersions(r chi.Router) {
	r.Get("/ocpi/versions", h.handleVersions)
}

// Register mounts the details and credentials routes relative to the
// version root.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.handleDetails)
	r.Get("/credentials", h.handleGetCredentials)
	r.Post("/credentials", h.handleAccept(false))
	r.Put("/credentials", h.handleAccept(true))
	r.Delete("/credentials", h.handleDelete)
}

func (h *Handler) handleVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	infos := make([]models.VersionInfo, 0, len(h.versions))
	for _, v := range h.versions {
		infos = append(infos, models.VersionInfo{Version: v, URL: h.versionURL(v)})
	}
	response.Write(w, http.StatusOK, response.OK(infos, requestcontext.Now(ctx)))
}

func (h *Handler) handleDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, ok := requestcontext.Version(ctx)
	if !ok {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeUnsupportedVersion, "no version selected"))
		return
	}
	response.Write(w, http.StatusOK, response.OK(h.details(v), requestcontext.Now(ctx)))
}

// details lists credentials under both roles from 2.2 on; 2.1.1 has no
// endpoint roles at all.
func (h *Handler) details(v domain.Version) models.VersionDetails {
	base := h.versionURL(v)
	var endpoints []partyModels.Endpoint
	add := func(identifier string, role partyModels.EndpointRole, path string) {
		ep := partyModels.Endpoint{Identifier: identifier, URL: base + path}
		if v.HasRoles() {
			ep.Role = role
		}
		endpoints = append(endpoints, ep)
	}
	if v.HasRoles() {
		add(models.CredentialsModule, partyModels.EndpointSender, "/credentials")
	}
	add(models.CredentialsModule, partyModels.EndpointReceiver, "/credentials")
	for _, m := range h.modules {
		add(m.Identifier, m.Role, m.Path)
	}
	return models.VersionDetails{Version: v, Endpoints: endpoints}
}

func (h *Handler) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc, v, ok := h.caller(w, r)
	if !ok {
		return
	}
	creds := h.service.Credentials(ctx, rc.Access())
	response.Write(w, http.StatusOK, response.OK(creds.Wire(v), requestcontext.Now(ctx)))
}

func (h *Handler) handleAccept(renewal bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rc, v, ok := h.caller(w, r)
		if !ok {
			return
		}
		party, _ := rc.Party()

		body, err := httputil.ReadBody(r)
		if err != nil {
			h.writeError(ctx, w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid credentials body"))
			return
		}
		creds, err := h.service.Accept(ctx, party, v, body, renewal)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		response.Write(w, http.StatusOK, response.OK(creds.Wire(v), requestcontext.Now(ctx)))
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc, _, ok := h.caller(w, r)
	if !ok {
		return
	}
	party, _ := rc.Party()
	if err := h.service.Unregister(ctx, party); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	response.Write(w, http.StatusOK, response.OK[any](nil, requestcontext.Now(ctx)))
}

// caller returns the authenticated request context and the URL version.
// It writes the error response itself.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*request.Context, domain.Version, bool) {
	ctx := r.Context()
	rc, ok := request.From(ctx)
	if !ok {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeUnauthorized, "request is not authenticated"))
		return nil, "", false
	}
	if _, ok := rc.Party(); !ok {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeUnauthorized, "a token is required for this endpoint"))
		return nil, "", false
	}
	v, ok := requestcontext.Version(ctx)
	if !ok {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeUnsupportedVersion, "no version selected"))
		return nil, "", false
	}
	return rc, v, true
}

func (h *Handler) versionURL(v domain.Version) string {
	return h.publicURL + "/ocpi/" + v.String()
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "credentials request failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "credentials request rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	response.WriteError(w, err, requestcontext.Now(ctx))
}
