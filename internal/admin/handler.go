// Package admin is the operator API: party provisioning, token issuance
// and control over outbound handshakes. Every route sits behind the
// X-Admin-Token check.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/httputil"
	adminmw "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/middleware/admin"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// PartyService defines the registry operations the operator API needs.
type PartyService interface {
	CreateParty(ctx context.Context, req *partyModels.CreatePartyRequest) (*partyModels.RemoteParty, error)
	SetBootstrap(ctx context.Context, key domain.PartyKey, req partyModels.BootstrapRequest) (*partyModels.RemoteParty, error)
	Get(ctx context.Context, key domain.PartyKey) (*partyModels.RemoteParty, error)
	List(ctx context.Context) ([]*partyModels.RemoteParty, error)
	IssueToken(ctx context.Context, key domain.PartyKey, req partyModels.IssueTokenRequest) (partyModels.LocalAccessInfo, error)
	Block(ctx context.Context, key domain.PartyKey) (*partyModels.RemoteParty, error)
	PruneExpired(ctx context.Context, now time.Time) (int, error)
}

// RegistrationService defines the handshake controls the operator API
// needs.
type RegistrationService interface {
	StartRegister(ctx context.Context, key domain.PartyKey) (models.Outcome, error)
	StartRenew(ctx context.Context, key domain.PartyKey) (models.Outcome, error)
	Status(key domain.PartyKey) (models.Outcome, bool)
	Deregister(ctx context.Context, key domain.PartyKey) error
}

// Handler wires operator endpoints to the party and registration services.
type Handler struct {
	parties      PartyService
	registration RegistrationService
	logger       *slog.Logger
	token        string
}

// New constructs the operator handler. token is the expected X-Admin-Token
// (plain or bcrypt); an empty token disables every route.
func New(parties PartyService, registration RegistrationService, logger *slog.Logger, token string) *Handler {
	return &Handler{
		parties:      parties,
		registration: registration,
		logger:       logger,
		token:        token,
	}
}

// Register mounts the operator endpoints under /admin.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(h.token, h.logger, func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
		}))
		r.Post("/parties", h.HandleCreateParty)
		r.Get("/parties", h.HandleListParties)
		r.Post("/prune", h.HandlePrune)
		r.Route("/parties/{countryCode}/{partyID}/{role}", func(r chi.Router) {
			r.Get("/", h.HandleGetParty)
			r.Post("/block", h.HandleBlock)
			r.Post("/tokens", h.HandleIssueToken)
			r.Put("/bootstrap", h.HandleSetBootstrap)
			r.Get("/registration", h.HandleRegistrationStatus)
			r.Post("/registration", h.HandleStartRegistration)
			r.Post("/registration/renew", h.HandleStartRenewal)
			r.Delete("/registration", h.HandleDeregister)
		})
	})
}

// HandleCreateParty handles POST /admin/parties.
func (h *Handler) HandleCreateParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[partyModels.CreatePartyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	party, err := h.parties.CreateParty(ctx, req)
	if err != nil {
		h.writeError(ctx, w, "create party failed", err)
		return
	}
	h.logger.InfoContext(ctx, "party created",
		"request_id", requestID,
		"party", party.Key.String(),
		"bootstrap", req.Bootstrap != nil,
	)
	httputil.WriteJSON(w, http.StatusCreated, toPartyResponse(party))
}

// HandleListParties handles GET /admin/parties.
func (h *Handler) HandleListParties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parties, err := h.parties.List(ctx)
	if err != nil {
		h.writeError(ctx, w, "list parties failed", err)
		return
	}
	resp := &PartiesListResponse{Parties: make([]*PartyResponse, 0, len(parties)), Total: len(parties)}
	for _, p := range parties {
		resp.Parties = append(resp.Parties, toPartyResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetParty handles GET /admin/parties/{cc}/{pid}/{role}.
func (h *Handler) HandleGetParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.partyKey(w, r)
	if !ok {
		return
	}
	party, err := h.parties.Get(ctx, key)
	if err != nil {
		h.writeError(ctx, w, "get party failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPartyResponse(party))
}

// HandleBlock handles POST /admin/parties/{cc}/{pid}/{role}/block.
func (h *Handler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.partyKey(w, r)
	if !ok {
		return
	}
	party, err := h.parties.Block(ctx, key)
	if err != nil {
		h.writeError(ctx, w, "block party failed", err)
		return
	}
	h.logger.InfoContext(ctx, "party blocked",
		"request_id", requestcontext.RequestID(ctx),
		"party", key.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, toPartyResponse(party))
}

// HandleIssueToken handles POST /admin/parties/{cc}/{pid}/{role}/tokens.
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	key, ok := h.partyKey(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[partyModels.IssueTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	info, err := h.parties.IssueToken(ctx, key, *req)
	if err != nil {
		h.writeError(ctx, w, "issue token failed", err)
		return
	}
	h.logger.InfoContext(ctx, "token issued",
		"request_id", requestID,
		"party", key.String(),
		"token", info.Token,
		"status", string(info.Status),
	)
	httputil.WriteJSON(w, http.StatusCreated, TokenResponse{
		Token:       info.Token.Value(),
		Fingerprint: info.Token.Fingerprint(),
		Base64:      info.Base64,
		Status:      info.Status,
	})
}

// HandleSetBootstrap handles PUT /admin/parties/{cc}/{pid}/{role}/bootstrap.
func (h *Handler) HandleSetBootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	key, ok := h.partyKey(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[partyModels.BootstrapRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	party, err := h.parties.SetBootstrap(ctx, key, *req)
	if err != nil {
		h.writeError(ctx, w, "set bootstrap failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPartyResponse(party))
}

// HandleStartRegistration handles POST .../registration. The handshake runs
// in the background; poll GET .../registration for the outcome.
func (h *Handler) HandleStartRegistration(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.registration.StartRegister)
}

// HandleStartRenewal handles POST .../registration/renew.
func (h *Handler) HandleStartRenewal(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.registration.StartRenew)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.PartyKey) (models.Outcome, error)) {
	ctx := r.Context()
	key, ok := h.partyKey(w, r)
	if !ok {
		return
	}
	out, err := fn(ctx, key)
	if err != nil {
		h.writeError(ctx, w, "start handshake failed", err)
		return
	}
	h.logger.InfoContext(ctx, "handshake started",
		"request_id", requestcontext.RequestID(ctx),
		"party", key.String(),
		"direction", string(out.Direction),
	)
	httputil.WriteJSON(w, http.StatusAccepted, out)
}

// HandleRegistrationStatus handles GET .../registration.
func (h *Handler) HandleRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := h.partyKey(w, r)
	if !ok {
		return
	}
	out, found := h.registration.Status(key)
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no handshake recorded for "+key.String()))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleDeregister handles DELETE .../registration.
func (h *Handler) HandleDeregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.partyKey(w, r)
	if !ok {
		return
	}
	if err := h.registration.Deregister(ctx, key); err != nil {
		h.writeError(ctx, w, "deregister failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePrune handles POST /admin/prune.
func (h *Handler) HandlePrune(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.parties.PruneExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		h.writeError(ctx, w, "prune failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PruneResponse{Removed: removed})
}

func (h *Handler) partyKey(w http.ResponseWriter, r *http.Request) (domain.PartyKey, bool) {
	key, err := domain.NewPartyKey(
		chi.URLParam(r, "countryCode"),
		chi.URLParam(r, "partyID"),
		chi.URLParam(r, "role"),
	)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid party key"))
		return domain.PartyKey{}, false
	}
	return key, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
