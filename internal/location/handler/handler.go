// Package handler serves the receiver side of the connector endpoints: a CPO
// pushes full connectors with PUT and partial updates with PATCH.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/store"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/request"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/response"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/httputil"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// Service defines the connector operations the handler needs.
type Service interface {
	Get(ctx context.Context, key models.Key) (*models.Record, error)
	Put(ctx context.Context, key models.Key, c models.Connector, ifMatch string) (*models.Record, bool, error)
	Patch(ctx context.Context, key models.Key, doc []byte, ifMatch string) (*models.Record, error)
	List(ctx context.Context, q store.Query) ([]models.Record, int, error)
}

type Handler struct {
	service   Service
	logger    *slog.Logger
	publicURL string
}

// New creates a connector Handler. publicURL is the origin used in paging
// links; the paging filter itself comes from the request context.
func New(service Service, logger *slog.Logger, publicURL string) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		publicURL: publicURL,
	}
}

// Register mounts the routes relative to the locations module root.
func (h *Handler) Register(r chi.Router) {
	const connector = "/{countryCode}/{partyID}/{locationID}/{evseUID}/{connectorID}"
	r.Get("/{countryCode}/{partyID}/connectors", h.handleList)
	r.Get(connector, h.handleGet)
	r.Put(connector, h.handlePut)
	r.Patch(connector, h.handlePatch)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.connectorKey(w, r, true)
	if !ok {
		return
	}

	rec, err := h.service.Get(ctx, key)
	if err != nil {
		h.writeError(ctx, w, unknownLocation(err))
		return
	}
	h.writeRecord(ctx, w, rec)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.connectorKey(w, r, false)
	if !ok {
		return
	}

	var c models.Connector
	if err := httputil.DecodeJSON(r, &c); err != nil {
		h.writeError(ctx, w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid connector body"))
		return
	}
	rec, _, err := h.service.Put(ctx, key, c, r.Header.Get("If-Match"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeRecord(ctx, w, rec)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.connectorKey(w, r, false)
	if !ok {
		return
	}

	body, err := httputil.ReadBody(r)
	if err != nil {
		h.writeError(ctx, w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid patch body"))
		return
	}
	rec, err := h.service.Patch(ctx, key, body, r.Header.Get("If-Match"))
	if err != nil {
		h.writeError(ctx, w, unknownLocation(err))
		return
	}
	h.writeRecord(ctx, w, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := domain.NewPartyIdentity(chi.URLParam(r, "countryCode"), chi.URLParam(r, "partyID"))
	if err != nil {
		h.writeError(ctx, w, dErrors.Wrap(err, dErrors.CodeValidation, err.Error()))
		return
	}
	if err := h.authorize(ctx, owner, true); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	rc, ok := request.From(ctx)
	if !ok {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeUnauthorized, "request is not authenticated"))
		return
	}
	filter := rc.Filter()

	recs, total, err := h.service.List(ctx, store.Query{
		Owner:  owner,
		From:   filter.DateFrom,
		To:     filter.DateTo,
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	connectors := make([]models.Connector, 0, len(recs))
	for _, rec := range recs {
		connectors = append(connectors, rec.Connector)
	}
	request.WritePaging(w, r, h.publicURL, total, filter)
	response.Write(w, http.StatusOK, response.OK(connectors, requestcontext.Now(ctx)))
}

// connectorKey parses the URL and checks that the caller speaks for the
// CPO named in it. It writes the error response itself.
func (h *Handler) connectorKey(w http.ResponseWriter, r *http.Request, read bool) (models.Key, bool) {
	ctx := r.Context()
	key, err := models.ParseKey(
		chi.URLParam(r, "countryCode"),
		chi.URLParam(r, "partyID"),
		chi.URLParam(r, "locationID"),
		chi.URLParam(r, "evseUID"),
		chi.URLParam(r, "connectorID"),
	)
	if err != nil {
		h.writeError(ctx, w, dErrors.Wrap(err, dErrors.CodeValidation, err.Error()))
		return models.Key{}, false
	}
	if err := h.authorize(ctx, key.Owner, read); err != nil {
		h.writeError(ctx, w, err)
		return models.Key{}, false
	}
	return key, true
}

// authorize requires the path owner to be the caller's active CPO identity.
// Open-data callers may read any owner.
func (h *Handler) authorize(ctx context.Context, owner domain.PartyIdentity, read bool) error {
	rc, ok := request.From(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "request is not authenticated")
	}
	if read && rc.Anonymous() {
		return nil
	}
	sender, err := rc.Sender(domain.FamilyCPO)
	if err != nil {
		return err
	}
	if sender != owner {
		return dErrors.New(dErrors.CodeForbidden, "the path names "+owner.String()+" but the caller speaks for "+sender.String())
	}
	return nil
}

func (h *Handler) writeRecord(ctx context.Context, w http.ResponseWriter, rec *models.Record) {
	w.Header().Set("ETag", `"`+rec.ETag+`"`)
	response.Write(w, http.StatusOK, response.OK(rec.Connector, requestcontext.Now(ctx)))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "connector request failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "connector request rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	response.WriteError(w, err, requestcontext.Now(ctx))
}

func unknownLocation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return response.WithStatus(err, response.StatusUnknownLocation)
	}
	return err
}
