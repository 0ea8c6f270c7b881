// Package service stores connectors pushed by CPOs and applies their
// partial updates through the patch engine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/store"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/patch"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context, key models.Key) (*models.Record, error)
	Put(ctx context.Context, rec models.Record) (bool, error)
	Execute(ctx context.Context, key models.Key, fn func(*models.Record) error) (*models.Record, error)
	List(ctx context.Context, q store.Query) ([]models.Record, int, error)
}

// Patch outcomes as counted in metrics.
const (
	outcomeApplied   = "applied"
	outcomeUnchanged = "unchanged"
	outcomeRejected  = "rejected"
	outcomeStale     = "stale"
)

type Service struct {
	store   Store
	engine  *patch.Engine[models.Connector]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(st Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		engine: patch.New[models.Connector](models.Schema, patch.WithValidator(models.Validate)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored connector.
func (s *Service) Get(ctx context.Context, key models.Key) (*models.Record, error) {
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, translate(err, "connector "+key.String())
	}
	return rec, nil
}

// Put stores a complete connector. The id in the body must match the URL.
// A non-empty ifMatch must equal the current entity tag.
func (s *Service) Put(ctx context.Context, key models.Key, c models.Connector, ifMatch string) (*models.Record, bool, error) {
	if c.ID != key.ConnectorID {
		return nil, false, dErrors.New(dErrors.CodeValidation, "connector id in body does not match the URL")
	}
	if err := models.Validate(c); err != nil {
		return nil, false, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if ifMatch != "" {
		current, err := s.store.Get(ctx, key)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, translate(err, "connector "+key.String())
		}
		if !matchesETag(current, ifMatch) {
			return nil, false, dErrors.New(dErrors.CodePreconditionFailed, "connector has been modified")
		}
	}

	rec, err := models.NewRecord(key, c)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store connector")
	}
	created, err := s.store.Put(ctx, rec)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store connector")
	}
	s.metrics.IncrementPut(created)
	s.logger.InfoContext(ctx, "connector stored",
		"request_id", requestcontext.RequestID(ctx),
		"connector", key.String(),
		"created", created,
	)
	return &rec, created, nil
}

// Patch merges doc into the stored connector under the store's row lock.
// A rejected patch leaves the stored connector as it was.
func (s *Service) Patch(ctx context.Context, key models.Key, doc []byte, ifMatch string) (*models.Record, error) {
	var outcome string
	rec, err := s.store.Execute(ctx, key, func(r *models.Record) error {
		if ifMatch != "" && !matchesETag(r, ifMatch) {
			outcome = outcomeStale
			return dErrors.New(dErrors.CodePreconditionFailed, "connector has been modified")
		}
		res := s.engine.Apply(ctx, r.Connector, doc)
		if res.Failed {
			outcome = outcomeRejected
			return dErrors.New(dErrors.CodeValidation, res.Message)
		}
		outcome = outcomeUnchanged
		if res.Changed {
			outcome = outcomeApplied
		}
		r.Connector = res.Entity
		r.ETag = res.ETag
		return nil
	})
	if outcome != "" {
		s.metrics.IncrementPatch(outcome)
	}
	if err != nil {
		if outcome == outcomeRejected {
			s.logger.WarnContext(ctx, "connector patch rejected",
				"request_id", requestcontext.RequestID(ctx),
				"connector", key.String(),
				"error", err,
			)
		}
		return nil, translate(err, "connector "+key.String())
	}
	return rec, nil
}

// List returns one page of the owner's connectors and the total match count.
func (s *Service) List(ctx context.Context, q store.Query) ([]models.Record, int, error) {
	recs, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list connectors")
	}
	return recs, total, nil
}

// matchesETag compares an If-Match value against rec. "*" matches any
// existing record; weak and quoted forms are accepted.
func matchesETag(rec *models.Record, ifMatch string) bool {
	if rec == nil {
		return false
	}
	for _, candidate := range strings.Split(ifMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		candidate = strings.TrimPrefix(candidate, "W/")
		if strings.Trim(candidate, `"`) == rec.ETag {
			return true
		}
	}
	return false
}

func translate(err error, what string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "Unknown "+what)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
