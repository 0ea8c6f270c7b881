package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/audit"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/attrs"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/secrets"
)

type Store interface {
	Create(ctx context.Context, party *models.RemoteParty) error
	FindByKey(ctx context.Context, key domain.PartyKey) (*models.RemoteParty, error)
	FindByToken(ctx context.Context, tk models.TokenKey) (*models.RemoteParty, error)
	List(ctx context.Context) ([]*models.RemoteParty, error)
	Execute(ctx context.Context, key domain.PartyKey, fn func(*models.RemoteParty) error) (*models.RemoteParty, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the party registry: the single place that creates parties,
// issues tokens and resolves a presented token to its owner.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	validator      *validator.Validate
	generateToken  func() (string, error)
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTokenGenerator replaces the random token source, for tests.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		s.generateToken = gen
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		validator:     validator.New(),
		generateToken: secrets.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParty registers a counterpart. When the request carries a bootstrap
// token the party is ready for an outbound handshake.
func (s *Service) CreateParty(ctx context.Context, req *models.CreatePartyRequest) (*models.RemoteParty, error) {
	req.Normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid party request")
	}
	key, err := domain.NewPartyKey(req.CountryCode, req.PartyID, req.Role)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	party, err := models.NewRemoteParty(key, req.Name, nil, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if req.Website != "" {
		party.Roles[0].BusinessDetails.Website = req.Website
	}
	if req.Bootstrap != nil {
		if err := addBootstrap(party, *req.Bootstrap, now); err != nil {
			return nil, err
		}
	}

	if err := s.store.Create(ctx, party); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "party "+key.String()+" already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create party")
	}
	s.metrics.IncrementPartiesCreated()
	s.logAudit(ctx, audit.ActionPartyCreated, "party", key.String(), "actor", "admin")
	return party, nil
}

// SetBootstrap stores the counterpart's out-of-band token for a party that
// already exists.
func (s *Service) SetBootstrap(ctx context.Context, key domain.PartyKey, req models.BootstrapRequest) (*models.RemoteParty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid bootstrap request")
	}
	now := requestcontext.Now(ctx)
	return s.Update(ctx, key, func(p *models.RemoteParty) error {
		if p.IsBlocked() {
			return dErrors.New(dErrors.CodeInvariantViolation, "party is blocked")
		}
		return addBootstrap(p, req, now)
	})
}

func addBootstrap(p *models.RemoteParty, req models.BootstrapRequest, now time.Time) error {
	token, err := models.ParseAccessToken(req.Token)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid bootstrap token")
	}
	return p.AddRemoteBootstrap(models.RemoteAccessInfo{
		Token:       token,
		Base64:      req.Base64,
		VersionsURL: req.VersionsURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, now)
}

// Get returns a party by registry key.
func (s *Service) Get(ctx context.Context, key domain.PartyKey) (*models.RemoteParty, error) {
	party, err := s.store.FindByKey(ctx, key)
	if err != nil {
		return nil, translate(err, "party")
	}
	return party, nil
}

// List returns every party ordered by key.
func (s *Service) List(ctx context.Context) ([]*models.RemoteParty, error) {
	parties, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list parties")
	}
	return parties, nil
}

// LookupToken finds the party owning (token, encoding). found is false when
// no party owns it; err is reserved for backend failures.
func (s *Service) LookupToken(ctx context.Context, tk models.TokenKey) (*models.RemoteParty, models.LocalAccessInfo, bool, error) {
	if s.metrics != nil {
		defer s.metrics.ObserveLookup(time.Now())
	}
	party, err := s.store.FindByToken(ctx, tk)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.LocalAccessInfo{}, false, nil
		}
		return nil, models.LocalAccessInfo{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up token")
	}
	info, ok := party.FindLocal(tk)
	if !ok {
		return nil, models.LocalAccessInfo{}, false, nil
	}
	return party, info, true, nil
}

// IssueToken installs a new local token on a party. The token value is
// generated unless the request supplies one.
func (s *Service) IssueToken(ctx context.Context, key domain.PartyKey, req models.IssueTokenRequest) (models.LocalAccessInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.LocalAccessInfo{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid token request")
	}
	value := req.Token
	if value == "" {
		generated, err := s.generateToken()
		if err != nil {
			return models.LocalAccessInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
		}
		value = generated
	}
	token, err := models.ParseAccessToken(value)
	if err != nil {
		return models.LocalAccessInfo{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid token")
	}

	now := requestcontext.Now(ctx)
	info := models.LocalAccessInfo{
		Token:     token,
		Base64:    req.Base64,
		Status:    req.AccessStatus(),
		NotBefore: req.NotBefore,
		NotAfter:  req.NotAfter,
		CreatedAt: now,
	}
	if req.TOTPSecret != "" {
		info.TOTP = &models.TOTPConfig{Secret: req.TOTPSecret}
	}

	if _, err := s.Update(ctx, key, func(p *models.RemoteParty) error {
		return p.AddLocal(info, now)
	}); err != nil {
		return models.LocalAccessInfo{}, err
	}
	s.metrics.IncrementTokensIssued(string(info.Status))
	s.logAudit(ctx, audit.ActionTokenIssued,
		"party", key.String(),
		"actor", "admin",
		"token", token.Fingerprint(),
		"status", string(info.Status))
	return info, nil
}

// Update applies fn atomically to the party. Errors returned by fn are
// passed through; store failures are translated.
func (s *Service) Update(ctx context.Context, key domain.PartyKey, fn func(*models.RemoteParty) error) (*models.RemoteParty, error) {
	party, err := s.store.Execute(ctx, key, fn)
	if err != nil {
		return nil, translate(err, "party")
	}
	return party, nil
}

// Block disables a party and all of its tokens. Blocking replaces deletion.
func (s *Service) Block(ctx context.Context, key domain.PartyKey) (*models.RemoteParty, error) {
	now := requestcontext.Now(ctx)
	party, err := s.Update(ctx, key, func(p *models.RemoteParty) error {
		if err := p.CanBlock(); err != nil {
			return err
		}
		p.ApplyBlock(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.ActionPartyBlocked, "party", key.String(), "actor", "admin")
	return party, nil
}

// PruneExpired removes stale access entries whose grace period elapsed and
// returns how many were removed across all parties.
func (s *Service) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	parties, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range parties {
		if !p.HasExpired(now) {
			continue
		}
		removed := 0
		if _, err := s.Update(ctx, p.Key, func(next *models.RemoteParty) error {
			removed = next.PruneExpired(now)
			return nil
		}); err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				continue
			}
			return total, err
		}
		total += removed
		s.logAudit(ctx, audit.ActionAccessPruned, "party", p.Key.String(), "actor", "system")
	}
	s.metrics.AddPruned(total)
	return total, nil
}

func translate(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "token already issued to another party")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, what+" is in an invalid state")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update "+what)
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(action), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:           action,
		Party:            attrs.ExtractString(attributes, "party"),
		Actor:            attrs.ExtractString(attributes, "actor"),
		TokenFingerprint: attrs.ExtractString(attributes, "token"),
		Reason:           attrs.ExtractString(attributes, "reason"),
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(action), "error", err)
	}
}
