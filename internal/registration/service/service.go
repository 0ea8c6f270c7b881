// Package service runs the credentials handshake.
//
// Outbound, Register and Renew drive the state machine
// Discovering → VersionSelected → DetailsFetched → CredentialsExchanged →
// Registered against a counterpart. Inbound, Accept answers a
// counterpart's POST or PUT. Both sides write the registry at two
// checkpoints at most, each a single atomic Update, so an aborted handshake
// leaves the party at its previous state or at the new one.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/audit"
	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/client"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/attrs"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/secrets"
)

// ErrUnrecoverable marks a renewal the counterpart accepted but whose
// answer we could not use. Their side may already hold our new token while
// we no longer know theirs, so retrying cannot fix it; an operator must.
var ErrUnrecoverable = errors.New("credentials renewal unrecoverable")

// maxAttempts bounds restarts from discovery after a failed exchange.
const maxAttempts = 2

type Registry interface {
	Get(ctx context.Context, key domain.PartyKey) (*partyModels.RemoteParty, error)
	Update(ctx context.Context, key domain.PartyKey, fn func(*partyModels.RemoteParty) error) (*partyModels.RemoteParty, error)
}

type Client interface {
	Versions(ctx context.Context, versionsURL string, auth client.Auth) ([]models.VersionInfo, error)
	Details(ctx context.Context, detailsURL string, auth client.Auth) (models.VersionDetails, error)
	PostCredentials(ctx context.Context, credentialsURL string, auth client.Auth, body any) (json.RawMessage, error)
	PutCredentials(ctx context.Context, credentialsURL string, auth client.Auth, body any) (json.RawMessage, error)
	DeleteCredentials(ctx context.Context, credentialsURL string, auth client.Auth) error
}

// Locker serializes handshakes for one party across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	registry       Registry
	client         Client
	locker         Locker
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracker        *models.Tracker
	cfg            config.Registration
	ours           []partyModels.CredentialsRole
	versionsURL    string
	generateToken  func() (string, error)

	group singleflight.Group
	wg    sync.WaitGroup

	mu      sync.Mutex
	running map[string]models.Direction
}

type Option func(*Service)

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

// WithLocker adds a cross-instance lock around outbound handshakes.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithTracker(t *models.Tracker) Option {
	return func(s *Service) {
		s.tracker = t
	}
}

// WithTokenGenerator replaces the random token source, for tests.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		s.generateToken = gen
	}
}

// New constructs a Service. ours are the roles we present to counterparts
// and publicURL is the base they reach us at.
func New(registry Registry, c Client, cfg config.Registration, ours []partyModels.CredentialsRole, publicURL string, opts ...Option) *Service {
	s := &Service{
		registry:      registry,
		client:        c,
		logger:        slog.Default(),
		tracker:       models.NewTracker(),
		cfg:           cfg,
		ours:          ours,
		versionsURL:   publicURL + "/ocpi/versions",
		generateToken: secrets.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VersionsURL is the URL we publish as our versions endpoint.
func (s *Service) VersionsURL() string {
	return s.versionsURL
}

// Register performs an outbound registration with the party's bootstrap
// token. The outcome is recorded for Status either way.
func (s *Service) Register(ctx context.Context, key domain.PartyKey) (models.Outcome, error) {
	return s.coalesce(ctx, key, models.DirectionRegister)
}

// Renew replaces the tokens of a registered party with an outbound PUT.
func (s *Service) Renew(ctx context.Context, key domain.PartyKey) (models.Outcome, error) {
	return s.coalesce(ctx, key, models.DirectionRenew)
}

// StartRegister runs Register in the background and returns at once. The
// handshake is detached from ctx's cancellation and bounded by the
// configured budget.
func (s *Service) StartRegister(ctx context.Context, key domain.PartyKey) (models.Outcome, error) {
	return s.start(ctx, key, models.DirectionRegister)
}

// StartRenew runs Renew in the background.
func (s *Service) StartRenew(ctx context.Context, key domain.PartyKey) (models.Outcome, error) {
	return s.start(ctx, key, models.DirectionRenew)
}

// Status returns the latest recorded outcome for the party.
func (s *Service) Status(key domain.PartyKey) (models.Outcome, bool) {
	return s.tracker.Get(key)
}

// Wait blocks until every background handshake finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) start(ctx context.Context, key domain.PartyKey, dir models.Direction) (models.Outcome, error) {
	if _, err := s.registry.Get(ctx, key); err != nil {
		return models.Outcome{}, err
	}
	if err := s.busy(key, dir); err != nil {
		return models.Outcome{}, err
	}
	now := requestcontext.Now(ctx)
	pending := models.Outcome{
		Party:     key,
		Direction: dir,
		State:     models.StateDiscovering,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.tracker.Record(pending)

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg, cancel := context.WithTimeout(bg, s.budget())
		defer cancel()
		_, _ = s.coalesce(bg, key, dir)
	}()
	return pending, nil
}

func (s *Service) budget() time.Duration {
	if s.cfg.HandshakeBudget > 0 {
		return s.cfg.HandshakeBudget
	}
	return 2 * time.Minute
}

// coalesce lets one handshake per party run at a time. Concurrent callers
// asking for the same direction share its outcome; the opposite direction
// gets a Conflict. Other instances are kept out by the lock.
func (s *Service) coalesce(ctx context.Context, key domain.PartyKey, dir models.Direction) (models.Outcome, error) {
	type result struct {
		outcome models.Outcome
		err     error
	}
	v, _, _ := s.group.Do(key.String()+":"+string(dir), func() (any, error) {
		unclaim, err := s.claim(key, dir)
		if err != nil {
			return result{err: err}, nil
		}
		defer unclaim()
		release, err := s.acquire(ctx, key)
		if err != nil {
			out := s.fail(ctx, models.Outcome{Party: key, Direction: dir, State: models.StateDiscovering, StartedAt: requestcontext.Now(ctx)}, err)
			return result{out, err}, nil
		}
		defer release()
		out, err := s.handshake(ctx, key, dir)
		return result{out, err}, nil
	})
	r := v.(result)
	return r.outcome, r.err
}

// claim marks key as running a handshake in direction dir.
func (s *Service) claim(key domain.PartyKey, dir models.Direction) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running, ok := s.running[key.String()]; ok {
		return nil, conflict(key, running, dir)
	}
	if s.running == nil {
		s.running = make(map[string]models.Direction)
	}
	s.running[key.String()] = dir
	return func() {
		s.mu.Lock()
		delete(s.running, key.String())
		s.mu.Unlock()
	}, nil
}

// busy fails when the opposite direction is running for key.
func (s *Service) busy(key domain.PartyKey, dir models.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running, ok := s.running[key.String()]; ok && running != dir {
		return conflict(key, running, dir)
	}
	return nil
}

func conflict(key domain.PartyKey, running, dir models.Direction) error {
	return dErrors.New(dErrors.CodeConflict,
		fmt.Sprintf("cannot %s %s while a %s handshake is running", dir, key, running))
}

func (s *Service) acquire(ctx context.Context, key domain.PartyKey) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, "registration:"+key.String(), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, sentinel.ErrLocked) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "a handshake with "+key.String()+" is already running")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to take registration lock")
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release registration lock", "party", key.String(), "error", err)
		}
	}, nil
}

func (s *Service) handshake(ctx context.Context, key domain.PartyKey, dir models.Direction) (models.Outcome, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	out := models.Outcome{
		Party:     key,
		Direction: dir,
		State:     models.StateDiscovering,
		StartedAt: now,
		UpdatedAt: now,
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt
		var restart bool
		restart, err = s.attempt(ctx, &out)
		if err == nil {
			break
		}
		if !restart || attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		s.metrics.IncrementRestarts()
		s.logger.WarnContext(ctx, "credentials exchange failed, restarting discovery",
			"request_id", requestcontext.RequestID(ctx),
			"party", key.String(),
			"direction", string(dir),
			"error", err,
		)
		s.advance(&out, models.StateFailed)
		s.advance(&out, models.StateDiscovering)
	}

	if err != nil {
		out = s.fail(ctx, out, err)
	} else {
		s.tracker.Record(out)
	}
	s.metrics.ObserveHandshake(string(dir), string(out.State), start)
	return out, err
}

// attempt runs the machine once. restart reports whether a failure left
// the registry clean enough to try again from discovery.
func (s *Service) attempt(ctx context.Context, out *models.Outcome) (restart bool, err error) {
	key, dir := out.Party, out.Direction
	party, err := s.registry.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if party.IsBlocked() {
		return false, dErrors.New(dErrors.CodeForbidden, "party "+key.String()+" is blocked")
	}
	switch {
	case dir == models.DirectionRegister && party.IsRegistered():
		return false, dErrors.New(dErrors.CodeConflict, "party "+key.String()+" is already registered; renew instead")
	case dir == models.DirectionRenew && !party.IsRegistered():
		return false, dErrors.New(dErrors.CodeInvariantViolation, "party "+key.String()+" is not registered")
	}
	remote, ok := party.ActiveRemote()
	if !ok {
		return false, dErrors.New(dErrors.CodeValidation, "no token to call "+key.String()+" with; store a bootstrap token first")
	}
	auth := client.Auth{Token: remote.Token, Base64: remote.Base64}

	// Discovering
	infos, err := s.client.Versions(ctx, remote.VersionsURL, auth)
	if err != nil {
		return false, err
	}
	v, ok := domain.HighestMutual(domain.SupportedVersions(), models.Versions(infos))
	if !ok {
		return false, dErrors.New(dErrors.CodeUnsupportedVersion, "no mutually supported version with "+key.String())
	}
	info, _ := models.Find(infos, v)
	out.Version = v
	s.advance(out, models.StateVersionSelected)

	details, err := s.client.Details(ctx, info.URL, auth)
	if err != nil {
		return false, err
	}
	endpoint, ok := details.Endpoint(models.CredentialsModule)
	if !ok {
		return false, dErrors.New(dErrors.CodeUpstream, key.String()+" publishes no credentials endpoint for "+v.String())
	}
	s.advance(out, models.StateDetailsFetched)

	// Checkpoint 1: the token we are about to hand over exists as PENDING
	// before it leaves this process.
	local, err := s.newLocal(ctx, v, partyModels.AccessPending)
	if err != nil {
		return false, err
	}
	if _, err := s.registry.Update(ctx, key, func(p *partyModels.RemoteParty) error {
		return p.AddLocal(local, requestcontext.Now(ctx))
	}); err != nil {
		return false, err
	}

	body := s.credentials(local.Token).Wire(v)
	var raw json.RawMessage
	if dir == models.DirectionRenew {
		raw, err = s.client.PutCredentials(ctx, endpoint.URL, auth, body)
	} else {
		raw, err = s.client.PostCredentials(ctx, endpoint.URL, auth, body)
	}
	var creds models.Credentials
	if err == nil {
		creds, err = models.DecodeCredentials(v, raw, key.Role)
	}
	if err != nil {
		if dir == models.DirectionRenew && acceptedButUnusable(err) {
			return false, s.strand(ctx, key, local, remote, err)
		}
		s.rollback(ctx, key, local)
		return client.Delivered(err) || dErrors.HasCode(err, dErrors.CodeValidation), err
	}
	s.advance(out, models.StateCredentialsExchanged)

	// Checkpoint 2: promote, install and retire in one publish.
	theirs, err := partyModels.ParseAccessToken(creds.Token)
	if err != nil {
		s.rollback(ctx, key, local)
		return false, dErrors.Wrap(err, dErrors.CodeValidation, "invalid credentials token")
	}
	now := requestcontext.Now(ctx)
	grace := now.Add(s.cfg.RotationGrace)
	if _, err := s.registry.Update(ctx, key, func(p *partyModels.RemoteParty) error {
		if err := p.PromoteLocal(local.Key(), partyModels.AccessRegistered, now); err != nil {
			return err
		}
		if err := p.RetireLocal(local.Key(), grace, now); err != nil {
			return err
		}
		if err := p.InstallRemote(partyModels.RemoteAccessInfo{
			Token:       theirs,
			Base64:      v.UsesBase64Tokens(),
			VersionsURL: creds.URL,
			Version:     v,
			Endpoints:   details.Endpoints,
			Status:      partyModels.RemoteRegistered,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, grace, now); err != nil {
			return err
		}
		return p.SetRoles(creds.Roles, now)
	}); err != nil {
		s.rollback(ctx, key, local)
		return false, err
	}
	s.advance(out, models.StateRegistered)

	action := audit.ActionPartyRegistered
	if dir == models.DirectionRenew {
		action = audit.ActionCredentialsRotated
	}
	s.logAudit(ctx, action,
		"party", key.String(),
		"actor", "system",
		"token", local.Token.Fingerprint(),
		"version", v.String(),
	)
	return false, nil
}

// acceptedButUnusable reports whether the counterpart may have applied our
// PUT although we cannot read what it answered.
func acceptedButUnusable(err error) bool {
	return client.Unusable(err) || dErrors.HasCode(err, dErrors.CodeValidation)
}

// strand handles the unrecoverable renewal: the counterpart may now call us
// with the new token, so it is promoted; the token we called them with may
// be gone, so it is marked failed. Nothing is retried.
func (s *Service) strand(ctx context.Context, key domain.PartyKey, local partyModels.LocalAccessInfo, remote partyModels.RemoteAccessInfo, cause error) error {
	now := requestcontext.Now(ctx)
	if _, err := s.registry.Update(ctx, key, func(p *partyModels.RemoteParty) error {
		if err := p.PromoteLocal(local.Key(), partyModels.AccessRegistered, now); err != nil {
			return err
		}
		p.MarkRemoteFailed(remote.Token, now)
		return nil
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to record unrecoverable renewal",
			"request_id", requestcontext.RequestID(ctx),
			"party", key.String(),
			"error", err,
		)
	}
	return dErrors.Wrap(fmt.Errorf("%w: %w", ErrUnrecoverable, cause), dErrors.CodeUpstream,
		"renewal with "+key.String()+" was accepted but its answer is unusable; operator action required")
}

func (s *Service) rollback(ctx context.Context, key domain.PartyKey, local partyModels.LocalAccessInfo) {
	ctx = context.WithoutCancel(ctx)
	now := requestcontext.Now(ctx)
	if _, err := s.registry.Update(ctx, key, func(p *partyModels.RemoteParty) error {
		p.RemoveLocal(local.Key(), now)
		return nil
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to roll back pending token",
			"request_id", requestcontext.RequestID(ctx),
			"party", key.String(),
			"token", local.Token.Fingerprint(),
			"error", err,
		)
	}
}

func (s *Service) advance(out *models.Outcome, next models.State) {
	if !out.State.CanTransitionTo(next) {
		s.logger.Error("invalid handshake transition", "party", out.Party.String(), "from", string(out.State), "to", string(next))
		return
	}
	out.State = next
	out.UpdatedAt = time.Now()
}

func (s *Service) fail(ctx context.Context, out models.Outcome, err error) models.Outcome {
	if out.State != models.StateFailed {
		s.advance(&out, models.StateFailed)
	}
	out.Reason = reason(err)
	s.tracker.Record(out)
	s.logger.WarnContext(ctx, "handshake failed",
		"request_id", requestcontext.RequestID(ctx),
		"party", out.Party.String(),
		"direction", string(out.Direction),
		"attempts", out.Attempts,
		"error", err,
	)
	s.logAudit(ctx, audit.ActionRegistrationFailed,
		"party", out.Party.String(),
		"actor", "system",
		"version", out.Version.String(),
		"reason", out.Reason,
	)
	return out
}

func reason(err error) string {
	if de, ok := dErrors.As(err); ok && de.Code != dErrors.CodeInternal {
		return de.Message
	}
	return "internal error"
}

// Deregister tells the counterpart we end the registration, then blocks
// every token locally. The local side is unregistered even when the
// counterpart cannot be reached.
func (s *Service) Deregister(ctx context.Context, key domain.PartyKey) error {
	party, err := s.registry.Get(ctx, key)
	if err != nil {
		return err
	}
	if !party.IsRegistered() {
		return dErrors.New(dErrors.CodeMethodNotAllowed, "party "+key.String()+" is not registered")
	}
	if remote, ok := party.ActiveRemote(); ok {
		if ep, found := remote.Endpoint(models.CredentialsModule, partyModels.EndpointReceiver); found {
			auth := client.Auth{Token: remote.Token, Base64: remote.Base64}
			if err := s.client.DeleteCredentials(ctx, ep.URL, auth); err != nil {
				s.logger.WarnContext(ctx, "counterpart did not confirm deregistration",
					"request_id", requestcontext.RequestID(ctx),
					"party", key.String(),
					"error", err,
				)
			}
		}
	}
	return s.unregister(ctx, key, "admin")
}

func (s *Service) newLocal(ctx context.Context, v domain.Version, status partyModels.AccessStatus) (partyModels.LocalAccessInfo, error) {
	value, err := s.generateToken()
	if err != nil {
		return partyModels.LocalAccessInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	token, err := partyModels.ParseAccessToken(value)
	if err != nil {
		return partyModels.LocalAccessInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "generated token is invalid")
	}
	return partyModels.LocalAccessInfo{
		Token:     token,
		Base64:    v.UsesBase64Tokens(),
		Status:    status,
		CreatedAt: requestcontext.Now(ctx),
	}, nil
}

// credentials is what we hand a counterpart: the token it should call us
// with and every role we act as.
func (s *Service) credentials(token partyModels.AccessToken) models.Credentials {
	return models.Credentials{
		Token: token.Value(),
		URL:   s.versionsURL,
		Roles: s.ours,
	}
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(action), "log_type", "audit")
	s.logger.InfoContext(ctx, string(action), args...)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:           action,
		Party:            attrs.ExtractString(attributes, "party"),
		Actor:            attrs.ExtractString(attributes, "actor"),
		TokenFingerprint: attrs.ExtractString(attributes, "token"),
		Version:          attrs.ExtractString(attributes, "version"),
		Reason:           attrs.ExtractString(attributes, "reason"),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(action), "error", err)
	}
}
