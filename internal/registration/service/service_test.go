package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/audit"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/response"
	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	partyService "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/service"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/store"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/logger"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/client"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/service/mocks"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

const (
	theirVersionsURL    = "https://cpo.example.com/ocpi/versions"
	theirDetailsURL     = "https://cpo.example.com/ocpi/2.2.1"
	theirCredentialsURL = "https://cpo.example.com/ocpi/2.2.1/credentials"
	grace               = 15 * time.Minute
)

type RegistrationSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	ctrl    *gomock.Controller
	client  *mocks.MockClient
	parties *partyService.Service
	events  *audit.InMemoryStore
	service *Service
	key     domain.PartyKey
	next    int
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockClient(s.ctrl)
	s.parties = partyService.New(store.NewInMemory(), partyService.WithLogger(logger.Discard()))
	s.events = audit.NewInMemoryStore()
	s.next = 0
	s.service = s.newService()

	party, err := s.parties.CreateParty(s.ctx, &partyModels.CreatePartyRequest{
		CountryCode: "NL", PartyID: "EXA", Role: "CPO", Name: "Example",
		Bootstrap: &partyModels.BootstrapRequest{Token: "bootstrap", VersionsURL: theirVersionsURL},
	})
	s.Require().NoError(err)
	s.key = party.Key
}

func (s *RegistrationSuite) newService(opts ...Option) *Service {
	ours := []partyModels.CredentialsRole{{
		Role:            domain.RoleEMSP,
		CountryCode:     domain.MustParse[domain.CountryCodeKind]("DE"),
		PartyID:         domain.MustParse[domain.PartyIDKind]("OUR"),
		BusinessDetails: partyModels.BusinessDetails{Name: "Our Platform"},
	}}
	cfg := config.Registration{RotationGrace: grace, LockTTL: time.Minute, HandshakeBudget: time.Minute}
	base := []Option{
		WithLogger(logger.Discard()),
		WithAuditPublisher(audit.NewPublisher(s.events)),
		WithTokenGenerator(func() (string, error) {
			s.next++
			return fmt.Sprintf("gen-%d", s.next), nil
		}),
	}
	return New(s.parties, s.client, cfg, ours, "https://ours.example.com", append(base, opts...)...)
}

func credsJSON(token string) json.RawMessage {
	return json.RawMessage(`{
		"token": "` + token + `",
		"url": "https://cpo.example.com/ocpi/versions",
		"roles": [
			{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "Example CPO"}},
			{"role": "EMSP", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "Example EMSP"}}
		]
	}`)
}

func versions() []models.VersionInfo {
	return []models.VersionInfo{
		{Version: "2.1.1", URL: "https://cpo.example.com/ocpi/2.1.1"},
		{Version: "2.2.1", URL: theirDetailsURL},
		{Version: "9.9", URL: "https://cpo.example.com/ocpi/9.9"},
	}
}

func details() models.VersionDetails {
	return models.VersionDetails{
		Version: domain.Version221,
		Endpoints: []partyModels.Endpoint{
			{Identifier: "credentials", Role: partyModels.EndpointSender, URL: theirCredentialsURL},
			{Identifier: "credentials", Role: partyModels.EndpointReceiver, URL: theirCredentialsURL},
			{Identifier: "locations", Role: partyModels.EndpointSender, URL: "https://cpo.example.com/ocpi/2.2.1/locations"},
		},
	}
}

func (s *RegistrationSuite) expectDiscovery(auth client.Auth, times int) {
	s.client.EXPECT().Versions(gomock.Any(), theirVersionsURL, auth).Return(versions(), nil).Times(times)
	s.client.EXPECT().Details(gomock.Any(), theirDetailsURL, auth).Return(details(), nil).Times(times)
}

func bootstrapAuth() client.Auth {
	return client.Auth{Token: partyModels.MustAccessToken("bootstrap")}
}

func notDelivered() error {
	return dErrors.Wrap(fmt.Errorf("%w: %w", client.ErrNotDelivered, errors.New("connection refused")), dErrors.CodeUpstream, "post_credentials call failed")
}

func (s *RegistrationSuite) party() *partyModels.RemoteParty {
	p, err := s.parties.Get(s.ctx, s.key)
	s.Require().NoError(err)
	return p
}

func (s *RegistrationSuite) local(token string, base64 bool) partyModels.LocalAccessInfo {
	info, ok := s.party().FindLocal(partyModels.TokenKey{Token: partyModels.MustAccessToken(token), Base64: base64})
	s.Require().True(ok, "local token %s", token)
	return info
}

func (s *RegistrationSuite) register() {
	s.expectDiscovery(bootstrapAuth(), 1)
	s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
		Return(credsJSON("their-token"), nil)
	out, err := s.service.Register(s.ctx, s.key)
	s.Require().NoError(err)
	s.Require().Equal(models.StateRegistered, out.State)
}

func (s *RegistrationSuite) TestRegister() {
	s.expectDiscovery(bootstrapAuth(), 1)
	s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ client.Auth, body any) (json.RawMessage, error) {
			creds, ok := body.(models.Credentials)
			s.Require().True(ok)
			s.Equal("gen-1", creds.Token)
			s.Equal("https://ours.example.com/ocpi/versions", creds.URL)
			s.Require().Len(creds.Roles, 1)
			// The token exists as PENDING before it leaves the process.
			s.Equal(partyModels.AccessPending, s.local("gen-1", true).Status)
			return credsJSON("their-token"), nil
		})

	out, err := s.service.Register(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(models.StateRegistered, out.State)
	s.Equal(domain.Version221, out.Version)
	s.Equal(1, out.Attempts)

	p := s.party()
	s.True(p.IsRegistered())
	s.Equal(partyModels.AccessRegistered, s.local("gen-1", true).Status)

	remote, ok := p.ActiveRemote()
	s.Require().True(ok)
	s.Equal("their-token", remote.Token.Value())
	s.True(remote.Base64)
	s.Equal(domain.Version221, remote.Version)
	s.Len(remote.Endpoints, 3)

	bootstrap := p.RemoteAccess[0]
	s.Equal(partyModels.RemoteStale, bootstrap.Status)
	s.Require().NotNil(bootstrap.RemoveAfter)
	s.Equal(s.now.Add(grace), *bootstrap.RemoveAfter)

	s.Require().Len(p.Roles, 2)
	s.Equal(p.Roles[0].Identity(), p.Roles[1].Identity())
	s.NotEqual(p.Roles[0].Role, p.Roles[1].Role)

	events, err := s.events.ListByParty(s.ctx, "NL*EXA*CPO")
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(audit.ActionPartyRegistered, events[len(events)-1].Action)
	s.Equal("2.2.1", events[len(events)-1].Version)

	status, ok := s.service.Status(s.key)
	s.Require().True(ok)
	s.Equal(models.StateRegistered, status.State)
}

func (s *RegistrationSuite) TestNoMutualVersion() {
	s.client.EXPECT().Versions(gomock.Any(), theirVersionsURL, bootstrapAuth()).
		Return([]models.VersionInfo{{Version: "2.0", URL: "https://cpo.example.com/ocpi/2.0"}}, nil)

	out, err := s.service.Register(s.ctx, s.key)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedVersion))
	s.Equal(models.StateFailed, out.State)
	s.Contains(out.Reason, "no mutually supported version")
	s.Empty(s.party().LocalAccess)

	status, ok := s.service.Status(s.key)
	s.Require().True(ok)
	s.Equal(models.StateFailed, status.State)

	events, _ := s.events.ListByParty(s.ctx, "NL*EXA*CPO")
	s.Require().NotEmpty(events)
	s.Equal(audit.ActionRegistrationFailed, events[len(events)-1].Action)
}

func (s *RegistrationSuite) TestRejectedExchangeRestartsOnceWithNewToken() {
	s.expectDiscovery(bootstrapAuth(), 2)
	gomock.InOrder(
		s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
			Return(nil, dErrors.Wrap(&client.StatusError{HTTPStatus: 400, StatusCode: 2001}, dErrors.CodeUpstream, "post_credentials call failed")),
		s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
			Return(credsJSON("their-token"), nil),
	)

	out, err := s.service.Register(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(models.StateRegistered, out.State)
	s.Equal(2, out.Attempts)

	_, found := s.party().FindLocal(partyModels.TokenKey{Token: partyModels.MustAccessToken("gen-1"), Base64: true})
	s.False(found, "the rejected token is rolled back")
	s.Equal(partyModels.AccessRegistered, s.local("gen-2", true).Status)
}

func (s *RegistrationSuite) TestMalformedAnswerRollsBack() {
	s.expectDiscovery(bootstrapAuth(), 2)
	s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
		Return(json.RawMessage(`{"token": "x"}`), nil).Times(2)

	out, err := s.service.Register(s.ctx, s.key)
	s.Require().Error(err)
	s.Equal(models.StateFailed, out.State)
	s.Equal(2, out.Attempts)
	s.Empty(s.party().LocalAccess)
	s.False(s.party().IsRegistered())
}

func (s *RegistrationSuite) TestUndeliveredExchangeDoesNotRestart() {
	s.expectDiscovery(bootstrapAuth(), 1)
	s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
		Return(nil, notDelivered())

	out, err := s.service.Register(s.ctx, s.key)
	s.Require().Error(err)
	s.Equal(models.StateFailed, out.State)
	s.Equal(1, out.Attempts)
	s.Empty(s.party().LocalAccess)
}

func (s *RegistrationSuite) TestRegisterTwiceConflicts() {
	s.register()

	_, err := s.service.Register(s.ctx, s.key)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *RegistrationSuite) TestRenewRotatesWithGrace() {
	s.register()
	theirAuth := client.Auth{Token: partyModels.MustAccessToken("their-token"), Base64: true}
	s.client.EXPECT().Versions(gomock.Any(), "https://cpo.example.com/ocpi/versions", theirAuth).Return(versions(), nil)
	s.client.EXPECT().Details(gomock.Any(), theirDetailsURL, theirAuth).Return(details(), nil)
	s.client.EXPECT().PutCredentials(gomock.Any(), theirCredentialsURL, theirAuth, gomock.Any()).
		Return(credsJSON("their-newer"), nil)

	later := s.now.Add(time.Hour)
	ctx := requestcontext.WithTime(context.Background(), later)
	out, err := s.service.Renew(ctx, s.key)
	s.Require().NoError(err)
	s.Equal(models.StateRegistered, out.State)

	old := s.local("gen-1", true)
	s.True(old.Stale)
	s.Require().NotNil(old.NotAfter)
	s.Equal(later.Add(grace), *old.NotAfter)
	s.Equal(partyModels.Valid, old.ValidityAt(later.Add(time.Minute)), "in-flight calls with the old token still pass")
	s.Equal(partyModels.Expired, old.ValidityAt(later.Add(grace)))
	s.Equal(partyModels.AccessRegistered, s.local("gen-2", true).Status)

	remote, ok := s.party().ActiveRemote()
	s.Require().True(ok)
	s.Equal("their-newer", remote.Token.Value())

	events, _ := s.events.ListByParty(s.ctx, "NL*EXA*CPO")
	s.Equal(audit.ActionCredentialsRotated, events[len(events)-1].Action)
}

func (s *RegistrationSuite) TestRenewAcceptedButUnusableIsUnrecoverable() {
	s.register()
	theirAuth := client.Auth{Token: partyModels.MustAccessToken("their-token"), Base64: true}
	s.client.EXPECT().Versions(gomock.Any(), gomock.Any(), theirAuth).Return(versions(), nil)
	s.client.EXPECT().Details(gomock.Any(), theirDetailsURL, theirAuth).Return(details(), nil)
	s.client.EXPECT().PutCredentials(gomock.Any(), theirCredentialsURL, theirAuth, gomock.Any()).
		Return(nil, dErrors.Wrap(fmt.Errorf("%w: %w", client.ErrNoResponse, context.DeadlineExceeded), dErrors.CodeUpstream, "put_credentials call failed")).
		Times(1)

	out, err := s.service.Renew(s.ctx, s.key)
	s.Require().Error(err)
	s.True(errors.Is(err, ErrUnrecoverable))
	s.Equal(models.StateFailed, out.State)
	s.Equal(1, out.Attempts)

	s.Equal(partyModels.AccessRegistered, s.local("gen-2", true).Status, "the counterpart may already use the new token")
	s.False(s.local("gen-1", true).Stale, "the old token keeps working too")
	for _, r := range s.party().RemoteAccess {
		if r.Token.Value() == "their-token" {
			s.Equal(partyModels.RemoteFailed, r.Status)
		}
	}
}

func (s *RegistrationSuite) TestRenewRequiresRegistration() {
	_, err := s.service.Renew(s.ctx, s.key)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *RegistrationSuite) TestStartRegisterRunsInBackground() {
	s.register()
	s.Require().NoError(s.removeRegistration())

	s.expectDiscovery(bootstrapAuth(), 1)
	s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
		Return(credsJSON("their-token-2"), nil)

	ctx, cancel := context.WithCancel(s.ctx)
	pending, err := s.service.StartRegister(ctx, s.key)
	cancel()
	s.Require().NoError(err)
	s.Equal(models.StateDiscovering, pending.State)

	s.service.Wait()
	out, ok := s.service.Status(s.key)
	s.Require().True(ok)
	s.Equal(models.StateRegistered, out.State)
}

// removeRegistration resets the party to a fresh bootstrap so a second
// registration can run.
func (s *RegistrationSuite) removeRegistration() error {
	_, err := s.parties.Update(s.ctx, s.key, func(p *partyModels.RemoteParty) error {
		p.LocalAccess = nil
		p.RemoteAccess = nil
		return p.AddRemoteBootstrap(partyModels.RemoteAccessInfo{
			Token:       partyModels.MustAccessToken("bootstrap"),
			VersionsURL: theirVersionsURL,
		}, s.now)
	})
	return err
}

func (s *RegistrationSuite) TestOppositeDirectionConflictsWhileRunning() {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	s.client.EXPECT().Versions(gomock.Any(), theirVersionsURL, bootstrapAuth()).
		DoAndReturn(func(context.Context, string, client.Auth) ([]models.VersionInfo, error) {
			close(entered)
			<-proceed
			return versions(), nil
		})
	s.client.EXPECT().Details(gomock.Any(), theirDetailsURL, bootstrapAuth()).Return(details(), nil)
	s.client.EXPECT().PostCredentials(gomock.Any(), theirCredentialsURL, bootstrapAuth(), gomock.Any()).
		Return(credsJSON("their-token"), nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.service.Register(s.ctx, s.key)
		done <- err
	}()
	<-entered

	_, err := s.service.Renew(s.ctx, s.key)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "renew during register: %v", err)
	_, err = s.service.StartRenew(s.ctx, s.key)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "background renew during register: %v", err)

	close(proceed)
	s.Require().NoError(<-done)
	out, ok := s.service.Status(s.key)
	s.Require().True(ok)
	s.Equal(models.DirectionRegister, out.Direction)
	s.Equal(models.StateRegistered, out.State)
}

func (s *RegistrationSuite) TestStartUnknownParty() {
	_, err := s.service.StartRegister(s.ctx, domain.PartyKey{
		CountryCode: domain.MustParse[domain.CountryCodeKind]("BE"),
		PartyID:     domain.MustParse[domain.PartyIDKind]("XXX"),
		Role:        domain.RoleCPO,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, fmt.Errorf("lock: %w", sentinel.ErrLocked)
}

func (s *RegistrationSuite) TestLockHeldElsewhere() {
	svc := s.newService(WithLocker(heldLock{}))
	out, err := svc.Register(s.ctx, s.key)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(models.StateFailed, out.State)
}

func (s *RegistrationSuite) TestDeregister() {
	s.register()
	theirAuth := client.Auth{Token: partyModels.MustAccessToken("their-token"), Base64: true}
	s.client.EXPECT().DeleteCredentials(gomock.Any(), theirCredentialsURL, theirAuth).Return(nil)

	s.Require().NoError(s.service.Deregister(s.ctx, s.key))
	p := s.party()
	s.False(p.IsRegistered())
	for _, a := range p.LocalAccess {
		s.Equal(partyModels.AccessBlocked, a.Status)
	}

	s.True(dErrors.HasCode(s.service.Deregister(s.ctx, s.key), dErrors.CodeMethodNotAllowed))
}

func (s *RegistrationSuite) issuePending(token string) partyModels.LocalAccessInfo {
	info, err := s.parties.IssueToken(s.ctx, s.key, partyModels.IssueTokenRequest{Token: token, Base64: true})
	s.Require().NoError(err)
	return info
}

func (s *RegistrationSuite) TestAcceptRegistration() {
	pending := s.issuePending("admin-issued")
	theirAuth := client.Auth{Token: partyModels.MustAccessToken("their-token"), Base64: true}
	s.client.EXPECT().Versions(gomock.Any(), "https://cpo.example.com/ocpi/versions", theirAuth).Return(versions(), nil)
	s.client.EXPECT().Details(gomock.Any(), theirDetailsURL, theirAuth).Return(details(), nil)

	creds, err := s.service.Accept(s.ctx, s.party(), domain.Version221, credsJSON("their-token"), false)
	s.Require().NoError(err)
	s.Equal("gen-1", creds.Token)
	s.Equal("https://ours.example.com/ocpi/versions", creds.URL)

	p := s.party()
	s.True(p.IsRegistered())
	old := s.local(pending.Token.Value(), true)
	s.True(old.Stale)
	s.Equal(s.now.Add(grace), *old.NotAfter)
	s.Equal(partyModels.AccessRegistered, s.local("gen-1", true).Status)
	s.Len(p.Roles, 2)

	_, err = s.service.Accept(s.ctx, p, domain.Version221, credsJSON("their-token"), false)
	s.True(dErrors.HasCode(err, dErrors.CodeMethodNotAllowed))

	// Credentials answers with the token the caller used.
	got := s.service.Credentials(s.ctx, s.local("gen-1", true))
	s.Equal("gen-1", got.Token)
}

func (s *RegistrationSuite) TestAcceptPutRequiresRegistration() {
	s.issuePending("admin-issued")
	_, err := s.service.Accept(s.ctx, s.party(), domain.Version221, credsJSON("their-token"), true)
	s.True(dErrors.HasCode(err, dErrors.CodeMethodNotAllowed))
}

func (s *RegistrationSuite) TestAcceptUnreachableCounterpart() {
	s.issuePending("admin-issued")
	s.client.EXPECT().Versions(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, notDelivered())

	_, err := s.service.Accept(s.ctx, s.party(), domain.Version221, credsJSON("their-token"), false)
	s.Require().Error(err)
	_, code, _ := response.Classify(err)
	s.Equal(response.StatusUnableToUseClientAPI, code)
	s.False(s.party().IsRegistered())
	s.Len(s.party().LocalAccess, 1)
}

func (s *RegistrationSuite) TestAcceptMalformedCredentials() {
	s.issuePending("admin-issued")
	_, err := s.service.Accept(s.ctx, s.party(), domain.Version221, json.RawMessage(`{"token": ""}`), false)
	_, code, _ := response.Classify(err)
	s.Equal(response.StatusInvalidParameters, code)
}

func (s *RegistrationSuite) TestUnregister() {
	s.register()
	s.Require().NoError(s.service.Unregister(s.ctx, s.party()))
	p := s.party()
	s.False(p.IsRegistered())
	for _, r := range p.RemoteAccess {
		s.Equal(partyModels.RemoteBlocked, r.Status)
	}
	s.True(dErrors.HasCode(s.service.Unregister(s.ctx, p), dErrors.CodeMethodNotAllowed))
}
