package service

import (
	"context"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/audit"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/ocpi/response"
	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/client"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// Credentials returns our credentials as seen by the caller: the token it
// authenticated with and every role we act as.
func (s *Service) Credentials(_ context.Context, access partyModels.LocalAccessInfo) models.Credentials {
	return s.credentials(access.Token)
}

// Accept answers a counterpart's POST (register) or PUT (renewal) of its
// credentials. Their versions and details are fetched with the token they
// sent before anything is written; the rotation itself is one Update.
func (s *Service) Accept(ctx context.Context, party *partyModels.RemoteParty, v domain.Version, raw []byte, renewal bool) (models.Credentials, error) {
	method := "POST"
	if renewal {
		method = "PUT"
	}
	creds, err := s.accept(ctx, party, v, raw, renewal)
	if err != nil {
		s.metrics.IncrementInbound(method, string(dErrors.CodeOf(err)))
		return models.Credentials{}, err
	}
	s.metrics.IncrementInbound(method, "ok")
	return creds, nil
}

func (s *Service) accept(ctx context.Context, party *partyModels.RemoteParty, v domain.Version, raw []byte, renewal bool) (models.Credentials, error) {
	key := party.Key
	if err := checkInbound(party, renewal); err != nil {
		return models.Credentials{}, err
	}
	creds, err := models.DecodeCredentials(v, raw, key.Role)
	if err != nil {
		return models.Credentials{}, err
	}
	theirs, err := partyModels.ParseAccessToken(creds.Token)
	if err != nil {
		return models.Credentials{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid credentials token")
	}

	auth := client.Auth{Token: theirs, Base64: v.UsesBase64Tokens()}
	infos, err := s.client.Versions(ctx, creds.URL, auth)
	if err != nil {
		return models.Credentials{}, response.WithStatus(err, response.StatusUnableToUseClientAPI)
	}
	info, ok := models.Find(infos, v)
	if !ok {
		return models.Credentials{}, response.WithStatus(
			dErrors.New(dErrors.CodeUnsupportedVersion, "your versions endpoint does not list "+v.String()),
			response.StatusUnsupportedVersion)
	}
	details, err := s.client.Details(ctx, info.URL, auth)
	if err != nil {
		return models.Credentials{}, response.WithStatus(err, response.StatusUnableToUseClientAPI)
	}

	local, err := s.newLocal(ctx, v, partyModels.AccessRegistered)
	if err != nil {
		return models.Credentials{}, err
	}
	now := requestcontext.Now(ctx)
	grace := now.Add(s.cfg.RotationGrace)
	if _, err := s.registry.Update(ctx, key, func(p *partyModels.RemoteParty) error {
		// A concurrent request may have registered the party meanwhile.
		if err := checkInbound(p, renewal); err != nil {
			return err
		}
		if err := p.AddLocal(local, now); err != nil {
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
		return models.Credentials{}, err
	}

	action := audit.ActionPartyRegistered
	if renewal {
		action = audit.ActionCredentialsRotated
	}
	s.logAudit(ctx, action,
		"party", key.String(),
		"actor", "remote",
		"token", local.Token.Fingerprint(),
		"version", v.String(),
	)
	return s.credentials(local.Token), nil
}

func checkInbound(p *partyModels.RemoteParty, renewal bool) error {
	if p.IsBlocked() {
		return dErrors.New(dErrors.CodeForbidden, "party is blocked")
	}
	if !renewal && p.IsRegistered() {
		return dErrors.New(dErrors.CodeMethodNotAllowed, "already registered; use PUT to update credentials")
	}
	if renewal && !p.IsRegistered() {
		return dErrors.New(dErrors.CodeMethodNotAllowed, "not registered; use POST to register")
	}
	return nil
}

// Unregister answers a counterpart's DELETE: every token in both
// directions is blocked.
func (s *Service) Unregister(ctx context.Context, party *partyModels.RemoteParty) error {
	if !party.IsRegistered() {
		s.metrics.IncrementInbound("DELETE", string(dErrors.CodeMethodNotAllowed))
		return dErrors.New(dErrors.CodeMethodNotAllowed, "not registered")
	}
	if err := s.unregister(ctx, party.Key, "remote"); err != nil {
		s.metrics.IncrementInbound("DELETE", string(dErrors.CodeOf(err)))
		return err
	}
	s.metrics.IncrementInbound("DELETE", "ok")
	return nil
}

func (s *Service) unregister(ctx context.Context, key domain.PartyKey, actor string) error {
	now := requestcontext.Now(ctx)
	if _, err := s.registry.Update(ctx, key, func(p *partyModels.RemoteParty) error {
		p.Unregister(now)
		return nil
	}); err != nil {
		return err
	}
	s.logAudit(ctx, audit.ActionPartyUnregistered, "party", key.String(), "actor", actor)
	return nil
}
