package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/audit"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// Seed creates the statically configured parties. Parties that already
// exist are left untouched so restarts do not clobber handshake state.
func (s *Service) Seed(ctx context.Context, statics []config.StaticParty) (int, error) {
	now := requestcontext.Now(ctx)
	created := 0
	for _, sp := range statics {
		party, err := StaticToParty(sp, now)
		if err != nil {
			return created, fmt.Errorf("static party %s*%s: %w", sp.CountryCode, sp.PartyID, err)
		}
		if err := s.store.Create(ctx, party); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				if _, findErr := s.store.FindByKey(ctx, party.Key); findErr == nil {
					continue
				}
			}
			return created, translate(err, "static party "+party.Key.String())
		}
		created++
		s.metrics.IncrementPartiesCreated()
		s.logAudit(ctx, audit.ActionPartyCreated, "party", party.Key.String(), "actor", "system")
	}
	return created, nil
}

// StaticToParty converts a configured counterpart into a registry record.
// Tokens default to OPEN since no handshake will run for them.
func StaticToParty(sp config.StaticParty, now time.Time) (*models.RemoteParty, error) {
	key, err := domain.NewPartyKey(sp.CountryCode, sp.PartyID, sp.Role)
	if err != nil {
		return nil, err
	}
	roles, err := RoleEntries(sp.Roles)
	if err != nil {
		return nil, err
	}
	party, err := models.NewRemoteParty(key, sp.Name, roles, now)
	if err != nil {
		return nil, err
	}
	for _, te := range sp.Tokens {
		token, err := models.ParseAccessToken(te.Token)
		if err != nil {
			return nil, err
		}
		status := models.AccessOpen
		if te.Status != "" {
			status = models.AccessStatus(te.Status)
		}
		info := models.LocalAccessInfo{Token: token, Base64: te.Base64, Status: status, CreatedAt: now}
		if te.TOTPSecret != "" {
			info.TOTP = &models.TOTPConfig{Secret: te.TOTPSecret}
		}
		if err := party.AddLocal(info, now); err != nil {
			return nil, err
		}
	}
	if sp.Remote != nil {
		token, err := models.ParseAccessToken(sp.Remote.Token)
		if err != nil {
			return nil, err
		}
		if err := party.AddRemoteBootstrap(models.RemoteAccessInfo{
			Token:       token,
			Base64:      sp.Remote.Base64,
			VersionsURL: sp.Remote.VersionsURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, now); err != nil {
			return nil, err
		}
	}
	return party, nil
}

// RoleEntries converts configured role entries into credentials roles.
func RoleEntries(entries []config.RoleEntry) ([]models.CredentialsRole, error) {
	roles := make([]models.CredentialsRole, 0, len(entries))
	for _, e := range entries {
		key, err := domain.NewPartyKey(e.CountryCode, e.PartyID, e.Role)
		if err != nil {
			return nil, err
		}
		roles = append(roles, models.CredentialsRole{
			Role:            key.Role,
			CountryCode:     key.CountryCode,
			PartyID:         key.PartyID,
			BusinessDetails: models.BusinessDetails{Name: e.Name, Website: e.Website},
		})
	}
	return roles, nil
}
