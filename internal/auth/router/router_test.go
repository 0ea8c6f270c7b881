package router

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

func role(cc, pid string, r domain.Role) models.CredentialsRole {
	return models.CredentialsRole{
		Role:            r,
		CountryCode:     domain.MustParse[domain.CountryCodeKind](cc),
		PartyID:         domain.MustParse[domain.PartyIDKind](pid),
		BusinessDetails: models.BusinessDetails{Name: cc + pid},
	}
}

func identity(cc, pid string) domain.PartyIdentity {
	id, err := domain.NewPartyIdentity(cc, pid)
	if err != nil {
		panic(err)
	}
	return id
}

func partyWith(roles ...models.CredentialsRole) *models.RemoteParty {
	return &models.RemoteParty{Key: roles[0].Key(), Roles: roles}
}

var ours = []models.CredentialsRole{role("DE", "OUR", domain.RoleEMSP)}

func TestRouteSingleIdentityDefaults(t *testing.T) {
	r := New(ours)
	party := partyWith(role("NL", "EXA", domain.RoleCPO), role("NL", "EXA", domain.RoleEMSP))

	routing, err := r.Route(party, Headers{})
	require.NoError(t, err)
	assert.False(t, routing.Public())
	assert.Equal(t, identity("DE", "OUR"), routing.Recipient)

	cpo, err := routing.Active(domain.FamilyCPO)
	require.NoError(t, err)
	assert.Equal(t, identity("NL", "EXA"), cpo)

	_, err = routing.Active(domain.FamilyHUB)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRouteAmbiguousFamily(t *testing.T) {
	r := New(ours)
	party := partyWith(role("NL", "EXA", domain.RoleCPO), role("BE", "EXB", domain.RoleCPO))

	routing, err := r.Route(party, Headers{})
	require.NoError(t, err)
	fr, ok := routing.Family(domain.FamilyCPO)
	require.True(t, ok)
	assert.True(t, fr.Ambiguous)
	assert.Len(t, fr.Identities, 2)

	_, err = routing.Active(domain.FamilyCPO)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	routing, err = r.Route(party, Headers{FromCountryCode: "be", FromPartyID: "exb"})
	require.NoError(t, err)
	active, err := routing.Active(domain.FamilyCPO)
	require.NoError(t, err)
	assert.Equal(t, identity("BE", "EXB"), active)
	assert.True(t, routing.SenderExplicit)
	assert.True(t, routing.Owns(domain.FamilyCPO, identity("NL", "EXA")))
}

func TestRouteRejectsForeignSender(t *testing.T) {
	r := New(ours)
	party := partyWith(role("NL", "EXA", domain.RoleCPO))

	_, err := r.Route(party, Headers{FromCountryCode: "FR", FromPartyID: "EVL"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = r.Route(party, Headers{FromCountryCode: "NL"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = r.Route(party, Headers{FromCountryCode: "NLD", FromPartyID: "EXA"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestRouteRecipient(t *testing.T) {
	r := New([]models.CredentialsRole{role("DE", "OUR", domain.RoleEMSP), role("DE", "OUR", domain.RoleCPO), role("AT", "OUR", domain.RoleHUB)})
	party := partyWith(role("NL", "EXA", domain.RoleCPO))

	routing, err := r.Route(party, Headers{})
	require.NoError(t, err)
	assert.True(t, routing.Recipient.IsZero(), "several own identities leave the recipient unset")

	routing, err = r.Route(party, Headers{ToCountryCode: "AT", ToPartyID: "OUR"})
	require.NoError(t, err)
	assert.Equal(t, identity("AT", "OUR"), routing.Recipient)

	_, err = r.Route(party, Headers{ToCountryCode: "CH", ToPartyID: "OUR"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRoutePublic(t *testing.T) {
	routing, err := New(ours).Route(nil, Headers{FromCountryCode: "NL", FromPartyID: "EXA"})
	require.NoError(t, err)
	assert.True(t, routing.Public())
	assert.True(t, routing.Sender.IsZero())
}

func TestHeadersFrom(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderFromCountryCode, " NL ")
	h.Set(HeaderFromPartyID, "EXA")
	h.Set(HeaderToCountryCode, "DE")
	h.Set(HeaderToPartyID, "OUR")
	assert.Equal(t, Headers{FromCountryCode: "NL", FromPartyID: "EXA", ToCountryCode: "DE", ToPartyID: "OUR"}, HeadersFrom(h))
}
