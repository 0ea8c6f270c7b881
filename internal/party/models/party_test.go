package models

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func key(t *testing.T, cc, pid, role string) domain.PartyKey {
	t.Helper()
	k, err := domain.NewPartyKey(cc, pid, role)
	require.NoError(t, err)
	return k
}

func newParty(t *testing.T) *RemoteParty {
	t.Helper()
	p, err := NewRemoteParty(key(t, "NL", "EXA", "CPO"), "Example", nil, now)
	require.NoError(t, err)
	return p
}

func TestNewRemoteParty(t *testing.T) {
	t.Run("defaults a role from the key", func(t *testing.T) {
		p := newParty(t)
		require.Len(t, p.Roles, 1)
		assert.Equal(t, domain.RoleCPO, p.Roles[0].Role)
		assert.Equal(t, "Example", p.Roles[0].BusinessDetails.Name)
		assert.Equal(t, PartyEnabled, p.Status)
	})

	t.Run("same identity under two roles is valid", func(t *testing.T) {
		k := key(t, "NL", "EXA", "CPO")
		roles := []CredentialsRole{
			{Role: domain.RoleCPO, CountryCode: k.CountryCode, PartyID: k.PartyID, BusinessDetails: BusinessDetails{Name: "A"}},
			{Role: domain.RoleEMSP, CountryCode: k.CountryCode, PartyID: k.PartyID, BusinessDetails: BusinessDetails{Name: "A"}},
		}
		p, err := NewRemoteParty(k, "", roles, now)
		require.NoError(t, err)
		assert.NotEqual(t, p.Roles[0].Key(), p.Roles[1].Key())
	})

	t.Run("duplicate role rejected", func(t *testing.T) {
		k := key(t, "NL", "EXA", "CPO")
		r := CredentialsRole{Role: domain.RoleCPO, CountryCode: k.CountryCode, PartyID: k.PartyID}
		_, err := NewRemoteParty(k, "", []CredentialsRole{r, r}, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("zero key rejected", func(t *testing.T) {
		_, err := NewRemoteParty(domain.PartyKey{}, "", nil, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestLocalAccessValidity(t *testing.T) {
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	assert.Equal(t, Valid, LocalAccessInfo{Status: AccessOpen}.ValidityAt(now))
	assert.Equal(t, Blocked, LocalAccessInfo{Status: AccessBlocked}.ValidityAt(now))
	assert.Equal(t, NotYetActive, LocalAccessInfo{Status: AccessOpen, NotBefore: &later}.ValidityAt(now))
	assert.Equal(t, Expired, LocalAccessInfo{Status: AccessOpen, NotAfter: &earlier}.ValidityAt(now))
	assert.Equal(t, Expired, LocalAccessInfo{Status: AccessOpen, NotAfter: &now}.ValidityAt(now))
}

func TestRotationKeepsOldTokenUntilGrace(t *testing.T) {
	p := newParty(t)
	oldKey := TokenKey{Token: MustAccessToken("old-token")}
	newKey := TokenKey{Token: MustAccessToken("new-token"), Base64: true}

	require.NoError(t, p.AddLocal(LocalAccessInfo{Token: oldKey.Token, Status: AccessPending, CreatedAt: now}, now))

	t.Run("retire requires the replacement first", func(t *testing.T) {
		err := p.RetireLocal(newKey, now.Add(time.Minute), now)
		require.Error(t, err)
	})

	require.NoError(t, p.AddLocal(LocalAccessInfo{Token: newKey.Token, Base64: true, Status: AccessRegistered, CreatedAt: now}, now))
	grace := now.Add(15 * time.Minute)
	require.NoError(t, p.RetireLocal(newKey, grace, now))

	old, ok := p.FindLocal(oldKey)
	require.True(t, ok)
	assert.True(t, old.Stale)
	assert.Equal(t, Valid, old.ValidityAt(now.Add(time.Minute)))
	assert.Equal(t, Expired, old.ValidityAt(grace))

	assert.Equal(t, 0, p.PruneExpired(now))
	assert.Equal(t, 1, p.PruneExpired(grace))
	_, ok = p.FindLocal(oldKey)
	assert.False(t, ok)
	assert.True(t, p.IsRegistered())
}

func TestInstallRemoteMarksPreviousStale(t *testing.T) {
	p := newParty(t)
	require.NoError(t, p.AddRemoteBootstrap(RemoteAccessInfo{Token: MustAccessToken("A"), VersionsURL: "https://cpo/versions"}, now))

	active, ok := p.ActiveRemote()
	require.True(t, ok)
	assert.Equal(t, RemotePending, active.Status)

	grace := now.Add(time.Minute)
	require.NoError(t, p.InstallRemote(RemoteAccessInfo{
		Token: MustAccessToken("C"), VersionsURL: "https://cpo/versions", Version: domain.Version221, Status: RemoteRegistered,
	}, grace, now))

	active, ok = p.ActiveRemote()
	require.True(t, ok)
	assert.Equal(t, "C", active.Token.Value())
	assert.Equal(t, RemoteStale, p.RemoteAccess[0].Status)
	assert.Equal(t, 1, p.PruneExpired(grace))
	assert.Len(t, p.RemoteAccess, 1)
}

func TestPromoteLocalTransitions(t *testing.T) {
	p := newParty(t)
	k := TokenKey{Token: MustAccessToken("tok")}
	require.NoError(t, p.AddLocal(LocalAccessInfo{Token: k.Token, Status: AccessPending}, now))

	require.NoError(t, p.PromoteLocal(k, AccessRegistered, now))
	err := p.PromoteLocal(k, AccessPending, now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestAddLocalRejectsDuplicateKey(t *testing.T) {
	p := newParty(t)
	tok := MustAccessToken("tok")
	require.NoError(t, p.AddLocal(LocalAccessInfo{Token: tok, Status: AccessOpen}, now))
	err := p.AddLocal(LocalAccessInfo{Token: tok, Status: AccessOpen}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	// The same secret under the other encoding is a different key.
	require.NoError(t, p.AddLocal(LocalAccessInfo{Token: tok, Base64: true, Status: AccessOpen}, now))
}

func TestBlock(t *testing.T) {
	p := newParty(t)
	require.NoError(t, p.AddLocal(LocalAccessInfo{Token: MustAccessToken("tok"), Status: AccessOpen}, now))
	require.NoError(t, p.CanBlock())
	p.ApplyBlock(now)

	assert.True(t, p.IsBlocked())
	assert.Equal(t, AccessBlocked, p.LocalAccess[0].Status)
	assert.Error(t, p.CanBlock())
	assert.Error(t, p.AddLocal(LocalAccessInfo{Token: MustAccessToken("other"), Status: AccessOpen}, now))
}

func TestCloneIsDeep(t *testing.T) {
	p := newParty(t)
	until := now.Add(time.Hour)
	require.NoError(t, p.AddLocal(LocalAccessInfo{Token: MustAccessToken("tok"), Status: AccessOpen, NotAfter: &until}, now))

	c := p.Clone()
	c.LocalAccess[0].Status = AccessBlocked
	*c.LocalAccess[0].NotAfter = now
	c.Roles[0].BusinessDetails.Name = "changed"

	assert.Equal(t, AccessOpen, p.LocalAccess[0].Status)
	assert.Equal(t, until, *p.LocalAccess[0].NotAfter)
	assert.Equal(t, "Example", p.Roles[0].BusinessDetails.Name)
}

func TestAccessTokenNeverLogsSecret(t *testing.T) {
	tok := MustAccessToken("super-secret")
	assert.NotContains(t, tok.String(), "super-secret")
	assert.Equal(t, slog.KindString, tok.LogValue().Kind())
	assert.NotContains(t, tok.LogValue().String(), "super-secret")
	assert.Len(t, tok.Fingerprint(), 12)

	raw, err := json.Marshal(tok)
	require.NoError(t, err)
	assert.Equal(t, `"super-secret"`, string(raw))

	assert.Equal(t, "c3VwZXItc2VjcmV0", tok.Encode(true))
	_, err = ParseAccessToken("has space")
	assert.Error(t, err)
}

func TestRemoteEndpointLookup(t *testing.T) {
	r := RemoteAccessInfo{Endpoints: []Endpoint{
		{Identifier: "locations", Role: EndpointSender, URL: "https://cpo/locations"},
		{Identifier: "credentials", Role: EndpointReceiver, URL: "https://cpo/credentials"},
		{Identifier: "credentials", Role: EndpointSender, URL: "https://cpo/credentials-s"},
	}}
	ep, ok := r.Endpoint("credentials", EndpointSender)
	require.True(t, ok)
	assert.Equal(t, "https://cpo/credentials-s", ep.URL)

	ep, ok = r.Endpoint("locations", EndpointReceiver)
	require.True(t, ok)
	assert.Equal(t, "https://cpo/locations", ep.URL)

	_, ok = r.Endpoint("tariffs", EndpointSender)
	assert.False(t, ok)
}
