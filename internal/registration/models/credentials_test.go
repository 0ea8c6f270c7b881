package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

func TestDecodeCredentialsSameIdentityTwoRoles(t *testing.T) {
	raw := []byte(`{
		"token": "ebf3b399-779f-4497-9b9d-ac6ad3cc44d2",
		"url": "https://example.com/ocpi/versions",
		"roles": [
			{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "Example Operator"}},
			{"role": "EMSP", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "Example Provider"}}
		]
	}`)

	creds, err := DecodeCredentials(domain.Version221, raw, domain.RoleCPO)
	require.NoError(t, err)
	require.Len(t, creds.Roles, 2)
	assert.Equal(t, "NL*EXA*CPO", creds.Roles[0].Key().String())
	assert.Equal(t, "NL*EXA*EMSP", creds.Roles[1].Key().String())
	assert.Equal(t, creds.Roles[0].Identity(), creds.Roles[1].Identity())
	assert.NotEqual(t, creds.Roles[0].Key(), creds.Roles[1].Key())
}

func TestDecodeCredentialsRejectsDuplicateRole(t *testing.T) {
	raw := []byte(`{
		"token": "abc",
		"url": "https://example.com/ocpi/versions",
		"roles": [
			{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "One"}},
			{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "Two"}}
		]
	}`)

	_, err := DecodeCredentials(domain.Version221, raw, domain.RoleCPO)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDecodeCredentials211Flattens(t *testing.T) {
	raw := []byte(`{
		"token": "abc",
		"url": "https://example.com/ocpi/versions",
		"business_details": {"name": "Example"},
		"party_id": "exa",
		"country_code": "nl"
	}`)

	creds, err := DecodeCredentials(domain.Version211, raw, domain.RoleEMSP)
	require.NoError(t, err)
	require.Len(t, creds.Roles, 1)
	assert.Equal(t, "NL*EXA*EMSP", creds.Roles[0].Key().String())
	assert.Equal(t, "Example", creds.Roles[0].BusinessDetails.Name)
}

func TestDecodeCredentialsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"no roles":       `{"token": "abc", "url": "https://example.com/ocpi/versions", "roles": []}`,
		"missing token":  `{"url": "https://example.com/ocpi/versions", "roles": [{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "X"}}]}`,
		"bad url":        `{"token": "abc", "url": "not a url", "roles": [{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "X"}}]}`,
		"token w/ space": `{"token": "a b", "url": "https://example.com/ocpi/versions", "roles": [{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "X"}}]}`,
		"bad role":       `{"token": "abc", "url": "https://example.com/ocpi/versions", "roles": [{"role": "PILOT", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "X"}}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCredentials(domain.Version221, []byte(raw), domain.RoleCPO)
			require.Error(t, err)
			assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
		})
	}
}

func TestWireByVersion(t *testing.T) {
	creds := Credentials{
		Token: "abc",
		URL:   "https://example.com/ocpi/versions",
		Roles: []partyRole{role(domain.RoleCPO, "Example")},
	}

	modern, err := json.Marshal(creds.Wire(domain.Version230))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"token": "abc",
		"url": "https://example.com/ocpi/versions",
		"roles": [{"role": "CPO", "party_id": "EXA", "country_code": "NL", "business_details": {"name": "Example"}}]
	}`, string(modern))

	old, err := json.Marshal(creds.Wire(domain.Version211))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"token": "abc",
		"url": "https://example.com/ocpi/versions",
		"party_id": "EXA",
		"country_code": "NL",
		"business_details": {"name": "Example"}
	}`, string(old))
}

func TestStateTransitions(t *testing.T) {
	path := []State{StateDiscovering, StateVersionSelected, StateDetailsFetched, StateCredentialsExchanged, StateRegistered}
	for i := 0; i+1 < len(path); i++ {
		assert.True(t, path[i].CanTransitionTo(path[i+1]), "%s -> %s", path[i], path[i+1])
		assert.True(t, path[i].CanTransitionTo(StateFailed), "%s -> FAILED", path[i])
	}
	assert.False(t, StateDiscovering.CanTransitionTo(StateCredentialsExchanged))
	assert.False(t, StateRegistered.CanTransitionTo(StateFailed))
	assert.True(t, StateFailed.CanTransitionTo(StateDiscovering))
	assert.True(t, StateRegistered.IsTerminal())
	assert.False(t, StateDetailsFetched.IsTerminal())
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	key := domain.PartyKey{CountryCode: domain.MustParse[domain.CountryCodeKind]("NL"), PartyID: domain.MustParse[domain.PartyIDKind]("EXA"), Role: domain.RoleCPO}

	_, ok := tr.Get(key)
	assert.False(t, ok)

	tr.Record(Outcome{Party: key, State: StateFailed, Reason: "no mutual version"})
	tr.Record(Outcome{Party: key, State: StateRegistered, Attempts: 2})
	got, ok := tr.Get(key)
	require.True(t, ok)
	assert.True(t, got.Succeeded())
	assert.Equal(t, 2, got.Attempts)
}
