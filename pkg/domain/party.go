package domain

import (
	"strings"

	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// PartyIdentity is a (country code, party id) pair, the form in which a
// party names itself in request headers and URLs.
type PartyIdentity struct {
	CountryCode CountryCode `json:"country_code"`
	PartyID     PartyID     `json:"party_id"`
}

// NewPartyIdentity parses both halves of an identity.
func NewPartyIdentity(countryCode, partyID string) (PartyIdentity, error) {
	cc, err := ParseCountryCode(countryCode)
	if err != nil {
		return PartyIdentity{}, err
	}
	pid, err := ParsePartyID(partyID)
	if err != nil {
		return PartyIdentity{}, err
	}
	return PartyIdentity{CountryCode: cc, PartyID: pid}, nil
}

func (p PartyIdentity) String() string {
	return p.CountryCode.String() + "*" + p.PartyID.String()
}

func (p PartyIdentity) IsZero() bool {
	return p.CountryCode.IsZero() && p.PartyID.IsZero()
}

// PartyKey identifies a remote party record: the identity plus the role it
// was registered under. Two keys that differ only in role are distinct.
type PartyKey struct {
	CountryCode CountryCode `json:"country_code"`
	PartyID     PartyID     `json:"party_id"`
	Role        Role        `json:"role"`
}

// NewPartyKey parses the three components of a key.
func NewPartyKey(countryCode, partyID, role string) (PartyKey, error) {
	ident, err := NewPartyIdentity(countryCode, partyID)
	if err != nil {
		return PartyKey{}, err
	}
	r, err := ParseRole(role)
	if err != nil {
		return PartyKey{}, err
	}
	return PartyKey{CountryCode: ident.CountryCode, PartyID: ident.PartyID, Role: r}, nil
}

// ParsePartyKey parses the "NL*EXA*CPO" form produced by String.
func ParsePartyKey(s string) (PartyKey, error) {
	parts := strings.Split(s, "*")
	if len(parts) != 3 {
		return PartyKey{}, dErrors.New(dErrors.CodeInvalidInput, "party key must look like CC*PID*ROLE")
	}
	return NewPartyKey(parts[0], parts[1], parts[2])
}

func (k PartyKey) String() string {
	return k.CountryCode.String() + "*" + k.PartyID.String() + "*" + k.Role.String()
}

// Identity drops the role.
func (k PartyKey) Identity() PartyIdentity {
	return PartyIdentity{CountryCode: k.CountryCode, PartyID: k.PartyID}
}

func (k PartyKey) IsZero() bool {
	return k.CountryCode.IsZero() && k.PartyID.IsZero() && k.Role == ""
}
