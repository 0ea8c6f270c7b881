package models

import (
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

// BusinessDetails describes the organisation behind a role.
type BusinessDetails struct {
	Name    string `json:"name" validate:"required,max=100"`
	Website string `json:"website,omitempty" validate:"omitempty,url,max=255"`
}

// CredentialsRole is one identity a party acts as.
type CredentialsRole struct {
	Role            domain.Role        `json:"role" validate:"required"`
	BusinessDetails BusinessDetails    `json:"business_details"`
	PartyID         domain.PartyID     `json:"party_id"`
	CountryCode     domain.CountryCode `json:"country_code"`
}

// Identity returns the (country code, party id) pair of the role.
func (r CredentialsRole) Identity() domain.PartyIdentity {
	return domain.PartyIdentity{CountryCode: r.CountryCode, PartyID: r.PartyID}
}

// Key returns the registry key a role would have as its own party.
func (r CredentialsRole) Key() domain.PartyKey {
	return domain.PartyKey{CountryCode: r.CountryCode, PartyID: r.PartyID, Role: r.Role}
}
