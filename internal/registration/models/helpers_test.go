package models

import (
	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

type partyRole = partyModels.CredentialsRole

func role(r domain.Role, name string) partyRole {
	return partyRole{
		Role:            r,
		CountryCode:     domain.MustParse[domain.CountryCodeKind]("NL"),
		PartyID:         domain.MustParse[domain.PartyIDKind]("EXA"),
		BusinessDetails: partyModels.BusinessDetails{Name: name},
	}
}
