package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// CredentialsModule is the module identifier of the credentials endpoint in
// version details.
const CredentialsModule = "credentials"

// Credentials is the version-independent form of a credentials object:
// the token the receiver should use to call the sender, the sender's
// versions URL and every role the sender acts as.
type Credentials struct {
	Token string                        `json:"token" validate:"required,max=64"`
	URL   string                        `json:"url" validate:"required,url"`
	Roles []partyModels.CredentialsRole `json:"roles" validate:"required,min=1,dive"`
}

// credentials211 is the 2.1.1 wire form, which names a single identity
// instead of a roles list.
type credentials211 struct {
	Token           string                      `json:"token"`
	URL             string                      `json:"url"`
	BusinessDetails partyModels.BusinessDetails `json:"business_details"`
	PartyID         string                      `json:"party_id"`
	CountryCode     string                      `json:"country_code"`
}

var validate = validator.New()

// DecodeCredentials parses a credentials body sent in version v. A 2.1.1
// body is flattened into a single role of the implied role, which is the
// role the party was registered under.
func DecodeCredentials(v domain.Version, raw []byte, implied domain.Role) (Credentials, error) {
	var creds Credentials
	if v.HasRoles() {
		if err := json.Unmarshal(raw, &creds); err != nil {
			return Credentials{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed credentials")
		}
	} else {
		var old credentials211
		if err := json.Unmarshal(raw, &old); err != nil {
			return Credentials{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed credentials")
		}
		cc, err := domain.ParseCountryCode(old.CountryCode)
		if err != nil {
			return Credentials{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed credentials")
		}
		pid, err := domain.ParsePartyID(old.PartyID)
		if err != nil {
			return Credentials{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed credentials")
		}
		creds = Credentials{
			Token: old.Token,
			URL:   old.URL,
			Roles: []partyModels.CredentialsRole{{
				Role:            implied,
				BusinessDetails: old.BusinessDetails,
				PartyID:         pid,
				CountryCode:     cc,
			}},
		}
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Validate checks field constraints and role uniqueness.
func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("invalid credentials: %s failed %s", verrs[0].Namespace(), verrs[0].Tag()))
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid credentials")
	}
	if _, err := partyModels.ParseAccessToken(c.Token); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid credentials token")
	}
	if err := partyModels.ValidateRoles(c.Roles); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid credentials roles")
	}
	return nil
}

// Wire returns the value to encode for version v. 2.1.1 carries only the
// first role.
func (c Credentials) Wire(v domain.Version) any {
	if v.HasRoles() || len(c.Roles) == 0 {
		return c
	}
	r := c.Roles[0]
	return credentials211{
		Token:           c.Token,
		URL:             c.URL,
		BusinessDetails: r.BusinessDetails,
		PartyID:         r.PartyID.String(),
		CountryCode:     r.CountryCode.String(),
	}
}

// VersionInfo is one entry of a versions list.
type VersionInfo struct {
	Version domain.Version `json:"version"`
	URL     string         `json:"url"`
}

// VersionDetails is the endpoint catalogue of one version.
type VersionDetails struct {
	Version   domain.Version         `json:"version"`
	Endpoints []partyModels.Endpoint `json:"endpoints"`
}

// Endpoint finds a module, preferring the receiver interface.
func (d VersionDetails) Endpoint(module string) (partyModels.Endpoint, bool) {
	return partyModels.RemoteAccessInfo{Endpoints: d.Endpoints}.Endpoint(module, partyModels.EndpointReceiver)
}

// Versions lists the version numbers offered.
func Versions(infos []VersionInfo) []domain.Version {
	out := make([]domain.Version, 0, len(infos))
	for _, vi := range infos {
		out = append(out, vi.Version)
	}
	return out
}

// Find returns the entry for v.
func Find(infos []VersionInfo, v domain.Version) (VersionInfo, bool) {
	for _, vi := range infos {
		if vi.Version == v {
			return vi, true
		}
	}
	return VersionInfo{}, false
}
