package models

import (
	"strings"
	"time"

	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// CreatePartyRequest is the operator input for registering a counterpart
// by hand.
type CreatePartyRequest struct {
	CountryCode string            `json:"country_code" validate:"required,len=2,alpha,uppercase"`
	PartyID     string            `json:"party_id" validate:"required,len=3,alphanum,uppercase"`
	Role        string            `json:"role" validate:"required,oneof=CPO EMSP HUB NAP NSP SCSP OTHER"`
	Name        string            `json:"name" validate:"omitempty,max=100"`
	Website     string            `json:"website" validate:"omitempty,url,max=255"`
	Bootstrap   *BootstrapRequest `json:"bootstrap,omitempty"`
}

// Normalize trims and upper-cases identifiers before validation.
func (r *CreatePartyRequest) Normalize() {
	r.CountryCode = strings.ToUpper(strings.TrimSpace(r.CountryCode))
	r.PartyID = strings.ToUpper(strings.TrimSpace(r.PartyID))
	r.Role = strings.ToUpper(strings.TrimSpace(r.Role))
	r.Name = strings.TrimSpace(r.Name)
	r.Website = strings.TrimSpace(r.Website)
}

// Validate normalizes the request and checks what the field tags cannot
// express. Tag validation runs in the service.
func (r *CreatePartyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Normalize()
	if r.Bootstrap != nil {
		return r.Bootstrap.Validate()
	}
	return nil
}

// BootstrapRequest carries the token and versions URL a counterpart handed
// over out-of-band so we can start the handshake.
type BootstrapRequest struct {
	Token       string `json:"token" validate:"required,max=255"`
	Base64      bool   `json:"base64"`
	VersionsURL string `json:"versions_url" validate:"required,url"`
}

func (r *BootstrapRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Token = strings.TrimSpace(r.Token)
	r.VersionsURL = strings.TrimSpace(r.VersionsURL)
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "bootstrap token is required")
	}
	return nil
}

// IssueTokenRequest asks for a new local token. Token is generated when
// empty.
type IssueTokenRequest struct {
	Token      string     `json:"token,omitempty" validate:"omitempty,max=255"`
	Base64     bool       `json:"base64"`
	Status     string     `json:"status" validate:"omitempty,oneof=PENDING OPEN"`
	NotBefore  *time.Time `json:"not_before,omitempty"`
	NotAfter   *time.Time `json:"not_after,omitempty"`
	TOTPSecret string     `json:"totp_secret,omitempty" validate:"omitempty,base32"`
}

// AccessStatus returns the requested status, PENDING by default.
func (r IssueTokenRequest) AccessStatus() AccessStatus {
	if r.Status == "" {
		return AccessPending
	}
	return AccessStatus(r.Status)
}

// Validate rejects an empty validity window.
func (r *IssueTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	if r.NotBefore != nil && r.NotAfter != nil && !r.NotBefore.Before(*r.NotAfter) {
		return dErrors.New(dErrors.CodeValidation, "not_before must be before not_after")
	}
	return nil
}
