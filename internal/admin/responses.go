package admin

import (
	"time"

	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
)

// PartyResponse is the operator view of a party. Tokens appear only as
// fingerprints.
type PartyResponse struct {
	Key          string                        `json:"key"`
	Status       partyModels.PartyStatus       `json:"status"`
	Registered   bool                          `json:"registered"`
	Roles        []partyModels.CredentialsRole `json:"roles"`
	LocalAccess  []LocalAccessResponse         `json:"local_access"`
	RemoteAccess []RemoteAccessResponse        `json:"remote_access"`
	CreatedAt    time.Time                     `json:"created_at"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}

type LocalAccessResponse struct {
	Fingerprint string                   `json:"fingerprint"`
	Base64      bool                     `json:"base64"`
	Status      partyModels.AccessStatus `json:"status"`
	Stale       bool                     `json:"stale,omitempty"`
	TOTP        bool                     `json:"totp,omitempty"`
	NotBefore   *time.Time               `json:"not_before,omitempty"`
	NotAfter    *time.Time               `json:"not_after,omitempty"`
}

type RemoteAccessResponse struct {
	Fingerprint string                   `json:"fingerprint"`
	Status      partyModels.RemoteStatus `json:"status"`
	VersionsURL string                   `json:"versions_url"`
	Version     string                   `json:"version,omitempty"`
	Endpoints   int                      `json:"endpoints"`
}

// PartiesListResponse wraps the list of parties.
type PartiesListResponse struct {
	Parties []*PartyResponse `json:"parties"`
	Total   int              `json:"total"`
}

// TokenResponse is the only place a freshly issued secret is shown.
type TokenResponse struct {
	Token       string                   `json:"token"`
	Fingerprint string                   `json:"fingerprint"`
	Base64      bool                     `json:"base64"`
	Status      partyModels.AccessStatus `json:"status"`
}

// PruneResponse reports how many access entries were removed.
type PruneResponse struct {
	Removed int `json:"removed"`
}

func toPartyResponse(p *partyModels.RemoteParty) *PartyResponse {
	resp := &PartyResponse{
		Key:          p.Key.String(),
		Status:       p.Status,
		Registered:   p.IsRegistered(),
		Roles:        p.Roles,
		LocalAccess:  make([]LocalAccessResponse, 0, len(p.LocalAccess)),
		RemoteAccess: make([]RemoteAccessResponse, 0, len(p.RemoteAccess)),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	for _, a := range p.LocalAccess {
		resp.LocalAccess = append(resp.LocalAccess, LocalAccessResponse{
			Fingerprint: a.Token.Fingerprint(),
			Base64:      a.Base64,
			Status:      a.Status,
			Stale:       a.Stale,
			TOTP:        a.TOTP != nil,
			NotBefore:   a.NotBefore,
			NotAfter:    a.NotAfter,
		})
	}
	for _, r := range p.RemoteAccess {
		resp.RemoteAccess = append(resp.RemoteAccess, RemoteAccessResponse{
			Fingerprint: r.Token.Fingerprint(),
			Status:      r.Status,
			VersionsURL: r.VersionsURL,
			Version:     r.Version.String(),
			Endpoints:   len(r.Endpoints),
		})
	}
	return resp
}
