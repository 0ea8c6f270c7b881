package models

import (
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

// AccessStatus is the state of a token we issued.
type AccessStatus string

const (
	// AccessPending tokens were handed out for registration and may only
	// reach the versions and credentials endpoints.
	AccessPending AccessStatus = "PENDING"
	// AccessOpen tokens were configured by an operator and reach every
	// module without a handshake.
	AccessOpen AccessStatus = "OPEN"
	// AccessRegistered tokens were issued by a completed handshake.
	AccessRegistered AccessStatus = "REGISTERED"
	AccessBlocked    AccessStatus = "BLOCKED"
)

var accessTransitions = map[AccessStatus][]AccessStatus{
	AccessPending:    {AccessRegistered, AccessBlocked},
	AccessOpen:       {AccessRegistered, AccessBlocked},
	AccessRegistered: {AccessBlocked},
	AccessBlocked:    {},
}

// IsValid reports whether s is a known status.
func (s AccessStatus) IsValid() bool {
	_, ok := accessTransitions[s]
	return ok
}

// CanTransitionTo reports whether a token may move from s to next.
func (s AccessStatus) CanTransitionTo(next AccessStatus) bool {
	for _, allowed := range accessTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowsDataAccess reports whether the token reaches data modules.
func (s AccessStatus) AllowsDataAccess() bool {
	return s == AccessOpen || s == AccessRegistered
}

// TOTPConfig enables one-time codes for a token.
type TOTPConfig struct {
	Secret        string `json:"secret"`
	PeriodSeconds uint   `json:"period_seconds,omitempty"`
	Digits        int    `json:"digits,omitempty"`
}

// Validity is the outcome of checking a token against the clock.
type Validity int

const (
	Valid Validity = iota
	NotYetActive
	Expired
	Blocked
)

// LocalAccessInfo is a token we issued to a remote party.
type LocalAccessInfo struct {
	Token     AccessToken  `json:"token"`
	Base64    bool         `json:"base64"`
	Status    AccessStatus `json:"status"`
	NotBefore *time.Time   `json:"not_before,omitempty"`
	NotAfter  *time.Time   `json:"not_after,omitempty"`
	TOTP      *TOTPConfig  `json:"totp,omitempty"`
	// Stale marks a token replaced by rotation; it keeps working until
	// NotAfter so in-flight calls complete.
	Stale     bool      `json:"stale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the (token, encoding) identity of the entry.
func (a LocalAccessInfo) Key() TokenKey {
	return TokenKey{Token: a.Token, Base64: a.Base64}
}

// ValidityAt checks status and validity window at now.
func (a LocalAccessInfo) ValidityAt(now time.Time) Validity {
	if a.Status == AccessBlocked {
		return Blocked
	}
	if a.NotBefore != nil && now.Before(*a.NotBefore) {
		return NotYetActive
	}
	if a.NotAfter != nil && !now.Before(*a.NotAfter) {
		return Expired
	}
	return Valid
}

// RemoteStatus mirrors the handshake state of a token we call with.
type RemoteStatus string

const (
	// RemotePending holds the bootstrap token the counterpart gave us
	// out-of-band for registration.
	RemotePending    RemoteStatus = "PENDING"
	RemoteRegistered RemoteStatus = "REGISTERED"
	RemoteStale      RemoteStatus = "STALE"
	RemoteFailed     RemoteStatus = "FAILED"
	RemoteBlocked    RemoteStatus = "BLOCKED"
)

// EndpointRole says whether the counterpart sends or receives on an endpoint.
type EndpointRole string

const (
	EndpointSender   EndpointRole = "SENDER"
	EndpointReceiver EndpointRole = "RECEIVER"
)

// Endpoint is one module entry of a version details document.
type Endpoint struct {
	Identifier string       `json:"identifier" validate:"required"`
	Role       EndpointRole `json:"role,omitempty" validate:"omitempty,oneof=SENDER RECEIVER"`
	URL        string       `json:"url" validate:"required,url"`
}

// RemoteAccessInfo is a token and URL set we use to call a remote party.
type RemoteAccessInfo struct {
	Token       AccessToken    `json:"token"`
	Base64      bool           `json:"base64"`
	VersionsURL string         `json:"versions_url"`
	Version     domain.Version `json:"version,omitempty"`
	Endpoints   []Endpoint     `json:"endpoints,omitempty"`
	Status      RemoteStatus   `json:"status"`
	RemoveAfter *time.Time     `json:"remove_after,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Endpoint finds a module URL by identifier, preferring the given role when
// the counterpart lists both.
func (r RemoteAccessInfo) Endpoint(identifier string, role EndpointRole) (Endpoint, bool) {
	var fallback *Endpoint
	for i := range r.Endpoints {
		ep := r.Endpoints[i]
		if ep.Identifier != identifier {
			continue
		}
		if ep.Role == role {
			return ep, true
		}
		if fallback == nil {
			fallback = &r.Endpoints[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Endpoint{}, false
}
