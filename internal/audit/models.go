package audit

import (
	"time"
)

// Action names a state change worth recording.
type Action string

const (
	ActionPartyCreated       Action = "party.created"
	ActionPartyBlocked       Action = "party.blocked"
	ActionTokenIssued        Action = "party.token_issued"
	ActionPartyRegistered    Action = "party.registered"
	ActionCredentialsRotated Action = "party.rotated"
	ActionPartyUnregistered  Action = "party.unregistered"
	ActionAccessPruned       Action = "party.access_pruned"
	ActionRegistrationFailed Action = "registration.failed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Tokens only ever
// appear as fingerprints.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	// Party is the registry key the event concerns, e.g. "NL*EXA*CPO".
	Party string `json:"party"`
	// Actor is "admin", "remote" or "system".
	Actor            string `json:"actor,omitempty"`
	TokenFingerprint string `json:"token_fingerprint,omitempty"`
	Version          string `json:"version,omitempty"`
	Reason           string `json:"reason,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}
