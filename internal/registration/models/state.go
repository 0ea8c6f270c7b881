package models

import (
	"sync"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

// State is a step of the credentials handshake.
type State string

const (
	StateDiscovering          State = "DISCOVERING"
	StateVersionSelected      State = "VERSION_SELECTED"
	StateDetailsFetched       State = "DETAILS_FETCHED"
	StateCredentialsExchanged State = "CREDENTIALS_EXCHANGED"
	StateRegistered           State = "REGISTERED"
	StateFailed               State = "FAILED"
)

var stateTransitions = map[State][]State{
	StateDiscovering:          {StateVersionSelected, StateFailed},
	StateVersionSelected:      {StateDetailsFetched, StateFailed},
	StateDetailsFetched:       {StateCredentialsExchanged, StateFailed},
	StateCredentialsExchanged: {StateRegistered, StateFailed},
	// A failed exchange may restart discovery once.
	StateFailed:     {StateDiscovering},
	StateRegistered: {},
}

// CanTransitionTo reports whether the machine may move from s to next.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further progress is expected.
func (s State) IsTerminal() bool {
	return s == StateRegistered || s == StateFailed
}

// Direction says which side started the handshake.
type Direction string

const (
	DirectionRegister Direction = "register"
	DirectionRenew    Direction = "renew"
)

// Outcome is what callers observe of a handshake: never an exception,
// always a final state and a reason when it failed.
type Outcome struct {
	Party     domain.PartyKey `json:"party"`
	Direction Direction       `json:"direction"`
	State     State           `json:"state"`
	Version   domain.Version  `json:"version,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Attempts  int             `json:"attempts"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Succeeded reports whether the handshake reached Registered.
func (o Outcome) Succeeded() bool {
	return o.State == StateRegistered
}

// Tracker keeps the latest outcome per party so admin callers can poll a
// handshake that runs in the background.
type Tracker struct {
	mu       sync.RWMutex
	outcomes map[domain.PartyKey]Outcome
}

func NewTracker() *Tracker {
	return &Tracker{outcomes: make(map[domain.PartyKey]Outcome)}
}

// Record stores o as the latest outcome for its party.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes[o.Party] = o
}

// Get returns the latest outcome for key.
func (t *Tracker) Get(key domain.PartyKey) (Outcome, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.outcomes[key]
	return o, ok
}
