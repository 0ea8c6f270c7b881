package models

import (
	"slices"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// PartyStatus is the lifecycle state of a remote party record.
type PartyStatus string

const (
	PartyEnabled PartyStatus = "ENABLED"
	// PartyBlocked replaces deletion: the record stays for history but
	// none of its tokens authenticate.
	PartyBlocked PartyStatus = "BLOCKED"
)

// RemoteParty is the aggregate root for a counterpart platform.
//
// Invariants:
//   - Key is immutable after construction; a role change needs a new party
//   - Roles are unique per (role, country code, party id)
//   - LocalAccess entries are unique per (token, encoding) within the party;
//     uniqueness across parties is enforced by the store
//   - New access entries are appended before older ones are flagged stale
//
// A RemoteParty published by a store is never mutated in place. Writers
// Clone, change the copy, and publish it as a whole.
type RemoteParty struct {
	Key          domain.PartyKey    `json:"key"`
	Roles        []CredentialsRole  `json:"roles"`
	Status       PartyStatus        `json:"status"`
	LocalAccess  []LocalAccessInfo  `json:"local_access"`
	RemoteAccess []RemoteAccessInfo `json:"remote_access"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewRemoteParty validates the key and roles. When roles is empty the party
// gets a single role mirroring its key.
func NewRemoteParty(key domain.PartyKey, name string, roles []CredentialsRole, now time.Time) (*RemoteParty, error) {
	if key.CountryCode.IsZero() || key.PartyID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "party key requires country code and party id")
	}
	if !key.Role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "party key requires a valid role")
	}
	if len(roles) == 0 {
		if name == "" {
			name = key.Identity().String()
		}
		roles = []CredentialsRole{{
			Role:            key.Role,
			CountryCode:     key.CountryCode,
			PartyID:         key.PartyID,
			BusinessDetails: BusinessDetails{Name: name},
		}}
	}
	if err := ValidateRoles(roles); err != nil {
		return nil, err
	}
	return &RemoteParty{
		Key:       key,
		Roles:     slices.Clone(roles),
		Status:    PartyEnabled,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateRoles checks that every role is complete and that no two entries
// share role, country code and party id. The same country code and party id
// under two different roles is valid.
func ValidateRoles(roles []CredentialsRole) error {
	seen := make(map[domain.PartyKey]struct{}, len(roles))
	for _, r := range roles {
		if !r.Role.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "credentials role has an invalid role")
		}
		if r.CountryCode.IsZero() || r.PartyID.IsZero() {
			return dErrors.New(dErrors.CodeValidation, "credentials role requires country code and party id")
		}
		k := r.Key()
		if _, dup := seen[k]; dup {
			return dErrors.New(dErrors.CodeValidation, "duplicate credentials role "+k.String())
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy safe to mutate.
func (p *RemoteParty) Clone() *RemoteParty {
	c := *p
	c.Roles = slices.Clone(p.Roles)
	c.LocalAccess = make([]LocalAccessInfo, len(p.LocalAccess))
	for i, a := range p.LocalAccess {
		a.NotBefore = cloneTime(a.NotBefore)
		a.NotAfter = cloneTime(a.NotAfter)
		if a.TOTP != nil {
			t := *a.TOTP
			a.TOTP = &t
		}
		c.LocalAccess[i] = a
	}
	c.RemoteAccess = make([]RemoteAccessInfo, len(p.RemoteAccess))
	for i, r := range p.RemoteAccess {
		r.Endpoints = slices.Clone(r.Endpoints)
		r.RemoveAfter = cloneTime(r.RemoveAfter)
		c.RemoteAccess[i] = r
	}
	return &c
}

func (p *RemoteParty) IsBlocked() bool {
	return p.Status == PartyBlocked
}

// IsRegistered reports whether a handshake completed and is still in force.
func (p *RemoteParty) IsRegistered() bool {
	for _, a := range p.LocalAccess {
		if a.Status == AccessRegistered && !a.Stale {
			return true
		}
	}
	return false
}

// TokenKeys lists every (token, encoding) pair the party owns.
func (p *RemoteParty) TokenKeys() []TokenKey {
	keys := make([]TokenKey, 0, len(p.LocalAccess))
	for _, a := range p.LocalAccess {
		keys = append(keys, a.Key())
	}
	return keys
}

// FindLocal returns the entry for key.
func (p *RemoteParty) FindLocal(key TokenKey) (LocalAccessInfo, bool) {
	if i := p.localIndex(key); i >= 0 {
		return p.LocalAccess[i], true
	}
	return LocalAccessInfo{}, false
}

func (p *RemoteParty) localIndex(key TokenKey) int {
	for i, a := range p.LocalAccess {
		if a.Key() == key {
			return i
		}
	}
	return -1
}

// CanAddLocal checks that the entry is well formed and not yet present.
func (p *RemoteParty) CanAddLocal(info LocalAccessInfo) error {
	if p.IsBlocked() {
		return dErrors.New(dErrors.CodeInvariantViolation, "party is blocked")
	}
	if info.Token.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "access token cannot be empty")
	}
	if !info.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid access status")
	}
	if info.NotBefore != nil && info.NotAfter != nil && !info.NotAfter.After(*info.NotBefore) {
		return dErrors.New(dErrors.CodeInvariantViolation, "token validity window is empty")
	}
	if p.localIndex(info.Key()) >= 0 {
		return dErrors.New(dErrors.CodeConflict, "token already issued to this party")
	}
	return nil
}

// AddLocal validates and appends a token we issued.
func (p *RemoteParty) AddLocal(info LocalAccessInfo, now time.Time) error {
	if err := p.CanAddLocal(info); err != nil {
		return err
	}
	p.LocalAccess = append(p.LocalAccess, info)
	p.UpdatedAt = now
	return nil
}

// RemoveLocal drops an entry; used to roll back a token installed for a
// handshake that did not complete.
func (p *RemoteParty) RemoveLocal(key TokenKey, now time.Time) bool {
	i := p.localIndex(key)
	if i < 0 {
		return false
	}
	p.LocalAccess = slices.Delete(p.LocalAccess, i, i+1)
	p.UpdatedAt = now
	return true
}

// PromoteLocal moves a token to a new status.
func (p *RemoteParty) PromoteLocal(key TokenKey, status AccessStatus, now time.Time) error {
	i := p.localIndex(key)
	if i < 0 {
		return dErrors.New(dErrors.CodeNotFound, "token not issued to this party")
	}
	if p.LocalAccess[i].Status == status {
		return nil
	}
	if !p.LocalAccess[i].Status.CanTransitionTo(status) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"token cannot move from "+string(p.LocalAccess[i].Status)+" to "+string(status))
	}
	p.LocalAccess[i].Status = status
	p.UpdatedAt = now
	return nil
}

// RetireLocal flags every other non-stale, non-blocked entry as stale with
// a validity ending at graceUntil. The entry identified by keep must already
// be present, so retirement always happens after the replacement exists.
func (p *RemoteParty) RetireLocal(keep TokenKey, graceUntil time.Time, now time.Time) error {
	if p.localIndex(keep) < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "replacement token must be installed before retiring others")
	}
	for i := range p.LocalAccess {
		a := &p.LocalAccess[i]
		if a.Key() == keep || a.Stale || a.Status == AccessBlocked {
			continue
		}
		a.Stale = true
		if a.NotAfter == nil || a.NotAfter.After(graceUntil) {
			until := graceUntil
			a.NotAfter = &until
		}
	}
	p.UpdatedAt = now
	return nil
}

// InstallRemote appends a token we call the party with and flags every
// earlier registered or pending entry stale until graceUntil.
func (p *RemoteParty) InstallRemote(info RemoteAccessInfo, graceUntil time.Time, now time.Time) error {
	if info.Token.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "remote token cannot be empty")
	}
	if info.VersionsURL == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "remote versions url cannot be empty")
	}
	p.RemoteAccess = append(p.RemoteAccess, info)
	last := len(p.RemoteAccess) - 1
	for i := 0; i < last; i++ {
		r := &p.RemoteAccess[i]
		if r.Status != RemoteRegistered && r.Status != RemotePending {
			continue
		}
		r.Status = RemoteStale
		until := graceUntil
		r.RemoveAfter = &until
		r.UpdatedAt = now
	}
	p.UpdatedAt = now
	return nil
}

// AddRemoteBootstrap stores the token the counterpart handed over
// out-of-band for the first handshake. It does not retire other entries.
func (p *RemoteParty) AddRemoteBootstrap(info RemoteAccessInfo, now time.Time) error {
	if info.Token.IsZero() || info.VersionsURL == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "bootstrap requires token and versions url")
	}
	info.Status = RemotePending
	p.RemoteAccess = append(p.RemoteAccess, info)
	p.UpdatedAt = now
	return nil
}

// ActiveRemote returns the newest entry usable for calling the party:
// a registered token, or failing that a pending bootstrap token.
func (p *RemoteParty) ActiveRemote() (RemoteAccessInfo, bool) {
	for _, want := range []RemoteStatus{RemoteRegistered, RemotePending} {
		for i := len(p.RemoteAccess) - 1; i >= 0; i-- {
			if p.RemoteAccess[i].Status == want {
				return p.RemoteAccess[i], true
			}
		}
	}
	return RemoteAccessInfo{}, false
}

// MarkRemoteFailed records that the entry for token could not be used.
func (p *RemoteParty) MarkRemoteFailed(token AccessToken, now time.Time) {
	for i := range p.RemoteAccess {
		if p.RemoteAccess[i].Token == token && p.RemoteAccess[i].Status != RemoteStale {
			p.RemoteAccess[i].Status = RemoteFailed
			p.RemoteAccess[i].UpdatedAt = now
		}
	}
	p.UpdatedAt = now
}

// SetRoles replaces the role list after validation.
func (p *RemoteParty) SetRoles(roles []CredentialsRole, now time.Time) error {
	if len(roles) == 0 {
		return dErrors.New(dErrors.CodeValidation, "credentials must carry at least one role")
	}
	if err := ValidateRoles(roles); err != nil {
		return err
	}
	p.Roles = slices.Clone(roles)
	p.UpdatedAt = now
	return nil
}

// Unregister blocks every token in both directions. The party itself stays
// enabled so an operator can issue a fresh registration token.
func (p *RemoteParty) Unregister(now time.Time) {
	for i := range p.LocalAccess {
		p.LocalAccess[i].Status = AccessBlocked
	}
	for i := range p.RemoteAccess {
		p.RemoteAccess[i].Status = RemoteBlocked
		p.RemoteAccess[i].UpdatedAt = now
	}
	p.UpdatedAt = now
}

// CanBlock checks that the party is not blocked already.
func (p *RemoteParty) CanBlock() error {
	if p.IsBlocked() {
		return dErrors.New(dErrors.CodeInvariantViolation, "party is already blocked")
	}
	return nil
}

// ApplyBlock blocks the party and all of its tokens.
// Must only be called after CanBlock returns nil.
func (p *RemoteParty) ApplyBlock(now time.Time) {
	p.Unregister(now)
	p.Status = PartyBlocked
}

// PruneExpired removes stale entries whose grace period has elapsed and
// reports how many were dropped.
func (p *RemoteParty) PruneExpired(now time.Time) int {
	before := len(p.LocalAccess) + len(p.RemoteAccess)
	p.LocalAccess = slices.DeleteFunc(p.LocalAccess, func(a LocalAccessInfo) bool {
		return a.Stale && a.NotAfter != nil && !now.Before(*a.NotAfter)
	})
	p.RemoteAccess = slices.DeleteFunc(p.RemoteAccess, func(r RemoteAccessInfo) bool {
		return r.Status == RemoteStale && r.RemoveAfter != nil && !now.Before(*r.RemoveAfter)
	})
	removed := before - len(p.LocalAccess) - len(p.RemoteAccess)
	if removed > 0 {
		p.UpdatedAt = now
	}
	return removed
}

// HasExpired reports whether PruneExpired would remove anything.
func (p *RemoteParty) HasExpired(now time.Time) bool {
	return p.Clone().PruneExpired(now) > 0
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
