package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
)

// InMemory is a copy-on-write party store. Published parties are never
// mutated; Execute clones, mutates the clone and swaps it in under the
// write lock, so readers see either the old or the new party in full.
// Parties returned by the read methods must be treated as read-only.
type InMemory struct {
	mu      sync.RWMutex
	parties map[domain.PartyKey]*models.RemoteParty
	tokens  map[models.TokenKey]domain.PartyKey
}

func NewInMemory() *InMemory {
	return &InMemory{
		parties: make(map[domain.PartyKey]*models.RemoteParty),
		tokens:  make(map[models.TokenKey]domain.PartyKey),
	}
}

func (s *InMemory) Create(_ context.Context, party *models.RemoteParty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.parties[party.Key]; exists {
		return fmt.Errorf("party %s: %w", party.Key, sentinel.ErrConflict)
	}
	if err := s.checkTokensLocked(party.Key, party.TokenKeys()); err != nil {
		return err
	}
	stored := party.Clone()
	s.parties[stored.Key] = stored
	for _, tk := range stored.TokenKeys() {
		s.tokens[tk] = stored.Key
	}
	return nil
}

func (s *InMemory) FindByKey(_ context.Context, key domain.PartyKey) (*models.RemoteParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	party, ok := s.parties[key]
	if !ok {
		return nil, fmt.Errorf("party %s: %w", key, sentinel.ErrNotFound)
	}
	return party, nil
}

func (s *InMemory) FindByToken(_ context.Context, tk models.TokenKey) (*models.RemoteParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.tokens[tk]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", tk, sentinel.ErrNotFound)
	}
	return s.parties[key], nil
}

func (s *InMemory) List(_ context.Context) ([]*models.RemoteParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.RemoteParty, 0, len(s.parties))
	for _, p := range s.parties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

// Execute applies fn to a copy of the party and publishes the copy if fn
// succeeds and the result keeps the store's invariants.
func (s *InMemory) Execute(_ context.Context, key domain.PartyKey, fn func(*models.RemoteParty) error) (*models.RemoteParty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.parties[key]
	if !ok {
		return nil, fmt.Errorf("party %s: %w", key, sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.Key != key {
		return nil, fmt.Errorf("party key changed from %s to %s: %w", key, next.Key, sentinel.ErrInvalidState)
	}
	if err := s.checkTokensLocked(key, next.TokenKeys()); err != nil {
		return nil, err
	}
	for _, tk := range current.TokenKeys() {
		delete(s.tokens, tk)
	}
	for _, tk := range next.TokenKeys() {
		s.tokens[tk] = key
	}
	s.parties[key] = next
	return next, nil
}

// checkTokensLocked rejects any (token, encoding) pair owned by another party.
func (s *InMemory) checkTokensLocked(owner domain.PartyKey, keys []models.TokenKey) error {
	for _, tk := range keys {
		if other, ok := s.tokens[tk]; ok && other != owner {
			return fmt.Errorf("token %s already issued to %s: %w", tk, other, sentinel.ErrConflict)
		}
	}
	return nil
}
