package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
)

// Query selects connectors of one owner last updated in [From, To).
type Query struct {
	Owner  domain.PartyIdentity
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

// InMemory keeps connector records in a map guarded by a RWMutex.
type InMemory struct {
	mu      sync.RWMutex
	records map[models.Key]models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[models.Key]models.Record)}
}

func (s *InMemory) Get(_ context.Context, key models.Key) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("connector %s: %w", key, sentinel.ErrNotFound)
	}
	return &rec, nil
}

// Put inserts or replaces a record and reports whether it was new.
func (s *InMemory) Put(_ context.Context, rec models.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.records[rec.Key]
	s.records[rec.Key] = rec
	return !exists, nil
}

// Execute applies fn to a copy of the record and stores the copy only if fn
// succeeds.
func (s *InMemory) Execute(_ context.Context, key models.Key, fn func(*models.Record) error) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("connector %s: %w", key, sentinel.ErrNotFound)
	}
	rec.Connector.TariffIDs = append([]string(nil), rec.Connector.TariffIDs...)
	if err := fn(&rec); err != nil {
		return nil, err
	}
	if rec.Key != key {
		return nil, fmt.Errorf("connector key changed from %s to %s: %w", key, rec.Key, sentinel.ErrInvalidState)
	}
	s.records[key] = rec
	return &rec, nil
}

// List returns one page of matching records ordered by last update, and the
// number of matches before paging.
func (s *InMemory) List(_ context.Context, q Query) ([]models.Record, int, error) {
	s.mu.RLock()
	matched := make([]models.Record, 0)
	for key, rec := range s.records {
		if key.Owner != q.Owner || !q.matches(rec.Connector.LastUpdated.Time) {
			continue
		}
		matched = append(matched, rec)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Connector.LastUpdated.Equal(b.Connector.LastUpdated.Time) {
			return a.Connector.LastUpdated.Before(b.Connector.LastUpdated.Time)
		}
		return a.Key.String() < b.Key.String()
	})

	total := len(matched)
	if q.Offset >= total {
		return []models.Record{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total, nil
}

func (q Query) matches(t time.Time) bool {
	if q.From != nil && t.Before(*q.From) {
		return false
	}
	if q.To != nil && !t.Before(*q.To) {
		return false
	}
	return true
}
