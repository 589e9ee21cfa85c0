package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oiltrading/backoffice/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	settlements map[string]*model.ContractSettlement
	legs        map[string]model.ContractLeg
	quotes      map[string]map[time.Time]model.PriceQuote // product -> day -> quote
	snapshots   []model.RiskMetrics
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settlements: make(map[string]*model.ContractSettlement),
		legs:        make(map[string]model.ContractLeg),
		quotes:      make(map[string]map[time.Time]model.PriceQuote),
	}
}

func (s *MemoryStore) CreateSettlement(_ context.Context, st *model.ContractSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settlements[st.ID]; ok {
		return fmt.Errorf("%w: settlement %s", ErrAlreadyExists, st.ID)
	}
	st.Version = 1
	// Store a copy to avoid external mutation.
	s.settlements[st.ID] = st.Clone()
	return nil
}

func (s *MemoryStore) GetSettlement(_ context.Context, id string) (*model.ContractSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settlements[id]
	if !ok {
		return nil, fmt.Errorf("%w: settlement %s", ErrNotFound, id)
	}
	return st.Clone(), nil
}

func (s *MemoryStore) UpdateSettlement(_ context.Context, st *model.ContractSettlement, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.settlements[st.ID]
	if !ok {
		return fmt.Errorf("%w: settlement %s", ErrNotFound, st.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: settlement %s at version %d, expected %d",
			ErrConcurrencyConflict, st.ID, current.Version, expectedVersion)
	}
	st.Version = expectedVersion + 1
	s.settlements[st.ID] = st.Clone()
	return nil
}

func (s *MemoryStore) ListSettlementsByContract(_ context.Context, contractID string) ([]model.ContractSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ContractSettlement
	for _, st := range s.settlements {
		if st.ContractID == contractID {
			result = append(result, *st.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpsertContractLeg(_ context.Context, leg *model.ContractLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.legs[leg.ContractID] = *leg
	return nil
}

func (s *MemoryStore) ListActiveLegs(_ context.Context, asOf time.Time) ([]model.ContractLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ContractLeg
	for _, leg := range s.legs {
		if leg.Status == model.ContractCancelled {
			continue
		}
		if !asOf.IsZero() && leg.TradeDate.After(asOf) {
			continue
		}
		result = append(result, leg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ContractID < result[j].ContractID })
	return result, nil
}

func (s *MemoryStore) InsertPriceQuotes(_ context.Context, quotes []model.PriceQuote) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		byDay, ok := s.quotes[q.ProductCode]
		if !ok {
			byDay = make(map[time.Time]model.PriceQuote)
			s.quotes[q.ProductCode] = byDay
		}
		q.PriceDate = dayOf(q.PriceDate)
		byDay[q.PriceDate] = q
	}
	return len(quotes), nil
}

func (s *MemoryStore) GetPriceQuotes(_ context.Context, productCode string, from, to time.Time) ([]model.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = dayOf(from), dayOf(to)
	var result []model.PriceQuote
	for day, q := range s.quotes[productCode] {
		if day.Before(from) || day.After(to) {
			continue
		}
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PriceDate.Before(result[j].PriceDate) })
	return result, nil
}

func (s *MemoryStore) SaveRiskSnapshot(_ context.Context, m *model.RiskMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, *m)
	return nil
}

func (s *MemoryStore) LatestRiskSnapshot(_ context.Context) (*model.RiskMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, fmt.Errorf("%w: risk snapshot", ErrNotFound)
	}
	latest := s.snapshots[len(s.snapshots)-1]
	return &latest, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
