package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oiltrading/backoffice/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and then refresh or invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) CreateSettlement(ctx context.Context, st *model.ContractSettlement) error {
	if err := s.primary.CreateSettlement(ctx, st); err != nil {
		return err
	}
	s.cacheSettlement(ctx, st)
	return nil
}

func (s *CachedStore) UpdateSettlement(ctx context.Context, st *model.ContractSettlement, expectedVersion int64) error {
	err := s.primary.UpdateSettlement(ctx, st, expectedVersion)
	// Invalidate on success and on conflict; the next read repopulates.
	s.rdb.Del(ctx, settlementKey(st.ID))
	return err
}

func (s *CachedStore) SaveRiskSnapshot(ctx context.Context, m *model.RiskMetrics) error {
	if err := s.primary.SaveRiskSnapshot(ctx, m); err != nil {
		return err
	}
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, latestSnapshotKey, data, s.ttl)
	}
	return nil
}

func (s *CachedStore) InsertPriceQuotes(ctx context.Context, quotes []model.PriceQuote) (int, error) {
	return s.primary.InsertPriceQuotes(ctx, quotes)
}

func (s *CachedStore) UpsertContractLeg(ctx context.Context, leg *model.ContractLeg) error {
	return s.primary.UpsertContractLeg(ctx, leg)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSettlement(ctx context.Context, id string) (*model.ContractSettlement, error) {
	data, err := s.rdb.Get(ctx, settlementKey(id)).Bytes()
	if err == nil {
		var st model.ContractSettlement
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	// Cache miss: read from primary.
	st, err := s.primary.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSettlement(ctx, st)
	return st, nil
}

func (s *CachedStore) LatestRiskSnapshot(ctx context.Context) (*model.RiskMetrics, error) {
	data, err := s.rdb.Get(ctx, latestSnapshotKey).Bytes()
	if err == nil {
		var m model.RiskMetrics
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.LatestRiskSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, latestSnapshotKey, data, s.ttl)
	}
	return m, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSettlementsByContract(ctx context.Context, contractID string) ([]model.ContractSettlement, error) {
	return s.primary.ListSettlementsByContract(ctx, contractID)
}

func (s *CachedStore) ListActiveLegs(ctx context.Context, asOf time.Time) ([]model.ContractLeg, error) {
	return s.primary.ListActiveLegs(ctx, asOf)
}

func (s *CachedStore) GetPriceQuotes(ctx context.Context, productCode string, from, to time.Time) ([]model.PriceQuote, error) {
	return s.primary.GetPriceQuotes(ctx, productCode, from, to)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSettlement(ctx context.Context, st *model.ContractSettlement) {
	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, settlementKey(st.ID), data, s.ttl)
	}
}

const latestSnapshotKey = "risk:snapshot:latest"

func settlementKey(id string) string { return fmt.Sprintf("settlement:%s", id) }
