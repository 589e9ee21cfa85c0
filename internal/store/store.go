// Package store defines the persistence interface for the back office.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/oiltrading/backoffice/internal/model"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrAlreadyExists       = errors.New("store: already exists")
	ErrConcurrencyConflict = errors.New("store: concurrency conflict")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Settlements ---

	// CreateSettlement persists a new settlement with its charges at
	// version 1.
	CreateSettlement(ctx context.Context, s *model.ContractSettlement) error

	// GetSettlement retrieves a settlement and its charges.
	GetSettlement(ctx context.Context, id string) (*model.ContractSettlement, error)

	// UpdateSettlement replaces a settlement and its charges if the stored
	// version equals expectedVersion, then sets s.Version to the new value.
	// A stale version fails with ErrConcurrencyConflict and writes nothing.
	UpdateSettlement(ctx context.Context, s *model.ContractSettlement, expectedVersion int64) error

	// ListSettlementsByContract returns a contract's settlements, oldest first.
	ListSettlementsByContract(ctx context.Context, contractID string) ([]model.ContractSettlement, error)

	// --- Contract legs (read-only to netting) ---

	// UpsertContractLeg inserts or replaces a contract leg by contract ID.
	UpsertContractLeg(ctx context.Context, leg *model.ContractLeg) error

	// ListActiveLegs returns non-cancelled legs traded on or before asOf.
	ListActiveLegs(ctx context.Context, asOf time.Time) ([]model.ContractLeg, error)

	// --- Market prices ---

	// InsertPriceQuotes upserts quotes keyed by (product, date) and returns
	// how many were written.
	InsertPriceQuotes(ctx context.Context, quotes []model.PriceQuote) (int, error)

	// GetPriceQuotes returns a product's quotes in [from, to], oldest first.
	GetPriceQuotes(ctx context.Context, productCode string, from, to time.Time) ([]model.PriceQuote, error)

	// --- Risk snapshots ---

	// SaveRiskSnapshot appends an immutable risk snapshot.
	SaveRiskSnapshot(ctx context.Context, m *model.RiskMetrics) error

	// LatestRiskSnapshot returns the most recent snapshot.
	LatestRiskSnapshot(ctx context.Context) (*model.RiskMetrics, error)
}
