package netting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/metrics"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/store"
)

// PriceSource returns the current market price of a product.
type PriceSource interface {
	CurrentPrice(ctx context.Context, product string, asOf time.Time) (decimal.Decimal, error)
}

// Service loads active legs and current prices and nets them.
type Service struct {
	store  store.Store
	prices PriceSource
	now    func() time.Time
}

// NewService creates a netting service.
func NewService(st store.Store, prices PriceSource) *Service {
	return &Service{
		store:  st,
		prices: prices,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ComputeNetPositions returns net positions as of asOf. A zero asOf means
// now.
func (s *Service) ComputeNetPositions(ctx context.Context, asOf time.Time) ([]model.NetPosition, error) {
	enhanced, err := s.ComputeEnhancedNetPositions(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return Plain(enhanced), nil
}

// ComputeEnhancedNetPositions returns net positions with hedge matching
// data as of asOf. A zero asOf means now.
func (s *Service) ComputeEnhancedNetPositions(ctx context.Context, asOf time.Time) ([]model.EnhancedNetPosition, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	legs, err := s.store.ListActiveLegs(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("list active legs: %w", err)
	}

	prices, err := s.currentPrices(ctx, legs, asOf)
	if err != nil {
		return nil, err
	}

	positions, err := Compute(legs, prices, asOf)
	if err != nil {
		return nil, err
	}

	open := 0
	for _, p := range positions {
		if p.PositionType != model.PositionFlat {
			open++
		}
	}
	metrics.OpenPositions.Set(float64(open))
	slog.Info("net positions computed",
		"as_of", asOf.Format(time.DateOnly),
		"legs", len(legs),
		"positions", len(positions),
		"open", open,
	)
	return positions, nil
}

// currentPrices looks up one price per distinct product concurrently.
// Products without a quote are left out and logged.
func (s *Service) currentPrices(ctx context.Context, legs []model.ContractLeg, asOf time.Time) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	if s.prices == nil {
		return prices, nil
	}

	seen := make(map[string]bool)
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(8)
	for _, leg := range legs {
		product := leg.ProductCode
		if seen[product] {
			continue
		}
		seen[product] = true
		g.Go(func() error {
			price, err := s.prices.CurrentPrice(ctx, product, asOf)
			if errors.Is(err, marketdata.ErrNoQuote) {
				slog.Warn("no current price, position valued at zero", "product", product, "as_of", asOf.Format(time.DateOnly))
				return nil
			}
			if err != nil {
				return fmt.Errorf("current price %s: %w", product, err)
			}
			mu.Lock()
			prices[product] = price
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return prices, nil
}
