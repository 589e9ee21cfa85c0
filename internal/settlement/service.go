package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/charge"
	"github.com/oiltrading/backoffice/internal/currency"
	"github.com/oiltrading/backoffice/internal/metrics"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/store"
)

// EventSettlementUpdated is the broadcast type for settlement changes.
const EventSettlementUpdated = "settlement_updated"

// Broadcaster pushes change events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// Service loads, computes and persists settlements. Concurrent writers to
// one settlement are resolved by the store's version check.
type Service struct {
	store store.Store
	calc  *Calculator
	hub   Broadcaster // optional
	now   func() time.Time
}

// NewService creates a settlement service. Pass nil for hub if broadcasting
// is not needed.
func NewService(st store.Store, calc *Calculator, hub Broadcaster) *Service {
	return &Service{
		store: st,
		calc:  calc,
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Request is the input to ComputeSettlement. With an empty SettlementID a
// new Draft settlement is created; otherwise the stored settlement is
// recomputed with the request's fields and Version must match the stored
// version.
type Request struct {
	SettlementID string `json:"settlement_id,omitempty"`
	Version      int64  `json:"version"`

	Kind           model.SettlementKind `json:"kind"`
	ContractID     string               `json:"contract_id"`
	ContractNumber string               `json:"contract_number"`
	ProductCode    string               `json:"product_code"`
	DocumentNumber string               `json:"document_number"`
	DocumentType   model.DocumentType   `json:"document_type"`
	DocumentDate   time.Time            `json:"document_date"`

	ActualQuantity      model.Quantity  `json:"actual_quantity"`
	CalculationQuantity model.Quantity  `json:"calculation_quantity"`
	DensityFactor       decimal.Decimal `json:"density_factor"`

	BenchmarkPrice        decimal.Decimal `json:"benchmark_price"`
	BenchmarkPriceFormula string          `json:"benchmark_price_formula"`
	BenchmarkUnit         model.Unit      `json:"benchmark_unit"`
	PriceCurrency         string          `json:"price_currency"`
	PricingStartDate      time.Time       `json:"pricing_start_date"`
	PricingEndDate        time.Time       `json:"pricing_end_date"`

	AdjustmentAmount   decimal.Decimal            `json:"adjustment_amount"`
	SettlementCurrency string                     `json:"settlement_currency"`
	ExchangeRate       decimal.Decimal            `json:"exchange_rate"`
	ChargeRates        map[string]decimal.Decimal `json:"charge_rates,omitempty"`

	// Charges replaces the charge list. Nil keeps the stored charges on
	// recomputation.
	Charges []model.SettlementCharge `json:"charges"`

	RequestedBy string `json:"requested_by"`
}

// ComputeSettlement computes a settlement from req and persists it.
func (s *Service) ComputeSettlement(ctx context.Context, req Request) (*model.ContractSettlement, error) {
	start := time.Now()
	now := s.now()

	var (
		st       *model.ContractSettlement
		expected int64
		creating = req.SettlementID == ""
	)
	if creating {
		st = &model.ContractSettlement{
			ID:        uuid.New().String(),
			Status:    model.StatusDraft,
			CreatedBy: req.RequestedBy,
			CreatedAt: now,
		}
	} else {
		existing, err := s.store.GetSettlement(ctx, req.SettlementID)
		if err != nil {
			return nil, err
		}
		if err := CheckEditable(existing); err != nil {
			return nil, err
		}
		if existing.Version != req.Version {
			metrics.ConcurrencyConflicts.Inc()
			return nil, fmt.Errorf("%w: settlement %s at version %d, request carries %d",
				store.ErrConcurrencyConflict, existing.ID, existing.Version, req.Version)
		}
		if req.Kind != "" && req.Kind != existing.Kind {
			return nil, invalid("kind", "cannot change %s settlement to %s", existing.Kind, req.Kind)
		}
		st = existing
		expected = existing.Version
	}

	applyRequest(st, req)
	if req.Charges != nil || creating {
		st.Charges = s.prepareCharges(st.ID, req.Charges, now)
	}
	st.ModifiedBy = req.RequestedBy
	st.ModifiedAt = now

	if err := s.calc.Compute(ctx, st); err != nil {
		return nil, err
	}

	if creating {
		if err := s.store.CreateSettlement(ctx, st); err != nil {
			return nil, fmt.Errorf("create settlement: %w", err)
		}
	} else if err := s.update(ctx, st, expected); err != nil {
		return nil, err
	}

	metrics.SettlementsComputed.WithLabelValues(string(st.Kind)).Inc()
	metrics.SettlementComputeLatency.Observe(time.Since(start).Seconds())
	slog.Info("settlement computed",
		"id", st.ID,
		"kind", st.Kind,
		"contract", st.ContractNumber,
		"cargo_value", st.CargoValue.String(),
		"total", st.TotalSettlementAmount.String(),
		"currency", st.SettlementCurrency,
		"version", st.Version,
	)
	s.publish(st)
	return st, nil
}

// TransitionSettlementStatus moves a settlement through the state machine.
// Finalization recomputes totals with every charge resolved first.
func (s *Service) TransitionSettlementStatus(ctx context.Context, id string, req TransitionRequest) (*model.ContractSettlement, error) {
	st, err := s.store.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != 0 && req.Version != st.Version {
		metrics.ConcurrencyConflicts.Inc()
		return nil, fmt.Errorf("%w: settlement %s at version %d, request carries %d",
			store.ErrConcurrencyConflict, st.ID, st.Version, req.Version)
	}
	expected := st.Version
	from := st.Status

	action, err := Transition(st, req, s.now())
	if err != nil {
		return nil, err
	}
	if action == ActionFinalize {
		if err := s.calc.Compute(ctx, st); err != nil {
			return nil, fmt.Errorf("finalize: %w", err)
		}
	}
	if err := s.update(ctx, st, expected); err != nil {
		return nil, err
	}

	metrics.SettlementTransitions.WithLabelValues(string(action)).Inc()
	slog.Info("settlement status changed",
		"id", st.ID,
		"from", from,
		"to", st.Status,
		"by", req.By,
		"version", st.Version,
	)
	s.publish(st)
	return st, nil
}

// GetSettlement returns one settlement with its charges.
func (s *Service) GetSettlement(ctx context.Context, id string) (*model.ContractSettlement, error) {
	return s.store.GetSettlement(ctx, id)
}

// ListContractSettlements returns every settlement of one contract.
func (s *Service) ListContractSettlements(ctx context.Context, contractID string) ([]model.ContractSettlement, error) {
	return s.store.ListSettlementsByContract(ctx, contractID)
}

// AddCharge appends a charge and recomputes totals.
func (s *Service) AddCharge(ctx context.Context, id string, version int64, c model.SettlementCharge, by string) (*model.ContractSettlement, error) {
	return s.editCharges(ctx, id, version, by, func(st *model.ContractSettlement) error {
		st.Charges = append(st.Charges, s.prepareCharges(st.ID, []model.SettlementCharge{c}, s.now())...)
		return nil
	})
}

// UpdateCharge replaces one charge and recomputes totals.
func (s *Service) UpdateCharge(ctx context.Context, id string, version int64, chargeID string, c model.SettlementCharge, by string) (*model.ContractSettlement, error) {
	return s.editCharges(ctx, id, version, by, func(st *model.ContractSettlement) error {
		for i := range st.Charges {
			if st.Charges[i].ID == chargeID {
				c.ID = chargeID
				c.SettlementID = st.ID
				c.CreatedAt = st.Charges[i].CreatedAt
				c.Currency = currency.Normalize(c.Currency)
				st.Charges[i] = c
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrChargeNotFound, chargeID)
	})
}

// RemoveCharge deletes one charge and recomputes totals.
func (s *Service) RemoveCharge(ctx context.Context, id string, version int64, chargeID string, by string) (*model.ContractSettlement, error) {
	return s.editCharges(ctx, id, version, by, func(st *model.ContractSettlement) error {
		for i := range st.Charges {
			if st.Charges[i].ID == chargeID {
				st.Charges = append(st.Charges[:i], st.Charges[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrChargeNotFound, chargeID)
	})
}

// ApplyChargeTemplate seeds charges from template items, keeping only
// IncludeByDefault items unless all is set.
func (s *Service) ApplyChargeTemplate(ctx context.Context, id string, version int64, items []model.SettlementCharge, all bool, by string) (*model.ContractSettlement, error) {
	return s.editCharges(ctx, id, version, by, func(st *model.ContractSettlement) error {
		seeded := charge.FromTemplate(items, all)
		st.Charges = append(st.Charges, s.prepareCharges(st.ID, seeded, s.now())...)
		return nil
	})
}

func (s *Service) editCharges(ctx context.Context, id string, version int64, by string, edit func(*model.ContractSettlement) error) (*model.ContractSettlement, error) {
	st, err := s.store.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckEditable(st); err != nil {
		return nil, err
	}
	if st.Version != version {
		metrics.ConcurrencyConflicts.Inc()
		return nil, fmt.Errorf("%w: settlement %s at version %d, request carries %d",
			store.ErrConcurrencyConflict, st.ID, st.Version, version)
	}
	if err := edit(st); err != nil {
		return nil, err
	}
	st.ModifiedBy = by
	st.ModifiedAt = s.now()

	if err := s.calc.Compute(ctx, st); err != nil {
		return nil, err
	}
	if err := s.update(ctx, st, version); err != nil {
		return nil, err
	}
	slog.Info("settlement charges edited",
		"id", st.ID,
		"charges", len(st.Charges),
		"total_charges", st.TotalCharges.String(),
		"version", st.Version,
	)
	s.publish(st)
	return st, nil
}

func (s *Service) update(ctx context.Context, st *model.ContractSettlement, expected int64) error {
	if err := s.store.UpdateSettlement(ctx, st, expected); err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			metrics.ConcurrencyConflicts.Inc()
		}
		return fmt.Errorf("update settlement %s: %w", st.ID, err)
	}
	return nil
}

func (s *Service) prepareCharges(settlementID string, charges []model.SettlementCharge, now time.Time) []model.SettlementCharge {
	out := make([]model.SettlementCharge, 0, len(charges))
	for _, c := range charges {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.SettlementID = settlementID
		c.Currency = currency.Normalize(c.Currency)
		out = append(out, c)
	}
	return out
}

func (s *Service) publish(st *model.ContractSettlement) {
	if s.hub != nil {
		s.hub.Broadcast(EventSettlementUpdated, st)
	}
}

func applyRequest(st *model.ContractSettlement, req Request) {
	if req.Kind != "" {
		st.Kind = req.Kind
	}
	if req.ContractID != "" {
		st.ContractID = req.ContractID
	}
	if req.ContractNumber != "" {
		st.ContractNumber = req.ContractNumber
	}
	if req.ProductCode != "" {
		st.ProductCode = req.ProductCode
	}
	st.DocumentNumber = req.DocumentNumber
	st.DocumentType = req.DocumentType
	st.DocumentDate = req.DocumentDate
	st.ActualQuantity = req.ActualQuantity
	st.CalculationQuantity = req.CalculationQuantity
	st.DensityFactor = req.DensityFactor
	st.BenchmarkPrice = req.BenchmarkPrice
	st.BenchmarkPriceFormula = req.BenchmarkPriceFormula
	st.BenchmarkUnit = req.BenchmarkUnit
	st.PriceCurrency = req.PriceCurrency
	st.PricingStartDate = req.PricingStartDate
	st.PricingEndDate = req.PricingEndDate
	st.QuotesUsed = 0
	st.AdjustmentAmount = req.AdjustmentAmount
	st.SettlementCurrency = req.SettlementCurrency
	st.ExchangeRate = req.ExchangeRate
	st.ChargeRates = nil
	if len(req.ChargeRates) > 0 {
		st.ChargeRates = make(map[string]decimal.Decimal, len(req.ChargeRates))
		for k, v := range req.ChargeRates {
			st.ChargeRates[currency.Normalize(k)] = v
		}
	}
}
