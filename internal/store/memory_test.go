package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedSettlement(t *testing.T, s *MemoryStore) *model.ContractSettlement {
	t.Helper()
	st := &model.ContractSettlement{
		ID:         "set-1",
		Kind:       model.KindPurchase,
		ContractID: "c-1",
		Status:     model.StatusDraft,
		Charges: []model.SettlementCharge{
			{ID: "ch-1", ChargeType: model.ChargeInspection, Amount: decimal.NewNullDecimal(d(500)), IsFixed: true},
		},
	}
	if err := s.CreateSettlement(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestCreateSettlementSetsVersion(t *testing.T) {
	s := NewMemoryStore()
	st := seedSettlement(t, s)
	if st.Version != 1 {
		t.Errorf("expected version 1, got %d", st.Version)
	}
	if err := s.CreateSettlement(context.Background(), st); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpdateSettlementVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedSettlement(t, s)

	// Two writers read the same version.
	a, _ := s.GetSettlement(ctx, "set-1")
	b, _ := s.GetSettlement(ctx, "set-1")

	a.AdjustmentAmount = d(100)
	if err := s.UpdateSettlement(ctx, a, a.Version); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("expected version 2, got %d", a.Version)
	}

	b.AdjustmentAmount = d(-100)
	if err := s.UpdateSettlement(ctx, b, b.Version); !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("second writer: expected ErrConcurrencyConflict, got %v", err)
	}

	got, _ := s.GetSettlement(ctx, "set-1")
	if !got.AdjustmentAmount.Equal(d(100)) {
		t.Errorf("stale write must not overwrite: got adjustment %s", got.AdjustmentAmount)
	}
}

func TestGetSettlementReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedSettlement(t, s)

	got, _ := s.GetSettlement(ctx, "set-1")
	got.Charges[0].Description = "mutated"

	again, _ := s.GetSettlement(ctx, "set-1")
	if again.Charges[0].Description == "mutated" {
		t.Error("store must not alias returned charge slices")
	}
}

func TestGetSettlementNotFound(t *testing.T) {
	if _, err := NewMemoryStore().GetSettlement(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveLegs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	legs := []model.ContractLeg{
		{ContractID: "a", Status: model.ContractActive, TradeDate: date("2024-03-01")},
		{ContractID: "b", Status: model.ContractCancelled, TradeDate: date("2024-03-01")},
		{ContractID: "c", Status: model.ContractActive, TradeDate: date("2024-04-01")},
		{ContractID: "d", Status: model.ContractCompleted, TradeDate: date("2024-02-01")},
	}
	for i := range legs {
		if err := s.UpsertContractLeg(ctx, &legs[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListActiveLegs(ctx, date("2024-03-15"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ContractID != "a" || got[1].ContractID != "d" {
		t.Errorf("expected legs a and d, got %+v", got)
	}
}

func TestPriceQuotesRangeAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.InsertPriceQuotes(ctx, []model.PriceQuote{
		{ProductCode: "BRENT", PriceDate: date("2024-03-04"), Price: d(85)},
		{ProductCode: "BRENT", PriceDate: date("2024-03-01"), Price: d(84)},
		{ProductCode: "BRENT", PriceDate: date("2024-03-05"), Price: d(86)},
		{ProductCode: "BRENT", PriceDate: date("2024-03-04"), Price: d(85.5)}, // replaces
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetPriceQuotes(ctx, "BRENT", date("2024-03-01"), date("2024-03-04"))
	if len(got) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(got))
	}
	if !got[0].PriceDate.Equal(date("2024-03-01")) || !got[1].Price.Equal(d(85.5)) {
		t.Errorf("unexpected quotes %+v", got)
	}
}

func TestLatestRiskSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.LatestRiskSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_ = s.SaveRiskSnapshot(ctx, &model.RiskMetrics{ID: "r1"})
	_ = s.SaveRiskSnapshot(ctx, &model.RiskMetrics{ID: "r2"})

	got, err := s.LatestRiskSnapshot(ctx)
	if err != nil || got.ID != "r2" {
		t.Errorf("expected r2, got %+v, %v", got, err)
	}
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	unlock, err := l.Acquire(ctx, "risk", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Acquire(ctx, "risk", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}
	unlock()
	unlock() // idempotent

	if _, err := l.Acquire(ctx, "risk", time.Minute); err != nil {
		t.Errorf("expected lock free after unlock, got %v", err)
	}
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.clock = func() time.Time { return now }

	if _, err := l.Acquire(ctx, "risk", time.Second); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Second)
	if _, err := l.Acquire(ctx, "risk", time.Second); err != nil {
		t.Errorf("expected expired lock to be reacquired, got %v", err)
	}
}
