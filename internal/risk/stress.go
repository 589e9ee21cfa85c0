package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

var ErrInvalidScenario = errors.New("risk: invalid stress scenario")

var (
	hundred  = decimal.NewFromInt(100)
	minShock = decimal.NewFromInt(-1)
)

// StandardScenarios are the uniform price shocks run on every snapshot.
func StandardScenarios() []model.StressScenario {
	return []model.StressScenario{
		{Name: "-10% Shock", Description: "10% decline in all oil and fuel prices", ShockType: model.ShockPrice, Severity: "moderate", DefaultShock: decimal.RequireFromString("-0.10")},
		{Name: "+10% Shock", Description: "10% increase in all oil and fuel prices", ShockType: model.ShockPrice, Severity: "moderate", DefaultShock: decimal.RequireFromString("0.10")},
		{Name: "Historical Worst", Description: "Repeat of the worst historical daily oil price decline", ShockType: model.ShockPrice, Severity: "severe", DefaultShock: decimal.RequireFromString("-0.15")},
		{Name: "Severe Crash", Description: "20% collapse across the barrel", ShockType: model.ShockPrice, Severity: "extreme", DefaultShock: decimal.RequireFromString("-0.20")},
	}
}

// ValidateScenario rejects scenarios that cannot be applied: unnamed, an
// unsupported shock type, or a shock that would take a price below zero.
func ValidateScenario(sc model.StressScenario) error {
	if sc.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidScenario)
	}
	if sc.ShockType != "" && sc.ShockType != model.ShockPrice {
		return fmt.Errorf("%w: unsupported shock type %q", ErrInvalidScenario, sc.ShockType)
	}
	if sc.DefaultShock.LessThan(minShock) {
		return fmt.Errorf("%w: default shock %s below -100%%", ErrInvalidScenario, sc.DefaultShock)
	}
	for p, s := range sc.Shocks {
		if s.LessThan(minShock) {
			return fmt.Errorf("%w: %s shock %s below -100%%", ErrInvalidScenario, p, s)
		}
	}
	return nil
}

// Shock returns the relative shock the scenario applies to product.
func Shock(sc model.StressScenario, product string) decimal.Decimal {
	if s, ok := sc.Shocks[product]; ok {
		return s
	}
	return sc.DefaultShock
}

// StressTest applies sc to positions: portfolioChange = Σ exposureᵢ × shockᵢ
// and the percentage change is taken against the portfolio value.
func StressTest(positions []model.NetPosition, sc model.StressScenario) (model.StressTestResult, error) {
	if err := ValidateScenario(sc); err != nil {
		return model.StressTestResult{}, err
	}
	book := NewBook(positions)

	change := decimal.Zero
	for _, p := range book.Products {
		change = change.Add(book.Exposure[p].Mul(Shock(sc, p)))
	}
	change = change.Round(moneyScale)

	pct := decimal.Zero
	if book.Value.IsPositive() {
		pct = change.Div(book.Value).Mul(hundred).Round(4)
	}
	shockType := sc.ShockType
	if shockType == "" {
		shockType = model.ShockPrice
	}
	return model.StressTestResult{
		ScenarioName:      sc.Name,
		Description:       sc.Description,
		ShockType:         shockType,
		Severity:          sc.Severity,
		PortfolioValue:    book.Value,
		PortfolioChange:   change,
		PercentageChange:  pct,
		NewPortfolioValue: book.Value.Add(change),
	}, nil
}
