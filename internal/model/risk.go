package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaRMethod names the estimator behind a RiskMetrics snapshot.
type VaRMethod string

const (
	MethodParametric VaRMethod = "parametric"
	MethodHistorical VaRMethod = "historical"
	MethodEWMA       VaRMethod = "ewma"
	MethodMonteCarlo VaRMethod = "monte_carlo"
)

// ProductRisk is one product's standalone contribution to a snapshot.
type ProductRisk struct {
	ProductCode string          `json:"product_code"`
	Exposure    decimal.Decimal `json:"exposure"` // signed, settlement currency
	Volatility  decimal.Decimal `json:"volatility"`
	VaR95       decimal.Decimal `json:"var95"`
	VaR99       decimal.Decimal `json:"var99"`
}

// LimitBreach reports an exposure above a configured limit.
type LimitBreach struct {
	ProductCode string          `json:"product_code"`
	Kind        string          `json:"kind"` // "per_product" or "correlated"
	Exposure    decimal.Decimal `json:"exposure"`
	Limit       decimal.Decimal `json:"limit"`
}

// RiskMetrics is a computed portfolio snapshot. Snapshots are immutable:
// recalculation produces a new one that replaces the old wholesale.
type RiskMetrics struct {
	ID                     string          `json:"id"`
	Method                 VaRMethod       `json:"method"`
	PortfolioValue         decimal.Decimal `json:"portfolio_value"`
	VaR95                  decimal.Decimal `json:"var95"`
	VaR99                  decimal.Decimal `json:"var99"`
	ExpectedShortfall95    decimal.Decimal `json:"expected_shortfall95"`
	ExpectedShortfall99    decimal.Decimal `json:"expected_shortfall99"`
	UndiversifiedVaR95     decimal.Decimal `json:"undiversified_var95"`
	DiversificationBenefit decimal.Decimal `json:"diversification_benefit"` // fraction 0..1
	PortfolioVolatility    decimal.Decimal `json:"portfolio_volatility"`
	MaxDrawdown            decimal.Decimal `json:"max_drawdown"`
	NumberOfPositions      int             `json:"number_of_positions"`
	ProductRisks           []ProductRisk   `json:"product_risks"`
	LimitBreaches          []LimitBreach   `json:"limit_breaches,omitempty"`
	Warnings               []string        `json:"warnings,omitempty"`
	Timestamp              time.Time       `json:"timestamp"`
}

// ShockType names what a scenario shocks.
type ShockType string

const (
	ShockPrice ShockType = "price"
)

// StressScenario defines relative shocks per product. Products without an
// explicit entry receive DefaultShock. Shocks are fractions: -0.20 is -20%.
type StressScenario struct {
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	ShockType    ShockType                  `json:"shock_type"`
	Severity     string                     `json:"severity"`
	DefaultShock decimal.Decimal            `json:"default_shock"`
	Shocks       map[string]decimal.Decimal `json:"shocks,omitempty"`
}

// StressTestResult is one scenario applied to a portfolio.
type StressTestResult struct {
	ScenarioName      string          `json:"scenario_name"`
	Description       string          `json:"description"`
	ShockType         ShockType       `json:"shock_type"`
	Severity          string          `json:"severity"`
	PortfolioValue    decimal.Decimal `json:"portfolio_value"`
	PortfolioChange   decimal.Decimal `json:"portfolio_change"`
	PercentageChange  decimal.Decimal `json:"percentage_change"`
	NewPortfolioValue decimal.Decimal `json:"new_portfolio_value"`
}

// BacktestObservation pairs a day's realized P&L with the VaR predicted
// for it the previous day.
type BacktestObservation struct {
	Date         time.Time       `json:"date"`
	PredictedVaR decimal.Decimal `json:"predicted_var"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
}

// BacktestResult summarizes VaR exceptions against realized P&L.
type BacktestResult struct {
	Confidence    decimal.Decimal `json:"confidence"`
	Observations  int             `json:"observations"`
	Exceptions    int             `json:"exceptions"`
	ExceptionRate decimal.Decimal `json:"exception_rate"`
	ExpectedRate  decimal.Decimal `json:"expected_rate"`
	KupiecLR      decimal.Decimal `json:"kupiec_lr"`
	Passed        bool            `json:"passed"`
}
