package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/metrics"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/store"
)

// EventRiskSnapshot is the broadcast type for a replaced snapshot.
const EventRiskSnapshot = "risk_snapshot"

const recalcLockKey = "risk-recalc"

// InputSource loads market statistics for a set of products.
type InputSource interface {
	RiskInputs(ctx context.Context, products []string, asOf time.Time) (*marketdata.Inputs, error)
}

// Archiver keeps a durable copy of each snapshot outside the database.
type Archiver interface {
	PutSnapshot(ctx context.Context, m *model.RiskMetrics) error
}

// Broadcaster pushes change events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// Service computes and publishes risk snapshots. The current snapshot is
// replaced wholesale: readers see either the previous or the new one.
type Service struct {
	engine  *Engine
	inputs  InputSource
	store   store.Store
	locker  store.Locker // optional
	archive Archiver     // optional
	hub     Broadcaster  // optional
	lockTTL time.Duration

	current atomic.Pointer[model.RiskMetrics]
	now     func() time.Time
}

// Option configures optional collaborators.
type Option func(*Service)

// WithLocker serializes recalculation across instances.
func WithLocker(l store.Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithArchiver copies every snapshot to an archive.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

// WithBroadcaster publishes every snapshot to connected clients.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.hub = b }
}

// NewService creates a risk service.
func NewService(engine *Engine, inputs InputSource, st store.Store, opts ...Option) *Service {
	s := &Service{
		engine:  engine,
		inputs:  inputs,
		store:   st,
		lockTTL: 2 * time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeRiskMetrics computes a snapshot for positions, stores it and makes
// it current. A nil matrix uses correlations estimated from price history;
// a supplied matrix replaces them entirely.
func (s *Service) ComputeRiskMetrics(ctx context.Context, positions []model.NetPosition, matrix *correlation.Matrix) (*model.RiskMetrics, error) {
	start := time.Now()
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, recalcLockKey, s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	now := s.now()
	products := make([]string, 0, len(positions))
	for _, p := range positions {
		products = append(products, p.ProductCode)
	}

	in := Input{Positions: positions, Matrix: matrix}
	if s.inputs != nil {
		mkt, err := s.inputs.RiskInputs(ctx, products, now)
		if err != nil {
			return nil, fmt.Errorf("risk inputs: %w", err)
		}
		in.Volatility = mkt.Volatility
		in.Returns = mkt.Returns
		in.Warnings = mkt.Warnings
		if matrix == nil {
			in.Matrix = mkt.Matrix
		}
	}

	m, err := s.engine.Compute(in, now)
	if err != nil {
		return nil, err
	}
	m.ID = uuid.New().String()

	if err := s.store.SaveRiskSnapshot(ctx, m); err != nil {
		return nil, fmt.Errorf("save risk snapshot: %w", err)
	}
	s.current.Store(m)

	if s.archive != nil {
		if err := s.archive.PutSnapshot(ctx, m); err != nil {
			metrics.SnapshotsArchived.WithLabelValues("error").Inc()
			slog.Error("risk snapshot archive failed", "id", m.ID, "error", err)
		} else {
			metrics.SnapshotsArchived.WithLabelValues("ok").Inc()
		}
	}

	metrics.RiskRecalcLatency.WithLabelValues(string(m.Method)).Observe(time.Since(start).Seconds())
	metrics.PortfolioVaR.WithLabelValues("0.95").Set(m.VaR95.InexactFloat64())
	metrics.PortfolioVaR.WithLabelValues("0.99").Set(m.VaR99.InexactFloat64())
	for _, b := range m.LimitBreaches {
		metrics.LimitBreaches.WithLabelValues(b.Kind).Inc()
	}
	slog.Info("risk snapshot computed",
		"id", m.ID,
		"method", m.Method,
		"positions", m.NumberOfPositions,
		"portfolio_value", m.PortfolioValue.String(),
		"var95", m.VaR95.String(),
		"var99", m.VaR99.String(),
		"breaches", len(m.LimitBreaches),
		"warnings", len(m.Warnings),
	)
	for _, w := range m.Warnings {
		slog.Warn("risk snapshot warning", "id", m.ID, "warning", w)
	}

	if s.hub != nil {
		s.hub.Broadcast(EventRiskSnapshot, m)
	}
	return m, nil
}

// CurrentSnapshot returns the snapshot in effect, loading the latest stored
// one after a restart.
func (s *Service) CurrentSnapshot(ctx context.Context) (*model.RiskMetrics, error) {
	if m := s.current.Load(); m != nil {
		return m, nil
	}
	m, err := s.store.LatestRiskSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.current.CompareAndSwap(nil, m)
	return s.current.Load(), nil
}

// RunStressTest applies one scenario to positions.
func (s *Service) RunStressTest(ctx context.Context, positions []model.NetPosition, sc model.StressScenario) (model.StressTestResult, error) {
	res, err := StressTest(positions, sc)
	if err != nil {
		return res, err
	}
	slog.InfoContext(ctx, "stress test run",
		"scenario", res.ScenarioName,
		"portfolio_value", res.PortfolioValue.String(),
		"change", res.PortfolioChange.String(),
		"pct", res.PercentageChange.String(),
	)
	return res, nil
}

// RunStandardStressTests applies every standard scenario to positions.
func (s *Service) RunStandardStressTests(ctx context.Context, positions []model.NetPosition) ([]model.StressTestResult, error) {
	scenarios := StandardScenarios()
	out := make([]model.StressTestResult, 0, len(scenarios))
	for _, sc := range scenarios {
		res, err := s.RunStressTest(ctx, positions, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Backtest compares realized P&L against predicted VaR.
func (s *Service) Backtest(_ context.Context, obs []model.BacktestObservation, confidence float64) (model.BacktestResult, error) {
	return Backtest(obs, confidence)
}

// PositionSource supplies the current net positions for scheduled runs.
type PositionSource func(ctx context.Context) ([]model.NetPosition, error)

// Run recalculates the snapshot every interval until ctx is done. A run
// skipped because another instance holds the lock is not an error.
func (s *Service) Run(ctx context.Context, interval time.Duration, positions PositionSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pos, err := positions(ctx)
			if err != nil {
				slog.Error("scheduled risk run: positions", "error", err)
				continue
			}
			if _, err := s.ComputeRiskMetrics(ctx, pos, nil); err != nil {
				if errors.Is(err, store.ErrLockHeld) {
					slog.Debug("scheduled risk run skipped, lock held elsewhere")
					continue
				}
				slog.Error("scheduled risk run", "error", err)
			}
		}
	}
}
