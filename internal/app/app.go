// Package app wires the back office services from a Config. The HTTP server
// and the operator CLI both start from Build.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/api"
	"github.com/oiltrading/backoffice/internal/archive"
	"github.com/oiltrading/backoffice/internal/config"
	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/netting"
	"github.com/oiltrading/backoffice/internal/risk"
	"github.com/oiltrading/backoffice/internal/settlement"
	"github.com/oiltrading/backoffice/internal/store"
)

// App holds the wired services.
type App struct {
	Config      config.Config
	Store       store.Store
	Feed        *marketdata.Feed
	Importer    *marketdata.Importer
	Settlements *settlement.Service
	Positions   *netting.Service
	Risk        *risk.Service
	Hub         *api.Hub

	cleanup []func()
}

// Build connects the configured backends and creates every service. Call
// Close to release them.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	var locker store.Locker = store.NewLocalLocker()
	if cfg.Database.URL != "" {
		pcfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
		pcfg.MaxConns = int32(cfg.Database.MaxConns)
		pool, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return nil, fmt.Errorf("database connection: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)
		a.Store = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL", "max_conns", pcfg.MaxConns)

		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("parse redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			a.cleanup = append(a.cleanup, func() { rdb.Close() })
			a.Store = store.NewCachedStore(a.Store, rdb, cfg.Redis.CacheTTL.Duration)
			locker = store.NewRedisLocker(rdb)
			slog.Info("Redis cache and recalculation lock enabled", "ttl", cfg.Redis.CacheTTL.Duration)
		}
	} else {
		slog.Warn("database.url not set, using in-memory store (data will not persist)")
		a.Store = store.NewMemoryStore()
	}

	a.Feed = marketdata.NewFeed(a.Store, time.Duration(cfg.Risk.LookbackDays)*24*time.Hour)
	a.Importer = marketdata.NewImporter(a.Store)
	a.Hub = api.NewHub(cfg.Server.CORSOrigins)

	a.Settlements = settlement.NewService(a.Store, settlement.NewCalculator(a.Feed), a.Hub)
	a.Positions = netting.NewService(a.Store, a.Feed)

	opts := []risk.Option{
		risk.WithLocker(locker, cfg.Risk.LockTTL.Duration),
		risk.WithBroadcaster(a.Hub),
	}
	if cfg.S3.Bucket != "" {
		arc, err := archive.New(ctx, archive.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("risk archive: %w", err)
		}
		opts = append(opts, risk.WithArchiver(arc))
		slog.Info("risk snapshot archive enabled", "bucket", cfg.S3.Bucket)
	}
	a.Risk = risk.NewService(risk.NewEngine(RiskConfig(cfg.Risk)), a.Feed, a.Store, opts...)
	return a, nil
}

// RiskConfig maps the [risk] section onto the engine configuration.
func RiskConfig(rc config.RiskConfig) risk.Config {
	return risk.Config{
		Method:          model.VaRMethod(rc.Method),
		EWMALambda:      rc.EWMALambda,
		Simulations:     rc.Simulations,
		Seed:            rc.Seed,
		MinObservations: rc.MinObservations,
		Limiter: correlation.NewExposureLimiter(
			decimal.NewFromFloat(rc.MaxPerProduct),
			decimal.NewFromFloat(rc.MaxCorrelated),
			rc.CorrelationThreshold,
		),
	}
}

// CurrentPositions nets the book as of now.
func (a *App) CurrentPositions(ctx context.Context) ([]model.NetPosition, error) {
	return a.Positions.ComputeNetPositions(ctx, time.Time{})
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
