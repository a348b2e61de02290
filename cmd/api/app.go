package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"soapbox/internal/audit"
	"soapbox/internal/calls"
	"soapbox/internal/campaigns"
	"soapbox/internal/config"
	"soapbox/internal/identity"
	"soapbox/internal/regions"
	"soapbox/internal/reporting"
	"soapbox/pkg/utils"
)

// app holds the wired services and the connections they run on.
type app struct {
	Identity  *identity.Service
	Regions   *regions.Service
	Audit     *audit.Service
	Campaigns *campaigns.Service
	Calls     *calls.Service
	Reporting *reporting.Service

	health  healthCheck
	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

type repos struct {
	identity  identity.Repository
	regions   regions.Repository
	audit     audit.Repository
	campaigns campaigns.Repository
	calls     calls.Repository
}

func memoryRepos() repos {
	return repos{
		identity:  identity.NewMemoryRepo(),
		regions:   regions.NewMemoryRepo(),
		audit:     audit.NewMemoryRepo(),
		campaigns: campaigns.NewMemoryRepo(),
		calls:     calls.NewMemoryRepo(),
	}
}

func postgresRepos(db *sql.DB) repos {
	return repos{
		identity:  identity.NewPGRepo(db),
		regions:   regions.NewPGRepo(db),
		audit:     audit.NewPGRepo(db),
		campaigns: campaigns.NewPGRepo(db),
		calls:     calls.NewPGRepo(db),
	}
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	rp := memoryRepos()
	if cfg.App.Store == config.StorePostgres {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, db)
		a.health = dbHealth(db)
		rp = postgresRepos(db)
	}

	var opts []calls.Option
	if cfg.Calls.MaxConcurrentPerCampaign > 0 {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rdb)
		limiter, err := utils.NewSlotLimiter(rdb, "soapbox:calls:campaign:", cfg.Calls.MaxConcurrentPerCampaign, cfg.Calls.SlotTTL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts = append(opts, calls.WithLimiter(limiter))
	}

	a.Audit = audit.NewService(rp.audit)
	a.Identity = identity.NewService(rp.identity).WithAudit(a.Audit)
	a.Regions = regions.NewService(rp.regions)
	a.Campaigns = campaigns.NewService(rp.campaigns, a.Identity, a.Regions, a.Audit)

	opts = append(opts, calls.WithGeocoder(a.Regions), calls.WithAudit(a.Audit))
	a.Calls = calls.NewService(rp.calls, a.Campaigns, a.Identity, opts...)
	a.Reporting = reporting.NewService(a.Calls)
	return a, nil
}

func pingDB(ctx context.Context, db *sql.DB) error {
	return utils.HealthCheck(ctx, db, 2*time.Second)
}
