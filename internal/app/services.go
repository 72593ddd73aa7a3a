package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/dealdesk/internal/erps"
	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/logistics"
	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/payments"
	"github.com/odyssey-erp/dealdesk/internal/platform/cache"
	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/procurement"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/shared"
	"github.com/odyssey-erp/dealdesk/internal/specifications"
	"github.com/odyssey-erp/dealdesk/migrations"
	"github.com/odyssey-erp/dealdesk/report"
)

// SchemaSpecs lists every table the services read or write.
func SchemaSpecs() []db.TableSpec {
	var specs []db.TableSpec
	specs = append(specs, db.PlatformTables...)
	specs = append(specs, fx.Table)
	specs = append(specs, masterdata.Tables...)
	specs = append(specs, sales.Tables...)
	specs = append(specs, procurement.Tables...)
	specs = append(specs, specifications.Tables...)
	specs = append(specs, logistics.Tables...)
	specs = append(specs, payments.Tables...)
	return specs
}

// Services is the wired domain layer shared by the API, the worker and the CLI.
type Services struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Report *report.Client

	MasterData     *masterdata.Service
	FX             *fx.Service
	Sales          *sales.Service
	Procurement    *procurement.Service
	Logistics      *logistics.Service
	Specifications *specifications.Service
	Payments       *payments.Service
	ERPS           *erps.Service
}

// NewServices connects to Postgres and Redis, optionally migrates, verifies
// the schema and wires the services. Redis is optional: without it master
// data reads go straight to Postgres.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	if cfg.MigrateOnStart {
		if err := db.Migrate(migrations.FS, cfg.PGDSN); err != nil {
			return nil, err
		}
		logger.Info("migrations applied")
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if err := db.VerifySchema(ctx, pool, SchemaSpecs()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verify schema: %w", err)
	}

	s := &Services{Pool: pool, Report: report.NewClient(cfg.GotenbergURL)}

	var store masterdata.Store = masterdata.NewRepository(pool)
	if cfg.MasterDataCacheTTL > 0 {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, master data cache disabled", slog.Any("error", err))
		} else {
			s.Redis = client
			store = masterdata.NewCachedStore(store, client, cfg.MasterDataCacheTTL)
		}
	}

	audit := shared.NewAuditLogger(pool)
	s.MasterData = masterdata.NewService(store)
	s.FX = fx.NewService(fx.NewRepository(pool), fx.NewFeedClient(cfg.FXFeedURL), logger)
	converter := s.FX.Converter()
	s.Sales = sales.NewService(sales.NewRepository(pool), s.MasterData, converter, audit)
	s.Procurement = procurement.NewService(procurement.NewRepository(pool), s.MasterData, converter, audit)
	s.Logistics = logistics.NewService(logistics.NewRepository(pool), s.MasterData, audit, logger)
	s.Specifications = specifications.NewService(specifications.NewRepository(pool), s.MasterData, s.Logistics, s.Report, audit, logger)
	s.Payments = payments.NewService(payments.NewRepository(pool), converter, shared.NewIdempotencyStore(pool), audit)
	s.ERPS = erps.NewService(erps.NewRepository(pool))
	return s, nil
}

// Ping checks Postgres and, when configured, Redis.
func (s *Services) Ping(ctx context.Context) error {
	if err := s.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the connections.
func (s *Services) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	s.Pool.Close()
}
