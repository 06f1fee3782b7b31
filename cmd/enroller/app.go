package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/group-enroller/internal/config"
	"github.com/kursadbilgin/group-enroller/internal/contacts"
	"github.com/kursadbilgin/group-enroller/internal/gateway"
	"github.com/kursadbilgin/group-enroller/internal/infra/database"
	"github.com/kursadbilgin/group-enroller/internal/infra/database/migrations"
	"github.com/kursadbilgin/group-enroller/internal/infra/filestore"
	infraredis "github.com/kursadbilgin/group-enroller/internal/infra/redis"
	"github.com/kursadbilgin/group-enroller/internal/observability"
	"github.com/kursadbilgin/group-enroller/internal/ratelimit"
	"github.com/kursadbilgin/group-enroller/internal/repository"
	"github.com/kursadbilgin/group-enroller/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the wiring shared by every command.
type app struct {
	cfg      *config.Config
	campaign *config.Campaign
	logger   *zap.Logger
	metrics  *observability.Metrics

	db       *gorm.DB
	rdb      goredis.UniversalClient
	ledgers  repository.LedgerRepository
	outcomes repository.OutcomeRepository
	limiter  ratelimit.RateLimiter
	locker   *infraredis.BatchLock

	closers []func() error
}

func newApp(ctx context.Context, campaignFile string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(campaignFile) != "" {
		cfg.CampaignFile = campaignFile
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	campaign, err := config.LoadCampaign(cfg.CampaignFile)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		campaign: campaign,
		logger:   logger,
		metrics:  observability.NewMetrics(),
	}

	if err := a.openStores(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores() error {
	switch a.cfg.StoreBackend {
	case config.StoreBackendFile:
		ledgers, err := filestore.NewLedgerStore(a.cfg.StateDir)
		if err != nil {
			return err
		}
		outcomes, err := filestore.NewOutcomeLog(a.cfg.StateDir)
		if err != nil {
			return err
		}
		a.ledgers, a.outcomes = ledgers, outcomes
		a.logger.Info("using file store", zap.String("stateDir", a.cfg.StateDir))
		return nil
	default:
		db, err := database.Open(a.cfg.StoreBackend, a.cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("%s initialization failed: %w", a.cfg.StoreBackend, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("%s underlying db init failed: %w", a.cfg.StoreBackend, err)
		}
		a.closers = append(a.closers, sqlDB.Close)

		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}

		a.db = db
		a.ledgers = repository.NewGormLedgerRepo(db)
		a.outcomes = repository.NewGormOutcomeRepo(db)
		a.logger.Info("using sql store", zap.String("backend", a.cfg.StoreBackend))
		return nil
	}
}

// openRedis enables the shared gateway budget and the cross-process batch
// lock. Both are skipped without REDIS_URL.
func (a *app) openRedis(ctx context.Context) error {
	if strings.TrimSpace(a.cfg.RedisURL) == "" {
		return nil
	}

	rdb, err := infraredis.NewRedis(ctx, a.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	a.rdb = rdb

	limiter, err := infraredis.NewRedisRateLimiter(rdb, a.cfg.GatewayRateLimit, a.cfg.GatewayRateWindow())
	if err != nil {
		return err
	}
	locker, err := infraredis.NewBatchLock(rdb, a.cfg.LockTTL())
	if err != nil {
		return err
	}
	a.limiter = limiter
	a.locker = locker
	return nil
}

// batchLocker avoids handing the registry a typed nil.
func (a *app) batchLocker() service.BatchLocker {
	if a.locker == nil {
		return nil
	}
	return a.locker
}

// buildRuntime wires the gateway, contact source and orchestrator of one account.
func (a *app) buildRuntime(accountID string) (*service.AccountRuntime, error) {
	logger := a.logger.With(zap.String("accountId", accountID))

	bridge, err := gateway.NewBridgeClient(a.cfg.BridgeURL, accountID, a.cfg.GatewayTimeout())
	if err != nil {
		return nil, err
	}
	gw, err := gateway.NewThrottled(bridge, a.limiter, accountID, a.metrics)
	if err != nil {
		return nil, err
	}

	source, err := contacts.NewFileSource(a.campaign.ContactsFileFor(accountID), contacts.Layout{
		CountryCode: a.campaign.Contacts.CountryCode,
		Suffix:      a.campaign.Contacts.Suffix,
		PhoneColumn: a.campaign.Contacts.PhoneColumn,
		NameColumn:  a.campaign.Contacts.NameColumn,
	})
	if err != nil {
		return nil, err
	}

	capacity, err := service.NewGroupCapacityManager(gw, service.CapacitySettings{
		BaseName:              a.campaign.Group.BaseName,
		MaxGroupSize:          a.campaign.Group.MaxSize,
		BootstrapParticipants: a.campaign.Group.BootstrapParticipants,
		Admins:                a.campaign.Group.Admins,
	}, a.metrics, logger)
	if err != nil {
		return nil, err
	}

	enroller, err := service.NewEnrollmentMachine(gw, a.campaign.Group.InvitePolicy, logger)
	if err != nil {
		return nil, err
	}

	orchestrator, err := service.NewBatchOrchestrator(
		accountID,
		a.ledgers,
		a.outcomes,
		source,
		capacity,
		enroller,
		service.OrchestratorSettings{
			BatchSize:   a.cfg.DailyBatchSize,
			PacingDelay: a.cfg.PacingDelay(),
		},
		a.metrics,
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &service.AccountRuntime{
		Runner:    orchestrator,
		Session:   bridge,
		AutoStart: a.campaign.AutoStart(accountID),
	}, nil
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("failed to release resources", zap.Error(err))
	}
	_ = a.logger.Sync()
}
