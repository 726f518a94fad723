package main

import (
	"context"
	"fmt"
	"io"
	"time"

	appevidence "github.com/erp/ledger/internal/application/evidence"
	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/migration"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/signing"
	"github.com/erp/ledger/internal/infrastructure/storage"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/erp/ledger/internal/infrastructure/verification"
	"github.com/erp/ledger/internal/interfaces/http/handler"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const slowQueryThreshold = 200 * time.Millisecond

// application holds everything main needs to serve and shut down
type application struct {
	engine    *gin.Engine
	db        *persistence.Database
	telemetry *telemetry.Telemetry
	closers   []io.Closer
	log       *zap.Logger
}

func newApplication(ctx context.Context, cfg *config.Config, log *zap.Logger) (*application, error) {
	app := &application{log: log}

	tel, err := telemetry.Setup(ctx, &cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	app.telemetry = tel

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), slowQueryThreshold)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	app.db = db
	log.Info("Database connected", zap.String("driver", db.Driver))

	if err := telemetry.RegisterOtelGorm(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		DBSystem:   db.Driver,
	}, log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}

	if err := migrate(db, log); err != nil {
		return nil, err
	}

	objects, err := newObjectStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	idempotencyStore, err := newIdempotencyStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, idempotencyStore)

	signer, err := signing.NewClient(&cfg.Signing, signing.WithLogger(log))
	if err != nil {
		return nil, err
	}
	renderer, err := verification.NewRenderer(&cfg.Verification)
	if err != nil {
		return nil, err
	}

	resetPolicy := ledger.ResetPolicy(cfg.Ledger.DefaultResetPolicy)
	if !resetPolicy.IsValid() {
		return nil, shared.ErrConfiguration.WithDetail("field", "ledger.default_reset_policy")
	}
	allocationRetry := retryPolicy(cfg.Ledger.AllocationMaxRetries, cfg.Ledger.RetryInitialInterval)
	chainRetry := retryPolicy(cfg.Ledger.ChainMaxRetries, cfg.Ledger.RetryInitialInterval)

	// Repositories
	sequenceRepo := persistence.NewGormSequenceRepository(db.DB)
	seriesConfigRepo := persistence.NewGormSeriesConfigRepository(db.DB)
	chainRepo := persistence.NewGormChainRepository(db.DB)
	recordRepo := persistence.NewGormRecordRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	documentRepo := persistence.NewGormDocumentRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Services
	sequenceService := appledger.NewSequenceService(sequenceRepo, seriesConfigRepo, resetPolicy, allocationRetry)
	sequenceService.SetMetrics(tel.Metrics)
	seriesService := appledger.NewSeriesService(seriesConfigRepo, sequenceRepo, resetPolicy)
	chainService := appledger.NewChainService(chainRepo, recordRepo, txScope, chainRetry)
	chainService.SetMetrics(tel.Metrics)
	invoiceService, err := appledger.NewInvoiceService(sequenceService, chainService, seriesConfigRepo, renderer, signer, objects,
		appledger.InvoiceOptions{
			SoftwareID:   cfg.Ledger.SoftwareID,
			Mode:         cfg.Ledger.Mode,
			SignInvoices: cfg.Ledger.SignInvoices,
		})
	if err != nil {
		return nil, err
	}
	invoiceService.SetMetrics(tel.Metrics)
	auditService := appledger.NewAuditService(auditRepo)
	batchService, err := appevidence.NewBatchService(batchRepo, documentRepo, txScope, chainService, signer, objects, cfg.Ledger.EvidenceSeries)
	if err != nil {
		return nil, err
	}
	batchService.SetMetrics(tel.Metrics)

	// Handlers
	ledgerHandler := handler.NewLedgerHandler(sequenceService, seriesService, invoiceService, chainService)
	evidenceHandler := handler.NewEvidenceHandler(batchService, auditService)
	systemHandler := handler.NewSystemHandler(db, cfg.App.Name, version)

	app.engine = newEngine(cfg, log, tel)
	idempotent := middleware.Idempotency(idempotencyStore, shared.IdempotencyConfig{
		TTL:     cfg.Ledger.IdempotencyTTL,
		Enabled: true,
	})

	r := router.NewRouter(app.engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(
			middleware.Owner(middleware.OwnerConfigForEnv(cfg.App.Env)),
			middleware.TracingAttributeInjector(),
		),
	)
	r.Register(router.LedgerRoutes(ledgerHandler, idempotent))
	r.Register(router.EvidenceRoutes(evidenceHandler, idempotent))
	r.Setup()
	router.RegisterHealth(app.engine, systemHandler)

	return app, nil
}

func newEngine(cfg *config.Config, log *zap.Logger, tel *telemetry.Telemetry) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	if tel.Meter.IsEnabled() {
		engine.Use(middleware.HTTPMetrics(tel.Meter.Meter(telemetry.TracerName)))
	}
	engine.Use(middleware.SecureWithConfig(middleware.DefaultSecurityConfig()))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFrom(&cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	return engine
}

func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, db.Driver, log)
	if err != nil {
		return err
	}
	// Closing the migrator would close the shared connection
	if err := m.Up(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func newObjectStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (shared.ObjectStorage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("Using in-memory object storage; documents are lost on restart")
		return storage.NewMemoryObjectStorage(), nil
	}
	s3, err := storage.NewS3ObjectStorage(&cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}

type closableIdempotencyStore interface {
	shared.IdempotencyStore
	io.Closer
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (closableIdempotencyStore, error) {
	if !cfg.Redis.Enabled {
		log.Info("Using in-memory idempotency store")
		return cache.NewInMemoryIdempotencyStore(), nil
	}
	store, err := cache.NewRedisIdempotencyStore(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis idempotency store: %w", err)
	}
	log.Info("Using Redis idempotency store", zap.String("host", cfg.Redis.Host))
	return store, nil
}

func retryPolicy(maxAttempts int, initial time.Duration) appledger.RetryPolicy {
	p := appledger.DefaultRetryPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if initial > 0 {
		p.InitialInterval = initial
	}
	return p
}

func (a *application) close(ctx context.Context) {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("Close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Failed to close database", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}
}
