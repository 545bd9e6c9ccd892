package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/auth"
	"royalty-engine/internal/config"
	"royalty-engine/internal/eventing"
	eventingrepo "royalty-engine/internal/eventing/infrastructure/sqlstore"
	"royalty-engine/internal/observability/logging"
	"royalty-engine/internal/observability/metrics"
	"royalty-engine/internal/platform/sqldb"
	royaltyapp "royalty-engine/internal/royalty/application"
	"royalty-engine/internal/royalty/infrastructure/locking"
	"royalty-engine/internal/royalty/infrastructure/sqlstore"
	"royalty-engine/internal/royalty/infrastructure/storage"
	royaltyhttp "royalty-engine/internal/royalty/interfaces/http"
)

const (
	dispatchInterval = 2 * time.Second
	dispatchBatch    = 100
	shutdownTimeout  = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Fatal("config error", zap.Error(err))
	}
	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.Migrate {
		if err := sqlstore.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate error", zap.Error(err))
		}
	}

	metrics.Init(db.DB, logger)
	auditRepo := audit.NewRepository(db)
	repos := sqlstore.NewRepositories(db)

	baseBus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	royaltyapp.RegisterEvents(registry)
	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, baseBus,
		eventing.WithDispatcher(dispatcher),
		eventing.WithPublisherLogger(logger),
	)

	locker, closeLocker := buildLocker(cfg, logger)
	defer closeLocker()
	store, closeStore := buildReportStore(ctx, cfg, logger)
	defer closeStore()

	calc, err := royaltyapp.NewCalculator(
		repos.Catalog, repos.Catalog, repos.Partners, repos.Rates, repos.ExchangeRates,
		cfg.Royalty.SettlementCurrency,
		royaltyapp.WithWorkers(cfg.Royalty.Workers),
		royaltyapp.WithDefaultLocation(cfg.Location()),
		royaltyapp.WithCalculatorLogger(logger),
	)
	if err != nil {
		logger.Fatal("calculator error", zap.Error(err))
	}
	distributions, err := royaltyapp.NewDistributionService(calc, repos.Catalog, repos.Distributions, repos.Cycles, auditRepo,
		royaltyapp.WithDistributionLogger(logger),
	)
	if err != nil {
		logger.Fatal("distribution service error", zap.Error(err))
	}
	converter, err := royaltyapp.NewCurrencyConverter(repos.ExchangeRates)
	if err != nil {
		logger.Fatal("currency converter error", zap.Error(err))
	}
	settlements, err := royaltyapp.NewSettlementProcessor(
		repos.Cycles, repos.Usage, repos.Partners, repos.Settlements, converter, nil, store,
		royaltyapp.WithSettlementAudit(auditRepo),
		royaltyapp.WithSettlementEvents(publisher),
		royaltyapp.WithSender(royaltyapp.Sender{PartyID: cfg.Royalty.SenderPartyID, Name: cfg.Royalty.SenderName}),
		royaltyapp.WithSettlementLogger(logger),
	)
	if err != nil {
		logger.Fatal("settlement processor error", zap.Error(err))
	}
	cycles, err := royaltyapp.NewCycleManager(repos.Cycles, repos.Usage, repos.Partners, converter, settlements,
		royaltyapp.WithCycleLocker(locker),
		royaltyapp.WithCycleAudit(auditRepo),
		royaltyapp.WithCycleEvents(publisher),
		royaltyapp.WithDefaultAdminFee(cfg.Royalty.DefaultAdminFeePercent),
		royaltyapp.WithCycleLogger(logger),
	)
	if err != nil {
		logger.Fatal("cycle manager error", zap.Error(err))
	}

	remittances, err := royaltyapp.NewRemittanceHandler(repos.Settlements, cycles, logger)
	if err != nil {
		logger.Fatal("remittance handler error", zap.Error(err))
	}
	remittances.Register(baseBus, processedStore)
	go dispatcher.Run(ctx, dispatchInterval, dispatchBatch, func(err error) {
		logger.Warn("outbox dispatch error", zap.Error(err))
	})

	if cfg.Schedule.Enabled {
		scheduler := royaltyapp.NewScheduler(distributions, cycles, cfg.Schedule.DailyAt, cfg.Royalty.BatchSize, logger)
		go scheduler.Start(ctx)
	}

	handler, err := royaltyhttp.NewHandler(distributions, cycles, settlements, publisher, auditRepo, logger)
	if err != nil {
		logger.Fatal("http handler error", zap.Error(err))
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	router := royaltyhttp.NewRouter(handler, royaltyhttp.RouterConfig{
		Auth:           auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy),
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		RequestTimeout: time.Minute,
		Logger:         logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()
	logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func buildLocker(cfg config.Config, logger *zap.Logger) (royaltyapp.CycleLocker, func()) {
	if cfg.Lock.Backend != "redis" {
		return locking.NewMemoryLocker(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	locker, err := locking.NewRedisLocker(rdb, locking.WithTTL(cfg.Lock.TTL), locking.WithLogger(logger))
	if err != nil {
		logger.Fatal("redis locker error", zap.Error(err))
	}
	return locker, func() { _ = rdb.Close() }
}

func buildReportStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (royaltyapp.ReportStore, func()) {
	if cfg.Storage.Backend != "gcs" {
		store, err := storage.NewLocalStore(cfg.Storage.LocalRoot)
		if err != nil {
			logger.Fatal("report store error", zap.Error(err))
		}
		return store, func() {}
	}
	client, err := storage.NewGCSClient(ctx, cfg.Storage.CredentialsFile)
	if err != nil {
		logger.Fatal("gcs client error", zap.Error(err))
	}
	store, err := storage.NewGCSStore(client, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix)
	if err != nil {
		logger.Fatal("gcs store error", zap.Error(err))
	}
	return store, func() { _ = store.Close() }
}
