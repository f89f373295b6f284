package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/infra/memory"
	"github.com/kislikjeka/pesaprime/internal/infra/postgres"
	infraRedis "github.com/kislikjeka/pesaprime/internal/infra/redis"
	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/module/wallet"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	"github.com/kislikjeka/pesaprime/internal/settlement"
	"github.com/kislikjeka/pesaprime/internal/transport/httpapi"
	"github.com/kislikjeka/pesaprime/internal/transport/httpapi/handler"
	"github.com/kislikjeka/pesaprime/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/pesaprime/pkg/config"
	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/pkg/metrics"
)

// storage is the set of repositories one driver provides
type storage struct {
	ledger     ledger.Repository
	positions  investment.Repository
	assets     asset.Repository
	currencies currency.Repository
	checks     map[string]handler.Pinger
	close      func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDefault(cfg.Env)
	log.Info("Starting PesaPrime API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"storage", cfg.StorageDriver,
	)

	collector := metrics.NewCollector()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.close()
	log.Info("Storage ready", "driver", cfg.StorageDriver)

	var (
		events        ledger.EventPublisher
		currencyCache currency.Cache
		assetCache    asset.Cache
	)
	if cfg.RedisEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, running without cache and events", "error", err)
		} else {
			cache := infraRedis.NewCache(redisClient, cfg.ReferenceCacheTTL, log)
			currencyCache = cache.Currencies()
			assetCache = cache.Assets()
			publisher := infraRedis.NewPublisher(redisClient, log)
			events = publisher
			go func() {
				if err := publisher.Observe(ctx, collector); err != nil {
					log.Warn("Ledger event subscription ended", "error", err)
				}
			}()
			store.checks["redis"] = redisPinger{redisClient}
			log.Info("Redis connection established")
		}
	}

	ledgerSvc := ledger.NewService(store.ledger, &ledger.Config{
		MaxAttempts:     cfg.TxMaxAttempts,
		DefaultCurrency: cfg.DefaultCurrency,
		WelcomeBonus:    cfg.WelcomeBonus,
		Events:          events,
		Metrics:         collector,
		Logger:          log,
	})
	catalog := asset.NewCatalog(store.assets, assetCache, &asset.CatalogConfig{
		Freshness: cfg.PriceStaleAfter,
		Logger:    log,
	})
	currencies := currency.NewResolver(store.currencies, currencyCache, log)
	investments := investment.NewService(store.positions, ledgerSvc, catalog, &investment.Config{
		Returns: returnModel(cfg),
		Logger:  log,
	})
	engine := settlement.NewEngine(investments, collector, log)
	walletSvc := wallet.NewService(ledgerSvc, investments, engine, currencies, log)

	if cfg.StorageDriver == config.StorageMemory {
		if err := seedAssets(ctx, catalog); err != nil {
			log.Error("Failed to seed assets", "error", err)
			os.Exit(1)
		}
	}

	limiter := middleware.NewRateLimiter(100, 20)
	go limiter.Cleanup(ctx)

	var adminGuard func(http.Handler) http.Handler
	if cfg.AdminToken != "" {
		adminGuard = middleware.AdminToken(cfg.AdminToken)
	} else {
		log.Warn("ADMIN_TOKEN not configured, admin routes are unauthenticated")
	}

	r := httpapi.NewRouter(httpapi.Config{
		Logger:          log,
		AllowedOrigins:  cfg.AllowedOrigins,
		AccountHandler:  handler.NewAccountHandler(walletSvc, log),
		CatalogHandler:  handler.NewCatalogHandler(catalog, currencies, log),
		AdminHandler:    handler.NewAdminHandler(ledgerSvc, investments, catalog, engine, log),
		HealthHandler:   handler.NewHealthHandler(store.checks),
		RateLimiter:     limiter,
		Metrics:         collector,
		MetricsHandler:  collector.Handler(),
		AdminMiddleware: adminGuard,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeper := settlement.NewSweeper(engine, &settlement.SweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
		Logger:    log,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
	}

	select {
	case <-sweepDone:
		log.Info("Settlement sweeper stopped")
	case <-shutdownCtx.Done():
		log.Warn("Settlement sweeper did not stop in time")
	}

	log.Info("Server stopped gracefully")
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		store := memory.New(cfg.LockTimeout)
		return &storage{
			ledger:     store.Ledger(),
			positions:  store.Positions(),
			assets:     store.Assets(),
			currencies: store.Currencies(),
			checks:     map[string]handler.Pinger{},
			close:      func() {},
		}, nil

	case config.StoragePostgres:
		db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		repos := db.Repositories(cfg.LockTimeout)
		return &storage{
			ledger:     repos.Ledger,
			positions:  repos.Positions,
			assets:     repos.Assets,
			currencies: repos.Currencies,
			checks:     map[string]handler.Pinger{"database": db},
			close:      db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func returnModel(cfg *config.Config) investment.ReturnModel {
	if cfg.FixedReturnFactor != nil {
		return investment.FixedReturnModel{Value: *cfg.FixedReturnFactor}
	}
	return investment.RandomReturnModel{Min: cfg.ReturnFactorMin, Max: cfg.ReturnFactorMax}
}

// seedAssets gives an empty in-memory catalog a few instruments to invest in
func seedAssets(ctx context.Context, catalog *asset.Catalog) error {
	seeds := []struct {
		symbol, name string
		category     asset.Category
		risk         asset.RiskLevel
		price        string
	}{
		{"BTC", "Bitcoin", asset.CategoryCrypto, asset.RiskHigh, "65000"},
		{"EURUSD", "Euro / US Dollar", asset.CategoryForex, asset.RiskMedium, "1.0850"},
		{"AAPL", "Apple Inc.", asset.CategoryStock, asset.RiskLow, "190.25"},
	}

	for i, s := range seeds {
		a := asset.NewAsset(s.symbol, s.name, s.category)
		a.RiskLevel = s.risk
		a.CurrentPrice = decimal.RequireFromString(s.price)
		a.DisplayOrder = i
		if err := catalog.Create(ctx, a); err != nil && !errors.Is(err, asset.ErrDuplicateAsset) {
			return err
		}
	}
	return nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
