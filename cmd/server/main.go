package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/ai"
	"github.com/twquant/twse-agents/internal/adapters/clickhouse"
	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/adapters/database"
	"github.com/twquant/twse-agents/internal/adapters/metrics"
	redisAdapter "github.com/twquant/twse-agents/internal/adapters/redis"
	"github.com/twquant/twse-agents/internal/adapters/telegram"
	"github.com/twquant/twse-agents/internal/adapters/twse"
	"github.com/twquant/twse-agents/internal/agents"
	"github.com/twquant/twse-agents/internal/api"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/internal/health"
	"github.com/twquant/twse-agents/internal/indicators"
	"github.com/twquant/twse-agents/internal/market"
	"github.com/twquant/twse-agents/internal/portfolio"
	"github.com/twquant/twse-agents/internal/risk"
	"github.com/twquant/twse-agents/internal/sentiment"
	"github.com/twquant/twse-agents/internal/toolkit"
	"github.com/twquant/twse-agents/internal/workers"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("twse-agents starting")

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var redisClient *redisAdapter.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisAdapter.New(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	bus := events.NewBus(64)
	defer bus.Close()

	calendar, err := market.NewCalendar()
	if err != nil {
		return err
	}

	upstream := twse.NewClient(cfg.Gateway.UpstreamBaseURL, cfg.Gateway.RequestTimeout)
	gateway := market.NewGateway(upstream, market.Options{
		PerSymbolInterval: cfg.Gateway.PerSymbolInterval,
		MaxPerMinute:      cfg.Gateway.MaxPerMinute,
		MaxPerSecond:      cfg.Gateway.MaxPerSecond,
		CacheTTL:          cfg.Gateway.CacheTTL,
		CacheMaxEntries:   cfg.Gateway.CacheMaxEntries,
		CacheMaxBytes:     cfg.Gateway.CacheMaxBytes,
		RequestTimeout:    cfg.Gateway.RequestTimeout,
	})

	repo := agents.NewRepository(db.DB())
	engine := portfolio.NewEngine(repo, market.NewPriceSource(gateway), cfg.Trading)

	kit := toolkit.NewToolkit(
		gateway,
		calendar,
		indicators.NewCalculator(),
		sentiment.NewAnalyzer(),
		risk.NewValidator(cfg.Trading),
		engine,
		repo,
		bus,
		cfg.Trading,
	)
	registry := toolkit.NewRegistry(kit)
	defer registry.Close()

	var metricsLogger *metrics.Logger
	if cfg.ClickHouse.Enabled {
		chClient, err := clickhouse.New(&cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("failed to connect to clickhouse: %w", err)
		}
		defer chClient.Close()

		metricsLogger = metrics.NewLogger(chClient)
		registry.SetMetricsLogger(metricsLogger)
	}

	composer, err := agents.NewComposer(nil)
	if err != nil {
		return fmt.Errorf("failed to build composer: %w", err)
	}

	reasoner := ai.NewOpenAIReasoner(cfg.Reasoner)
	runner := agents.NewRunner(registry, composer, reasoner, repo, bus, cfg.Sessions)

	var locker agents.Locker
	if redisClient != nil {
		locker = redisClient
	}
	manager := agents.NewManager(repo, runner, engine, bus, cfg.Sessions, locker)
	if err := manager.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore agents: %w", err)
	}

	if cfg.Telegram.Enabled {
		notifier, err := telegram.NewNotifier(&cfg.Telegram)
		if err != nil {
			logger.Error("failed to create telegram notifier", zap.Error(err))
		} else {
			notifier.Start(bus)
			defer notifier.Stop()
		}
	}

	group := worker.NewGroup(ctx)
	group.Add(workers.NewPortfolioSnapshotWorker(repo, engine, bus), 5*time.Minute)
	group.Add(workers.NewStrategyReviewWorker(manager, repo, calendar), time.Hour)
	if metricsLogger != nil {
		group.Add(workers.NewGatewayStatsWorker(gateway, metricsLogger), time.Minute)
	}
	group.Start()

	healthServer := health.NewServer(cfg.Server.HealthPort, db, redisClient)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	apiServer := api.NewServer(&cfg.Server, manager, repo, calendar, gateway, bus)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	healthServer.SetReady(true)
	logger.Info("twse-agents ready",
		zap.Int("port", cfg.Server.Port),
		zap.Int("health_port", cfg.Server.HealthPort),
	)

	<-ctx.Done()
	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	healthServer.SetReady(false)
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}
	group.Stop(cfg.Server.ShutdownTimeout)
	manager.Shutdown(shutdownCtx)
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", zap.Error(err))
	}

	return nil
}

// initDatabase connects and applies pending migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
