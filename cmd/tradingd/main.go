package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bikeshrana/tradingd/internal/api"
	"github.com/bikeshrana/tradingd/internal/audit"
	"github.com/bikeshrana/tradingd/internal/auth"
	"github.com/bikeshrana/tradingd/internal/circuitbreaker"
	"github.com/bikeshrana/tradingd/internal/config"
	"github.com/bikeshrana/tradingd/internal/core/book"
	"github.com/bikeshrana/tradingd/internal/core/events"
	"github.com/bikeshrana/tradingd/internal/core/loop"
	"github.com/bikeshrana/tradingd/internal/core/risk"
	"github.com/bikeshrana/tradingd/internal/core/settlement"
	"github.com/bikeshrana/tradingd/internal/metrics"
	"github.com/bikeshrana/tradingd/internal/store"
	"github.com/bikeshrana/tradingd/internal/tickcache"
	"github.com/bikeshrana/tradingd/internal/ticksource"
)

func main() {
	var exitCode int
	defer func() { os.Exit(exitCode) }()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
	}
}

func run() error {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("tradingd starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pool, err := pgxpool.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("database connected")

	db := store.New(pool, logger)
	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("init store schema: %w", err)
	}

	auditLogger := audit.New(pool, logger)
	if err := auditLogger.InitSchema(ctx); err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	logger.Info().Msg("audit logger initialized")

	cbManager := circuitbreaker.NewManager(logger)
	bus := events.NewEventBus(1024, logger)
	defer bus.Close()

	tradingMetrics := metrics.NewTradingMetrics("tradingd")

	commissionRate, err := decimal.NewFromString(cfg.Settle.CommissionRate)
	if err != nil {
		return fmt.Errorf("parse commission rate: %w", err)
	}
	settleCfg := settlement.DefaultConfig()
	settleCfg.CommissionRate = commissionRate
	settle := settlement.New(settleCfg, db, bus, cbManager, logger)

	accounts, err := db.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	for _, a := range accounts {
		settle.LoadAccount(a)
	}
	positions, err := db.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	for _, p := range positions {
		settle.LoadPosition(p)
	}
	logger.Info().Int("accounts", len(accounts)).Int("positions", len(positions)).Msg("settlement index seeded")

	b := book.New()
	openOrders, err := db.ListOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("load open orders: %w", err)
	}
	for _, o := range openOrders {
		b.Insert(o)
	}
	logger.Info().Int("open_orders", len(openOrders)).Msg("order book seeded")

	validator := risk.New(settle, risk.ReferencePricePolicy(cfg.Settle.ReservationReferencePrice), logger)

	cache, err := newTickCache(cfg.TickCache, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("init tick cache: %w", err)
	}

	loopCfg := loop.DefaultConfig()
	loopCfg.EventChannelCapacity = cfg.Core.EventChannelCapacity
	loopCfg.BusyThreshold = cfg.Core.BusyThreshold
	loopCfg.SlowEventThreshold = cfg.Core.SlowEventThreshold
	loopCfg.ShutdownDrainTimeout = cfg.Core.ShutdownDrainTimeout
	loopCfg.TickCacheTTL = cfg.TickCache.TTL

	evLoop := loop.New(loopCfg, b, settle, validator, cache, logger, tradingMetrics)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		evLoop.Run(ctx)
	}()

	tickSrcCfg := ticksource.Config{Interval: cfg.TickSrc.TickInterval, RetryBaseDelay: 100 * time.Millisecond}
	sim := ticksource.New(tickSrcCfg, defaultInstruments(), evLoop, logger, cfg.TickSrc.Seed)
	go sim.Run(ctx)
	logger.Info().Int("instruments", len(defaultInstruments())).Msg("tick source started")

	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, logger)

	server := api.NewServer(&cfg.Server, api.Deps{
		Loop:     evLoop,
		Settle:   settle,
		Store:    db,
		Cache:    cache,
		Audit:    auditLogger,
		JWT:      jwtSvc,
		Metrics:  tradingMetrics,
		EventBus: bus,
	}, logger)

	go server.WebSocketHandler().StartEventListener(ctx)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serverErrChan:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down server")
	}

	cancel()
	if err := evLoop.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down event loop")
	}
	<-loopDone

	busMetrics := bus.GetMetrics()
	for eventType, m := range busMetrics {
		logger.Info().Str("event_type", string(eventType)).Int64("published", m.PublishedCount).Int64("dropped", m.DroppedCount).Msg("event bus metrics")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func newTickCache(cfg config.TickCacheConfig, redisCfg config.RedisConfig, logger zerolog.Logger) (tickcache.Cache, error) {
	if cfg.Backend != "redis" {
		return tickcache.NewMemory(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.RedisAddr(),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return tickcache.NewRedis(rdb, logger), nil
}

func defaultInstruments() []ticksource.Instrument {
	return []ticksource.Instrument{
		{Symbol: "EURUSD", Class: ticksource.ClassFX, InitialPrice: decimal.NewFromFloat(1.0850), Spread: decimal.NewFromFloat(0.0002)},
		{Symbol: "GBPUSD", Class: ticksource.ClassFX, InitialPrice: decimal.NewFromFloat(1.2650), Spread: decimal.NewFromFloat(0.0002)},
		{Symbol: "BTCUSD", Class: ticksource.ClassCrypto, InitialPrice: decimal.NewFromFloat(60000), Spread: decimal.NewFromFloat(0.0005)},
		{Symbol: "ETHUSD", Class: ticksource.ClassCrypto, InitialPrice: decimal.NewFromFloat(3200), Spread: decimal.NewFromFloat(0.0005)},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: cfg.TimeFormat,
		}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
