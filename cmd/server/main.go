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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/erpledger/internal/adapter/http"
	"github.com/iho/erpledger/internal/adapter/http/handler"
	"github.com/iho/erpledger/internal/adapter/http/middleware"
	redisRepo "github.com/iho/erpledger/internal/adapter/repository/redis"
	"github.com/iho/erpledger/internal/app"
	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/infrastructure/auth"
	"github.com/iho/erpledger/internal/infrastructure/config"
	"github.com/iho/erpledger/internal/infrastructure/eventpublisher"
	"github.com/iho/erpledger/internal/infrastructure/logger"
	"github.com/iho/erpledger/internal/infrastructure/metrics"
	"github.com/iho/erpledger/internal/infrastructure/postgres"
	"github.com/iho/erpledger/internal/infrastructure/redis"
	"github.com/iho/erpledger/internal/usecase"
)

const (
	rateLimitCleanupInterval = time.Minute
	rateLimitMaxIdle         = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "erpledger-server"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApplication(ctx, cfg, log, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// application owns the server and its background workers.
type application struct {
	cfg         *config.Config
	log         zerolog.Logger
	server      *http.Server
	relay       *eventpublisher.Relay
	rateLimiter *middleware.RateLimiter
	closers     []func()
}

func newApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*application, error) {
	a := &application{cfg: cfg, log: log}
	checks := map[string]handler.Pinger{}
	m := metrics.NewWithRegisterer(reg)

	repos, err := a.openStorage(ctx, checks, m)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		cache       usecase.Cache
		idempotency usecase.IdempotencyStore
		sink        eventpublisher.Sink = eventpublisher.NewLogSink(log)
	)
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL,
			redis.WithPoolSize(cfg.RedisPoolSize), redis.WithTimeouts(cfg.RedisTimeout, cfg.RedisTimeout))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		log.Info().Msg("connected to redis")

		cache = redisRepo.NewCache(client)
		idempotency = redisRepo.NewIdempotencyStore(client)
		sink = eventpublisher.NewRedisSink(client, cfg.OutboxChannel)
		checks["redis"] = redis.Pinger{Client: client}
	}

	svc := app.NewServices(repos, app.Options{
		Metrics:        m,
		Cache:          cache,
		Logger:         log,
		PostingMode:    usecase.StockPostingMode(cfg.StockPostingMode),
		StockCacheTTL:  cfg.StockCacheTTL,
		BulkConcurrent: cfg.BulkAdjustConcurrency,
	})

	var authenticator *middleware.Authenticator
	if cfg.AuthEnabled {
		authenticator = middleware.NewAuthenticator(auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration), m.AuthFailures)
	}

	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m.RateLimitHits)
	}

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		EventHandler:      handler.NewEventHandler(svc.Posting),
		JournalHandler:    handler.NewJournalHandler(svc.Posting),
		AccountHandler:    handler.NewAccountHandler(svc.Registry),
		StockHandler:      handler.NewStockHandler(svc.Stock),
		ReceivableHandler: handler.NewOpenItemHandler(domain.OpenItemReceivable, svc.OpenItems),
		PayableHandler:    handler.NewOpenItemHandler(domain.OpenItemPayable, svc.OpenItems),
		LedgerHandler:     handler.NewLedgerHandler(svc.Ledger, svc.Recon),
		HealthHandler:     handler.NewHealthHandler(checks),
		AuthHandler:       handler.NewAuthHandler(),
		Authenticator:     authenticator,
		IdempotencyStore:  idempotency,
		IdempotencyTTL:    cfg.IdempotencyTTL,
		Metrics:           m,
		MetricsHandler:    promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		RateLimiter:       a.rateLimiter,
		Logger:            log,
		Development:       cfg.IsDevelopment(),
	})

	a.server = &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	if cfg.OutboxEnabled {
		a.relay = eventpublisher.NewRelay(repos.Outbox, sink, log.With().Str("component", "outbox").Logger(),
			eventpublisher.WithBatchSize(cfg.OutboxBatchSize),
			eventpublisher.WithInterval(cfg.OutboxInterval),
			eventpublisher.WithRetention(cfg.OutboxRetention),
			eventpublisher.WithCounters(m.OutboxPublished, m.OutboxPublishFails),
		)
	}

	return a, nil
}

func (a *application) openStorage(ctx context.Context, checks map[string]handler.Pinger, m *metrics.Metrics) (app.Repositories, error) {
	if a.cfg.StorageDriver == config.StorageMemory {
		a.log.Warn().Msg("using in-memory storage, data is lost on restart")
		return app.MemoryRepositories(), nil
	}

	if a.cfg.AutoMigrate {
		if err := postgres.NewMigrator(a.cfg.DatabaseURL, a.cfg.MigrationsPath, a.log).Up(); err != nil {
			return app.Repositories{}, err
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    a.cfg.DatabaseURL,
		MaxConns:       a.cfg.DatabaseMaxConns,
		MinConns:       a.cfg.DatabaseMinConns,
		ConnectTimeout: a.cfg.DatabaseTimeout,
	})
	if err != nil {
		return app.Repositories{}, fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	checks["postgres"] = pool
	a.log.Info().Msg("connected to postgres")

	return app.PostgresRepositories(pool, m.TxRetries, a.log.With().Str("component", "postgres").Logger()), nil
}

// run serves until ctx is cancelled, then drains in-flight requests.
func (a *application) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.relay != nil {
		g.Go(func() error {
			if err := a.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if a.rateLimiter != nil {
		g.Go(func() error {
			a.rateLimiter.RunCleanup(gctx, rateLimitCleanupInterval, rateLimitMaxIdle)
			return nil
		})
	}

	return g.Wait()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
