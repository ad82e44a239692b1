package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/prakyath/spree-commerse/internal/adjustment"
	"github.com/prakyath/spree-commerse/internal/client/catalog"
	stockclient "github.com/prakyath/spree-commerse/internal/client/stock"
	"github.com/prakyath/spree-commerse/internal/config"
	"github.com/prakyath/spree-commerse/internal/event"
	handler "github.com/prakyath/spree-commerse/internal/handler/http"
	"github.com/prakyath/spree-commerse/internal/inventory"
	"github.com/prakyath/spree-commerse/internal/pricing"
	"github.com/prakyath/spree-commerse/internal/repository"
	"github.com/prakyath/spree-commerse/internal/repository/postgres"
	redisrepo "github.com/prakyath/spree-commerse/internal/repository/redis"
	"github.com/prakyath/spree-commerse/internal/service"
	"github.com/prakyath/spree-commerse/internal/stock"
	"github.com/prakyath/spree-commerse/migrations"
	"github.com/prakyath/spree-commerse/pkg/database"
	"github.com/prakyath/spree-commerse/pkg/health"
	"github.com/prakyath/spree-commerse/pkg/httpclient"
	pkgkafka "github.com/prakyath/spree-commerse/pkg/kafka"
	"github.com/prakyath/spree-commerse/pkg/middleware"
	"github.com/prakyath/spree-commerse/pkg/tracing"
)

// serviceName labels metrics, spans and consumer groups.
const serviceName = "line-item"

// App wires together all dependencies and runs the line item service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	catalogEvents  *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	redisCfg := database.DefaultRedisConfig()
	redisCfg.Host = cfg.RedisHost
	redisCfg.Port = cfg.RedisPort
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB
	redisClient, err := database.NewRedisClient(ctx, redisCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", redisCfg.Addr()))

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := producer.Ping(ctx); err != nil {
		logger.Warn("kafka unreachable, continuing in degraded mode", slog.String("error", err.Error()))
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Downstream clients share one retrying HTTP client, each behind its own breaker.
	base := httpclient.New(httpclient.DefaultConfig())
	variantCache := redisrepo.NewVariantCache(redisClient, cfg.VariantCacheTTL)
	catalogClient := catalog.NewClient(
		httpclient.NewCircuitBreakerClient(base, breakerConfig(cfg, "catalog"), logger),
		cfg.CatalogServiceURL, variantCache, logger,
	)
	quantifier := stock.NewQuantifier(stockclient.NewClient(
		httpclient.NewCircuitBreakerClient(base, breakerConfig(cfg, "inventory"), logger),
		cfg.InventoryServiceURL,
	))

	engineFactory := func(repos repository.Repositories) *service.ConsistencyEngine {
		return service.NewConsistencyEngine(
			pricing.NewVATPricer(cfg.DefaultTaxZoneID, pricing.NewRateTaxAmounts(repos.TaxRates)),
			quantifier,
			inventory.NewOrderInventory(repos.InventoryUnits, quantifier),
			adjustment.NewTaxAdjuster(repos.TaxRates, repos.Adjustments, repos.LineItems),
			adjustment.NewUpdater(repos.Adjustments, repos.Promotions, repos.LineItems),
		)
	}

	lineItemService := service.NewLineItemService(
		postgres.NewStore(pool),
		catalogClient,
		engineFactory,
		event.NewProducer(producer, logger),
		logger,
	)

	catalogEvents := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaConsumerGroup,
		Topics:   event.ConsumedTopics,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, pkgkafka.IdempotentHandler(
		redisrepo.NewIdempotencyStore(redisClient, cfg.ProcessedEventTTL),
		event.NewConsumer(variantCache, logger).Handle,
		logger,
	), logger)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", producer.Ping)

	router := handler.NewRouter(lineItemService, healthHandler, middleware.RateLimitConfig{
		RPS:   cfg.RateLimitRPS,
		Burst: cfg.RateLimitBurst,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		catalogEvents:  catalogEvents,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func breakerConfig(cfg *config.Config, name string) httpclient.CircuitBreakerConfig {
	cb := httpclient.DefaultCircuitBreakerConfig(name)
	cb.Timeout = cfg.CBTimeout
	cb.FailureRatio = cfg.CBFailureRatio
	cb.MinRequests = cfg.CBMinRequests
	return cb
}

// Run starts the HTTP server and the catalog event consumer, then blocks
// until the context is canceled or either fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.catalogEvents.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("catalog event consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown drains HTTP, flushes spans, then closes Kafka, Redis and
// PostgreSQL in that order.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.catalogEvents.Close(); err != nil {
		a.logger.Error("catalog event consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
