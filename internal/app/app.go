package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/tastybites/storefront/internal/cartstore"
	"github.com/tastybites/storefront/internal/config"
	"github.com/tastybites/storefront/internal/event"
	handler "github.com/tastybites/storefront/internal/handler/http"
	"github.com/tastybites/storefront/internal/identity"
	"github.com/tastybites/storefront/internal/repository"
	"github.com/tastybites/storefront/internal/repository/breaker"
	"github.com/tastybites/storefront/internal/repository/memory"
	"github.com/tastybites/storefront/internal/repository/postgres"
	redisrepo "github.com/tastybites/storefront/internal/repository/redis"
	"github.com/tastybites/storefront/internal/session"
	"github.com/tastybites/storefront/pkg/database"
	"github.com/tastybites/storefront/pkg/health"
	pkgkafka "github.com/tastybites/storefront/pkg/kafka"
	"github.com/tastybites/storefront/pkg/middleware"
	"github.com/tastybites/storefront/pkg/tracing"
)

const (
	serviceName       = "cart"
	idempotencyPrefix = "cart:idem:"
	idempotencyTTL    = 24 * time.Hour
)

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	sessions       *session.Manager
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Remote cart record store.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool

	if err := postgres.Migrate(ctx, pool, logger); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	remote := breaker.New(postgres.NewCartRecordRepository(pool), breaker.Config{
		Name:             "cart-record-store",
		MaxFailures:      cfg.BreakerMaxFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout(),
		HalfOpenRequests: cfg.BreakerHalfOpenReqs,
	}, logger)

	// Local durable storage.
	var storage repository.LocalStorage
	var idem pkgkafka.IdempotencyStore
	if cfg.LocalStorage == "redis" {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		storage = redisrepo.NewLocalStorage(rdb, cfg.LocalCartTTL())
		idem = pkgkafka.NewRedisIdempotencyStore(rdb, idempotencyPrefix, idempotencyTTL)
	} else {
		logger.Warn("local cart storage is in-memory; carts will not survive a restart")
		storage = memory.NewLocalStorage()
		idem = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
	}

	// Events.
	var events cartstore.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("no kafka brokers configured; cart events are disabled")
	}

	a.sessions = session.NewManager(session.Config{
		Storage:     storage,
		Remote:      remote,
		Events:      events,
		IdleTimeout: cfg.SessionIdleTimeout(),
		SyncTimeout: cfg.SyncTimeout(),
	}, logger)

	if len(cfg.KafkaBrokers) > 0 {
		orders := event.NewOrderConsumer(a.sessions, logger)
		a.consumer = event.NewKafkaOrderConsumer(cfg.KafkaBrokers, cfg.KafkaOrderGroup, orders, idem, logger)
	}

	// Health checks. Local storage is critical; the remote store and the
	// broker only degrade the service.
	healthHandler := health.NewHandler()
	if a.rdb != nil {
		rdb := a.rdb
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	healthHandler.RegisterOptional("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterOptional("cart-record-breaker", func(context.Context) error {
		if remote.State() == gobreaker.StateOpen {
			return gobreaker.ErrOpenState
		}
		return nil
	})
	if a.producer != nil {
		brokers := cfg.KafkaBrokers
		healthHandler.RegisterOptional("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, brokers)
		})
	}

	a.limiter = middleware.NewRateLimiter(cfg.SignInRateRPS, cfg.SignInRateBurst, 10*time.Minute)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.AllowCredentials = !containsWildcard(cfg.CORSAllowedOrigins)

	sessionCfg := middleware.DefaultSessionConfig()
	sessionCfg.Secure = cfg.SecureCookies

	router := handler.NewRouter(handler.RouterConfig{
		Sessions:      a.sessions,
		Health:        healthHandler,
		Tokens:        identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).Validate,
		SignInLimiter: a.limiter,
		CORS:          corsCfg,
		Session:       sessionCfg,
		PprofCIDRs:    cfg.PprofAllowedCIDRs,
		PprofEnabled:  cfg.PprofEnabled,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server, the session janitor and the order consumer, and
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sessions.Run(ctx)
	}()

	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("order consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	cancel()
	shutdownErr := a.Shutdown()
	wg.Wait()
	if runErr != nil {
		return runErr
	}
	return shutdownErr
}

// Shutdown gracefully stops all components. In-flight cart saves are given
// the shutdown deadline to finish before the connections close.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("order consumer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.sessions.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("cart sessions shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.limiter.Close()
	a.closeAll()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeAll releases connections opened so far. It is safe on a partially
// constructed App.
func (a *App) closeAll() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
