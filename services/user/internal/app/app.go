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

	"github.com/utafrali/accounts/pkg/database"
	"github.com/utafrali/accounts/pkg/health"
	"github.com/utafrali/accounts/pkg/httpclient"
	pkgkafka "github.com/utafrali/accounts/pkg/kafka"
	"github.com/utafrali/accounts/pkg/middleware"
	"github.com/utafrali/accounts/pkg/tracing"
	"github.com/utafrali/accounts/services/user/internal/authclient"
	"github.com/utafrali/accounts/services/user/internal/config"
	"github.com/utafrali/accounts/services/user/internal/event"
	handler "github.com/utafrali/accounts/services/user/internal/handler/http"
	"github.com/utafrali/accounts/services/user/internal/repository/postgres"
	"github.com/utafrali/accounts/services/user/internal/service"
	"github.com/utafrali/accounts/services/user/migrations"
)

const serviceName = "user-service"

// App wires together all dependencies and runs the user service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	consumers      []*pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	wg             sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "user"); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if t := cfg.SlowQueryThreshold(); t > 0 {
		database.SetSlowQueryLogging(t, logger)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	profiles := service.NewProfileService(postgres.NewProfileRepository(pool), logger)

	// Token validation.
	var validator middleware.TokenValidator
	switch cfg.ValidationMode {
	case config.ValidationRemote:
		clientCfg := httpclient.DefaultConfig()
		clientCfg.Timeout = cfg.AuthTimeout
		clientCfg.MaxRetries = cfg.AuthMaxRetries
		cbCfg := httpclient.DefaultCircuitBreakerConfig("auth-service")
		cbCfg.MinRequests = cfg.AuthBreakerTrips
		client := httpclient.NewCircuitBreakerClient(httpclient.New(clientCfg), cbCfg, logger)
		validator = authclient.NewRemote(cfg.AuthServiceURL, client, logger).Validator()
		logger.Info("validating tokens through auth service", slog.String("url", cfg.AuthServiceURL))
	default:
		validator = authclient.Local(cfg.JWTSecret)
	}

	// Account event consumers.
	if cfg.KafkaEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumers = event.NewAccountHandlers(profiles, logger).Consumers(cfg.KafkaBrokers, cfg.ConsumerGroup, a.dlq)
		brokers := cfg.KafkaBrokers
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, brokers)
		})
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("group", cfg.ConsumerGroup),
		)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Profiles:  profiles,
		Validator: validator,
		Health:    healthHandler,
		Logger:    logger,
		CORS:      middleware.NewCORSConfig(cfg.Environment, cfg.CORSAllowedOrigins),
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and the event consumers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	consumeCtx, stopConsumers := context.WithCancel(ctx)
	defer stopConsumers()
	for _, c := range a.consumers {
		a.wg.Add(1)
		go func(c *pkgkafka.Consumer) {
			defer a.wg.Done()
			if err := c.Start(consumeCtx); err != nil {
				a.logger.Error("consumer stopped", slog.String("topic", c.Topic()), slog.String("error", err.Error()))
			}
		}(c)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopConsumers()
	a.wg.Wait()
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans)
// 3. Consumers and DLQ producer
// 4. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.closeAll())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("topic", c.Topic()), slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
