package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/contracts"
	"github.com/zenGate-Global/rentflow/platform/go/events"
	"github.com/zenGate-Global/rentflow/platform/go/gcp"
	platformlogging "github.com/zenGate-Global/rentflow/platform/go/logging"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
	"github.com/zenGate-Global/rentflow/platform/go/telemetry"
)

type config struct {
	Port               string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string        `env:"LOG_FORMAT" envDefault:"json"`
	StoreBackend       string        `env:"STORE_BACKEND" envDefault:"postgres"` // postgres | memory
	RunMigrations      bool          `env:"RUN_MIGRATIONS" envDefault:"false"`
	AuthProvider       string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	PublicRateLimit    string        `env:"PUBLIC_RATE_LIMIT" envDefault:"30-M"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	OtelEndpoint       string        `env:"OTEL_ENDPOINT"`
	OtelEnabled        bool          `env:"OTEL_ENABLED" envDefault:"false"`
	Database           persistence.PoolConfig
	Firebase           gcp.FirebaseConfig
}

// loadDotEnv reads .env.local then .env. Variables already set in the environment win, and
// earlier files win over later ones.
func loadDotEnv() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func main() {
	if err := loadDotEnv(); err != nil {
		log.Fatalf("load env files: %v", err)
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "rentflow-api",
		Endpoint:    cfg.OtelEndpoint,
		Enabled:     cfg.OtelEnabled,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}()

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	bus := events.NewBus(logger.Named("events"))
	svcs := newServices(store, bus, logger)

	spec, err := contracts.Load(ctx)
	if err != nil {
		return err
	}

	authMiddleware, err := buildAuthMiddleware(ctx, cfg, logger)
	if err != nil {
		return err
	}

	handler, err := newRouter(routerConfig{
		RequestTimeout:     cfg.RequestTimeout,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PublicRateLimit:    cfg.PublicRateLimit,
	}, svcs, authMiddleware, store.ready, spec, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("store_backend", cfg.StoreBackend),
			zap.String("auth_provider", cfg.AuthProvider),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("api server stopped")
	return nil
}
