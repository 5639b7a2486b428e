// Package cmdutil holds the configuration and wiring shared by the CLI subcommands.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/rentflow/database"
	applicationsrepo "github.com/zenGate-Global/rentflow/domains/applications/be/repo"
	applicationsservice "github.com/zenGate-Global/rentflow/domains/applications/be/service"
	invitesrepo "github.com/zenGate-Global/rentflow/domains/invites/be/repo"
	invitesservice "github.com/zenGate-Global/rentflow/domains/invites/be/service"
	leadsrepo "github.com/zenGate-Global/rentflow/domains/leads/be/repo"
	leadsservice "github.com/zenGate-Global/rentflow/domains/leads/be/service"
	notificationsservice "github.com/zenGate-Global/rentflow/domains/notifications/be/service"
	"github.com/zenGate-Global/rentflow/platform/go/clock"
	"github.com/zenGate-Global/rentflow/platform/go/events"
	platformlogging "github.com/zenGate-Global/rentflow/platform/go/logging"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// Config is read from the environment (and optional .env files) before flags are applied.
type Config struct {
	Database persistence.PoolConfig
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads .env.local, .env and the process environment.
func LoadConfig() (Config, error) {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", name, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// DatabaseURLFlag registers --database-url, defaulting to DATABASE_URL.
func DatabaseURLFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "database-url", "", "Postgres connection string (defaults to DATABASE_URL)")
}

// Logger builds a console logger for operator output.
func Logger(cfg Config) (*zap.Logger, error) {
	return platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     cfg.LogLevel,
		Format:    "console",
		Output:    os.Stderr,
	})
}

// OpenPool connects to Postgres using the flag value or, when empty, DATABASE_URL.
func OpenPool(ctx context.Context, flagURL string) (*pgxpool.Pool, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if flagURL != "" {
		cfg.Database.ConnString = flagURL
	}
	cfg.Database.MaxConns = 2
	pool, err := persistence.NewPool(ctx, cfg.Database)
	if errors.Is(err, persistence.ErrMissingConnString) {
		return nil, errors.New("database url is required (--database-url or DATABASE_URL)")
	}
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}
	return pool, nil
}

// Services are the domain services backed by Postgres, with the same event subscribers the
// API registers.
type Services struct {
	Invites      invitesservice.Service
	Leads        leadsservice.Service
	Applications applicationsservice.Service
}

func NewServices(pool *pgxpool.Pool, logger *zap.Logger) (Services, error) {
	db := persistence.NewDB(pool)

	tokenStore, err := persistence.NewInviteTokenStore(db)
	if err != nil {
		return Services{}, err
	}
	leadStore, err := persistence.NewLeadStore(db)
	if err != nil {
		return Services{}, err
	}
	applicationStore, err := persistence.NewApplicationStore(db)
	if err != nil {
		return Services{}, err
	}
	profileStore, err := persistence.NewProfileStore(db)
	if err != nil {
		return Services{}, err
	}

	clk := clock.System{}
	leadRepo := leadsrepo.NewPostgresRepository(leadStore)
	invites := invitesservice.New(invitesrepo.NewPostgresRepository(tokenStore), clk, logger)
	leads := leadsservice.New(leadRepo, invites, db, clk, logger)

	bus := events.NewBus(logger)
	leadsservice.NewApplicationEventHandler(leadRepo, logger).Register(bus)
	notificationsservice.NewStatusTriggers(logger).Register(bus)

	applications := applicationsservice.New(applicationsservice.Dependencies{
		Repo:     applicationsrepo.NewPostgresRepository(applicationStore),
		Profiles: applicationsrepo.NewPostgresProfileReader(profileStore),
		Tokens:   invites,
		Leads:    leads,
		Events:   bus,
		Tx:       db,
		Schemas:  persistence.NewSchemaValidator(sqlassets.Schemas),
		Clock:    clk,
		Logger:   logger,
	})

	return Services{Invites: invites, Leads: leads, Applications: applications}, nil
}

// Run opens the database, builds the services and calls fn.
func Run(ctx context.Context, databaseURL string, fn func(ctx context.Context, svcs Services, logger *zap.Logger) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger, err := Logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pool, err := OpenPool(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	svcs, err := NewServices(pool, logger)
	if err != nil {
		return err
	}
	return fn(ctx, svcs, logger)
}
