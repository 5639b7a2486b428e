package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	applicationsrepo "github.com/zenGate-Global/rentflow/domains/applications/be/repo"
	applicationsservice "github.com/zenGate-Global/rentflow/domains/applications/be/service"
	invitesrepo "github.com/zenGate-Global/rentflow/domains/invites/be/repo"
	invitesservice "github.com/zenGate-Global/rentflow/domains/invites/be/service"
	leadsrepo "github.com/zenGate-Global/rentflow/domains/leads/be/repo"
	leadsservice "github.com/zenGate-Global/rentflow/domains/leads/be/service"
	notificationsservice "github.com/zenGate-Global/rentflow/domains/notifications/be/service"
	sqlassets "github.com/zenGate-Global/rentflow/database"
	"github.com/zenGate-Global/rentflow/platform/go/clock"
	"github.com/zenGate-Global/rentflow/platform/go/events"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// backend is the storage the services run on.
type backend struct {
	invites      invitesrepo.Repository
	leads        leadsrepo.Repository
	applications applicationsrepo.Repository
	profiles     applicationsrepo.ProfileReader
	tx           persistence.Transactor
	ready        func(ctx context.Context) error
	close        func()
}

func openBackend(ctx context.Context, cfg config, logger *zap.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart, writes are serialized and not rolled back")
		return memoryBackend(), nil
	case "postgres":
		return postgresBackend(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q (use postgres or memory)", cfg.StoreBackend)
	}
}

func memoryBackend() *backend {
	return &backend{
		invites:      invitesrepo.NewMemoryRepository(),
		leads:        leadsrepo.NewMemoryRepository(),
		applications: applicationsrepo.NewMemoryRepository(),
		profiles:     applicationsrepo.NewMemoryProfiles(),
		tx:           persistence.NewSerialTransactor(),
		ready:        func(context.Context) error { return nil },
		close:        func() {},
	}
}

func postgresBackend(ctx context.Context, cfg config, logger *zap.Logger) (*backend, error) {
	pool, err := persistence.NewPool(ctx, cfg.Database)
	if errors.Is(err, persistence.ErrMissingConnString) {
		return nil, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
	}
	if err != nil {
		return nil, fmt.Errorf("init postgres pool: %w", err)
	}

	if cfg.RunMigrations {
		logger.Info("applying database migrations")
		if err := persistence.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	db := persistence.NewDB(pool)
	tokenStore, err := persistence.NewInviteTokenStore(db)
	if err != nil {
		pool.Close()
		return nil, err
	}
	leadStore, err := persistence.NewLeadStore(db)
	if err != nil {
		pool.Close()
		return nil, err
	}
	applicationStore, err := persistence.NewApplicationStore(db)
	if err != nil {
		pool.Close()
		return nil, err
	}
	profileStore, err := persistence.NewProfileStore(db)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &backend{
		invites:      invitesrepo.NewPostgresRepository(tokenStore),
		leads:        leadsrepo.NewPostgresRepository(leadStore),
		applications: applicationsrepo.NewPostgresRepository(applicationStore),
		profiles:     applicationsrepo.NewPostgresProfileReader(profileStore),
		tx:           db,
		ready:        pool.Ping,
		close:        pool.Close,
	}, nil
}

type services struct {
	invites      invitesservice.Service
	leads        leadsservice.Service
	applications applicationsservice.Service
}

// newServices wires the domain services and subscribes the lead tracker and notification
// triggers to application events.
func newServices(store *backend, bus *events.Bus, logger *zap.Logger) services {
	clk := clock.System{}

	invites := invitesservice.New(store.invites, clk, logger.Named("invites"))
	leads := leadsservice.New(store.leads, invites, store.tx, clk, logger.Named("leads"))

	leadsservice.NewApplicationEventHandler(store.leads, logger.Named("leads")).Register(bus)
	notificationsservice.NewStatusTriggers(logger.Named("notifications")).Register(bus)

	applications := applicationsservice.New(applicationsservice.Dependencies{
		Repo:     store.applications,
		Profiles: store.profiles,
		Tokens:   invites,
		Leads:    leads,
		Events:   bus,
		Tx:       store.tx,
		Schemas:  persistence.NewSchemaValidator(sqlassets.Schemas),
		Clock:    clk,
		Logger:   logger.Named("applications"),
	})

	return services{invites: invites, leads: leads, applications: applications}
}
