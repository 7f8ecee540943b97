package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pixora/backend/internal/config"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/repository/memory"
	"github.com/pixora/backend/internal/repository/mongostore"
)

// Stores bundles the repositories of one backend together with its lifecycle.
type Stores struct {
	Accounts domain.AccountRepository
	Posts    domain.PostRepository
	Driver   string

	close func()
}

// Ping checks the backend is reachable
func (s *Stores) Ping(ctx context.Context) error {
	return s.Accounts.Ping(ctx)
}

// Close releases the backend connections
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects the backend selected by cfg.Store.Driver. For postgres the
// embedded migrations run first when cfg.Database.Migrate is set; for mongo
// the indexes are ensured.
func Open(ctx context.Context, cfg *config.Config, policy domain.StoryPolicy, logger *zap.Logger) (*Stores, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := OpenPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := MigratePool(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("Database migrations applied")
		}
		repo := NewPostgresRepository(pool, policy)
		return &Stores{Accounts: repo, Posts: repo, Driver: cfg.Store.Driver, close: pool.Close}, nil

	case "mongo":
		store, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, policy)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return &Stores{Accounts: store, Posts: store, Driver: cfg.Store.Driver, close: store.Close}, nil

	case "memory":
		logger.Warn("Using in-memory store - data is lost on restart")
		return NewMemoryStores(policy), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// NewMemoryStores returns Stores backed by a fresh in-process store.
func NewMemoryStores(policy domain.StoryPolicy) *Stores {
	store := memory.New(policy)
	return &Stores{Accounts: store, Posts: store, Driver: "memory", close: store.Close}
}

// OpenPool creates and pings a pgx pool
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
