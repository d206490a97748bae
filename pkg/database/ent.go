package database

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/internal/repo/postgres"
)

// NewStore opens the billing store on PostgreSQL from central config.
func NewStore(cfg config.DatabaseConfig) (*postgres.Store, error) {
	c := FromCentralConfig(cfg)
	drv, err := NewEntDriver(context.Background(), c)
	if err != nil {
		return nil, err
	}
	return postgres.New(QueryDriver(drv, c)), nil
}

// NewEntDriver opens an ent SQL driver from package Config.
func NewEntDriver(ctx context.Context, cfg Config) (*entsql.Driver, error) {
	db, err := openSQLDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return entsql.OpenDB(dialect.Postgres, db), nil
}

// QueryDriver returns drv, wrapped with statement logging when enabled.
func QueryDriver(drv dialect.Driver, cfg Config) dialect.Driver {
	if !cfg.LogQueries {
		return drv
	}
	return dialect.DebugWithContext(drv, func(ctx context.Context, args ...any) {
		slog.DebugContext(ctx, "sql", "statement", fmt.Sprint(args...))
	})
}

// Migrate creates the billing tables on the store's connection.
func Migrate(ctx context.Context, store *postgres.Store, cfg config.DatabaseConfig, withDirectory bool) error {
	return postgres.Migrate(ctx, store.Driver(), postgres.MigrateOptions{
		SafeMode:      cfg.Migrations.SafeMode,
		WithDirectory: withDirectory,
	})
}
