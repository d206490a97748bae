package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/Alijeyrad/simorq_billing/config"
)

// EnsureDatabases creates the billing and casbin databases when missing.
// It connects to the maintenance database "postgres" with the billing
// credentials, so that role needs CREATEDB.
func EnsureDatabases(ctx context.Context, cfg *config.Config) ([]string, error) {
	admin := FromCentralConfig(cfg.Database)
	admin.DBName = "postgres"
	admin.MaxOpenConns = 1

	db, err := openSQLDB(ctx, admin)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	names := lo.Uniq(lo.Compact([]string{cfg.Database.DBName, cfg.CasbinDatabase.DBName}))
	var created []string
	for _, name := range names {
		ok, err := createIfMissing(ctx, db, name)
		if err != nil {
			return created, fmt.Errorf("database %q: %w", name, err)
		}
		if ok {
			slog.InfoContext(ctx, "database created", "name", name)
			created = append(created, name)
		}
	}
	return created, nil
}

func createIfMissing(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	// CREATE DATABASE takes no bind parameters.
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		return false, err
	}
	return true, nil
}
