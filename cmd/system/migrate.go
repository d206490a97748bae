package system

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
	"github.com/Alijeyrad/simorq_billing/pkg/constants"
	"github.com/Alijeyrad/simorq_billing/pkg/database"
)

func NewMigrateCommand() *cobra.Command {
	var withDirectory bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Create the billing tables and seed the default billing RBAC policies.

With --with-directory the patient and visit tables are created as well. Use it
only when no clinical database owns them, e.g. in development.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			if cfg.Database.Driver != constants.DriverPostgres {
				return fmt.Errorf("migrate needs the %q driver, config uses %q", constants.DriverPostgres, cfg.Database.Driver)
			}

			timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = time.Minute
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			// billing db
			fmt.Println("Running Migrations For Billing DB.")
			store, err := database.NewStore(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to open billing store: %w", err)
			}
			defer store.Close()

			if err := database.Migrate(ctx, store, cfg.Database, withDirectory); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			// casbin db
			fmt.Println("Running Migrations For Casbin DB.")

			casbinDBDSN := database.NewDSN(cfg.CasbinDatabase)
			enforcer, cleanup, err := authorize.NewEnforcer(cfg.Authorization.CasbinModelPath, casbinDBDSN)
			if err != nil {
				return fmt.Errorf("failed to create enforcer: %w", err)
			}
			defer cleanup(context.Background())

			auth, err := authorize.NewAuthorization(enforcer)
			if err != nil {
				return fmt.Errorf("failed to create authorization: %w", err)
			}

			// Seed Casbin policies
			slog.Info("Seeding Casbin policies...")
			if err := authorize.SeedDefaultPolicies(ctx, auth); err != nil {
				return fmt.Errorf("failed to seed policies: %w", err)
			}

			fmt.Println("Migrations executed successfully.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDirectory, "with-directory", false, "Also create the patient and visit tables")

	return cmd
}
