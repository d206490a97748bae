package system

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/pkg/constants"
	"github.com/Alijeyrad/simorq_billing/pkg/database"
)

func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the billing and casbin databases if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			if cfg.Database.Driver != constants.DriverPostgres {
				return fmt.Errorf("init needs database.driver %q, got %q", constants.DriverPostgres, cfg.Database.Driver)
			}

			created, err := database.EnsureDatabases(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all databases already exist")
				return nil
			}
			for _, name := range created {
				fmt.Fprintln(cmd.OutOrStdout(), "created", name)
			}
			return nil
		},
	}
}
