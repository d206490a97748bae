package http

import (
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/internal/api/http"
	"github.com/Alijeyrad/simorq_billing/internal/api/http/router"
	"github.com/Alijeyrad/simorq_billing/internal/app"
	"github.com/Alijeyrad/simorq_billing/pkg/logs"
)

func NewStartCommand() *cobra.Command {
	var (
		shutdownTimeout time.Duration
		withWorkers     bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return err
			}

			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return err
			}

			_, flush := logs.New(cfg)
			defer flush()

			opts := []fx.Option{
				fx.Supply(cfg),
				app.InfraModule,
				app.ServiceModule,
				router.Module,
				http.Module,
				fx.Invoke(func(*fiber.App) {}),
				fx.StopTimeout(shutdownTimeout),
				fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
			}
			if withWorkers {
				opts = append(opts, app.WorkerModule)
			}

			fx.New(opts...).Run()
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Maximum time to wait for graceful shutdown")
	cmd.Flags().BoolVar(&withWorkers, "workers", true, "Run the NATS notification worker in this process")

	return cmd
}
