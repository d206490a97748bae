package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	billingcmd "github.com/Alijeyrad/simorq_billing/cmd/billing"
	httpcmd "github.com/Alijeyrad/simorq_billing/cmd/http"
	systemcmd "github.com/Alijeyrad/simorq_billing/cmd/system"
	workercmd "github.com/Alijeyrad/simorq_billing/cmd/worker"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "simorq-billing",
	Short: "Billing, payment and refund reconciliation for Simorq clinics.",
	Long: `simorq-billing keeps each clinic's money ledger: bills and their items,
patient payments and adjustments, the refund approval workflow and the
daily reconciliation reports that tie them together.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global config flag, available for all commands.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	// Attach top-level command trees.
	rootCmd.AddCommand(systemcmd.NewSystemCommand())
	rootCmd.AddCommand(httpcmd.NewHTTPCommand())
	rootCmd.AddCommand(billingcmd.NewBillingCommand())
	rootCmd.AddCommand(workercmd.NewWorkerCommand())
}
