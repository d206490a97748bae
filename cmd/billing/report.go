package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Alijeyrad/simorq_billing/internal/service/report"
)

func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print reconciliation reports as JSON",
	}

	cmd.AddCommand(newDailyReportCommand())
	cmd.AddCommand(newPeriodReportCommand())

	return cmd
}

func newDailyReportCommand() *cobra.Command {
	var (
		clinic   string
		date     string
		enhanced bool
	)

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Daily collections, refunds and method breakdown for one clinic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			clinicID, err := requiredClinic(clinic)
			if err != nil {
				return err
			}
			if date == "" {
				date = time.Now().In(cfg.Billing.Location()).Format(report.DateLayout)
			}
			day, err := report.ParseDate("date", date)
			if err != nil {
				return err
			}

			var svc report.Service
			return runWithServices(cmd.Context(), cfg, func(ctx context.Context) error {
				if enhanced {
					rep, err := svc.EnhancedReport(ctx, clinicID, day)
					if err != nil {
						return err
					}
					return printJSON(rep)
				}
				sum, err := svc.DailySummary(ctx, clinicID, day)
				if err != nil {
					return err
				}
				return printJSON(sum)
			}, &svc)
		},
	}

	cmd.Flags().StringVar(&clinic, "clinic", "", "Clinic id (required)")
	cmd.Flags().StringVar(&date, "date", "", "Day as YYYY-MM-DD, defaults to today in the clinic time zone")
	cmd.Flags().BoolVar(&enhanced, "enhanced", false, "Include categories, hourly buckets and outstanding balance")

	return cmd
}

func newPeriodReportCommand() *cobra.Command {
	var clinic, from, to string

	cmd := &cobra.Command{
		Use:   "period",
		Short: "Day-by-day totals over an inclusive date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			clinicID, err := requiredClinic(clinic)
			if err != nil {
				return err
			}
			start, err := report.ParseDate("from", from)
			if err != nil {
				return err
			}
			end, err := report.ParseDate("to", to)
			if err != nil {
				return err
			}

			var svc report.Service
			return runWithServices(cmd.Context(), cfg, func(ctx context.Context) error {
				sum, err := svc.PeriodSummary(ctx, clinicID, start, end)
				if err != nil {
					return err
				}
				return printJSON(sum)
			}, &svc)
		},
	}

	cmd.Flags().StringVar(&clinic, "clinic", "", "Clinic id (required)")
	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func requiredClinic(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, errors.New("--clinic is required")
	}
	return parseOptionalUUID("clinic", s)
}
