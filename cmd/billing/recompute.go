package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	billingpkg "github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/service/ledger"
)

func NewRecomputeCommand() *cobra.Command {
	var clinic, bill string

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild bill aggregates from items, payment records and refunds",
		Long: `Recompute re-derives the stored totals, balances and statuses of bills.

Without flags every bill of every clinic is recomputed in pages of
billing.recompute_batch_size. Bills whose stored aggregates drifted are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			clinicID, err := parseOptionalUUID("clinic", clinic)
			if err != nil {
				return err
			}
			billID, err := parseOptionalUUID("bill", bill)
			if err != nil {
				return err
			}

			var svc ledger.Service
			return runWithServices(cmd.Context(), cfg, func(ctx context.Context) error {
				actor := billingpkg.Actor{ClinicID: clinicID}

				if bill != "" {
					b, err := svc.RecomputeAggregates(ctx, actor, billID)
					if err != nil {
						return err
					}
					fmt.Printf("%s paid=%s balance=%s status=%s\n", b.BillNumber, b.PaidAmount, b.BalanceAmount, b.PaymentStatus)
					return nil
				}

				scanned, drifted, err := recomputeAll(ctx, svc, actor, repo.NormalizeLimit(cfg.Billing.RecomputeBatchSize))
				if err != nil {
					return err
				}
				fmt.Printf("Recomputed %d bills, %d had drifted.\n", scanned, drifted)
				return nil
			}, &svc)
		},
	}

	cmd.Flags().StringVar(&clinic, "clinic", "", "Only bills of this clinic")
	cmd.Flags().StringVar(&bill, "bill", "", "Only this bill")

	return cmd
}

func recomputeAll(ctx context.Context, svc ledger.Service, actor billingpkg.Actor, batch int) (scanned, drifted int, err error) {
	for offset := 0; ; offset += batch {
		bills, err := svc.ListBills(ctx, actor, repo.BillFilter{Limit: batch, Offset: offset})
		if err != nil {
			return scanned, drifted, err
		}
		for _, before := range bills {
			after, err := svc.RecomputeAggregates(ctx, actor, before.ID)
			if err != nil {
				return scanned, drifted, fmt.Errorf("recompute %s: %w", before.BillNumber, err)
			}
			scanned++
			if aggregatesDrifted(before.Aggregates, after.Aggregates) {
				drifted++
				slog.Warn("bill aggregates drifted",
					"bill_id", before.ID,
					"bill_number", before.BillNumber,
					"paid_before", before.PaidAmount.String(),
					"paid_after", after.PaidAmount.String(),
					"balance_before", before.BalanceAmount.String(),
					"balance_after", after.BalanceAmount.String(),
				)
				fmt.Printf("  %s paid %s -> %s, balance %s -> %s\n",
					before.BillNumber, before.PaidAmount, after.PaidAmount, before.BalanceAmount, after.BalanceAmount)
			}
		}
		if len(bills) < batch {
			return scanned, drifted, nil
		}
	}
}

func aggregatesDrifted(a, b billingpkg.Aggregates) bool {
	return !a.TotalAmount.Equal(b.TotalAmount) ||
		!a.PaidAmount.Equal(b.PaidAmount) ||
		!a.CollectedAmount.Equal(b.CollectedAmount) ||
		!a.AdjustedAmount.Equal(b.AdjustedAmount) ||
		!a.BalanceAmount.Equal(b.BalanceAmount) ||
		!a.TotalRefundedAmount.Equal(b.TotalRefundedAmount) ||
		a.RefundStatus != b.RefundStatus
}
