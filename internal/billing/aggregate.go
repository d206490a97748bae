package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

// Ledger is everything the aggregates of one bill are derived from.
type Ledger struct {
	Items    []BillItem
	Records  []PaymentRecord
	Requests []RefundRequest
	DueDate  *time.Time
}

// ComputeAggregates derives every cached bill field from the ledger. It is a
// pure function: the same ledger and clock always give the same result.
func ComputeAggregates(l Ledger, now time.Time) Aggregates {
	var a Aggregates

	for _, it := range l.Items {
		a.TotalAmount = a.TotalAmount.Add(it.TotalPrice)
	}

	for _, r := range l.Records {
		switch r.RecordType {
		case RecordPayment:
			a.CollectedAmount = a.CollectedAmount.Add(r.Amount)
		case RecordAdjustment:
			a.AdjustedAmount = a.AdjustedAmount.Add(r.Amount)
		}
	}
	a.PaidAmount = a.CollectedAmount.Add(a.AdjustedAmount)
	a.BalanceAmount = a.TotalAmount.Sub(a.PaidAmount)

	anyOpen := false
	for _, rr := range l.Requests {
		if rr.Status == RequestPaid {
			a.TotalRefundedAmount = a.TotalRefundedAmount.Add(rr.TotalAmount)
		}
		if rr.Status.Open() {
			anyOpen = true
		}
	}

	a.PaymentStatus = DerivePaymentStatus(a.PaidAmount, a.BalanceAmount, l.DueDate, now)
	a.RefundStatus = deriveRefundStatus(a, anyOpen)
	return a
}

// DerivePaymentStatus applies the status rules to already computed amounts.
// Overdue replaces pending or partial once the due date has passed.
func DerivePaymentStatus(paid, balance money.Amount, due *time.Time, now time.Time) PaymentStatus {
	if !balance.IsPositive() {
		return PaymentPaid
	}
	if due != nil && due.Before(now) {
		return PaymentOverdue
	}
	if paid.IsZero() {
		return PaymentPending
	}
	return PaymentPartial
}

func deriveRefundStatus(a Aggregates, anyOpen bool) RefundStatus {
	if a.TotalRefundedAmount.IsPositive() {
		if Refundable(a).IsPositive() {
			return RefundPartial
		}
		return RefundRefunded
	}
	if anyOpen {
		return RefundPending
	}
	return RefundNotRequested
}

// Refundable is max(min(paid, collected) - refunded, 0). Adjustments can lower
// the ceiling but never raise it above what was actually collected.
func Refundable(a Aggregates) money.Amount {
	base := money.Min(a.PaidAmount, a.CollectedAmount)
	return money.Max(base.Sub(a.TotalRefundedAmount), money.Zero)
}

// CheckConsistency compares the stored bill and a freshly computed aggregate
// set against the ledger. Any violation is returned as a
// ConsistencyViolationError and must never be corrected silently.
func CheckConsistency(stored *Bill, fresh Aggregates, l Ledger) error {
	var v []string

	if !stored.TotalAmount.Equal(fresh.TotalAmount) {
		v = append(v, fmt.Sprintf("stored total %s != items total %s", stored.TotalAmount, fresh.TotalAmount))
	}
	if !stored.PaidAmount.Add(stored.BalanceAmount).Equal(stored.TotalAmount) {
		v = append(v, fmt.Sprintf("stored paid %s + balance %s != total %s", stored.PaidAmount, stored.BalanceAmount, stored.TotalAmount))
	}
	if fresh.TotalRefundedAmount.GreaterThan(fresh.PaidAmount) {
		v = append(v, fmt.Sprintf("refunded %s > paid %s", fresh.TotalRefundedAmount, fresh.PaidAmount))
	}

	refundRecords := money.Zero
	for _, r := range l.Records {
		if r.RecordType == RecordRefund {
			refundRecords = refundRecords.Add(r.Amount.Abs())
		}
	}
	if !refundRecords.Equal(fresh.TotalRefundedAmount) {
		v = append(v, fmt.Sprintf("refund records %s != refunded %s", refundRecords, fresh.TotalRefundedAmount))
	}

	for _, it := range l.Items {
		if it.RefundedAmount.GreaterThan(it.TotalPrice) {
			v = append(v, fmt.Sprintf("item %s refunded %s > price %s", it.ID, it.RefundedAmount, it.TotalPrice))
		}
		if it.RefundedQuantity > it.Quantity {
			v = append(v, fmt.Sprintf("item %s refunded qty %d > qty %d", it.ID, it.RefundedQuantity, it.Quantity))
		}
	}

	if len(v) > 0 {
		return &ConsistencyViolationError{BillID: stored.ID, Violations: v}
	}
	return nil
}

// ApprovedUnpaid sums approved requests other than exclude that still await payout.
func ApprovedUnpaid(reqs []RefundRequest, exclude uuid.UUID) money.Amount {
	total := money.Zero
	for _, r := range reqs {
		if r.ID != exclude && r.Status == RequestApproved {
			total = total.Add(r.TotalAmount)
		}
	}
	return total
}
